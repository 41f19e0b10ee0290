package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"podlistener/internal/store"

	"github.com/gin-gonic/gin"
)

// MentionResponse is one enriched mention as returned to API callers,
// joined with the display fields a bare store.Mention doesn't carry.
type MentionResponse struct {
	ID                string   `json:"id"`
	EpisodeID         string   `json:"episode_id"`
	EpisodeTitle      *string  `json:"episode_title"`
	PodcastTitle      *string  `json:"podcast_title"`
	KeywordID         string   `json:"keyword_id"`
	KeywordPhrase     string   `json:"keyword_phrase"`
	MatchedText       string   `json:"matched_text"`
	TranscriptSegment string   `json:"transcript_segment"`
	Sentiment         *string  `json:"sentiment"`
	SentimentScore    *float64 `json:"sentiment_score"`
	ContextSummary    *string  `json:"context_summary"`
	Topics            []string `json:"topics"`
	IsBuyingSignal    bool     `json:"is_buying_signal"`
	IsPainPoint       bool     `json:"is_pain_point"`
	IsRecommendation  bool     `json:"is_recommendation"`
	CreatedAt         string   `json:"created_at"`
}

// HandleListMentions returns a handler that lists mentions, filterable by
// feed, keyword, and sentiment, newest first.
// @Summary      List mentions
// @Description  List enriched keyword mentions, optionally filtered
// @Tags         mentions
// @Produce      json
// @Param        feed_id    query string false "Filter by feed ID"
// @Param        keyword_id query string false "Filter by keyword ID"
// @Param        sentiment  query string false "Filter by sentiment"
// @Param        limit      query int    false "Page size (default 50, max 100)"
// @Param        offset     query int    false "Page offset"
// @Success      200  {array}   MentionResponse
// @Failure      500  {object}  map[string]string
// @Router       /mentions [get]
func HandleListMentions(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		limit, _ := strconv.Atoi(c.Query("limit"))
		offset, _ := strconv.Atoi(c.Query("offset"))

		filter := store.MentionFilter{
			FeedID:    c.Query("feed_id"),
			KeywordID: c.Query("keyword_id"),
			Sentiment: c.Query("sentiment"),
			Limit:     limit,
			Offset:    offset,
		}

		mentions, err := deps.Store.ListMentions(ctx, filter)
		if err != nil {
			slog.Error("list mentions failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list mentions"})
			return
		}

		out := make([]MentionResponse, 0, len(mentions))
		for _, m := range mentions {
			out = append(out, toMentionResponse(m))
		}

		c.JSON(http.StatusOK, out)
	}
}

// HandleGetMention returns a handler that fetches one mention by id.
// @Summary      Get mention
// @Description  Get one enriched keyword mention by id
// @Tags         mentions
// @Produce      json
// @Param        id path string true "Mention ID"
// @Success      200  {object}  MentionResponse
// @Failure      404  {object}  map[string]string
// @Router       /mentions/{id} [get]
func HandleGetMention(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := c.Request.Context()

		mention, err := deps.Store.GetMention(ctx, id)
		if err != nil {
			slog.Error("get mention failed", "mention_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch mention"})
			return
		}
		if mention == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "mention not found"})
			return
		}

		c.JSON(http.StatusOK, toMentionResponse(mention))
	}
}

func toMentionResponse(m *store.MentionWithContext) MentionResponse {
	resp := MentionResponse{
		ID:                m.ID,
		EpisodeID:         m.EpisodeID,
		EpisodeTitle:      m.EpisodeTitle,
		PodcastTitle:      m.PodcastTitle,
		KeywordID:         m.KeywordID,
		KeywordPhrase:     m.KeywordPhrase,
		MatchedText:       m.MatchedText,
		TranscriptSegment: m.TranscriptSegment,
		SentimentScore:    m.SentimentScore,
		ContextSummary:    m.ContextSummary,
		Topics:            m.Topics,
		IsBuyingSignal:    m.IsBuyingSignal,
		IsPainPoint:       m.IsPainPoint,
		IsRecommendation:  m.IsRecommendation,
		CreatedAt:         m.CreatedAt.UTC().Format(timeLayout),
	}
	if m.Sentiment != nil {
		s := string(*m.Sentiment)
		resp.Sentiment = &s
	}
	return resp
}
