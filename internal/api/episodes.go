package api

import (
	"log/slog"
	"net/http"

	"podlistener/internal/queue"
	"podlistener/internal/store"

	"github.com/gin-gonic/gin"
)

// EpisodeResponse is one episode as returned to API callers.
type EpisodeResponse struct {
	ID             string  `json:"id"`
	FeedID         string  `json:"feed_id"`
	GUID           string  `json:"guid"`
	Title          *string `json:"title"`
	AudioURL       *string `json:"audio_url"`
	PublishedAt    *string `json:"published_at"`
	Status         string  `json:"status"`
	TranscriptText *string `json:"transcript_text,omitempty"`
	ErrorMessage   *string `json:"error_message"`
	MentionCount   int     `json:"mention_count"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

// HandleListEpisodes returns a handler that lists episodes under one feed,
// newest first.
// @Summary      List episodes
// @Description  List every episode sighted under a feed, with mention counts
// @Tags         episodes
// @Produce      json
// @Param        feed_id query string true "Feed ID"
// @Success      200  {array}   EpisodeResponse
// @Failure      404  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Router       /episodes [get]
func HandleListEpisodes(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		feedID := c.Query("feed_id")
		if feedID == "" {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "feed_id is required"})
			return
		}
		ctx := c.Request.Context()

		feed, err := deps.Store.GetFeed(ctx, feedID)
		if err != nil {
			slog.Error("get feed failed", "feed_id", feedID, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list episodes"})
			return
		}
		if feed == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
			return
		}

		episodes, err := deps.Store.ListEpisodesByFeed(ctx, feedID)
		if err != nil {
			slog.Error("list episodes failed", "feed_id", feedID, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list episodes"})
			return
		}

		out := make([]EpisodeResponse, 0, len(episodes))
		for _, e := range episodes {
			count, err := deps.Store.CountMentionsByEpisode(ctx, e.ID)
			if err != nil {
				slog.Error("count mentions for episode failed", "episode_id", e.ID, "err", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list episodes"})
				return
			}
			out = append(out, toEpisodeResponse(e, count, false))
		}

		c.JSON(http.StatusOK, out)
	}
}

// HandleGetEpisode returns a handler that fetches one episode, including its
// transcript text.
// @Summary      Get episode
// @Description  Get one episode, including its transcript text if available
// @Tags         episodes
// @Produce      json
// @Param        id path string true "Episode ID"
// @Success      200  {object}  EpisodeResponse
// @Failure      404  {object}  map[string]string
// @Router       /episodes/{id} [get]
func HandleGetEpisode(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := c.Request.Context()

		episode, err := deps.Store.GetEpisode(ctx, id)
		if err != nil {
			slog.Error("get episode failed", "episode_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch episode"})
			return
		}
		if episode == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
			return
		}

		count, err := deps.Store.CountMentionsByEpisode(ctx, id)
		if err != nil {
			slog.Error("count mentions for episode failed", "episode_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch episode"})
			return
		}

		c.JSON(http.StatusOK, toEpisodeResponse(episode, count, true))
	}
}

// HandleReprocessEpisode returns a handler that resets an episode to pending
// and requeues it for a full download-transcribe-detect-enrich pass.
// @Summary      Reprocess episode
// @Description  Reset an episode to pending and requeue the full pipeline
// @Tags         episodes
// @Produce      json
// @Param        id path string true "Episode ID"
// @Success      202  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /episodes/{id}/reprocess [post]
func HandleReprocessEpisode(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := c.Request.Context()

		episode, err := deps.Store.GetEpisode(ctx, id)
		if err != nil {
			slog.Error("get episode failed", "episode_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reprocess episode"})
			return
		}
		if episode == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
			return
		}

		if err := deps.Store.SetEpisodeStatus(ctx, id, store.StatusPending, true); err != nil {
			slog.Error("set episode status failed", "episode_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reprocess episode"})
			return
		}

		if _, err := deps.Queue.Enqueue(ctx, queue.ProcessQueue, "process_episode", id, 0); err != nil {
			slog.Error("enqueue process_episode failed", "episode_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue episode for reprocessing"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	}
}

// HandleRetryEnrichment returns a handler that re-runs keyword detection and
// enrichment on an episode's existing transcript, without re-downloading or
// re-transcribing the audio.
//
// Deliberate deviation: the original guard treats a falsy transcript
// (None or "") as "nothing to enrich". Here the guard is null-specific
// (TranscriptText == nil) so an episode whose transcription genuinely
// produced an empty string can still be retried, matching how the rest of
// this codebase treats transcript_text as "written, possibly empty" rather
// than "present or absent" (see SetEpisodeTranscript).
// @Summary      Retry enrichment
// @Description  Re-run keyword detection and LLM enrichment against the existing transcript
// @Tags         episodes
// @Produce      json
// @Param        id path string true "Episode ID"
// @Success      202  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /episodes/{id}/retry-enrichment [post]
func HandleRetryEnrichment(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := c.Request.Context()

		episode, err := deps.Store.GetEpisode(ctx, id)
		if err != nil {
			slog.Error("get episode failed", "episode_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry enrichment"})
			return
		}
		if episode == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "episode not found"})
			return
		}
		if episode.TranscriptText == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "episode has no transcript yet"})
			return
		}

		if err := deps.Store.SetEpisodeStatus(ctx, id, store.StatusAnalyzing, true); err != nil {
			slog.Error("set episode status failed", "episode_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retry enrichment"})
			return
		}

		payload := map[string]any{"episode_id": id, "transcription_done": true}
		if _, err := deps.Queue.Enqueue(ctx, queue.KeywordsQueue, "detect_episode_keywords", payload, 2); err != nil {
			slog.Error("enqueue detect_episode_keywords failed", "episode_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue enrichment retry"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	}
}

func toEpisodeResponse(e *store.Episode, mentionCount int, includeTranscript bool) EpisodeResponse {
	resp := EpisodeResponse{
		ID:           e.ID,
		FeedID:       e.FeedID,
		GUID:         e.GUID,
		Title:        e.Title,
		AudioURL:     e.AudioURL,
		Status:       string(e.Status),
		ErrorMessage: e.ErrorMessage,
		MentionCount: mentionCount,
		CreatedAt:    e.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:    e.UpdatedAt.UTC().Format(timeLayout),
	}
	if e.PublishedAt != nil {
		s := e.PublishedAt.UTC().Format(timeLayout)
		resp.PublishedAt = &s
	}
	if includeTranscript {
		resp.TranscriptText = e.TranscriptText
	}
	return resp
}
