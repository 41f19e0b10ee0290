package api

import (
	"log/slog"
	"net/http"
	"strings"

	"podlistener/internal/queue"
	"podlistener/internal/store"

	"github.com/gin-gonic/gin"
)

// FeedResponse is one feed as returned to API callers, wrapping a bare
// store.Feed with the episode count callers need to render a feed list.
type FeedResponse struct {
	ID           string  `json:"id"`
	RSSURL       string  `json:"rss_url"`
	Title        *string `json:"title"`
	ImageURL     *string `json:"image_url"`
	LastPolledAt *string `json:"last_polled_at"`
	EpisodeCount int     `json:"episode_count"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

type createFeedRequest struct {
	RSSURL string `json:"rss_url" binding:"required"`
}

// HandleListFeeds returns a handler that lists every subscribed feed.
// @Summary      List feeds
// @Description  List all subscribed RSS/Atom feeds with their episode counts
// @Tags         feeds
// @Produce      json
// @Success      200  {array}   FeedResponse
// @Failure      500  {object}  map[string]string
// @Router       /feeds [get]
func HandleListFeeds(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		feeds, err := deps.Store.ListFeeds(ctx)
		if err != nil {
			slog.Error("list feeds failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list feeds"})
			return
		}

		out := make([]FeedResponse, 0, len(feeds))
		for _, f := range feeds {
			count, err := deps.Store.CountEpisodesByFeed(ctx, f.ID)
			if err != nil {
				slog.Error("count episodes for feed failed", "feed_id", f.ID, "err", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list feeds"})
				return
			}
			out = append(out, toFeedResponse(f, count))
		}

		c.JSON(http.StatusOK, out)
	}
}

// HandleCreateFeed returns a handler that subscribes to a new feed and
// kicks off its first poll.
// @Summary      Create feed
// @Description  Subscribe to a new RSS/Atom feed and queue its first poll
// @Tags         feeds
// @Accept       json
// @Produce      json
// @Param        body body createFeedRequest true "Feed to subscribe to"
// @Success      201  {object}  FeedResponse
// @Failure      409  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Router       /feeds [post]
func HandleCreateFeed(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createFeedRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RSSURL) == "" {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "rss_url is required"})
			return
		}

		ctx := c.Request.Context()
		feed, err := deps.Store.CreateFeed(ctx, req.RSSURL)
		if err != nil {
			if isAlreadyExists(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "a feed with this rss_url is already registered"})
				return
			}
			slog.Error("create feed failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create feed"})
			return
		}

		if _, err := deps.Queue.Enqueue(ctx, queue.PollQueue, "poll_single_feed", feed.ID, 3); err != nil {
			// The feed row is already committed; a failed initial poll just
			// means it waits for the next scheduled beat instead of polling
			// immediately, so this is logged, not fatal to the request.
			slog.Error("failed to queue initial poll for new feed", "feed_id", feed.ID, "err", err)
		}

		c.JSON(http.StatusCreated, toFeedResponse(feed, 0))
	}
}

// HandleGetFeed returns a handler that fetches one feed.
// @Summary      Get feed
// @Description  Get one subscribed feed by id
// @Tags         feeds
// @Produce      json
// @Param        id path string true "Feed ID"
// @Success      200  {object}  FeedResponse
// @Failure      404  {object}  map[string]string
// @Router       /feeds/{id} [get]
func HandleGetFeed(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := c.Request.Context()

		feed, err := deps.Store.GetFeed(ctx, id)
		if err != nil {
			slog.Error("get feed failed", "feed_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch feed"})
			return
		}
		if feed == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
			return
		}

		count, err := deps.Store.CountEpisodesByFeed(ctx, id)
		if err != nil {
			slog.Error("count episodes for feed failed", "feed_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch feed"})
			return
		}

		c.JSON(http.StatusOK, toFeedResponse(feed, count))
	}
}

// HandleDeleteFeed returns a handler that unsubscribes a feed, cascading to
// its episodes and mentions.
// @Summary      Delete feed
// @Description  Unsubscribe from a feed, removing its episodes and mentions
// @Tags         feeds
// @Param        id path string true "Feed ID"
// @Success      204
// @Failure      404  {object}  map[string]string
// @Router       /feeds/{id} [delete]
func HandleDeleteFeed(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		ctx := c.Request.Context()

		feed, err := deps.Store.GetFeed(ctx, id)
		if err != nil {
			slog.Error("get feed failed", "feed_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete feed"})
			return
		}
		if feed == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "feed not found"})
			return
		}

		if err := deps.Store.DeleteFeed(ctx, id); err != nil {
			slog.Error("delete feed failed", "feed_id", id, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete feed"})
			return
		}

		c.Status(http.StatusNoContent)
	}
}

func toFeedResponse(f *store.Feed, count int) FeedResponse {
	resp := FeedResponse{
		ID:           f.ID,
		RSSURL:       f.RSSURL,
		Title:        f.Title,
		ImageURL:     f.ImageURL,
		EpisodeCount: count,
		CreatedAt:    f.CreatedAt.UTC().Format(timeLayout),
		UpdatedAt:    f.UpdatedAt.UTC().Format(timeLayout),
	}
	if f.LastPolledAt != nil {
		s := f.LastPolledAt.UTC().Format(timeLayout)
		resp.LastPolledAt = &s
	}
	return resp
}
