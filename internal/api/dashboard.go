package api

import (
	"log/slog"
	"net/http"

	"podlistener/internal/store"

	"github.com/gin-gonic/gin"
)

// DashboardStatsResponse summarizes counts across the whole system, with
// episode status collapsed into the three buckets the dashboard UI
// actually renders.
type DashboardStatsResponse struct {
	Feeds              int `json:"feeds"`
	Episodes           int `json:"episodes"`
	Keywords           int `json:"keywords"`
	Mentions           int `json:"mentions"`
	EpisodesCompleted  int `json:"episodes_completed"`
	EpisodesProcessing int `json:"episodes_processing"`
	EpisodesFailed     int `json:"episodes_failed"`
}

var processingStatuses = []store.EpisodeStatus{
	store.StatusPending, store.StatusQueued, store.StatusDownloading,
	store.StatusTranscribing, store.StatusAnalyzing,
}

// HandleDashboardStats returns a handler that summarizes feed/episode/
// keyword/mention counts for the dashboard.
// @Summary      Dashboard stats
// @Description  Summarize feed, episode, keyword, and mention counts
// @Tags         dashboard
// @Produce      json
// @Success      200  {object}  DashboardStatsResponse
// @Failure      500  {object}  map[string]string
// @Router       /dashboard/stats [get]
func HandleDashboardStats(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		feeds, episodes, keywords, mentions, byStatus, err := deps.Store.DashboardStats(ctx)
		if err != nil {
			slog.Error("dashboard stats failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch dashboard stats"})
			return
		}

		processing := 0
		for _, status := range processingStatuses {
			processing += byStatus[string(status)]
		}

		c.JSON(http.StatusOK, DashboardStatsResponse{
			Feeds:              feeds,
			Episodes:           episodes,
			Keywords:           keywords,
			Mentions:           mentions,
			EpisodesCompleted:  byStatus[string(store.StatusCompleted)],
			EpisodesProcessing: processing,
			EpisodesFailed:     byStatus[string(store.StatusFailed)],
		})
	}
}
