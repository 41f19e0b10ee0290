// Package api implements the thin HTTP surface over the Store and Job
// Queue: feeds, episodes, keywords, mentions, transcription settings, and
// the dashboard summary.
package api

import (
	"net/http"

	"podlistener/internal/queue"
	"podlistener/internal/store"

	"github.com/gin-gonic/gin"
)

// Deps bundles the handlers' dependencies so route registration stays a
// single call site.
type Deps struct {
	Store *store.PostgresStore
	Queue *queue.Queue
}

// SetupRoutes configures every API route under /api.
func SetupRoutes(r *gin.Engine, deps Deps) {
	api := r.Group("/api")
	{
		api.GET("/health", HandleHealth())

		feeds := api.Group("/feeds")
		{
			feeds.GET("", HandleListFeeds(deps))
			feeds.GET("/:id", HandleGetFeed(deps))
			feeds.POST("", HandleCreateFeed(deps))
			feeds.DELETE("/:id", HandleDeleteFeed(deps))
		}

		episodes := api.Group("/episodes")
		{
			episodes.GET("", HandleListEpisodes(deps))
			episodes.GET("/:id", HandleGetEpisode(deps))
			episodes.POST("/:id/reprocess", HandleReprocessEpisode(deps))
			episodes.POST("/:id/retry-enrichment", HandleRetryEnrichment(deps))
		}

		keywords := api.Group("/keywords")
		{
			keywords.GET("", HandleListKeywords(deps))
			keywords.POST("", HandleCreateKeyword(deps))
			keywords.DELETE("/:id", HandleDeleteKeyword(deps))
		}

		mentions := api.Group("/mentions")
		{
			mentions.GET("", HandleListMentions(deps))
			mentions.GET("/:id", HandleGetMention(deps))
		}

		settings := api.Group("/settings")
		{
			settings.GET("/transcription", HandleGetTranscriptionSettings(deps))
			settings.PUT("/transcription", HandleUpdateTranscriptionSettings(deps))
		}

		api.GET("/dashboard/stats", HandleDashboardStats(deps))
	}
}

// HandleHealth reports liveness; it touches neither the store nor the
// queue, so it stays meaningful even when a dependency is degraded.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "podlistener"})
	}
}
