package api

import (
	"log/slog"
	"net/http"

	"podlistener/internal/transcriber"

	"github.com/gin-gonic/gin"
)

// TranscriptionSettingsResponse is the resolved transcription configuration
// (env defaults overlaid with any AppSettings override), returned verbatim
// by both the GET and PUT endpoints.
type TranscriptionSettingsResponse struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	ExternalURL    string `json:"external_url"`
	HasExternalKey bool   `json:"has_external_key"`
}

type updateTranscriptionSettingsRequest struct {
	Provider            *string `json:"provider"`
	Model               *string `json:"model"`
	ExternalURL         *string `json:"external_url"`
	ExternalAPIKey      *string `json:"external_api_key"`
	ClearExternalAPIKey bool    `json:"clear_external_api_key"`
}

// HandleGetTranscriptionSettings returns a handler that reports the
// currently resolved transcription configuration. The API key itself is
// never echoed back, only whether one is set.
// @Summary      Get transcription settings
// @Description  Get the resolved transcription provider/model/endpoint configuration
// @Tags         settings
// @Produce      json
// @Success      200  {object}  TranscriptionSettingsResponse
// @Failure      500  {object}  map[string]string
// @Router       /settings/transcription [get]
func HandleGetTranscriptionSettings(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		cfg, err := transcriber.GetTranscriptionSettings(ctx, deps.Store)
		if err != nil {
			slog.Error("get transcription settings failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transcription settings"})
			return
		}

		c.JSON(http.StatusOK, toSettingsResponse(cfg))
	}
}

// HandleUpdateTranscriptionSettings returns a handler that overrides one or
// more transcription settings, persisting them as AppSettings rows.
// @Summary      Update transcription settings
// @Description  Override the transcription provider/model/endpoint/API key
// @Tags         settings
// @Accept       json
// @Produce      json
// @Param        body body updateTranscriptionSettingsRequest true "Settings to override"
// @Success      200  {object}  TranscriptionSettingsResponse
// @Failure      422  {object}  map[string]string
// @Router       /settings/transcription [put]
func HandleUpdateTranscriptionSettings(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateTranscriptionSettingsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request body"})
			return
		}

		ctx := c.Request.Context()
		cfg, err := transcriber.UpdateTranscriptionSettings(ctx, deps.Store, transcriber.SettingsUpdate{
			Provider:            req.Provider,
			Model:               req.Model,
			ExternalURL:         req.ExternalURL,
			ExternalAPIKey:      req.ExternalAPIKey,
			ClearExternalAPIKey: req.ClearExternalAPIKey,
		})
		if err != nil {
			slog.Error("update transcription settings failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update transcription settings"})
			return
		}

		c.JSON(http.StatusOK, toSettingsResponse(cfg))
	}
}

func toSettingsResponse(cfg transcriber.RuntimeConfig) TranscriptionSettingsResponse {
	return TranscriptionSettingsResponse{
		Provider:       cfg.Provider,
		Model:          cfg.Model,
		ExternalURL:    cfg.ExternalURL,
		HasExternalKey: cfg.ExternalAPIKey != "",
	}
}
