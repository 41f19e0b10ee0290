package transcriber

import (
	"context"
	"strings"

	"podlistener/internal/config"
	"podlistener/internal/store"
)

// RuntimeConfig is the resolved provider/model/endpoint the Client uses for
// one transcription call, after applying any AppSettings override on top of
// the env defaults.
type RuntimeConfig struct {
	Provider        string // "local" or "external"
	Model           string
	ExternalURL     string
	ExternalAPIKey  string
}

type settingsReader interface {
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
}

type settingsWriter interface {
	settingsReader
	SetSetting(ctx context.Context, key, value string) error
	ClearSetting(ctx context.Context, key string) error
}

// SettingsUpdate carries the fields a caller wants to override; a nil
// pointer leaves that setting untouched. ClearExternalAPIKey takes
// precedence over ExternalAPIKey when both are set.
type SettingsUpdate struct {
	Provider            *string
	Model               *string
	ExternalURL         *string
	ExternalAPIKey      *string
	ClearExternalAPIKey bool
}

// UpdateTranscriptionSettings applies update's non-nil fields as AppSettings
// rows and returns the newly resolved RuntimeConfig, mirroring
// update_transcription_config_async.
func UpdateTranscriptionSettings(ctx context.Context, s settingsWriter, update SettingsUpdate) (RuntimeConfig, error) {
	if update.Provider != nil {
		if err := s.SetSetting(ctx, store.SettingTranscriptionProvider, *update.Provider); err != nil {
			return RuntimeConfig{}, err
		}
	}
	if update.Model != nil {
		if err := s.SetSetting(ctx, store.SettingTranscriptionModel, *update.Model); err != nil {
			return RuntimeConfig{}, err
		}
	}
	if update.ExternalURL != nil {
		if err := s.SetSetting(ctx, store.SettingTranscriptionExternalURL, *update.ExternalURL); err != nil {
			return RuntimeConfig{}, err
		}
	}
	if update.ClearExternalAPIKey {
		if err := s.SetSetting(ctx, store.SettingTranscriptionAPIKey, ""); err != nil {
			return RuntimeConfig{}, err
		}
	} else if update.ExternalAPIKey != nil {
		if err := s.SetSetting(ctx, store.SettingTranscriptionAPIKey, *update.ExternalAPIKey); err != nil {
			return RuntimeConfig{}, err
		}
	}

	return resolveRuntimeConfig(ctx, s)
}

// GetTranscriptionSettings resolves the current RuntimeConfig without
// applying any change, for the read-only settings endpoint.
func GetTranscriptionSettings(ctx context.Context, s settingsReader) (RuntimeConfig, error) {
	return resolveRuntimeConfig(ctx, s)
}

// resolveRuntimeConfig mirrors transcription_runtime_config.py's
// _resolved_config exactly, including its three distinct fallback rules:
// provider and model fall back to the env default when the setting is
// either absent OR present-but-empty; the external URL falls back the same
// way; but the external API key falls back to the env default ONLY when the
// setting row is entirely absent — a present empty string is used verbatim
// (this is how clear_external_api_key wipes a previously stored key).
func resolveRuntimeConfig(ctx context.Context, s settingsReader) (RuntimeConfig, error) {
	provider, err := resolveFallbackOnEmpty(ctx, s, store.SettingTranscriptionProvider, config.TranscriptionProvider)
	if err != nil {
		return RuntimeConfig{}, err
	}

	externalURL, err := resolveFallbackOnEmpty(ctx, s, store.SettingTranscriptionExternalURL, defaultExternalURL())
	if err != nil {
		return RuntimeConfig{}, err
	}

	model, err := resolveFallbackOnEmpty(ctx, s, store.SettingTranscriptionModel, config.TranscriptionModel)
	if err != nil {
		return RuntimeConfig{}, err
	}

	apiKeyValue, apiKeyOk, err := s.GetSetting(ctx, store.SettingTranscriptionAPIKey)
	if err != nil {
		return RuntimeConfig{}, err
	}
	externalAPIKey := config.CloudTranscriptionAPIKey
	if apiKeyOk {
		externalAPIKey = apiKeyValue
	}

	return RuntimeConfig{
		Provider:       normalizeProvider(provider),
		Model:          model,
		ExternalURL:    externalURL,
		ExternalAPIKey: externalAPIKey,
	}, nil
}

// resolveFallbackOnEmpty reads key and returns its stored value unless the
// row is absent or its value is empty, in which case fallback is used.
func resolveFallbackOnEmpty(ctx context.Context, s settingsReader, key, fallback string) (string, error) {
	value, ok, err := s.GetSetting(ctx, key)
	if err != nil {
		return "", err
	}
	if ok && value != "" {
		return value, nil
	}
	return fallback, nil
}

func normalizeProvider(provider string) string {
	if provider == "cloud" || provider == "external" {
		return "external"
	}
	return "local"
}

func defaultExternalURL() string {
	return strings.TrimRight(config.CloudTranscriptionBaseURL, "/") + "/audio/transcriptions"
}
