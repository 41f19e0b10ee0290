package transcriber

import (
	"context"
	"testing"

	"podlistener/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettings map[string]string

func (f fakeSettings) GetSetting(_ context.Context, key string) (string, bool, error) {
	value, ok := f[key]
	return value, ok, nil
}

func TestResolveRuntimeConfigFallsBackWhenAbsent(t *testing.T) {
	cfg, err := resolveRuntimeConfig(context.Background(), fakeSettings{})
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Provider)
}

func TestResolveRuntimeConfigNormalizesCloudToExternal(t *testing.T) {
	cfg, err := resolveRuntimeConfig(context.Background(), fakeSettings{
		store.SettingTranscriptionProvider: "cloud",
	})
	require.NoError(t, err)

	assert.Equal(t, "external", cfg.Provider)
}

func TestResolveRuntimeConfigProviderFallsBackWhenEmptyString(t *testing.T) {
	cfg, err := resolveRuntimeConfig(context.Background(), fakeSettings{
		store.SettingTranscriptionProvider: "",
	})
	require.NoError(t, err)

	assert.Equal(t, "local", cfg.Provider)
}

func TestResolveRuntimeConfigAPIKeyUsesEmptyStringWhenPresentButCleared(t *testing.T) {
	cfg, err := resolveRuntimeConfig(context.Background(), fakeSettings{
		store.SettingTranscriptionAPIKey: "",
	})
	require.NoError(t, err)

	assert.Equal(t, "", cfg.ExternalAPIKey)
}

func TestResolveRuntimeConfigModelUsesStoredValue(t *testing.T) {
	cfg, err := resolveRuntimeConfig(context.Background(), fakeSettings{
		store.SettingTranscriptionModel: "whisper-large-v3",
	})
	require.NoError(t, err)

	assert.Equal(t, "whisper-large-v3", cfg.Model)
}
