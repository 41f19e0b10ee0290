package orchestrator

import (
	"encoding/json"
	"testing"
	"time"

	"podlistener/internal/pipelineerr"
	"podlistener/internal/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectionInputAcceptsLegacyStringForm(t *testing.T) {
	var input detectionInput
	require.NoError(t, json.Unmarshal([]byte(`"episode-123"`), &input))

	assert.Equal(t, "episode-123", input.EpisodeID)
	assert.False(t, input.isObject)
}

func TestDetectionInputAcceptsChainHandoffObjectForm(t *testing.T) {
	var input detectionInput
	require.NoError(t, json.Unmarshal([]byte(`{"episode_id":"episode-123","transcription_done":true}`), &input))

	assert.Equal(t, "episode-123", input.EpisodeID)
	assert.True(t, input.isObject)
	assert.True(t, input.TranscriptionDone)
}

func TestIsLastAttempt(t *testing.T) {
	assert.False(t, isLastAttempt(&queue.Job{Retries: 0, MaxRetries: 2}))
	assert.False(t, isLastAttempt(&queue.Job{Retries: 1, MaxRetries: 2}))
	assert.True(t, isLastAttempt(&queue.Job{Retries: 2, MaxRetries: 2}))
}

func TestTranscriptionRetryCountdownDefaultsTo120sForNonRetryable(t *testing.T) {
	got := transcriptionRetryCountdown(assertErr{}, 0)
	assert.Equal(t, 120*time.Second, got)
}

func TestTranscriptionRetryCountdownHonorsRetryAfterClampedToFloorAndCeiling(t *testing.T) {
	err := &pipelineerr.RetryableStatus{StatusCode: 429, RetryAfter: 5}
	got := transcriptionRetryCountdownWithConfig(err, 0, 30, 300)
	assert.Equal(t, 30*time.Second, got, "retry-after below the 30s floor is raised to the floor")
}

func TestTranscriptionRetryCountdownExponentialWithoutRetryAfter(t *testing.T) {
	err := &pipelineerr.RetryableStatus{StatusCode: 429}
	assert.Equal(t, 30*time.Second, transcriptionRetryCountdownWithConfig(err, 0, 30, 300))
	assert.Equal(t, 60*time.Second, transcriptionRetryCountdownWithConfig(err, 1, 30, 300))
	assert.Equal(t, 300*time.Second, transcriptionRetryCountdownWithConfig(err, 10, 30, 300))
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
