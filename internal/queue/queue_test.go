package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobStructFieldsDefaultRetriesToZero(t *testing.T) {
	job := &Job{
		ID:         "test-id-123",
		Queue:      TranscriptionQueue,
		Task:       "transcribe_episode_audio",
		Payload:    []byte(`{"episode_id":"ep-1"}`),
		MaxRetries: 3,
		CreatedAt:  time.Now(),
	}

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, TranscriptionQueue, job.Queue)
	assert.Equal(t, 0, job.Retries)
}

func TestQueueConstants(t *testing.T) {
	assert.NotZero(t, BlockTimeout)
	assert.ElementsMatch(t, []string{"poll", "process", "download", "transcription", "keywords", "llm"}, AllQueues)
}

func TestRetryRequestUnwrap(t *testing.T) {
	cause := assert.AnError
	req := &RetryRequest{After: 30 * time.Second, Cause: cause}

	assert.ErrorIs(t, req, cause)
	assert.Contains(t, req.Error(), "30s")
}
