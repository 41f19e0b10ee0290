package poller

import (
	"testing"

	"podlistener/internal/queue"

	"github.com/stretchr/testify/assert"
)

func TestIsLastPollAttempt(t *testing.T) {
	assert.False(t, isLastPollAttempt(&queue.Job{Retries: 0, MaxRetries: 3}))
	assert.False(t, isLastPollAttempt(&queue.Job{Retries: 2, MaxRetries: 3}))
	assert.True(t, isLastPollAttempt(&queue.Job{Retries: 3, MaxRetries: 3}))
}
