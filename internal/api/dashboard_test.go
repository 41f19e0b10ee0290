package api

import (
	"testing"

	"podlistener/internal/store"

	"github.com/stretchr/testify/assert"
)

func TestProcessingStatusesExcludesTerminalStates(t *testing.T) {
	assert.NotContains(t, processingStatuses, store.StatusCompleted)
	assert.NotContains(t, processingStatuses, store.StatusFailed)
	assert.Contains(t, processingStatuses, store.StatusPending)
	assert.Contains(t, processingStatuses, store.StatusAnalyzing)
}
