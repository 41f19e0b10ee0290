package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEpisodeStatusValues(t *testing.T) {
	assert.Equal(t, EpisodeStatus("pending"), StatusPending)
	assert.Equal(t, EpisodeStatus("failed"), StatusFailed)
}

func TestMentionFilterDefaults(t *testing.T) {
	filter := MentionFilter{}
	assert.Equal(t, 0, filter.Limit)
	assert.Equal(t, 0, filter.Offset)
}
