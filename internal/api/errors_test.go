package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, isAlreadyExists(errors.New(`store: feed with rss_url "x" already exists`)))
	assert.False(t, isAlreadyExists(errors.New("store: connection refused")))
	assert.False(t, isAlreadyExists(nil))
}
