package transcriber

import (
	"testing"

	"podlistener/internal/pipelineerr"

	"github.com/stretchr/testify/assert"
)

func TestClassifyUploadErrorConvertsStatus413(t *testing.T) {
	err := classifyUploadError(&pipelineerr.RetryableStatus{StatusCode: 413}, 30*1024*1024, 25*1024*1024)

	var tooLarge *pipelineerr.UploadTooLarge
	assert.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(30*1024*1024), tooLarge.SizeBytes)
}

func TestClassifyUploadErrorLeavesOtherStatusesUnchanged(t *testing.T) {
	original := &pipelineerr.RetryableStatus{StatusCode: 503}

	err := classifyUploadError(original, 100, 200)

	assert.Same(t, original, err)
}

func TestEndpointBuildsExternalAuthorizationHeader(t *testing.T) {
	c := &Client{}
	url, headers := c.endpoint(RuntimeConfig{
		Provider:       "external",
		ExternalURL:    "https://api.example.com/audio/transcriptions",
		ExternalAPIKey: "secret-key",
	})

	assert.Equal(t, "https://api.example.com/audio/transcriptions", url)
	assert.Equal(t, "Bearer secret-key", headers["Authorization"])
}

func TestEndpointOmitsAuthorizationHeaderWhenAPIKeyEmpty(t *testing.T) {
	c := &Client{}
	_, headers := c.endpoint(RuntimeConfig{Provider: "external", ExternalAPIKey: ""})

	_, present := headers["Authorization"]
	assert.False(t, present)
}

func TestEndpointUsesWhisperURLForLocalProvider(t *testing.T) {
	c := &Client{}
	url, _ := c.endpoint(RuntimeConfig{Provider: "local"})

	assert.Contains(t, url, "/v1/audio/transcriptions")
}
