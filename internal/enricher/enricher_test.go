package enricher

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelayExponentialBackoffWithoutRetryAfter(t *testing.T) {
	cfg := Config{RetryBaseSeconds: 30, RetryMaxSeconds: 300}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{10, 300 * time.Second},
	}

	for _, tc := range cases {
		got := retryDelay(cfg, nil, tc.attempt, nil)
		assert.Equal(t, tc.want, got, "attempt %d", tc.attempt)
	}
}

func TestRetryDelayClampsRetryAfterToMax(t *testing.T) {
	cfg := Config{RetryBaseSeconds: 30, RetryMaxSeconds: 60}
	status := 429
	retryAfter := 75

	got := retryDelay(cfg, &status, 0, &retryAfter)

	assert.Equal(t, 60*time.Second, got)
}

func TestRetryDelayHonorsRetryAfterUnderMax(t *testing.T) {
	cfg := Config{RetryBaseSeconds: 30, RetryMaxSeconds: 300}
	status := 429
	retryAfter := 5

	got := retryDelay(cfg, &status, 3, &retryAfter)

	assert.Equal(t, 5*time.Second, got)
}

func TestParseRetryAfterSecondsIntegerForm(t *testing.T) {
	got := parseRetryAfterSeconds("75")
	if assert.NotNil(t, got) {
		assert.Equal(t, 75, *got)
	}
}

func TestParseRetryAfterSecondsEmptyReturnsNil(t *testing.T) {
	assert.Nil(t, parseRetryAfterSeconds(""))
}

func TestParseRetryAfterSecondsHTTPDateForm(t *testing.T) {
	future := time.Now().Add(90 * time.Second).UTC().Format(http.TimeFormat)
	got := parseRetryAfterSeconds(future)
	if assert.NotNil(t, got) {
		assert.InDelta(t, 90, *got, 2)
	}
}

func TestOpenRouterEndpointAppendsChatCompletions(t *testing.T) {
	assert.Equal(t, "https://openrouter.ai/api/v1/chat/completions", openRouterEndpoint("https://openrouter.ai/api/v1"))
	assert.Equal(t, "https://openrouter.ai/api/v1/chat/completions", openRouterEndpoint("https://openrouter.ai/api/v1/"))
	assert.Equal(t, "https://openrouter.ai/v1/chat/completions", openRouterEndpoint("https://openrouter.ai/v1"))
	assert.Equal(t, "https://custom.internal/api/v1/chat/completions", openRouterEndpoint("https://custom.internal"))
}

func TestValidateFillsMissingFieldsWithDefaults(t *testing.T) {
	rec := validate(map[string]any{"sentiment": "positive"})

	assert.Equal(t, "positive", rec.Sentiment)
	assert.Equal(t, 0.5, rec.SentimentScore)
	assert.Equal(t, "", rec.ContextSummary)
	assert.Equal(t, []string{}, rec.Topics)
	assert.False(t, rec.IsBuyingSignal)
}

func TestValidateCoercesTopicsAndFlags(t *testing.T) {
	rec := validate(map[string]any{
		"sentiment_score":    0.8,
		"topics":             []any{"pricing", "competition"},
		"is_buying_signal":   true,
		"is_pain_point":      false,
		"is_recommendation":  true,
		"context_summary":    "discussed favorably",
	})

	assert.Equal(t, 0.8, rec.SentimentScore)
	assert.Equal(t, []string{"pricing", "competition"}, rec.Topics)
	assert.True(t, rec.IsBuyingSignal)
	assert.False(t, rec.IsPainPoint)
	assert.True(t, rec.IsRecommendation)
	assert.Equal(t, "discussed favorably", rec.ContextSummary)
}

func TestDefaultRecordSentinelDiffersFromValidateDefault(t *testing.T) {
	def := DefaultRecord()
	assert.Equal(t, "Enrichment unavailable", def.ContextSummary)

	validated := validate(map[string]any{})
	assert.Equal(t, "", validated.ContextSummary)
}
