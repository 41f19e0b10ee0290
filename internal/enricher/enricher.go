// Package enricher sends a transcript segment to a configured LLM endpoint
// and returns a validated structured enrichment record. It owns its own
// rate limiter and 429-aware retry policy.
package enricher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"podlistener/internal/pipelineerr"
)

// EnrichmentPrompt is the fixed template instructing the LLM to return a
// single JSON object with the seven enrichment fields.
const EnrichmentPrompt = `Analyze this podcast transcript segment where the keyword "%s" was mentioned.

Transcript segment:
---
%s
---

Respond with ONLY valid JSON (no markdown, no explanation):
{
  "sentiment": "positive" | "negative" | "neutral" | "mixed",
  "sentiment_score": 0.0 to 1.0 (0=very negative, 1=very positive),
  "context_summary": "1-2 sentence summary of how the keyword is discussed",
  "topics": ["topic1", "topic2"],
  "is_buying_signal": true/false (speaker expresses intent to purchase/adopt),
  "is_pain_point": true/false (speaker describes a problem or frustration),
  "is_recommendation": true/false (speaker recommends or endorses)
}`

// Record is the validated structured record produced by the LLM for one
// mention.
type Record struct {
	Sentiment        string   `json:"sentiment"`
	SentimentScore   float64  `json:"sentiment_score"`
	ContextSummary   string   `json:"context_summary"`
	Topics           []string `json:"topics"`
	IsBuyingSignal   bool     `json:"is_buying_signal"`
	IsPainPoint      bool     `json:"is_pain_point"`
	IsRecommendation bool     `json:"is_recommendation"`
}

// DefaultRecord is the sentinel default returned when strict=false and
// every retry attempt failed.
func DefaultRecord() Record {
	return Record{
		Sentiment:      "neutral",
		SentimentScore: 0.5,
		ContextSummary: "Enrichment unavailable",
		Topics:         []string{},
	}
}

// Config holds the provider selection and tuning the Client reads at
// construction. The caller fills it from the environment settings in
// internal/config; no AppSettings overrides apply to the LLM provider.
type Config struct {
	Provider       string // "ollama" or "openrouter"
	OllamaBaseURL  string
	OllamaModel    string
	OpenRouterBaseURL string
	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterSiteURL string
	OpenRouterAppName string

	MaxRetries          int
	MinIntervalSeconds  float64
	RetryBaseSeconds    int
	RetryMaxSeconds     int
}

// Client talks to the configured LLM provider.
type Client struct {
	httpClient *http.Client
	cfg        Config
}

// New builds a Client with a 120s HTTP timeout for LLM calls, matching the
// original implementation's per-call timeout.
func New(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		cfg:        cfg,
	}
}

// Enrich analyzes segment for keyword occurrences. On failure: strict=false
// returns the sentinel DefaultRecord (used only on the first-write path for
// back-compat); strict=true propagates the error so the orchestrator can
// preserve partial enrichment progress.
func (c *Client) Enrich(ctx context.Context, keywordPhrase, segment string, strict bool) (Record, error) {
	prompt := fmt.Sprintf(EnrichmentPrompt, keywordPhrase, segment)

	content, err := c.callLLM(ctx, prompt)
	if err != nil {
		if strict {
			return Record{}, err
		}
		return DefaultRecord(), nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		if strict {
			return Record{}, fmt.Errorf("enricher: parse llm response: %w", err)
		}
		return DefaultRecord(), nil
	}

	return validate(raw), nil
}

// validate coerces field types and fills missing fields with sentinel
// defaults, mirroring _validate_enrichment exactly.
func validate(data map[string]any) Record {
	rec := Record{
		Sentiment:      "neutral",
		SentimentScore: 0.5,
		ContextSummary: "",
		Topics:         []string{},
	}

	if v, ok := data["sentiment"]; ok {
		rec.Sentiment = fmt.Sprintf("%v", v)
	}
	if v, ok := data["sentiment_score"]; ok {
		rec.SentimentScore = toFloat(v)
	}
	if v, ok := data["context_summary"]; ok {
		rec.ContextSummary = fmt.Sprintf("%v", v)
	}
	if v, ok := data["topics"]; ok {
		rec.Topics = toStringSlice(v)
	}
	rec.IsBuyingSignal = toBool(data["is_buying_signal"])
	rec.IsPainPoint = toBool(data["is_pain_point"])
	rec.IsRecommendation = toBool(data["is_recommendation"])

	return rec
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		var f float64
		fmt.Sscanf(n, "%f", &f)
		return f
	default:
		return 0.5
	}
}

func toBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != "" && b != "false" && b != "0"
	case float64:
		return b != 0
	default:
		return false
	}
}

func toStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}

// callLLM routes to the configured provider and returns the raw JSON text
// the model produced.
func (c *Client) callLLM(ctx context.Context, prompt string) (string, error) {
	if c.cfg.Provider == "openrouter" {
		return c.callOpenRouter(ctx, prompt)
	}
	return c.callOllama(ctx, prompt)
}

func (c *Client) callOpenRouter(ctx context.Context, prompt string) (string, error) {
	if c.cfg.OpenRouterAPIKey == "" {
		return "", &pipelineerr.FatalConfigError{Reason: "OPENROUTER_API_KEY is not set"}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+c.cfg.OpenRouterAPIKey)
	headers.Set("Content-Type", "application/json")
	if c.cfg.OpenRouterSiteURL != "" {
		headers.Set("HTTP-Referer", c.cfg.OpenRouterSiteURL)
	}
	if c.cfg.OpenRouterAppName != "" {
		headers.Set("X-Title", c.cfg.OpenRouterAppName)
	}

	body := map[string]any{
		"model":           c.cfg.OpenRouterModel,
		"messages":        []map[string]string{{"role": "user", "content": prompt}},
		"response_format": map[string]string{"type": "json_object"},
	}

	status, respBody, err := c.postWithBackoff(ctx, openRouterEndpoint(c.cfg.OpenRouterBaseURL), headers, body)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("enricher: openrouter request failed: status=%d body=%s", status, string(respBody))
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("enricher: decode openrouter response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("enricher: openrouter response had no choices")
	}
	return result.Choices[0].Message.Content, nil
}

// openRouterEndpoint normalizes the base URL so both "…/api/v1" and "…/v1"
// forms reach "…/chat/completions".
func openRouterEndpoint(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/api/v1") || strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/api/v1/chat/completions"
}

func (c *Client) callOllama(ctx context.Context, prompt string) (string, error) {
	chatBody := map[string]any{
		"model":    c.cfg.OllamaModel,
		"messages": []map[string]string{{"role": "user", "content": prompt}},
		"stream":   false,
		"format":   "json",
	}

	status, respBody, err := c.postWithBackoff(ctx, c.cfg.OllamaBaseURL+"/api/chat", nil, chatBody)
	if err != nil {
		return "", err
	}

	if status == 404 {
		if modelErr := ollamaModelError(respBody, c.cfg.OllamaModel); modelErr != nil {
			return "", modelErr
		}

		generateBody := map[string]any{
			"model":  c.cfg.OllamaModel,
			"prompt": prompt,
			"stream": false,
			"format": "json",
		}
		genStatus, genBody, err := c.postWithBackoff(ctx, c.cfg.OllamaBaseURL+"/api/generate", nil, generateBody)
		if err != nil {
			return "", err
		}
		if genStatus == 404 {
			if modelErr := ollamaModelError(genBody, c.cfg.OllamaModel); modelErr != nil {
				return "", modelErr
			}
		}
		if genStatus < 200 || genStatus >= 300 {
			return "", fmt.Errorf("enricher: ollama generate request failed: status=%d", genStatus)
		}

		var result struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal(genBody, &result); err != nil {
			return "", fmt.Errorf("enricher: decode ollama generate response: %w", err)
		}
		return result.Response, nil
	}

	if status < 200 || status >= 300 {
		return "", fmt.Errorf("enricher: ollama chat request failed: status=%d", status)
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("enricher: decode ollama chat response: %w", err)
	}
	return result.Message.Content, nil
}

// ollamaModelError inspects a 404 body for the "model ... not found" shape
// and surfaces it as a dedicated non-retryable error.
func ollamaModelError(body []byte, model string) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	errText := strings.ToLower(payload.Error)
	if strings.Contains(errText, "model") && strings.Contains(errText, "not found") {
		return &pipelineerr.ModelNotFound{Model: model}
	}
	return nil
}

// postWithBackoff issues a single JSON POST with the enricher's rate limit
// and retry policy applied, returning the final status code and body on any
// non-transport outcome. When the last attempt still gets a retryable
// status, the status and body come back together with a
// *pipelineerr.RetryableStatus error.
func (c *Client) postWithBackoff(ctx context.Context, url string, headers http.Header, payload any) (int, []byte, error) {
	maxAttempts := c.cfg.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("enricher: marshal request body: %w", err)
	}

	minInterval := time.Duration(c.cfg.MinIntervalSeconds * float64(time.Second))

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		applyRateLimit(minInterval)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return 0, nil, fmt.Errorf("enricher: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, vs := range headers {
			for _, v := range vs {
				req.Header.Set(k, v)
			}
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt == maxAttempts-1 {
				return 0, nil, fmt.Errorf("enricher: request failed: %w", err)
			}
			delay := retryDelay(c.cfg, nil, attempt, nil)
			time.Sleep(delay)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return 0, nil, fmt.Errorf("enricher: read response body: %w", readErr)
		}

		if isRetryableStatus(resp.StatusCode) {
			if attempt == maxAttempts-1 {
				return resp.StatusCode, respBody, &pipelineerr.RetryableStatus{StatusCode: resp.StatusCode}
			}
			retryAfter := parseRetryAfterSeconds(resp.Header.Get("Retry-After"))
			delay := retryDelay(c.cfg, &resp.StatusCode, attempt, retryAfter)
			time.Sleep(delay)
			continue
		}

		return resp.StatusCode, respBody, nil
	}

	return 0, nil, fmt.Errorf("enricher: retry loop exhausted: %w", lastErr)
}

func isRetryableStatus(status int) bool {
	switch status {
	case 408, 425, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// retryDelay implements min(base*2^attempt, max), honoring a 429
// Retry-After value when present.
func retryDelay(cfg Config, statusCode *int, attempt int, retryAfter *int) time.Duration {
	maxDelay := cfg.RetryMaxSeconds
	if maxDelay < 1 {
		maxDelay = 1
	}

	if statusCode != nil && *statusCode == 429 && retryAfter != nil {
		v := *retryAfter
		if v > maxDelay {
			v = maxDelay
		}
		if v < 0 {
			v = 0
		}
		return time.Duration(v) * time.Second
	}

	base := cfg.RetryBaseSeconds
	if base < 1 {
		base = 1
	}
	delaySeconds := base
	for i := 0; i < attempt; i++ {
		delaySeconds *= 2
		if delaySeconds >= maxDelay {
			delaySeconds = maxDelay
			break
		}
	}
	if delaySeconds > maxDelay {
		delaySeconds = maxDelay
	}
	return time.Duration(delaySeconds) * time.Second
}
