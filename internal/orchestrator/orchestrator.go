// Package orchestrator wires the episode processing chain — download,
// transcribe, detect, enrich — onto a queue.Worker, mirroring the task
// chain-of-handoff-payloads pattern of the task queue the pipeline was
// distilled from: each stage persists its own result and hands a small
// payload to the next stage's queue.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"podlistener/internal/config"
	"podlistener/internal/detector"
	"podlistener/internal/enricher"
	"podlistener/internal/pipelineerr"
	"podlistener/internal/queue"
	"podlistener/internal/store"
)

// Orchestrator holds the dependencies every pipeline stage needs.
type Orchestrator struct {
	store       *store.PostgresStore
	queue       *queue.Queue
	transcriber transcribeClient
	enricher    *enricher.Client
	downloader  *http.Client
}

type transcribeClient interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// New builds an Orchestrator.
func New(s *store.PostgresStore, q *queue.Queue, t transcribeClient, e *enricher.Client) *Orchestrator {
	return &Orchestrator{
		store:       s,
		queue:       q,
		transcriber: t,
		enricher:    e,
		downloader: &http.Client{
			Timeout: 0, // no client timeout; downloadAudio bounds the whole request with a wall-clock ctx deadline
		},
	}
}

// Register attaches every stage handler to w under its task name.
func (o *Orchestrator) Register(w *queue.Worker) {
	w.Handle("process_episode", o.ProcessEpisode)
	w.Handle("download_episode_audio", o.DownloadEpisodeAudio)
	w.Handle("transcribe_episode_audio", o.TranscribeEpisodeAudio)
	w.Handle("detect_episode_keywords", o.DetectEpisodeKeywords)
	w.Handle("enrich_episode_mentions", o.EnrichEpisodeMentions)
}

func audioPath(episodeID string) string {
	return filepath.Join(config.AudioDir, episodeID+".mp3")
}

func notFoundRetry(entity, id string) error {
	return &queue.RetryRequest{After: 10 * time.Second, Cause: &pipelineerr.NotFound{Entity: entity, ID: id}}
}

// isLastAttempt reports whether job has no further retries left, matching
// Celery's `retries_used >= max_retries` check at the top of each task's
// exception handler.
func isLastAttempt(job *queue.Job) bool {
	return job.Retries >= job.MaxRetries
}

func markFailed(ctx context.Context, s *store.PostgresStore, episodeID string, cause error) {
	if err := s.MarkEpisodeFailed(ctx, episodeID, cause.Error()); err != nil {
		slog.Error("failed to persist episode failure", "episode_id", episodeID, "err", err)
	}
}

// ProcessEpisode kicks off the download stage for one episode; the rest of
// the chain is driven by each stage enqueuing the next.
func (o *Orchestrator) ProcessEpisode(ctx context.Context, job *queue.Job) error {
	var episodeID string
	if err := json.Unmarshal(job.Payload, &episodeID); err != nil {
		return fmt.Errorf("orchestrator: decode process_episode payload: %w", err)
	}

	slog.Info("queueing processing chain", "episode_id", episodeID)
	if _, err := o.queue.Enqueue(ctx, queue.DownloadQueue, "download_episode_audio", episodeID, 2); err != nil {
		return fmt.Errorf("orchestrator: enqueue download stage: %w", err)
	}
	return nil
}

// DownloadEpisodeAudio streams episode audio to disk under config.AudioDir,
// then enqueues the transcription stage.
func (o *Orchestrator) DownloadEpisodeAudio(ctx context.Context, job *queue.Job) error {
	var episodeID string
	if err := json.Unmarshal(job.Payload, &episodeID); err != nil {
		return fmt.Errorf("orchestrator: decode download payload: %w", err)
	}

	episode, err := o.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return fmt.Errorf("orchestrator: load episode %s: %w", episodeID, err)
	}
	if episode == nil {
		slog.Warn("episode not found yet, retrying", "episode_id", episodeID)
		return notFoundRetry("episode", episodeID)
	}

	slog.Info("starting download", "episode_id", episodeID)
	if err := o.store.SetEpisodeStatus(ctx, episodeID, store.StatusDownloading, true); err != nil {
		return fmt.Errorf("orchestrator: set status downloading: %w", err)
	}

	if episode.AudioURL == nil || *episode.AudioURL == "" {
		downloadErr := fmt.Errorf("episode %s has no audio url", episodeID)
		if isLastAttempt(job) {
			markFailed(ctx, o.store, episodeID, downloadErr)
			return downloadErr
		}
		return &queue.RetryRequest{After: 120 * time.Second, Cause: downloadErr}
	}

	if err := o.downloadAudio(ctx, *episode.AudioURL, episodeID); err != nil {
		slog.Error("audio download failed", "episode_id", episodeID, "err", err)
		if isLastAttempt(job) {
			markFailed(ctx, o.store, episodeID, err)
			return err
		}
		return &queue.RetryRequest{After: 120 * time.Second, Cause: err}
	}

	slog.Info("download completed", "episode_id", episodeID)
	if _, err := o.queue.Enqueue(ctx, queue.TranscriptionQueue, "transcribe_episode_audio", episodeID, 2); err != nil {
		return fmt.Errorf("orchestrator: enqueue transcription stage: %w", err)
	}
	return nil
}

// downloadAudio streams audioURL to audioPath(episodeID), enforcing the
// configured size and wall-clock guards while the body streams in, matching
// _download_audio's incremental check (rather than trusting Content-Length).
func (o *Orchestrator) downloadAudio(ctx context.Context, audioURL, episodeID string) error {
	if err := os.MkdirAll(config.AudioDir, 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(config.AudioDownloadTimeoutSecond)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, audioURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := o.downloader.Do(req)
	if err != nil {
		return fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("download audio: unexpected status %d", resp.StatusCode)
	}

	dest := audioPath(episodeID)
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create audio file: %w", err)
	}
	defer f.Close()

	limited := io.LimitReader(resp.Body, config.AudioDownloadMaxBytes+1)
	written, err := io.Copy(f, limited)
	if err != nil {
		return fmt.Errorf("write audio file: %w", err)
	}
	if written > config.AudioDownloadMaxBytes {
		os.Remove(dest)
		return &pipelineerr.ResourceExhausted{Reason: fmt.Sprintf("audio exceeds max size (%d bytes)", config.AudioDownloadMaxBytes)}
	}

	return nil
}

// TranscribeEpisodeAudio transcribes the downloaded file and persists the
// resulting transcript, then hands off to keyword detection.
func (o *Orchestrator) TranscribeEpisodeAudio(ctx context.Context, job *queue.Job) error {
	var episodeID string
	if err := json.Unmarshal(job.Payload, &episodeID); err != nil {
		return fmt.Errorf("orchestrator: decode transcribe payload: %w", err)
	}

	episode, err := o.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return fmt.Errorf("orchestrator: load episode %s: %w", episodeID, err)
	}
	if episode == nil {
		slog.Warn("episode not found yet, retrying", "episode_id", episodeID)
		return notFoundRetry("episode", episodeID)
	}

	path := audioPath(episodeID)
	if _, err := os.Stat(path); err != nil {
		slog.Warn("episode audio file missing, retrying", "episode_id", episodeID)
		return &queue.RetryRequest{After: 30 * time.Second, Cause: fmt.Errorf("audio file missing: %s", path)}
	}

	allowed, err := o.queue.Allow(ctx, "transcribe_episode_audio", config.TranscriptionTaskRateLimitPerMinute)
	if err != nil {
		return fmt.Errorf("orchestrator: check transcription rate limit: %w", err)
	}
	if !allowed {
		slog.Warn("transcription task rate limited, retrying", "episode_id", episodeID)
		return &queue.RetryRequest{After: 10 * time.Second, Cause: errors.New("transcription task rate limit exceeded")}
	}

	slog.Info("starting transcription", "episode_id", episodeID)
	if err := o.store.SetEpisodeStatus(ctx, episodeID, store.StatusTranscribing, true); err != nil {
		return fmt.Errorf("orchestrator: set status transcribing: %w", err)
	}

	transcript, err := o.transcriber.Transcribe(ctx, path)
	if err != nil {
		countdown := transcriptionRetryCountdown(err, job.Retries)
		if isLastAttempt(job) {
			slog.Error("transcription failed, retries exhausted", "episode_id", episodeID, "err", err)
			markFailed(ctx, o.store, episodeID, err)
			return err
		}
		slog.Warn("transcription failed, retrying", "episode_id", episodeID, "countdown", countdown, "err", err)
		return &queue.RetryRequest{After: countdown, Cause: err}
	}

	if err := o.store.SetEpisodeTranscript(ctx, episodeID, transcript); err != nil {
		return fmt.Errorf("orchestrator: persist transcript: %w", err)
	}

	slog.Info("transcription complete", "episode_id", episodeID)
	payload := map[string]any{"episode_id": episodeID, "transcription_done": true}
	if _, err := o.queue.Enqueue(ctx, queue.KeywordsQueue, "detect_episode_keywords", payload, 2); err != nil {
		return fmt.Errorf("orchestrator: enqueue detection stage: %w", err)
	}
	return nil
}

// transcriptionRetryCountdown computes a 429-aware backoff, falling back to
// a flat 120s for every other failure, matching
// _transcription_retry_countdown.
func transcriptionRetryCountdown(err error, retriesUsed int) time.Duration {
	return transcriptionRetryCountdownWithConfig(err, retriesUsed,
		config.Transcription429RetryBaseSeconds, config.Transcription429RetryMaxSeconds)
}

func transcriptionRetryCountdownWithConfig(err error, retriesUsed, baseSeconds, maxSeconds int) time.Duration {
	var retryable *pipelineerr.RetryableStatus
	if !errors.As(err, &retryable) || retryable.StatusCode != 429 {
		return 120 * time.Second
	}

	if retryable.RetryAfter > 0 {
		seconds := retryable.RetryAfter
		if seconds < 30 {
			seconds = 30
		}
		if seconds > maxSeconds {
			seconds = maxSeconds
		}
		return time.Duration(seconds) * time.Second
	}

	base := baseSeconds
	if base < 30 {
		base = 30
	}
	countdown := base
	for i := 0; i < retriesUsed; i++ {
		countdown *= 2
		if countdown >= maxSeconds {
			countdown = maxSeconds
			break
		}
	}
	if countdown > maxSeconds {
		countdown = maxSeconds
	}
	return time.Duration(countdown) * time.Second
}

// detectionInput accepts either the new chain-handoff object shape
// ({"episode_id":..., "transcription_done": true}) or a bare episode id
// string for direct/manual invocation — mirroring detect_episode_keywords's
// duck-typed input handling.
type detectionInput struct {
	EpisodeID         string
	TranscriptionDone bool
	isObject          bool
}

func (d *detectionInput) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		d.EpisodeID = s
		d.isObject = false
		return nil
	}

	var obj struct {
		EpisodeID         string `json:"episode_id"`
		TranscriptionDone bool   `json:"transcription_done"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	d.EpisodeID = obj.EpisodeID
	d.TranscriptionDone = obj.TranscriptionDone
	d.isObject = true
	return nil
}

// matchPayload is one keyword hit carried from detection into enrichment.
type matchPayload struct {
	KeywordID         string `json:"keyword_id"`
	Phrase            string `json:"phrase"`
	MatchedText       string `json:"matched_text"`
	TranscriptSegment string `json:"transcript_segment"`
}

type detectionResult struct {
	EpisodeID  string         `json:"episode_id"`
	Matches    []matchPayload `json:"matches"`
	StartIndex int            `json:"start_index,omitempty"`
}

// DetectEpisodeKeywords scans the persisted transcript for every configured
// keyword and enqueues enrichment for the resulting matches.
func (o *Orchestrator) DetectEpisodeKeywords(ctx context.Context, job *queue.Job) error {
	var input detectionInput
	if err := json.Unmarshal(job.Payload, &input); err != nil {
		return fmt.Errorf("orchestrator: decode detect payload: %w", err)
	}
	if input.isObject && !input.TranscriptionDone {
		slog.Warn("transcription not marked done, retrying", "episode_id", input.EpisodeID)
		return &queue.RetryRequest{After: 10 * time.Second, Cause: fmt.Errorf("transcription not complete")}
	}

	episode, err := o.store.GetEpisode(ctx, input.EpisodeID)
	if err != nil {
		return fmt.Errorf("orchestrator: load episode %s: %w", input.EpisodeID, err)
	}
	if episode == nil {
		slog.Warn("episode not found yet, retrying", "episode_id", input.EpisodeID)
		return notFoundRetry("episode", input.EpisodeID)
	}
	if episode.TranscriptText == nil {
		slog.Warn("episode transcript missing, retrying", "episode_id", input.EpisodeID)
		return &queue.RetryRequest{After: 30 * time.Second, Cause: fmt.Errorf("transcript missing")}
	}

	slog.Info("starting keyword detection", "episode_id", input.EpisodeID)
	if err := o.store.SetEpisodeStatus(ctx, input.EpisodeID, store.StatusAnalyzing, true); err != nil {
		return fmt.Errorf("orchestrator: set status analyzing: %w", err)
	}

	keywords, err := o.store.ListKeywords(ctx)
	if err != nil {
		markFailed(ctx, o.store, input.EpisodeID, err)
		if isLastAttempt(job) {
			return err
		}
		return &queue.RetryRequest{After: 120 * time.Second, Cause: err}
	}

	if len(keywords) == 0 {
		if err := o.store.SetEpisodeStatus(ctx, input.EpisodeID, store.StatusCompleted, true); err != nil {
			return fmt.Errorf("orchestrator: set status completed: %w", err)
		}
		slog.Info("completed, no keywords configured", "episode_id", input.EpisodeID)
		return nil
	}

	detectorKeywords := make([]detector.Keyword, len(keywords))
	for i, kw := range keywords {
		detectorKeywords[i] = detector.Keyword{ID: kw.ID, Phrase: kw.Phrase, MatchType: string(kw.MatchType)}
	}

	matches := detector.Detect(*episode.TranscriptText, detectorKeywords)
	slog.Info("keyword detection found matches", "episode_id", input.EpisodeID, "count", len(matches))

	payload := detectionResult{EpisodeID: input.EpisodeID}
	for _, m := range matches {
		payload.Matches = append(payload.Matches, matchPayload{
			KeywordID:         m.KeywordID,
			Phrase:            m.Phrase,
			MatchedText:       m.MatchedText,
			TranscriptSegment: m.TranscriptSegment,
		})
	}

	if _, err := o.queue.Enqueue(ctx, queue.LLMQueue, "enrich_episode_mentions", payload, 2); err != nil {
		return fmt.Errorf("orchestrator: enqueue enrichment stage: %w", err)
	}
	return nil
}

// EnrichEpisodeMentions enriches every detected match via the LLM, persists
// each as a Mention as soon as it's computed (so a mid-run failure keeps
// everything already committed), and marks the episode completed once
// every match has been handled. The downloaded audio file is removed
// unconditionally on the way out, mirroring the original's try/finally.
func (o *Orchestrator) EnrichEpisodeMentions(ctx context.Context, job *queue.Job) error {
	var result detectionResult
	if err := json.Unmarshal(job.Payload, &result); err != nil {
		return fmt.Errorf("orchestrator: decode enrich payload: %w", err)
	}
	path := audioPath(result.EpisodeID)
	defer func() {
		if _, statErr := os.Stat(path); statErr == nil {
			os.Remove(path)
		}
	}()

	episode, err := o.store.GetEpisode(ctx, result.EpisodeID)
	if err != nil {
		return fmt.Errorf("orchestrator: load episode %s: %w", result.EpisodeID, err)
	}
	if episode == nil {
		slog.Warn("episode not found yet, retrying", "episode_id", result.EpisodeID)
		return notFoundRetry("episode", result.EpisodeID)
	}

	if len(result.Matches) == 0 {
		if err := o.store.SetEpisodeStatus(ctx, result.EpisodeID, store.StatusCompleted, true); err != nil {
			return fmt.Errorf("orchestrator: set status completed: %w", err)
		}
		slog.Info("completed, no matches", "episode_id", result.EpisodeID)
		return nil
	}

	startIndex := result.StartIndex
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex > len(result.Matches) {
		startIndex = len(result.Matches)
	}
	slog.Info("enriching matches", "episode_id", result.EpisodeID, "count", len(result.Matches), "start_index", startIndex)

	if startIndex == 0 {
		if err := o.store.DeleteMentionsForEpisode(ctx, result.EpisodeID); err != nil {
			return fmt.Errorf("orchestrator: clear existing mentions: %w", err)
		}
	}

	nextIndex := startIndex
	for nextIndex < len(result.Matches) {
		match := result.Matches[nextIndex]

		exists, err := o.store.MentionExists(ctx, result.EpisodeID, match.KeywordID, match.MatchedText, match.TranscriptSegment)
		if err != nil {
			return o.failOrRetryEnrichment(ctx, job, result, nextIndex, err)
		}
		if exists {
			nextIndex++
			continue
		}

		rec, err := o.enricher.Enrich(ctx, match.Phrase, match.TranscriptSegment, true)
		if err != nil {
			return o.failOrRetryEnrichment(ctx, job, result, nextIndex, err)
		}

		rawJSON, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("orchestrator: marshal enrichment record: %w", err)
		}

		sentiment := store.Sentiment(rec.Sentiment)
		score := rec.SentimentScore
		summary := rec.ContextSummary
		mention := &store.Mention{
			EpisodeID:         result.EpisodeID,
			KeywordID:         match.KeywordID,
			MatchedText:       match.MatchedText,
			TranscriptSegment: match.TranscriptSegment,
			Sentiment:         &sentiment,
			SentimentScore:    &score,
			ContextSummary:    &summary,
			Topics:            rec.Topics,
			IsBuyingSignal:    rec.IsBuyingSignal,
			IsPainPoint:       rec.IsPainPoint,
			IsRecommendation:  rec.IsRecommendation,
			RawLLMResponse:    rawJSON,
		}
		if err := o.store.CreateMention(ctx, mention); err != nil {
			return o.failOrRetryEnrichment(ctx, job, result, nextIndex, err)
		}
		nextIndex++
	}

	if err := o.store.SetEpisodeStatus(ctx, result.EpisodeID, store.StatusCompleted, true); err != nil {
		return fmt.Errorf("orchestrator: set status completed: %w", err)
	}
	slog.Info("completed", "episode_id", result.EpisodeID)
	return nil
}

// failOrRetryEnrichment mirrors the original's exception handler: on the
// last attempt it marks the episode failed and returns a terminal error; on
// any earlier attempt it schedules a retry that carries start_index forward
// so already-persisted mentions are never recomputed.
func (o *Orchestrator) failOrRetryEnrichment(ctx context.Context, job *queue.Job, result detectionResult, nextIndex int, cause error) error {
	if isLastAttempt(job) {
		slog.Error("enrichment failed, retries exhausted", "episode_id", result.EpisodeID, "err", cause)
		markFailed(ctx, o.store, result.EpisodeID, &pipelineerr.EnrichmentRetryExhausted{StartIndex: nextIndex, Cause: cause})
		return cause
	}

	retryPayload := result
	retryPayload.StartIndex = nextIndex
	slog.Warn("enrichment failed, retrying", "episode_id", result.EpisodeID, "start_index", nextIndex, "err", cause)
	return &queue.RetryRequest{After: 120 * time.Second, Cause: cause, Payload: retryPayload}
}
