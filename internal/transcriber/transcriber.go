// Package transcriber submits downloaded episode audio to a local whisper
// server or a runtime-configured external provider, chunking the upload
// with ffmpeg when the external provider's size cap is exceeded.
package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"podlistener/internal/config"
	"podlistener/internal/pipelineerr"
)

// Client transcribes episode audio files.
type Client struct {
	httpClient *http.Client
	settings   settingsReader
}

// New builds a Client. settings resolves the transcription AppSettings
// overrides; pass the store.PostgresStore in production.
func New(settings settingsReader) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(config.TranscriptionTimeoutSecond) * time.Second},
		settings:   settings,
	}
}

// Transcribe submits audioPath for transcription and returns the resulting
// text, chunking the upload first when the resolved provider is "external"
// and the file exceeds the configured max upload size.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	cfg, err := resolveRuntimeConfig(ctx, c.settings)
	if err != nil {
		return "", fmt.Errorf("transcriber: resolve runtime config: %w", err)
	}

	url, headers := c.endpoint(cfg)

	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("transcriber: stat audio file: %w", err)
	}
	fileSize := info.Size()
	maxUploadBytes := config.TranscriptionExternalMaxUploadBytes

	slog.Info("transcribing audio", "provider", cfg.Provider, "url", url, "model", cfg.Model)

	if cfg.Provider == "external" && fileSize > maxUploadBytes {
		slog.Info("audio exceeds external upload max, chunking",
			"file_bytes", fileSize, "max_bytes", maxUploadBytes)
		return c.transcribeChunked(ctx, audioPath, url, headers, cfg.Model, maxUploadBytes)
	}

	text, err := c.submit(ctx, url, headers, cfg.Model, audioPath)
	if err != nil {
		return "", classifyUploadError(err, fileSize, maxUploadBytes)
	}
	return text, nil
}

func (c *Client) endpoint(cfg RuntimeConfig) (string, map[string]string) {
	headers := map[string]string{}
	if cfg.Provider == "external" {
		if cfg.ExternalAPIKey != "" {
			headers["Authorization"] = "Bearer " + cfg.ExternalAPIKey
		}
		return cfg.ExternalURL, headers
	}
	return strings.TrimRight(config.WhisperAPIURL, "/") + "/v1/audio/transcriptions", headers
}

// submit uploads a single file as a multipart form, matching
// _submit_transcription_request's field shape: file, model, response_format=text.
func (c *Client) submit(ctx context.Context, url string, headers map[string]string, model, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("transcriber: open audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", fmt.Errorf("transcriber: build multipart request: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("transcriber: read audio file: %w", err)
	}
	if err := writer.WriteField("model", model); err != nil {
		return "", fmt.Errorf("transcriber: build multipart request: %w", err)
	}
	if err := writer.WriteField("response_format", "text"); err != nil {
		return "", fmt.Errorf("transcriber: build multipart request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("transcriber: build multipart request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("transcriber: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &pipelineerr.RetryableStatus{Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("transcriber: read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &pipelineerr.RetryableStatus{StatusCode: resp.StatusCode}
		retryAfter := strings.TrimSpace(resp.Header.Get("Retry-After"))
		if seconds, convErr := strconv.Atoi(retryAfter); convErr == nil && seconds > 0 {
			statusErr.RetryAfter = seconds
		} else if when, dateErr := http.ParseTime(retryAfter); dateErr == nil {
			if seconds := int(time.Until(when).Seconds()); seconds > 0 {
				statusErr.RetryAfter = seconds
			}
		}
		return "", statusErr
	}

	return strings.TrimSpace(string(respBody)), nil
}

// classifyUploadError turns a generic submit failure into UploadTooLarge
// when the response was a 413, leaving every other status as-is so the
// orchestrator's countdown classifier can decide whether to retry.
func classifyUploadError(err error, fileSize, maxUploadBytes int64) error {
	var retryable *pipelineerr.RetryableStatus
	if errors.As(err, &retryable) && retryable.StatusCode == 413 {
		return &pipelineerr.UploadTooLarge{SizeBytes: fileSize, MaxBytes: maxUploadBytes}
	}
	return err
}

// transcribeChunked splits audioPath into sequential mp3 chunks, transcribes
// each in order, and joins the resulting text with newlines.
func (c *Client) transcribeChunked(ctx context.Context, audioPath, url string, headers map[string]string, model string, maxUploadBytes int64) (string, error) {
	chunkSeconds := config.TranscriptionExternalChunkSeconds
	if chunkSeconds < 60 {
		chunkSeconds = 60
	}
	bitrateKbps := config.TranscriptionExternalChunkBitrateKbps
	if bitrateKbps < 16 {
		bitrateKbps = 16
	}

	tmpDir, chunkPaths, err := splitAudioIntoChunks(audioPath, chunkSeconds, bitrateKbps, maxUploadBytes)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir)

	var chunkTexts []string
	for i, chunkPath := range chunkPaths {
		slog.Info("transcribing chunk", "index", i+1, "total", len(chunkPaths))
		text, err := c.submit(ctx, url, headers, model, chunkPath)
		if err != nil {
			return "", classifyUploadError(err, 0, maxUploadBytes)
		}
		if text != "" {
			chunkTexts = append(chunkTexts, text)
		}
	}

	return strings.TrimSpace(strings.Join(chunkTexts, "\n")), nil
}

// splitAudioIntoChunks shells out to ffmpeg to segment audioPath into fixed
// duration mp3 chunks, matching _split_audio_into_chunks's exact flags.
func splitAudioIntoChunks(audioPath string, chunkSeconds, bitrateKbps int, maxUploadBytes int64) (string, []string, error) {
	tmpDir, err := os.MkdirTemp("", "transcription_chunks_")
	if err != nil {
		return "", nil, fmt.Errorf("transcriber: create chunk temp dir: %w", err)
	}

	outputPattern := filepath.Join(tmpDir, "chunk_%04d.mp3")
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", audioPath,
		"-vn", "-ac", "1", "-ar", "16000",
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", chunkSeconds),
		"-reset_timestamps", "1",
		outputPattern,
	}

	cmd := exec.Command("ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.RemoveAll(tmpDir)
		if _, lookErr := exec.LookPath("ffmpeg"); lookErr != nil {
			return "", nil, &pipelineerr.MediaToolError{
				Reason: "ffmpeg is required for chunked external transcription but is not installed",
				Cause:  err,
			}
		}
		return "", nil, &pipelineerr.MediaToolError{
			Reason: "failed to chunk audio for transcription: " + strings.TrimSpace(stderr.String()),
			Cause:  err,
		}
	}

	matches, err := filepath.Glob(filepath.Join(tmpDir, "chunk_*.mp3"))
	if err != nil {
		os.RemoveAll(tmpDir)
		return "", nil, fmt.Errorf("transcriber: glob chunk files: %w", err)
	}
	sort.Strings(matches)
	if len(matches) == 0 {
		os.RemoveAll(tmpDir)
		return "", nil, &pipelineerr.MediaToolError{Reason: "failed to chunk audio for transcription: no chunks were generated"}
	}

	for _, chunkPath := range matches {
		info, err := os.Stat(chunkPath)
		if err != nil {
			os.RemoveAll(tmpDir)
			return "", nil, fmt.Errorf("transcriber: stat chunk file: %w", err)
		}
		if info.Size() > maxUploadBytes {
			os.RemoveAll(tmpDir)
			return "", nil, &pipelineerr.ChunkTooLarge{
				ChunkName: filepath.Base(chunkPath),
				SizeBytes: info.Size(),
				MaxBytes:  maxUploadBytes,
			}
		}
	}

	return tmpDir, matches, nil
}

