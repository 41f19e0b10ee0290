// Package queue implements the durable, multi-queue task broker described by
// the job queue component: named queues with delayed retry, per-task rate
// limiting, and at-least-once delivery, backed by Redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podlistener/internal/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Named queues routed by task name.
const (
	PollQueue          = "poll"
	ProcessQueue        = "process"
	DownloadQueue        = "download"
	TranscriptionQueue   = "transcription"
	KeywordsQueue        = "keywords"
	LLMQueue             = "llm"
)

// AllQueues lists every named queue, used by Tick's delayed-job sweep and by
// workers that subscribe to everything.
var AllQueues = []string{PollQueue, ProcessQueue, DownloadQueue, TranscriptionQueue, KeywordsQueue, LLMQueue}

// BlockTimeout is how long a single Dequeue call will wait for a job.
const BlockTimeout = 5 * time.Second

// ErrMaxRetriesExceeded is returned by Retry once a job has exhausted its
// configured retry budget; the caller is expected to mark the owning entity
// failed and stop retrying.
var ErrMaxRetriesExceeded = errors.New("queue: max retries exceeded")

// ErrNotConnected is returned by any operation attempted on a Queue whose
// Redis client is nil.
var ErrNotConnected = errors.New("queue: not connected")

// Job is one unit of work: a task name routed to a named queue, carrying an
// opaque JSON payload and its own retry bookkeeping.
type Job struct {
	ID         string          `json:"id"`
	Queue      string          `json:"queue"`
	Task       string          `json:"task"`
	Payload    json.RawMessage `json:"payload"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Queue manages the Redis-backed job broker.
type Queue struct {
	client    *redis.Client
	keyPrefix string
}

// NewQueue connects to Redis using config.RedisURL.
func NewQueue(ctx context.Context) (*Queue, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("queue: connect to redis: %w", err)
	}

	slog.Info("job queue initialized", "addr", opts.Addr)
	return &Queue{client: client, keyPrefix: "podlistener"}, nil
}

// NewQueueWithClient wraps an existing Redis client, for tests.
func NewQueueWithClient(client *redis.Client) *Queue {
	return &Queue{client: client, keyPrefix: "podlistener"}
}

// SetKeyPrefix overrides the Redis key prefix, letting integration tests
// sandbox their jobs from concurrently running workers.
func (q *Queue) SetKeyPrefix(prefix string) {
	q.keyPrefix = prefix
}

func (q *Queue) readyKey(queueName string) string {
	return fmt.Sprintf("%s:queue:%s:ready", q.keyPrefix, queueName)
}

func (q *Queue) delayedKey(queueName string) string {
	return fmt.Sprintf("%s:queue:%s:delayed", q.keyPrefix, queueName)
}

func (q *Queue) jobKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", q.keyPrefix, jobID)
}

func (q *Queue) rateLimitKey(task string) string {
	return fmt.Sprintf("%s:ratelimit:%s", q.keyPrefix, task)
}

// Enqueue pushes a new job with zero prior retries onto the named queue's
// ready list, to be picked up immediately by any subscribed worker.
func (q *Queue) Enqueue(ctx context.Context, queueName, task string, payload any, maxRetries int) (string, error) {
	return q.enqueue(ctx, queueName, task, payload, 0, maxRetries, 0)
}

// EnqueueDelayed schedules a job to become ready after delay, carrying a
// starting retry count (used by Retry to resubmit a job that already
// consumed one or more attempts).
func (q *Queue) EnqueueDelayed(ctx context.Context, queueName, task string, payload any, delay time.Duration, retries, maxRetries int) (string, error) {
	return q.enqueue(ctx, queueName, task, payload, retries, maxRetries, delay)
}

func (q *Queue) enqueue(ctx context.Context, queueName, task string, payload any, retries, maxRetries int, delay time.Duration) (string, error) {
	if q.client == nil {
		return "", ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("queue: marshal payload: %w", err)
	}

	job := &Job{
		ID:         uuid.New().String(),
		Queue:      queueName,
		Task:       task,
		Payload:    raw,
		Retries:    retries,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("queue: marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, q.jobKey(job.ID), jobJSON, 0)
	if delay <= 0 {
		pipe.LPush(ctx, q.readyKey(queueName), job.ID)
	} else {
		pipe.ZAdd(ctx, q.delayedKey(queueName), redis.Z{
			Score:  float64(time.Now().Add(delay).Unix()),
			Member: job.ID,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("queue: enqueue job: %w", err)
	}

	slog.Info("job enqueued", "job_id", job.ID, "queue", queueName, "task", task, "delay", delay)
	return job.ID, nil
}

// Dequeue blocks for up to BlockTimeout waiting for a ready job on the given
// queue. It returns (nil, nil) on a plain timeout.
func (q *Queue) Dequeue(ctx context.Context, queueName string) (*Job, error) {
	if q.client == nil {
		return nil, ErrNotConnected
	}

	result, err := q.client.BRPop(ctx, BlockTimeout, q.readyKey(queueName)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: dequeue from %s: %w", queueName, err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("queue: unexpected BRPOP result %v", result)
	}

	return q.getJob(ctx, result[1])
}

func (q *Queue) getJob(ctx context.Context, jobID string) (*Job, error) {
	raw, err := q.client.Get(ctx, q.jobKey(jobID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("queue: load job %s: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("queue: decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// Retry re-enqueues job onto its own queue after delay, incrementing its
// retry counter. It returns ErrMaxRetriesExceeded without touching Redis
// once the job's retry budget is spent; the caller is responsible for
// marking the owning entity failed in that case.
func (q *Queue) Retry(ctx context.Context, job *Job, delay time.Duration) error {
	if job.Retries >= job.MaxRetries {
		return ErrMaxRetriesExceeded
	}

	var payload any
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("queue: decode payload for retry: %w", err)
	}

	if _, err := q.EnqueueDelayed(ctx, job.Queue, job.Task, payload, delay, job.Retries+1, job.MaxRetries); err != nil {
		return err
	}
	slog.Warn("job retried", "job_id", job.ID, "task", job.Task, "retries", job.Retries+1, "delay", delay)
	return nil
}

// RetryWithPayload behaves like Retry but substitutes payload for the job's
// original payload on the re-enqueued attempt, for stages that carry
// forward partial progress instead of recomputing it.
func (q *Queue) RetryWithPayload(ctx context.Context, job *Job, delay time.Duration, payload any) error {
	if job.Retries >= job.MaxRetries {
		return ErrMaxRetriesExceeded
	}

	if _, err := q.EnqueueDelayed(ctx, job.Queue, job.Task, payload, delay, job.Retries+1, job.MaxRetries); err != nil {
		return err
	}
	slog.Warn("job retried with updated payload", "job_id", job.ID, "task", job.Task, "retries", job.Retries+1, "delay", delay)
	return nil
}

// Tick promotes any delayed job whose eta has elapsed into its queue's ready
// list. cmd/worker calls this once a second; cmd/beat does not call it.
func (q *Queue) Tick(ctx context.Context) error {
	if q.client == nil {
		return ErrNotConnected
	}

	now := float64(time.Now().Unix())
	for _, queueName := range AllQueues {
		due, err := q.client.ZRangeByScore(ctx, q.delayedKey(queueName), &redis.ZRangeBy{
			Min: "-inf",
			Max: fmt.Sprintf("%f", now),
		}).Result()
		if err != nil {
			return fmt.Errorf("queue: scan delayed %s: %w", queueName, err)
		}
		if len(due) == 0 {
			continue
		}

		pipe := q.client.Pipeline()
		for _, jobID := range due {
			pipe.LPush(ctx, q.readyKey(queueName), jobID)
			pipe.ZRem(ctx, q.delayedKey(queueName), jobID)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("queue: promote delayed %s: %w", queueName, err)
		}
		slog.Info("promoted delayed jobs", "queue", queueName, "count", len(due))
	}
	return nil
}

// Beat enqueues the poll_all_feeds job on the poll queue; cmd/beat invokes
// this every 15 minutes.
func (q *Queue) Beat(ctx context.Context) error {
	_, err := q.Enqueue(ctx, PollQueue, "poll_all_feeds", struct{}{}, 0)
	return err
}

// Allow checks and consumes one slot of a sliding-window, per-task rate
// limit of limitPerMinute calls per rolling 60 second window. It returns
// false without erroring when the task is over budget.
func (q *Queue) Allow(ctx context.Context, task string, limitPerMinute int) (bool, error) {
	if q.client == nil {
		return false, ErrNotConnected
	}
	if limitPerMinute <= 0 {
		return true, nil
	}

	key := q.rateLimitKey(task)
	now := time.Now()
	windowStart := now.Add(-time.Minute)

	if err := q.client.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixNano())).Err(); err != nil {
		return false, fmt.Errorf("queue: trim rate window for %s: %w", task, err)
	}

	count, err := q.client.ZCard(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("queue: count rate window for %s: %w", task, err)
	}
	if count >= int64(limitPerMinute) {
		return false, nil
	}

	pipe := q.client.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: uuid.New().String()})
	pipe.Expire(ctx, key, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("queue: record rate window for %s: %w", task, err)
	}
	return true, nil
}

// Close closes the underlying Redis client.
func (q *Queue) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}
