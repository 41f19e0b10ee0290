package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podlistener/internal/config"
)

// HandlerFunc processes one dequeued job. It receives the full Job so it can
// compare job.Retries against job.MaxRetries and decide for itself whether
// this attempt is the last one — the owning entity must be marked failed by
// the handler itself before returning a terminal error, since the Worker
// only logs once a retry comes back exhausted. A handler that wants a
// delayed retry returns a *RetryRequest; any other non-nil error is treated
// as terminal.
type HandlerFunc func(ctx context.Context, job *Job) error

// RetryRequest signals that a job should be retried after the given delay.
// Handlers construct one instead of returning a bare error when the
// pipeline's retry semantics call for a specific countdown. Payload, if
// non-nil, replaces the job's original payload on the re-enqueued attempt —
// used by stages that carry forward partial progress (e.g. a start_index
// cursor) rather than recomputing already-committed work.
type RetryRequest struct {
	After   time.Duration
	Cause   error
	Payload any
}

func (r *RetryRequest) Error() string {
	if r.Cause != nil {
		return fmt.Sprintf("retry after %s: %v", r.After, r.Cause)
	}
	return fmt.Sprintf("retry after %s", r.After)
}

func (r *RetryRequest) Unwrap() error { return r.Cause }

// Worker dispatches dequeued jobs to task handlers, one goroutine per
// subscribed queue, each looping dequeue-dispatch-log until its context
// is cancelled.
type Worker struct {
	Queue    *Queue
	Queues   []string
	Handlers map[string]HandlerFunc
}

// NewWorker builds a worker subscribed to the given named queues.
func NewWorker(q *Queue, queueNames ...string) *Worker {
	return &Worker{
		Queue:    q,
		Queues:   queueNames,
		Handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers fn as the handler for task.
func (w *Worker) Handle(task string, fn HandlerFunc) {
	w.Handlers[task] = fn
}

// Run blocks, dispatching jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	done := make(chan struct{}, len(w.Queues))
	for _, queueName := range w.Queues {
		go func(queueName string) {
			w.runQueue(ctx, queueName)
			done <- struct{}{}
		}(queueName)
	}
	for range w.Queues {
		<-done
	}
}

func (w *Worker) runQueue(ctx context.Context, queueName string) {
	slog.Info("worker subscribed", "queue", queueName)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.Queue.Dequeue(ctx, queueName)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("dequeue failed", "queue", queueName, "err", err)
			continue
		}
		if job == nil {
			continue
		}
		w.dispatch(ctx, job)
	}
}

func (w *Worker) dispatch(ctx context.Context, job *Job) {
	handler, ok := w.Handlers[job.Task]
	if !ok {
		slog.Error("no handler registered for task", "task", job.Task, "job_id", job.ID)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, config.ProcessEpisodeTimeLimit())
	defer cancel()

	softTimer := time.AfterFunc(config.ProcessEpisodeSoftTimeLimit(), func() {
		slog.Warn("job exceeded soft time limit, hard limit still pending", "job_id", job.ID, "task", job.Task)
	})
	defer softTimer.Stop()

	err := handler(taskCtx, job)
	if err == nil {
		slog.Info("job completed", "job_id", job.ID, "task", job.Task, "queue", job.Queue)
		return
	}

	var retryReq *RetryRequest
	if errors.As(err, &retryReq) {
		var rerr error
		if retryReq.Payload != nil {
			rerr = w.Queue.RetryWithPayload(ctx, job, retryReq.After, retryReq.Payload)
		} else {
			rerr = w.Queue.Retry(ctx, job, retryReq.After)
		}
		if rerr != nil {
			if errors.Is(rerr, ErrMaxRetriesExceeded) {
				slog.Error("job exhausted retries", "job_id", job.ID, "task", job.Task, "err", err)
			} else {
				slog.Error("failed to schedule retry", "job_id", job.ID, "task", job.Task, "err", rerr)
			}
		}
		return
	}

	slog.Error("job failed terminally", "job_id", job.ID, "task", job.Task, "err", err)
}
