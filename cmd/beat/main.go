package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podlistener/internal/queue"
)

// pollInterval is how often beat enqueues poll_all_feeds; 15 minutes
// matches the original Celery beat schedule for this same task.
const pollInterval = 15 * time.Minute

func main() {
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(jsonHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	q, err := queue.NewQueue(ctx)
	if err != nil {
		slog.Error("failed to connect to job queue", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	if err := q.Beat(ctx); err != nil {
		slog.Error("failed to enqueue initial poll_all_feeds", "error", err)
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	slog.Info("podlistener beat scheduler started", "interval", pollInterval)

	for {
		select {
		case <-ticker.C:
			if err := q.Beat(ctx); err != nil {
				slog.Error("failed to enqueue poll_all_feeds", "error", err)
			} else {
				slog.Info("enqueued poll_all_feeds")
			}
		case sig := <-sigChan:
			slog.Info("received shutdown signal, stopping beat scheduler", "signal", sig)
			return
		case <-ctx.Done():
			return
		}
	}
}
