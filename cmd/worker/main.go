package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"podlistener/internal/config"
	"podlistener/internal/enricher"
	"podlistener/internal/orchestrator"
	"podlistener/internal/poller"
	"podlistener/internal/queue"
	"podlistener/internal/store"
	"podlistener/internal/transcriber"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(jsonHandler))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pool, err := pgxpool.New(ctx, config.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	s := store.NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	q, err := queue.NewQueue(ctx)
	if err != nil {
		slog.Error("failed to connect to job queue", "error", err)
		os.Exit(1)
	}
	defer q.Close()

	t := transcriber.New(s)
	e := enricher.New(enricher.Config{
		Provider:           config.LLMProvider,
		OllamaBaseURL:      config.OllamaBaseURL,
		OllamaModel:        config.OllamaModel,
		OpenRouterBaseURL:  config.OpenRouterBaseURL,
		OpenRouterAPIKey:   config.OpenRouterAPIKey,
		OpenRouterModel:    config.OpenRouterModel,
		OpenRouterSiteURL:  config.OpenRouterSiteURL,
		OpenRouterAppName:  config.OpenRouterAppName,
		MaxRetries:         config.LLMEnrichMaxRetries,
		MinIntervalSeconds: config.LLMEnrichMinIntervalSeconds,
		RetryBaseSeconds:   config.LLMEnrichRetryBaseSeconds,
		RetryMaxSeconds:    config.LLMEnrichRetryMaxSeconds,
	})

	orch := orchestrator.New(s, q, t, e)
	poll := poller.New(s, q)

	w := queue.NewWorker(q, queue.AllQueues...)
	orch.Register(w)
	poll.Register(w)

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := q.Tick(ctx); err != nil {
					slog.Error("failed to promote delayed jobs", "error", err)
				}
			}
		}
	}()

	go func() {
		w.Run(ctx)
	}()

	slog.Info("podlistener worker started")

	sig := <-sigChan
	slog.Info("received shutdown signal, stopping worker", "signal", sig)
	cancel()
}
