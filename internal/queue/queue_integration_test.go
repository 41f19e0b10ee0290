//go:build integration
// +build integration

package queue

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func setupTestQueue(t *testing.T) *Queue {
	ctx := context.Background()

	q, err := NewQueue(ctx)
	if err != nil {
		t.Skipf("skipping test: redis not available: %v", err)
		return nil
	}

	// Use a unique key prefix per test run to avoid interference from
	// concurrently running workers or prior runs.
	q.keyPrefix = fmt.Sprintf("test:%d", time.Now().UnixNano())
	return q
}

func TestQueueEnqueueDequeue(t *testing.T) {
	ctx := context.Background()

	q := setupTestQueue(t)
	if q == nil {
		return
	}
	defer q.Close()

	jobID, err := q.Enqueue(ctx, TranscriptionQueue, "transcribe_episode_audio", map[string]string{"episode_id": "ep-1"}, 3)
	if err != nil {
		t.Fatalf("failed to enqueue job: %v", err)
	}

	job, err := q.Dequeue(ctx, TranscriptionQueue)
	if err != nil {
		t.Fatalf("failed to dequeue job: %v", err)
	}
	if job == nil {
		t.Fatal("dequeued job should not be nil")
	}
	if job.ID != jobID {
		t.Errorf("expected job id %s, got %s", jobID, job.ID)
	}
	if job.Task != "transcribe_episode_audio" {
		t.Errorf("expected task transcribe_episode_audio, got %s", job.Task)
	}
}

func TestQueueRetryAndMaxRetries(t *testing.T) {
	ctx := context.Background()

	q := setupTestQueue(t)
	if q == nil {
		return
	}
	defer q.Close()

	_, err := q.Enqueue(ctx, DownloadQueue, "download_episode_audio", map[string]string{"episode_id": "ep-2"}, 1)
	if err != nil {
		t.Fatalf("failed to enqueue job: %v", err)
	}

	job, err := q.Dequeue(ctx, DownloadQueue)
	if err != nil || job == nil {
		t.Fatalf("failed to dequeue job: %v", err)
	}

	if err := q.Retry(ctx, job, 0); err != nil {
		t.Fatalf("first retry should succeed: %v", err)
	}
	if err := q.Tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	retried, err := q.Dequeue(ctx, DownloadQueue)
	if err != nil || retried == nil {
		t.Fatalf("expected retried job to be ready: %v", err)
	}
	if retried.Retries != 1 {
		t.Errorf("expected retries=1, got %d", retried.Retries)
	}

	if err := q.Retry(ctx, retried, 0); err != ErrMaxRetriesExceeded {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
}

func TestQueueRateLimit(t *testing.T) {
	ctx := context.Background()

	q := setupTestQueue(t)
	if q == nil {
		return
	}
	defer q.Close()

	task := "transcribe_episode_audio"
	for i := 0; i < 2; i++ {
		allowed, err := q.Allow(ctx, task, 2)
		if err != nil {
			t.Fatalf("allow failed: %v", err)
		}
		if !allowed {
			t.Fatalf("expected call %d to be allowed", i)
		}
	}

	allowed, err := q.Allow(ctx, task, 2)
	if err != nil {
		t.Fatalf("allow failed: %v", err)
	}
	if allowed {
		t.Error("expected third call within the window to be rate limited")
	}
}
