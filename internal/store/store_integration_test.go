//go:build integration
// +build integration

package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"podlistener/internal/config"
)

func setupTestStore(t *testing.T) *PostgresStore {
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, config.DatabaseURL)
	if err != nil {
		t.Skipf("skipping test: postgres not available: %v", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		t.Skipf("skipping test: postgres not reachable: %v", err)
		return nil
	}

	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return s
}

func TestFeedCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	if s == nil {
		return
	}
	defer s.Close()

	feed, err := s.CreateFeed(ctx, "https://example.com/feed.xml")
	if err != nil {
		t.Fatalf("create feed: %v", err)
	}
	defer s.DeleteFeed(ctx, feed.ID)

	got, err := s.GetFeed(ctx, feed.ID)
	if err != nil {
		t.Fatalf("get feed: %v", err)
	}
	if got == nil || got.RSSURL != feed.RSSURL {
		t.Fatalf("expected matching feed, got %+v", got)
	}
}

func TestUpsertEpisodeByGUIDIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	if s == nil {
		return
	}
	defer s.Close()

	feed, err := s.CreateFeed(ctx, "https://example.com/idempotent.xml")
	if err != nil {
		t.Fatalf("create feed: %v", err)
	}
	defer s.DeleteFeed(ctx, feed.ID)

	title := "Episode One"
	ep1, created1, err := s.UpsertEpisodeByGUID(ctx, feed.ID, "ep-001", &title, nil, nil)
	if err != nil || !created1 {
		t.Fatalf("expected first upsert to create, got created=%v err=%v", created1, err)
	}

	ep2, created2, err := s.UpsertEpisodeByGUID(ctx, feed.ID, "ep-001", &title, nil, nil)
	if err != nil || created2 {
		t.Fatalf("expected second upsert to be a no-op, got created=%v err=%v", created2, err)
	}
	if ep2.ID != ep1.ID {
		t.Fatalf("expected same episode id, got %s vs %s", ep1.ID, ep2.ID)
	}
}

func TestBulkRequeueOnlyMovesPending(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)
	if s == nil {
		return
	}
	defer s.Close()

	feed, err := s.CreateFeed(ctx, "https://example.com/requeue.xml")
	if err != nil {
		t.Fatalf("create feed: %v", err)
	}
	defer s.DeleteFeed(ctx, feed.ID)

	for i := 0; i < 3; i++ {
		guid := "requeue-" + string(rune('a'+i))
		if _, _, err := s.UpsertEpisodeByGUID(ctx, feed.ID, guid, nil, nil, nil); err != nil {
			t.Fatalf("seed episode: %v", err)
		}
	}

	moved, err := s.BulkRequeue(ctx, feed.ID, 2)
	if err != nil {
		t.Fatalf("bulk requeue: %v", err)
	}
	if len(moved) != 2 {
		t.Fatalf("expected 2 moved episodes, got %d", len(moved))
	}

	again, err := s.BulkRequeue(ctx, feed.ID, 2)
	if err != nil {
		t.Fatalf("bulk requeue again: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected second bulk requeue to move nothing already-pending, got %d", len(again))
	}
}
