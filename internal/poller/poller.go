// Package poller fans out RSS/Atom feed polling: poll_all_feeds dispatches
// one poll_single_feed task per subscribed feed, and poll_single_feed parses
// one feed, records new episodes, and requeues pending episodes for
// processing.
package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"podlistener/internal/config"
	"podlistener/internal/feedparser"
	"podlistener/internal/queue"
	"podlistener/internal/store"

	"golang.org/x/sync/errgroup"
)

// Poller holds the dependencies the two poll stages need.
type Poller struct {
	store  *store.PostgresStore
	queue  *queue.Queue
	parser *feedparser.Parser
}

// New builds a Poller.
func New(s *store.PostgresStore, q *queue.Queue) *Poller {
	return &Poller{store: s, queue: q, parser: feedparser.New()}
}

// Register attaches both poll stage handlers to w.
func (p *Poller) Register(w *queue.Worker) {
	w.Handle("poll_all_feeds", p.PollAllFeeds)
	w.Handle("poll_single_feed", p.PollSingleFeed)
}

// PollAllFeeds enqueues one poll_single_feed task per subscribed feed. The
// fan-out itself runs concurrently (bounded) since enqueuing is pure I/O
// against Redis with no shared mutable state across feeds.
func (p *Poller) PollAllFeeds(ctx context.Context, job *queue.Job) error {
	feeds, err := p.store.ListFeeds(ctx)
	if err != nil {
		return fmt.Errorf("poller: list feeds: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, feed := range feeds {
		feedID := feed.ID
		g.Go(func() error {
			_, err := p.queue.Enqueue(gctx, queue.PollQueue, "poll_single_feed", feedID, 3)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("poller: queue feed polls: %w", err)
	}

	slog.Info("queued polling for feeds", "count", len(feeds))
	return nil
}

// PollSingleFeed parses one feed, persists newly-seen episodes, takes the
// feed's config.MaxEpisodesPerFeed most recent episodes, and queues for
// processing those among them that are still pending.
func (p *Poller) PollSingleFeed(ctx context.Context, job *queue.Job) error {
	var feedID string
	if err := json.Unmarshal(job.Payload, &feedID); err != nil {
		return fmt.Errorf("poller: decode poll_single_feed payload: %w", err)
	}

	feed, err := p.store.GetFeed(ctx, feedID)
	if err != nil {
		return fmt.Errorf("poller: load feed %s: %w", feedID, err)
	}
	if feed == nil {
		slog.Warn("feed not found", "feed_id", feedID)
		return nil
	}

	result, err := p.parser.Parse(ctx, feed.RSSURL)
	if err != nil {
		slog.Error("failed to parse feed", "feed_id", feedID, "rss_url", feed.RSSURL, "err", err)
		if isLastPollAttempt(job) {
			return err
		}
		return &queue.RetryRequest{After: 60 * time.Second, Cause: err}
	}

	if err := p.store.FillFeedMetadataIfNull(ctx, feedID, result.Meta.Title, result.Meta.ImageURL); err != nil {
		return fmt.Errorf("poller: fill feed metadata: %w", err)
	}

	newCount := 0
	for _, ep := range result.Episodes {
		if ep.GUID == "" || ep.AudioURL == nil || *ep.AudioURL == "" {
			continue
		}
		_, created, err := p.store.UpsertEpisodeByGUID(ctx, feedID, ep.GUID, ep.Title, ep.AudioURL, ep.PublishedAt)
		if err != nil {
			return fmt.Errorf("poller: upsert episode: %w", err)
		}
		if created {
			newCount++
		}
	}

	if err := p.store.TouchLastPolledAt(ctx, feedID); err != nil {
		return fmt.Errorf("poller: touch last_polled_at: %w", err)
	}

	limit := config.MaxEpisodesPerFeed
	if limit <= 0 {
		limit = math.MaxInt32
	}
	queuedIDs, err := p.store.BulkRequeue(ctx, feedID, limit)
	if err != nil {
		return fmt.Errorf("poller: bulk requeue: %w", err)
	}

	for _, episodeID := range queuedIDs {
		if _, err := p.queue.Enqueue(ctx, queue.ProcessQueue, "process_episode", episodeID, 0); err != nil {
			return fmt.Errorf("poller: enqueue process_episode: %w", err)
		}
	}

	slog.Info("feed polled", "feed_id", feedID, "new_episodes", newCount, "queued", len(queuedIDs))
	return nil
}

func isLastPollAttempt(job *queue.Job) bool {
	return job.Retries >= job.MaxRetries
}
