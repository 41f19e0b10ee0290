package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateFeed inserts a new feed. It returns an error if rss_url is already
// registered.
func (s *PostgresStore) CreateFeed(ctx context.Context, rssURL string) (*Feed, error) {
	feed := &Feed{ID: uuid.New().String(), RSSURL: rssURL}

	const query = `
		INSERT INTO feeds (id, rss_url)
		VALUES ($1, $2)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query, feed.ID, feed.RSSURL).Scan(&feed.CreatedAt, &feed.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("store: feed with rss_url %q already exists", rssURL)
		}
		return nil, fmt.Errorf("store: create feed: %w", err)
	}
	return feed, nil
}

// GetFeed retrieves a feed by id. It returns (nil, nil) if not found.
func (s *PostgresStore) GetFeed(ctx context.Context, id string) (*Feed, error) {
	const query = `
		SELECT id, rss_url, title, image_url, last_polled_at, created_at, updated_at
		FROM feeds WHERE id = $1`

	var f Feed
	err := s.db.QueryRow(ctx, query, id).Scan(
		&f.ID, &f.RSSURL, &f.Title, &f.ImageURL, &f.LastPolledAt, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get feed %q: %w", id, err)
	}
	return &f, nil
}

// ListFeeds returns all feeds ordered by creation time.
func (s *PostgresStore) ListFeeds(ctx context.Context) ([]*Feed, error) {
	const query = `
		SELECT id, rss_url, title, image_url, last_polled_at, created_at, updated_at
		FROM feeds ORDER BY created_at`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*Feed
	for rows.Next() {
		var f Feed
		if err := rows.Scan(&f.ID, &f.RSSURL, &f.Title, &f.ImageURL, &f.LastPolledAt, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: list feeds scan: %w", err)
		}
		feeds = append(feeds, &f)
	}
	return feeds, rows.Err()
}

// DeleteFeed removes a feed by id; episodes and their mentions cascade.
func (s *PostgresStore) DeleteFeed(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM feeds WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete feed %q: %w", id, err)
	}
	return nil
}

// FillFeedMetadataIfNull sets title/image_url only where they are currently
// null, never overwriting user-visible metadata once set.
func (s *PostgresStore) FillFeedMetadataIfNull(ctx context.Context, id string, title, imageURL *string) error {
	const query = `
		UPDATE feeds SET
			title = COALESCE(title, $2),
			image_url = COALESCE(image_url, $3),
			updated_at = now()
		WHERE id = $1`

	if _, err := s.db.Exec(ctx, query, id, title, imageURL); err != nil {
		return fmt.Errorf("store: fill feed metadata %q: %w", id, err)
	}
	return nil
}

// TouchLastPolledAt sets last_polled_at to now.
func (s *PostgresStore) TouchLastPolledAt(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `UPDATE feeds SET last_polled_at = $2, updated_at = now() WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("store: touch last_polled_at %q: %w", id, err)
	}
	return nil
}

// CountEpisodesByFeed returns the episode_count used by the feed list/detail
// HTTP responses.
func (s *PostgresStore) CountEpisodesByFeed(ctx context.Context, feedID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM episodes WHERE feed_id = $1`, feedID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count episodes for feed %q: %w", feedID, err)
	}
	return count, nil
}
