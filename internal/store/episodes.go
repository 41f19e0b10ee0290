package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertEpisodeByGUID returns the existing episode for guid if one exists,
// or inserts a new pending episode otherwise. It reports whether an insert
// happened, so callers (the Poller) can distinguish "already seen" from
// "newly created" without a second query.
func (s *PostgresStore) UpsertEpisodeByGUID(ctx context.Context, feedID, guid string, title, audioURL *string, publishedAt *time.Time) (ep *Episode, created bool, err error) {
	existing, err := s.GetEpisodeByGUID(ctx, guid)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	e := &Episode{
		ID:          uuid.New().String(),
		FeedID:      feedID,
		GUID:        guid,
		Title:       title,
		AudioURL:    audioURL,
		PublishedAt: publishedAt,
		Status:      StatusPending,
	}

	const query = `
		INSERT INTO episodes (id, feed_id, guid, title, audio_url, published_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (guid) DO NOTHING
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query, e.ID, e.FeedID, e.GUID, e.Title, e.AudioURL, e.PublishedAt, e.Status).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			// Lost a race against a concurrent poll; fetch what landed.
			winner, getErr := s.GetEpisodeByGUID(ctx, guid)
			if getErr != nil {
				return nil, false, getErr
			}
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("store: upsert episode guid %q: %w", guid, err)
	}
	return e, true, nil
}

func episodeScanRow(row interface{ Scan(dest ...any) error }) (*Episode, error) {
	var e Episode
	err := row.Scan(&e.ID, &e.FeedID, &e.GUID, &e.Title, &e.AudioURL, &e.PublishedAt,
		&e.Status, &e.TranscriptText, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const episodeColumns = `id, feed_id, guid, title, audio_url, published_at, status, transcript_text, error_message, created_at, updated_at`

// GetEpisode retrieves an episode by id. Returns (nil, nil) if not found.
func (s *PostgresStore) GetEpisode(ctx context.Context, id string) (*Episode, error) {
	row := s.db.QueryRow(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = $1`, id)
	e, err := episodeScanRow(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get episode %q: %w", id, err)
	}
	return e, nil
}

// GetEpisodeByGUID retrieves an episode by its feed-assigned GUID. Returns
// (nil, nil) if not found.
func (s *PostgresStore) GetEpisodeByGUID(ctx context.Context, guid string) (*Episode, error) {
	row := s.db.QueryRow(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE guid = $1`, guid)
	e, err := episodeScanRow(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get episode by guid %q: %w", guid, err)
	}
	return e, nil
}

// ListEpisodesByFeed lists all episodes under a feed, newest first.
func (s *PostgresStore) ListEpisodesByFeed(ctx context.Context, feedID string) ([]*Episode, error) {
	rows, err := s.db.Query(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE feed_id = $1 ORDER BY published_at DESC NULLS LAST, created_at DESC`, feedID)
	if err != nil {
		return nil, fmt.Errorf("store: list episodes for feed %q: %w", feedID, err)
	}
	defer rows.Close()

	var episodes []*Episode
	for rows.Next() {
		e, err := episodeScanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("store: list episodes scan: %w", err)
		}
		episodes = append(episodes, e)
	}
	return episodes, rows.Err()
}

// SetEpisodeStatus transitions status, optionally clearing error_message
// (used by reprocess/retry-enrichment).
func (s *PostgresStore) SetEpisodeStatus(ctx context.Context, id string, status EpisodeStatus, clearError bool) error {
	query := `UPDATE episodes SET status = $2, updated_at = now()`
	args := []any{id, status}
	if clearError {
		query += `, error_message = NULL`
	}
	query += ` WHERE id = $1`

	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("store: set episode status %q: %w", id, err)
	}
	return nil
}

// SetEpisodeTranscript writes transcript_text (possibly empty string, never
// treated as absent) and commits before the caller advances status further.
func (s *PostgresStore) SetEpisodeTranscript(ctx context.Context, id, transcript string) error {
	if _, err := s.db.Exec(ctx, `UPDATE episodes SET transcript_text = $2, updated_at = now() WHERE id = $1`, id, transcript); err != nil {
		return fmt.Errorf("store: set transcript %q: %w", id, err)
	}
	return nil
}

// MarkEpisodeFailed sets status=failed with a reason truncated to 500
// characters, matching _mark_episode_failed.
func (s *PostgresStore) MarkEpisodeFailed(ctx context.Context, id, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	const query = `UPDATE episodes SET status = 'failed', error_message = $2, updated_at = now() WHERE id = $1`
	if _, err := s.db.Exec(ctx, query, id, reason); err != nil {
		return fmt.Errorf("store: mark episode failed %q: %w", id, err)
	}
	return nil
}

// BulkRequeue selects the top limit episodes for a feed ordered by
// published_at DESC NULLS LAST, created_at DESC, moves each that is
// currently pending to queued, and returns the moved ids. Runs inside a
// transaction so the selection and the transition are atomic against a
// concurrent poll of the same feed.
func (s *PostgresStore) BulkRequeue(ctx context.Context, feedID string, limit int) ([]string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: bulk requeue begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const selectQuery = `
		SELECT id FROM episodes
		WHERE feed_id = $1
		ORDER BY published_at DESC NULLS LAST, created_at DESC
		LIMIT $2`

	rows, err := tx.Query(ctx, selectQuery, feedID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: bulk requeue select: %w", err)
	}
	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: bulk requeue scan: %w", err)
		}
		candidates = append(candidates, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: bulk requeue select: %w", err)
	}
	if len(candidates) == 0 {
		return nil, tx.Commit(ctx)
	}

	const updateQuery = `
		UPDATE episodes SET status = 'queued', updated_at = now()
		WHERE id = ANY($1) AND status = 'pending'
		RETURNING id`

	moved, err := tx.Query(ctx, updateQuery, candidates)
	if err != nil {
		return nil, fmt.Errorf("store: bulk requeue update: %w", err)
	}
	var movedIDs []string
	for moved.Next() {
		var id string
		if err := moved.Scan(&id); err != nil {
			moved.Close()
			return nil, fmt.Errorf("store: bulk requeue scan moved: %w", err)
		}
		movedIDs = append(movedIDs, id)
	}
	moved.Close()
	if err := moved.Err(); err != nil {
		return nil, fmt.Errorf("store: bulk requeue update: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store: bulk requeue commit: %w", err)
	}
	return movedIDs, nil
}
