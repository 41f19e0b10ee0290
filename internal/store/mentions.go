package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MentionExists reports whether a mention already exists for the
// (episode, keyword, matched_text, transcript_segment) idempotency tuple.
func (s *PostgresStore) MentionExists(ctx context.Context, episodeID, keywordID, matchedText, segment string) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM mentions
			WHERE episode_id = $1 AND keyword_id = $2 AND matched_text = $3 AND transcript_segment = $4
		)`

	var exists bool
	err := s.db.QueryRow(ctx, query, episodeID, keywordID, matchedText, segment).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: mention exists: %w", err)
	}
	return exists, nil
}

// CreateMention persists one enriched mention. Topics defaults to an empty
// (not null) JSON array.
func (s *PostgresStore) CreateMention(ctx context.Context, m *Mention) error {
	m.ID = uuid.New().String()

	topics := m.Topics
	if topics == nil {
		topics = []string{}
	}
	topicsJSON, err := json.Marshal(topics)
	if err != nil {
		return fmt.Errorf("store: marshal topics: %w", err)
	}

	const query = `
		INSERT INTO mentions (
			id, episode_id, keyword_id, matched_text, transcript_segment,
			sentiment, sentiment_score, context_summary, topics,
			is_buying_signal, is_pain_point, is_recommendation, raw_llm_response
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`

	err = s.db.QueryRow(ctx, query,
		m.ID, m.EpisodeID, m.KeywordID, m.MatchedText, m.TranscriptSegment,
		m.Sentiment, m.SentimentScore, m.ContextSummary, topicsJSON,
		m.IsBuyingSignal, m.IsPainPoint, m.IsRecommendation, m.RawLLMResponse,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("store: mention already exists for episode %q keyword %q", m.EpisodeID, m.KeywordID)
		}
		return fmt.Errorf("store: create mention: %w", err)
	}
	return nil
}

// DeleteMentionsForEpisode removes every mention for an episode, the clean
// slate taken before a full re-enrichment pass (start_index == 0).
func (s *PostgresStore) DeleteMentionsForEpisode(ctx context.Context, episodeID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM mentions WHERE episode_id = $1`, episodeID); err != nil {
		return fmt.Errorf("store: delete mentions for episode %q: %w", episodeID, err)
	}
	return nil
}

// GetMention retrieves one mention, joined with display fields, by id.
// Returns (nil, nil) if not found.
func (s *PostgresStore) GetMention(ctx context.Context, id string) (*MentionWithContext, error) {
	const query = `
		SELECT m.id, m.episode_id, m.keyword_id, m.matched_text, m.transcript_segment,
		       m.sentiment, m.sentiment_score, m.context_summary, m.topics,
		       m.is_buying_signal, m.is_pain_point, m.is_recommendation, m.raw_llm_response,
		       m.created_at, m.updated_at,
		       e.title, f.title, k.phrase
		FROM mentions m
		JOIN episodes e ON e.id = m.episode_id
		JOIN feeds f ON f.id = e.feed_id
		JOIN keywords k ON k.id = m.keyword_id
		WHERE m.id = $1`

	var m MentionWithContext
	var topicsJSON []byte
	err := s.db.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.EpisodeID, &m.KeywordID, &m.MatchedText, &m.TranscriptSegment,
		&m.Sentiment, &m.SentimentScore, &m.ContextSummary, &topicsJSON,
		&m.IsBuyingSignal, &m.IsPainPoint, &m.IsRecommendation, &m.RawLLMResponse,
		&m.CreatedAt, &m.UpdatedAt,
		&m.EpisodeTitle, &m.PodcastTitle, &m.KeywordPhrase,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get mention %q: %w", id, err)
	}
	if err := json.Unmarshal(topicsJSON, &m.Topics); err != nil {
		return nil, fmt.Errorf("store: unmarshal topics: %w", err)
	}
	return &m, nil
}

// CountMentionsByEpisode returns the mention_count used by episode list/get
// HTTP responses.
func (s *PostgresStore) CountMentionsByEpisode(ctx context.Context, episodeID string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM mentions WHERE episode_id = $1`, episodeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("store: count mentions for episode %q: %w", episodeID, err)
	}
	return count, nil
}

// MentionFilter narrows ListMentions by feed, keyword, and/or sentiment.
type MentionFilter struct {
	FeedID    string
	KeywordID string
	Sentiment string
	Limit     int
	Offset    int
}

// MentionWithContext is a Mention enriched with the display fields the
// mentions HTTP endpoint joins in.
type MentionWithContext struct {
	Mention
	EpisodeTitle  *string
	PodcastTitle  *string
	KeywordPhrase string
}

// ListMentions returns mentions matching filter, joined with episode/feed
// title and keyword phrase for display, newest first.
func (s *PostgresStore) ListMentions(ctx context.Context, filter MentionFilter) ([]*MentionWithContext, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := `
		SELECT m.id, m.episode_id, m.keyword_id, m.matched_text, m.transcript_segment,
		       m.sentiment, m.sentiment_score, m.context_summary, m.topics,
		       m.is_buying_signal, m.is_pain_point, m.is_recommendation, m.raw_llm_response,
		       m.created_at, m.updated_at,
		       e.title, f.title, k.phrase
		FROM mentions m
		JOIN episodes e ON e.id = m.episode_id
		JOIN feeds f ON f.id = e.feed_id
		JOIN keywords k ON k.id = m.keyword_id
		WHERE 1=1`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.FeedID != "" {
		query += " AND f.id = " + arg(filter.FeedID)
	}
	if filter.KeywordID != "" {
		query += " AND k.id = " + arg(filter.KeywordID)
	}
	if filter.Sentiment != "" {
		query += " AND m.sentiment = " + arg(filter.Sentiment)
	}
	query += " ORDER BY m.created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(filter.Offset)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list mentions: %w", err)
	}
	defer rows.Close()

	var mentions []*MentionWithContext
	for rows.Next() {
		var m MentionWithContext
		var topicsJSON []byte
		if err := rows.Scan(
			&m.ID, &m.EpisodeID, &m.KeywordID, &m.MatchedText, &m.TranscriptSegment,
			&m.Sentiment, &m.SentimentScore, &m.ContextSummary, &topicsJSON,
			&m.IsBuyingSignal, &m.IsPainPoint, &m.IsRecommendation, &m.RawLLMResponse,
			&m.CreatedAt, &m.UpdatedAt,
			&m.EpisodeTitle, &m.PodcastTitle, &m.KeywordPhrase,
		); err != nil {
			return nil, fmt.Errorf("store: list mentions scan: %w", err)
		}
		if err := json.Unmarshal(topicsJSON, &m.Topics); err != nil {
			return nil, fmt.Errorf("store: unmarshal topics: %w", err)
		}
		mentions = append(mentions, &m)
	}
	return mentions, rows.Err()
}

// DashboardStats returns total feed/episode/keyword/mention counts for the
// dashboard summary, plus episode counts keyed by status.
func (s *PostgresStore) DashboardStats(ctx context.Context) (feeds, episodes, keywords, mentions int, byStatus map[string]int, err error) {
	if err = s.db.QueryRow(ctx, `SELECT count(*) FROM feeds`).Scan(&feeds); err != nil {
		return 0, 0, 0, 0, nil, fmt.Errorf("store: dashboard feeds count: %w", err)
	}
	if err = s.db.QueryRow(ctx, `SELECT count(*) FROM episodes`).Scan(&episodes); err != nil {
		return 0, 0, 0, 0, nil, fmt.Errorf("store: dashboard episodes count: %w", err)
	}
	if err = s.db.QueryRow(ctx, `SELECT count(*) FROM keywords`).Scan(&keywords); err != nil {
		return 0, 0, 0, 0, nil, fmt.Errorf("store: dashboard keywords count: %w", err)
	}
	if err = s.db.QueryRow(ctx, `SELECT count(*) FROM mentions`).Scan(&mentions); err != nil {
		return 0, 0, 0, 0, nil, fmt.Errorf("store: dashboard mentions count: %w", err)
	}

	rows, qerr := s.db.Query(ctx, `SELECT status, count(*) FROM episodes GROUP BY status`)
	if qerr != nil {
		return 0, 0, 0, 0, nil, fmt.Errorf("store: dashboard status breakdown: %w", qerr)
	}
	defer rows.Close()

	byStatus = make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return 0, 0, 0, 0, nil, fmt.Errorf("store: dashboard status scan: %w", err)
		}
		byStatus[status] = count
	}
	return feeds, episodes, keywords, mentions, byStatus, rows.Err()
}
