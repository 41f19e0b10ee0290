package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// CreateKeyword inserts a new keyword. It returns an error if phrase is
// already registered.
func (s *PostgresStore) CreateKeyword(ctx context.Context, phrase string, matchType MatchType) (*Keyword, error) {
	k := &Keyword{ID: uuid.New().String(), Phrase: phrase, MatchType: matchType}

	const query = `
		INSERT INTO keywords (id, phrase, match_type)
		VALUES ($1,$2,$3)
		RETURNING created_at, updated_at`

	err := s.db.QueryRow(ctx, query, k.ID, k.Phrase, k.MatchType).Scan(&k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return nil, fmt.Errorf("store: keyword with phrase %q already exists", phrase)
		}
		return nil, fmt.Errorf("store: create keyword: %w", err)
	}
	return k, nil
}

// GetKeyword retrieves a keyword by id. It returns (nil, nil) if not found.
func (s *PostgresStore) GetKeyword(ctx context.Context, id string) (*Keyword, error) {
	const query = `SELECT id, phrase, match_type, created_at, updated_at FROM keywords WHERE id = $1`

	var k Keyword
	err := s.db.QueryRow(ctx, query, id).Scan(&k.ID, &k.Phrase, &k.MatchType, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get keyword %q: %w", id, err)
	}
	return &k, nil
}

// ListKeywords returns every keyword in input order (insertion order).
func (s *PostgresStore) ListKeywords(ctx context.Context) ([]*Keyword, error) {
	const query = `SELECT id, phrase, match_type, created_at, updated_at FROM keywords ORDER BY created_at`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list keywords: %w", err)
	}
	defer rows.Close()

	var keywords []*Keyword
	for rows.Next() {
		var k Keyword
		if err := rows.Scan(&k.ID, &k.Phrase, &k.MatchType, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: list keywords scan: %w", err)
		}
		keywords = append(keywords, &k)
	}
	return keywords, rows.Err()
}

// DeleteKeyword removes a keyword by id; its mentions cascade.
func (s *PostgresStore) DeleteKeyword(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM keywords WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete keyword %q: %w", id, err)
	}
	return nil
}
