package store

import "context"
import "fmt"

// GetSetting returns the stored value for key and whether the key exists at
// all. This distinction matters: the transcription runtime config treats a
// present-but-empty value (an explicit override back to "unset") differently
// from an absent one (no override at all, fall through to the env default).
func (s *PostgresStore) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRow(ctx, `SELECT value FROM app_settings WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("store: get setting %q: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts a single key/value setting.
func (s *PostgresStore) SetSetting(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO app_settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("store: set setting %q: %w", key, err)
	}
	return nil
}

// ClearSetting removes a key entirely, so readers fall back to the env
// default as if it had never been set.
func (s *PostgresStore) ClearSetting(ctx context.Context, key string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM app_settings WHERE key = $1`, key); err != nil {
		return fmt.Errorf("store: clear setting %q: %w", key, err)
	}
	return nil
}
