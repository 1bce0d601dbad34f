package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetConfig returns the stored value for key. ok is false when unset.
func (s *Store) GetConfig(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM app_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get config %s: %w", key, err)
	}
	return value, true, nil
}

// SetConfig stores value under key.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.exec(ctx,
		`INSERT INTO app_config (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.timestamp())
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}
