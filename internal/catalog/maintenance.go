package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Stats returns browser totals and task counts grouped by status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Tasks: make(map[string]int)}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(file_size), 0) FROM browsers`,
	).Scan(&stats.Browsers, &stats.InstalledBytes); err != nil {
		return Stats{}, fmt.Errorf("browser stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM download_tasks GROUP BY status`)
	if err != nil {
		return Stats{}, fmt.Errorf("task stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, err
		}
		stats.Tasks[status] = count
	}
	return stats, rows.Err()
}

// Health returns diagnostic information about the catalog database.
func (s *Store) Health(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}
	if s.path == "" {
		return health, errors.New("catalog database path is unknown")
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return health, nil
		}
		return health, fmt.Errorf("stat catalog database: %w", err)
	}
	if info.IsDir() {
		return health, fmt.Errorf("catalog database path %q is a directory", s.path)
	}
	health.DatabaseExists = true
	health.SizeBytes = info.Size()

	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&health.SchemaVersion); err != nil {
		return health, fmt.Errorf("read schema version: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&health.IntegrityCheck); err != nil {
		return health, fmt.Errorf("integrity check: %w", err)
	}
	return health, nil
}
