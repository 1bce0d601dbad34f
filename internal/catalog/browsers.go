package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

const browserColumns = "id, browser_type, version, platform, install_path, executable_path, download_date, file_size, is_running, created_at"

// SaveBrowser inserts or replaces a browser. A record for the same
// browser/version/platform is replaced, keeping the newest id.
func (s *Store) SaveBrowser(ctx context.Context, b Browser) error {
	if b.ID == "" {
		return errors.New("browser id is required")
	}
	now := s.now()
	if b.DownloadDate.IsZero() {
		b.DownloadDate = now
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save browser: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM browsers WHERE browser_type = ? AND version = ? AND platform = ? AND id <> ?`,
		b.BrowserType, b.Version, b.Platform, b.ID,
	); err != nil {
		return fmt.Errorf("replace browser: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO browsers (`+browserColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.BrowserType, b.Version, b.Platform, b.InstallPath, b.ExecutablePath,
		formatTime(b.DownloadDate), b.FileSize, b.IsRunning, formatTime(b.CreatedAt),
	); err != nil {
		return fmt.Errorf("save browser: %w", err)
	}
	return tx.Commit()
}

// ListBrowsers returns every installed browser, newest download first.
func (s *Store) ListBrowsers(ctx context.Context) ([]Browser, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+browserColumns+` FROM browsers ORDER BY download_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list browsers: %w", err)
	}
	defer rows.Close()

	var out []Browser
	for rows.Next() {
		b, err := scanBrowser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// GetBrowser fetches one browser by id.
func (s *Store) GetBrowser(ctx context.Context, id string) (Browser, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+browserColumns+` FROM browsers WHERE id = ?`, id)
	b, err := scanBrowser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Browser{}, fmt.Errorf("browser %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Browser{}, fmt.Errorf("get browser: %w", err)
	}
	return b, nil
}

// FindBrowser looks up an installed browser by target.
func (s *Store) FindBrowser(ctx context.Context, browserType, version, platform string) (Browser, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+browserColumns+` FROM browsers WHERE browser_type = ? AND version = ? AND platform = ?`,
		browserType, version, platform)
	b, err := scanBrowser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Browser{}, fmt.Errorf("browser %s %s %s: %w", browserType, version, platform, ErrNotFound)
	}
	if err != nil {
		return Browser{}, fmt.Errorf("find browser: %w", err)
	}
	return b, nil
}

// DeleteBrowser removes the record and, when removeFiles is set, its install
// directory.
func (s *Store) DeleteBrowser(ctx context.Context, id string, removeFiles bool) (Browser, error) {
	b, err := s.GetBrowser(ctx, id)
	if err != nil {
		return Browser{}, err
	}
	if removeFiles && b.InstallPath != "" {
		if err := os.RemoveAll(b.InstallPath); err != nil {
			return Browser{}, fmt.Errorf("remove install directory: %w", err)
		}
	}
	if _, err := s.exec(ctx, `DELETE FROM browsers WHERE id = ?`, id); err != nil {
		return Browser{}, fmt.Errorf("delete browser: %w", err)
	}
	return b, nil
}

func scanBrowser(scanner interface{ Scan(dest ...any) error }) (Browser, error) {
	var (
		b          Browser
		downloaded string
		created    string
	)
	if err := scanner.Scan(
		&b.ID, &b.BrowserType, &b.Version, &b.Platform, &b.InstallPath, &b.ExecutablePath,
		&downloaded, &b.FileSize, &b.IsRunning, &created,
	); err != nil {
		return Browser{}, err
	}
	b.DownloadDate = parseTime(downloaded)
	b.CreatedAt = parseTime(created)
	return b, nil
}
