package staging

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"browserfetch/internal/logging"
	"browserfetch/internal/textutil"
)

// PartialPrefix marks in-flight archives inside the install directory.
const PartialPrefix = ".partial-"

// PartialName returns a fresh partial archive file name with the given extension.
func PartialName(ext string) string {
	return PartialPrefix + uuid.NewString() + ext
}

// CleanResult contains the outcome of a partial-download sweep.
type CleanResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// CleanPartials removes partial archives in installDir older than maxAge.
// A zero maxAge removes every partial archive.
func CleanPartials(ctx context.Context, installDir string, maxAge time.Duration, logger *slog.Logger) CleanResult {
	result := CleanResult{}

	installDir = strings.TrimSpace(installDir)
	if installDir == "" {
		return result
	}

	entries, err := os.ReadDir(installDir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: installDir, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if !strings.HasPrefix(entry.Name(), PartialPrefix) {
			continue
		}
		path := filepath.Join(installDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			continue
		}
		if maxAge > 0 && !info.ModTime().Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			if logger != nil {
				logging.WarnWithContext(logger, "failed to remove partial download", "staging_cleanup_failed",
					logging.String("path", path),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check install_dir permissions"),
					logging.String(logging.FieldImpact, "disk space not reclaimed"),
				)
			}
			continue
		}
		result.Removed = append(result.Removed, path)
		if logger != nil {
			logger.Info("removed partial download",
				logging.String("path", path),
				logging.String("size", textutil.FormatBytes(info.Size())),
				logging.String(logging.FieldEventType, "staging_cleanup"),
			)
		}
	}

	return result
}
