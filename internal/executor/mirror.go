package executor

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"browserfetch/internal/download"
	"browserfetch/internal/fileutil"
	"browserfetch/internal/logging"
	"browserfetch/internal/preflight"
	"browserfetch/internal/staging"
	"browserfetch/internal/textutil"
)

// Version aliases resolved through <browser>/<alias>.txt.
var versionAliases = []string{"stable", "latest"}

// MirrorOption configures a Mirror executor.
type MirrorOption func(*Mirror)

// WithFreeSpace replaces the free-space probe.
func WithFreeSpace(probe func(path string) (int64, error)) MirrorOption {
	return func(m *Mirror) {
		if probe != nil {
			m.freeBytes = probe
		}
	}
}

// WithMirrorClock replaces the clock used for ETA estimates.
func WithMirrorClock(now func() time.Time) MirrorOption {
	return func(m *Mirror) {
		if now != nil {
			m.now = now
		}
	}
}

// Mirror installs browsers from zip archives stored in a blob bucket.
type Mirror struct {
	bucket     *blob.Bucket
	installDir string
	minFree    int64
	freeBytes  func(string) (int64, error)
	now        func() time.Time
	logger     *slog.Logger
}

// OpenMirror opens bucketURL (file://, mem://, s3://, ...) and returns a
// Mirror installing into installDir. Callers own the bucket via Close.
func OpenMirror(ctx context.Context, bucketURL, installDir string, minFree int64, logger *slog.Logger, opts ...MirrorOption) (*Mirror, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("open mirror bucket: %w", err)
	}
	return NewMirror(bucket, installDir, minFree, logger, opts...), nil
}

// NewMirror wraps an already-open bucket.
func NewMirror(bucket *blob.Bucket, installDir string, minFree int64, logger *slog.Logger, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		bucket:     bucket,
		installDir: installDir,
		minFree:    minFree,
		freeBytes:  preflight.FreeBytes,
		now:        time.Now,
		logger:     logging.NewComponentLogger(logger, "mirror"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close releases the bucket.
func (m *Mirror) Close() error {
	return m.bucket.Close()
}

// ArchiveKey is the object key holding target's archive.
func ArchiveKey(browser download.Browser, version, platform string) string {
	return path.Join(string(browser), version, platform+".zip")
}

// InstallPath is where target's archive is extracted.
func (m *Mirror) InstallPath(browser download.Browser, version, platform string) string {
	return filepath.Join(m.installDir, string(browser), textutil.SanitizePathSegment(platform+"-"+version))
}

// Execute downloads and extracts one archive.
func (m *Mirror) Execute(ctx context.Context, target download.Target, onProgress func(download.ProgressUpdate)) (download.Resolved, error) {
	if err := ValidateTarget(target); err != nil {
		return download.Resolved{}, err
	}
	logger := logging.WithContext(ctx, m.logger)

	version, err := m.ResolveVersion(ctx, target.Browser, target.Version)
	if err != nil {
		return download.Resolved{}, err
	}
	key := ArchiveKey(target.Browser, version, target.Platform)
	attrs, err := m.bucket.Attributes(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return download.Resolved{}, m.missingArchive(ctx, target, version)
		}
		return download.Resolved{}, fmt.Errorf("stat %s: %w", key, err)
	}

	if err := os.MkdirAll(m.installDir, 0o755); err != nil {
		return download.Resolved{}, fmt.Errorf("create install directory: %w", err)
	}
	// The archive and its extracted contents coexist until cleanup.
	need := attrs.Size*2 + m.minFree
	if free, err := m.freeBytes(m.installDir); err == nil && free < need {
		return download.Resolved{}, fmt.Errorf("no space left on device: need %s, have %s",
			textutil.FormatBytes(need), textutil.FormatBytes(free))
	}

	partial := filepath.Join(m.installDir, staging.PartialName(".zip"))
	defer os.Remove(partial)

	logger.Info("mirror download started",
		logging.String("key", key),
		logging.String("size", textutil.FormatBytes(attrs.Size)),
	)
	if err := m.fetch(ctx, key, attrs, partial, onProgress); err != nil {
		return download.Resolved{}, err
	}

	dest := m.InstallPath(target.Browser, version, target.Platform)
	if err := extractArchive(partial, dest); err != nil {
		return download.Resolved{}, err
	}

	return download.Resolved{
		InstallPath:    dest,
		ExecutablePath: FindExecutable(dest, target.Browser, PlatformOS(target.Platform)),
		Version:        version,
		TotalBytes:     attrs.Size,
	}, nil
}

// ResolveVersion maps stable/latest onto a concrete version.
func (m *Mirror) ResolveVersion(ctx context.Context, browser download.Browser, version string) (string, error) {
	version = strings.TrimSpace(version)
	alias := strings.ToLower(version)
	isAlias := false
	for _, a := range versionAliases {
		if alias == a {
			isAlias = true
			break
		}
	}
	if !isAlias {
		return version, nil
	}
	key := path.Join(string(browser), alias+".txt")
	data, err := m.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return "", fmt.Errorf("version not found: no %s release for %s", alias, browser)
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	resolved := strings.TrimSpace(string(data))
	if resolved == "" {
		return "", fmt.Errorf("version not found: %s is empty", key)
	}
	return resolved, nil
}

// Versions lists the versions present in the bucket for browser.
func (m *Mirror) Versions(ctx context.Context, browser download.Browser) ([]string, error) {
	iter := m.bucket.List(&blob.ListOptions{Prefix: string(browser) + "/", Delimiter: "/"})
	var out []string
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list %s versions: %w", browser, err)
		}
		if obj.IsDir {
			out = append(out, strings.TrimSuffix(strings.TrimPrefix(obj.Key, string(browser)+"/"), "/"))
		}
	}
}

func (m *Mirror) missingArchive(ctx context.Context, target download.Target, version string) error {
	iter := m.bucket.List(&blob.ListOptions{Prefix: path.Join(string(target.Browser), version) + "/"})
	if _, err := iter.Next(ctx); errors.Is(err, io.EOF) {
		return fmt.Errorf("version not found: %s %s", target.Browser, version)
	}
	return fmt.Errorf("download not available: %s %s for %s", target.Browser, version, target.Platform)
}

func (m *Mirror) fetch(ctx context.Context, key string, attrs *blob.Attributes, dst string, onProgress func(download.ProgressUpdate)) error {
	reader, err := m.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("open %s: %w", key, err)
	}
	defer reader.Close()

	total := attrs.Size
	started := m.now()
	var downloaded int64
	lastReported := int64(-1)
	hasher := md5.New() //nolint:gosec

	report := func(delta int64) {
		downloaded += delta
		n := downloaded
		if onProgress == nil || total <= 0 {
			return
		}
		// Report on whole-percent steps and on completion.
		step := n * 100 / total
		if step == lastReported && n != total {
			return
		}
		lastReported = step
		update := download.ProgressUpdate{
			Ratio:           float64(n) / float64(total),
			DownloadedBytes: n,
			TotalBytes:      total,
		}
		if elapsed := m.now().Sub(started); elapsed > 0 && n > 0 {
			rate := float64(n) / elapsed.Seconds()
			eta := time.Duration(float64(total-n)/rate) * time.Second
			update.ETA = &eta
		}
		onProgress(update)
	}

	written, err := fileutil.WriteStream(dst, io.TeeReader(reader, hasher), 0o644, report)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("download %s: %w", key, err)
	}
	if total > 0 && written != total {
		return fmt.Errorf("corrupted download: %s is %d bytes, expected %d", key, written, total)
	}
	if len(attrs.MD5) > 0 && !bytes.Equal(hasher.Sum(nil), attrs.MD5) {
		return fmt.Errorf("checksum mismatch for %s", key)
	}
	return nil
}

// extractArchive unpacks src into dest, replacing any previous install.
func extractArchive(src, dest string) error {
	zr, err := zip.OpenReader(src)
	if err != nil {
		if zr != nil {
			zr.Close()
		}
		return fmt.Errorf("corrupted download: %w", err)
	}
	defer zr.Close()

	staging := dest + ".extracting"
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("prepare extraction: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("prepare extraction: %w", err)
	}
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.RemoveAll(staging)
		}
	}()

	for _, f := range zr.File {
		target, err := fileutil.SafeJoin(staging, f.Name)
		if err != nil {
			return fmt.Errorf("corrupted download: %w", err)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(dest); err != nil {
		return fmt.Errorf("replace install: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if err := os.Rename(staging, dest); err != nil {
		return fmt.Errorf("replace install: %w", err)
	}
	cleanup = false
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("corrupted download: %s: %w", f.Name, err)
	}
	defer rc.Close()
	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0o644
	}
	if _, err := fileutil.WriteStream(target, rc, mode, nil); err != nil {
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) {
			return fmt.Errorf("corrupted download: %s: %w", f.Name, err)
		}
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return nil
}
