package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"browserfetch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.InstallDir = filepath.Join(base, "browsers")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.SocketPath = filepath.Join(base, "browserfetchd.sock")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Download.HelperScript = filepath.Join(base, "helper", "download.js")
	cfgVal.Download.MinFreeBytes = 0
	cfgVal.Events.RedisAddr = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithMirror switches the config to the blob mirror executor.
func WithMirror(bucketURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Download.Executor = config.ExecutorMirror
		b.cfg.Download.MirrorBucket = bucketURL
	}
}

// WithStubbedHelper writes a shell script standing in for the download helper
// and points the config at it. The script prints body verbatim.
func WithStubbedHelper(body string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, "helper.sh")
		script := []byte("#!/bin/sh\ncat <<'OUT'\n" + body + "\nOUT\n")
		if err := os.WriteFile(target, script, 0o755); err != nil {
			b.t.Fatalf("write stub helper: %v", err)
		}
		b.cfg.Download.HelperCommand = "/bin/sh"
		b.cfg.Download.HelperScript = target
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
