package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"browserfetch/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("BROWSERFETCH_API_TOKEN", "secret-token")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}
	if resolved != filepath.Join(tempHome, ".config", "browserfetch", "config.toml") {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	wantInstall := filepath.Join(tempHome, ".local", "share", "browserfetch", "browsers")
	if cfg.Paths.InstallDir != wantInstall {
		t.Fatalf("unexpected install dir: got %q want %q", cfg.Paths.InstallDir, wantInstall)
	}
	if cfg.Paths.APIToken != "secret-token" {
		t.Fatalf("expected api token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Download.Executor != config.ExecutorProcess {
		t.Fatalf("unexpected executor %q", cfg.Download.Executor)
	}
	if cfg.AttemptTimeout() != 10*time.Minute {
		t.Fatalf("unexpected attempt timeout %s", cfg.AttemptTimeout())
	}
	if cfg.Retry.FailureThreshold != 10 || cfg.Retry.SuccessThreshold != 5 || cfg.BreakerTimeout() != time.Minute {
		t.Fatalf("unexpected breaker defaults %+v", cfg.Retry)
	}
	if cfg.TaskCooldown() != 5*time.Minute || cfg.StateTTL() != time.Hour {
		t.Fatalf("unexpected task defaults %+v", cfg.Retry)
	}
	if cfg.CatalogPath() != filepath.Join(cfg.Paths.DataDir, "browserfetch.db") {
		t.Fatalf("unexpected catalog path %q", cfg.CatalogPath())
	}
}

func TestLoadCustomConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
install_dir = "` + filepath.Join(dir, "browsers") + `"

[download]
executor = "MIRROR"
mirror_bucket = "file:///srv/mirror"
language = "zh"

[retry]
failure_threshold = 4

[events]
redis_addr = "127.0.0.1:6379"

[logging]
format = "JSON"
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected explicit path to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Download.Executor != config.ExecutorMirror {
		t.Fatalf("expected executor to be normalized, got %q", cfg.Download.Executor)
	}
	if cfg.Retry.FailureThreshold != 4 {
		t.Fatalf("expected failure threshold 4, got %d", cfg.Retry.FailureThreshold)
	}
	if cfg.Retry.SuccessThreshold != 5 {
		t.Fatalf("expected default success threshold, got %d", cfg.Retry.SuccessThreshold)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}
	if cfg.Events.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.Events.RedisAddr)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[download]\nexecuter = \"process\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestValidateMirrorRequiresBucketURL(t *testing.T) {
	cfg := config.Default()
	cfg.Download.Executor = config.ExecutorMirror
	cfg.Download.MirrorBucket = "/srv/mirror"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "bucket URL") {
		t.Fatalf("expected bucket URL error, got %v", err)
	}
}

func TestValidateRejectsUnknownExecutor(t *testing.T) {
	cfg := config.Default()
	cfg.Download.Executor = "torrent"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown executor to be rejected")
	}
}

func TestValidateSevereThresholdWithinWindow(t *testing.T) {
	cfg := config.Default()
	cfg.Retry.TaskSevereThreshold = 6
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected severe threshold above window to be rejected")
	}
}

func TestValidateNtfyTopicMustBeURL(t *testing.T) {
	cfg := config.Default()
	cfg.Download.HelperScript = "/opt/browserfetch/helper.js"
	cfg.Events.NtfyTopic = "my-topic"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "ntfy_topic") {
		t.Fatalf("expected ntfy_topic error, got %v", err)
	}
	cfg.Events.NtfyTopic = "https://ntfy.sh/browserfetch"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid ntfy topic, got %v", err)
	}
	if cfg.NtfyTimeout() != 10*time.Second {
		t.Fatalf("unexpected ntfy timeout %s", cfg.NtfyTimeout())
	}
}

func TestSampleConfigMatchesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var parsed config.Config
	if err := toml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("sample config does not parse: %v", err)
	}
	defaults := config.Default()
	if parsed.Retry != defaults.Retry {
		t.Fatalf("sample retry section drifted from defaults: %+v vs %+v", parsed.Retry, defaults.Retry)
	}
	if parsed.Download.AttemptTimeout != defaults.Download.AttemptTimeout || parsed.Download.MinFreeBytes != defaults.Download.MinFreeBytes {
		t.Fatalf("sample download section drifted from defaults: %+v", parsed.Download)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.InstallDir = filepath.Join(base, "browsers")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "run", "d.sock")
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.InstallDir, cfg.Paths.LogDir, filepath.Dir(cfg.Paths.SocketPath)} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s: %v", dir, err)
		}
	}
}
