package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, socket, and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	InstallDir string `toml:"install_dir"`
	LogDir     string `toml:"log_dir"`
	SocketPath string `toml:"socket_path"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Download contains executor selection and per-task limits.
type Download struct {
	Executor       string `toml:"executor"`
	HelperCommand  string `toml:"helper_command"`
	HelperScript   string `toml:"helper_script"`
	MirrorBucket   string `toml:"mirror_bucket"`
	AttemptTimeout int    `toml:"attempt_timeout"`
	RetryCeiling   int    `toml:"retry_ceiling"`
	MinFreeBytes   int64  `toml:"min_free_bytes"`
	Language       string `toml:"language"`
}

// Retry contains circuit breaker thresholds and retry-state housekeeping.
// Durations are expressed in seconds.
type Retry struct {
	FailureThreshold    int `toml:"failure_threshold"`
	SuccessThreshold    int `toml:"success_threshold"`
	BreakerTimeout      int `toml:"breaker_timeout"`
	TaskWindow          int `toml:"task_window"`
	TaskSevereThreshold int `toml:"task_severe_threshold"`
	TaskCooldown        int `toml:"task_cooldown"`
	StateTTL            int `toml:"state_ttl"`
	CleanupInterval     int `toml:"cleanup_interval"`
}

// Events configures status/progress fan-out.
type Events struct {
	Buffer        int    `toml:"buffer"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisChannel  string `toml:"redis_channel"`
	NtfyTopic     string `toml:"ntfy_topic"`
	NtfyTimeout   int    `toml:"ntfy_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string `toml:"format"`
	Level          string `toml:"level"`
	StreamCapacity int    `toml:"stream_capacity"`
}

// Config encapsulates all configuration values for browserfetch.
type Config struct {
	Paths    Paths    `toml:"paths"`
	Download Download `toml:"download"`
	Retry    Retry    `toml:"retry"`
	Events   Events   `toml:"events"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("browserfetch.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.InstallDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if dir := filepath.Dir(c.Paths.SocketPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create socket directory %q: %w", dir, err)
		}
	}
	return nil
}

// CatalogPath is the SQLite database holding installed browsers and task history.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.DataDir, "browserfetch.db")
}

// LockPath is the flock file guarding single-instance daemon startup.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "browserfetchd.lock")
}

// AttemptTimeout is the deadline applied to one executor attempt.
func (c *Config) AttemptTimeout() time.Duration {
	return time.Duration(c.Download.AttemptTimeout) * time.Second
}

// BreakerTimeout is how long the global breaker stays open.
func (c *Config) BreakerTimeout() time.Duration {
	return time.Duration(c.Retry.BreakerTimeout) * time.Second
}

// TaskCooldown is how long a per-task breaker stays open.
func (c *Config) TaskCooldown() time.Duration {
	return time.Duration(c.Retry.TaskCooldown) * time.Second
}

// StateTTL is the idle age after which retry state is discarded.
func (c *Config) StateTTL() time.Duration {
	return time.Duration(c.Retry.StateTTL) * time.Second
}

// CleanupInterval is how often the daemon sweeps stale retry state.
func (c *Config) CleanupInterval() time.Duration {
	return time.Duration(c.Retry.CleanupInterval) * time.Second
}

// NtfyTimeout bounds one notification request.
func (c *Config) NtfyTimeout() time.Duration {
	return time.Duration(c.Events.NtfyTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
