package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeDownload(); err != nil {
		return err
	}
	c.normalizeRetry()
	c.normalizeEvents()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.data_dir", &c.Paths.DataDir, defaultDataDir},
		{"paths.install_dir", &c.Paths.InstallDir, defaultInstallDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.socket_path", &c.Paths.SocketPath, defaultSocketPath},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.def
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
		*field.value = expanded
	}

	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("BROWSERFETCH_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeDownload() error {
	c.Download.Executor = strings.ToLower(strings.TrimSpace(c.Download.Executor))
	if c.Download.Executor == "" {
		c.Download.Executor = defaultExecutor
	}
	c.Download.HelperCommand = strings.TrimSpace(c.Download.HelperCommand)
	if c.Download.HelperCommand == "" {
		c.Download.HelperCommand = defaultHelperCommand
	}
	if script := strings.TrimSpace(c.Download.HelperScript); script != "" {
		expanded, err := expandPath(script)
		if err != nil {
			return fmt.Errorf("download.helper_script: %w", err)
		}
		c.Download.HelperScript = expanded
	}
	c.Download.MirrorBucket = strings.TrimSpace(c.Download.MirrorBucket)
	if c.Download.AttemptTimeout <= 0 {
		c.Download.AttemptTimeout = defaultAttemptTimeout
	}
	if c.Download.RetryCeiling <= 0 {
		c.Download.RetryCeiling = defaultRetryCeiling
	}
	if c.Download.MinFreeBytes < 0 {
		c.Download.MinFreeBytes = 0
	}
	c.Download.Language = strings.ToLower(strings.TrimSpace(c.Download.Language))
	if c.Download.Language == "" {
		c.Download.Language = defaultLanguage
	}
	return nil
}

func (c *Config) normalizeRetry() {
	defaults := []struct {
		value *int
		def   int
	}{
		{&c.Retry.FailureThreshold, defaultFailureThreshold},
		{&c.Retry.SuccessThreshold, defaultSuccessThreshold},
		{&c.Retry.BreakerTimeout, defaultBreakerTimeout},
		{&c.Retry.TaskWindow, defaultTaskWindow},
		{&c.Retry.TaskSevereThreshold, defaultTaskSevereThreshold},
		{&c.Retry.TaskCooldown, defaultTaskCooldown},
		{&c.Retry.StateTTL, defaultStateTTL},
		{&c.Retry.CleanupInterval, defaultCleanupInterval},
	}
	for _, field := range defaults {
		if *field.value <= 0 {
			*field.value = field.def
		}
	}
}

func (c *Config) normalizeEvents() {
	if c.Events.Buffer <= 0 {
		c.Events.Buffer = defaultEventBuffer
	}
	c.Events.RedisAddr = strings.TrimSpace(c.Events.RedisAddr)
	if c.Events.RedisAddr == "" {
		if value, ok := os.LookupEnv("BROWSERFETCH_REDIS_ADDR"); ok {
			c.Events.RedisAddr = strings.TrimSpace(value)
		}
	}
	c.Events.RedisChannel = strings.TrimSpace(c.Events.RedisChannel)
	if c.Events.RedisChannel == "" {
		c.Events.RedisChannel = defaultRedisChannel
	}
	c.Events.NtfyTopic = strings.TrimSpace(c.Events.NtfyTopic)
	if c.Events.NtfyTimeout <= 0 {
		c.Events.NtfyTimeout = defaultNtfyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.StreamCapacity <= 0 {
		c.Logging.StreamCapacity = defaultStreamCapacity
	}
}
