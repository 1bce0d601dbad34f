package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateEvents(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateDownload() error {
	switch c.Download.Executor {
	case ExecutorProcess:
		if c.Download.HelperScript == "" {
			return errors.New("download.helper_script must be set when download.executor is \"process\"")
		}
	case ExecutorMirror:
		if c.Download.MirrorBucket == "" {
			return errors.New("download.mirror_bucket must be set when download.executor is \"mirror\"")
		}
		if !strings.Contains(c.Download.MirrorBucket, "://") {
			return fmt.Errorf("download.mirror_bucket %q must be a bucket URL such as file:///srv/mirror", c.Download.MirrorBucket)
		}
	default:
		return fmt.Errorf("download.executor must be %q or %q (got %q)", ExecutorProcess, ExecutorMirror, c.Download.Executor)
	}
	switch c.Download.Language {
	case "en", "zh", "zh-cn", "zh-hans":
	default:
		return fmt.Errorf("download.language must be \"en\" or \"zh\" (got %q)", c.Download.Language)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.TaskSevereThreshold > c.Retry.TaskWindow {
		return fmt.Errorf("retry.task_severe_threshold (%d) must not exceed retry.task_window (%d)", c.Retry.TaskSevereThreshold, c.Retry.TaskWindow)
	}
	return nil
}

func (c *Config) validateEvents() error {
	if c.Events.RedisDB < 0 {
		return errors.New("events.redis_db must be >= 0")
	}
	if c.Events.NtfyTopic != "" {
		u, err := url.Parse(c.Events.NtfyTopic)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("events.ntfy_topic must be an http(s) URL (got %q)", c.Events.NtfyTopic)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}
