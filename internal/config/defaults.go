package config

const (
	defaultConfigPath = "~/.config/browserfetch/config.toml"
	defaultDataDir    = "~/.local/share/browserfetch"
	defaultInstallDir = "~/.local/share/browserfetch/browsers"
	defaultLogDir     = "~/.local/share/browserfetch/logs"
	defaultSocketPath = "~/.local/share/browserfetch/browserfetchd.sock"
	defaultAPIBind    = "127.0.0.1:7491"

	defaultExecutor       = ExecutorProcess
	defaultHelperCommand  = "node"
	defaultHelperScript   = "~/.local/share/browserfetch/helper/download.js"
	defaultAttemptTimeout = 600
	defaultRetryCeiling   = 3
	defaultMinFreeBytes   = 512 << 20
	defaultLanguage       = "en"

	defaultFailureThreshold    = 10
	defaultSuccessThreshold    = 5
	defaultBreakerTimeout      = 60
	defaultTaskWindow          = 5
	defaultTaskSevereThreshold = 3
	defaultTaskCooldown        = 300
	defaultStateTTL            = 3600
	defaultCleanupInterval     = 600

	defaultEventBuffer  = 64
	defaultRedisChannel = "browserfetch:events"
	defaultNtfyTimeout  = 10

	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultStreamCapacity = 512
)

// Executor names accepted by download.executor.
const (
	ExecutorProcess = "process"
	ExecutorMirror  = "mirror"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			InstallDir: defaultInstallDir,
			LogDir:     defaultLogDir,
			SocketPath: defaultSocketPath,
			APIBind:    defaultAPIBind,
		},
		Download: Download{
			Executor:       defaultExecutor,
			HelperCommand:  defaultHelperCommand,
			HelperScript:   defaultHelperScript,
			AttemptTimeout: defaultAttemptTimeout,
			RetryCeiling:   defaultRetryCeiling,
			MinFreeBytes:   defaultMinFreeBytes,
			Language:       defaultLanguage,
		},
		Retry: Retry{
			FailureThreshold:    defaultFailureThreshold,
			SuccessThreshold:    defaultSuccessThreshold,
			BreakerTimeout:      defaultBreakerTimeout,
			TaskWindow:          defaultTaskWindow,
			TaskSevereThreshold: defaultTaskSevereThreshold,
			TaskCooldown:        defaultTaskCooldown,
			StateTTL:            defaultStateTTL,
			CleanupInterval:     defaultCleanupInterval,
		},
		Events: Events{
			Buffer:       defaultEventBuffer,
			RedisChannel: defaultRedisChannel,
			NtfyTimeout:  defaultNtfyTimeout,
		},
		Logging: Logging{
			Format:         defaultLogFormat,
			Level:          defaultLogLevel,
			StreamCapacity: defaultStreamCapacity,
		},
	}
}
