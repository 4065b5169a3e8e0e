package config

const (
	defaultConfigPath           = "~/.config/fsoi/config.toml"
	defaultWorkRoot             = "~/.local/share/fsoi/work"
	defaultLogDir               = "~/.local/share/fsoi/logs"
	defaultLocalStorageRoot     = "~/.local/share/fsoi/objects"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultRegion               = "us-east-1"
	defaultObjectPrefix         = "data"
	defaultStatusBackend        = "sqlite"
	defaultRedisKeyPrefix       = "fsoi"
	defaultNotifyRequestTimeout = 10
	defaultNotifyWriteTimeout   = 5
	defaultBulkStatsCommand     = "summary_bulk.py"
	defaultSummaryCommand       = "summary_fsoi.py"
	defaultCompareCommand       = "compare_fsoi.py"
	defaultStageTimeout         = 1800
	defaultWorkers              = 1
	defaultQueuePollInterval    = 2
	defaultErrorRetryInterval   = 10
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultStaleWorkspaceHours  = 24
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
	StatusBackendSQLite         = "sqlite"
	StatusBackendRedis          = "redis"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkRoot: defaultWorkRoot,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Storage: Storage{
			Region:       defaultRegion,
			ObjectPrefix: defaultObjectPrefix,
			LocalRoot:    defaultLocalStorageRoot,
		},
		StatusStore: StatusStore{
			Backend:        defaultStatusBackend,
			RedisKeyPrefix: defaultRedisKeyPrefix,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			WriteTimeout:   defaultNotifyWriteTimeout,
		},
		Stages: Stages{
			BulkStatsCommand: defaultBulkStatsCommand,
			SummaryCommand:   defaultSummaryCommand,
			CompareCommand:   defaultCompareCommand,
			Timeout:          defaultStageTimeout,
		},
		Workflow: Workflow{
			Workers:             defaultWorkers,
			QueuePollInterval:   defaultQueuePollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			StaleWorkspaceHours: defaultStaleWorkspaceHours,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
