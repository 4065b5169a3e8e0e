package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	WorkRoot string `toml:"work_root"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
}

// Storage describes the object store holding source data and cached plots.
// An empty Endpoint selects the filesystem store rooted at LocalRoot.
type Storage struct {
	Endpoint        string `toml:"endpoint"`
	Region          string `toml:"region"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	UseSSL          bool   `toml:"use_ssl"`
	DataBucket      string `toml:"data_bucket"`
	ObjectPrefix    string `toml:"object_prefix"`
	CacheBucket     string `toml:"cache_bucket"`
	LocalRoot       string `toml:"local_root"`
}

// StatusStore selects where job status records live.
type StatusStore struct {
	Backend        string `toml:"backend"`
	RedisAddr      string `toml:"redis_addr"`
	RedisKeyPrefix string `toml:"redis_key_prefix"`
}

// Notifications contains subscriber delivery settings.
type Notifications struct {
	RequestTimeout int `toml:"request_timeout"`
	WriteTimeout   int `toml:"write_timeout"`
}

// Stages names the external commands implementing each computation stage.
type Stages struct {
	BulkStatsCommand string `toml:"bulk_stats_command"`
	SummaryCommand   string `toml:"summary_command"`
	CompareCommand   string `toml:"compare_command"`
	Timeout          int    `toml:"timeout"`
}

// Workflow contains configuration for daemon timing and concurrency.
type Workflow struct {
	Workers             int `toml:"workers"`
	QueuePollInterval   int `toml:"queue_poll_interval"`
	ErrorRetryInterval  int `toml:"error_retry_interval"`
	HeartbeatInterval   int `toml:"heartbeat_interval"`
	HeartbeatTimeout    int `toml:"heartbeat_timeout"`
	StaleWorkspaceHours int `toml:"stale_workspace_hours"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for fsoi.
//
// Configuration sections by subsystem:
//   - Paths: work root, log directory, API bind address
//   - Storage: object store endpoint, credentials and buckets
//   - StatusStore: sqlite or redis job status backend
//   - Notifications: subscriber delivery timeouts
//   - Stages: external stage commands and their timeout
//   - Workflow: daemon worker count, polling and heartbeat intervals
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Storage       Storage       `toml:"storage"`
	StatusStore   StatusStore   `toml:"status_store"`
	Notifications Notifications `toml:"notifications"`
	Stages        Stages        `toml:"stages"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and environment fallbacks applied.
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
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
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
	projectPath, err := filepath.Abs("fsoi.toml")
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

// EnsureDirectories creates the directories the daemon and CLI write into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkRoot, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.UsesLocalStorage() {
		if err := os.MkdirAll(c.Storage.LocalRoot, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", c.Storage.LocalRoot, err)
		}
	}
	return nil
}

// UsesLocalStorage reports whether objects are served from the filesystem
// rather than an S3-compatible endpoint.
func (c *Config) UsesLocalStorage() bool {
	return strings.TrimSpace(c.Storage.Endpoint) == ""
}

// QueueDBPath returns the SQLite database location.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.LogDir, "jobs.db")
}

// StageCommands returns the configured stage executables keyed by stage name.
func (c *Config) StageCommands() map[string]string {
	return map[string]string{
		"bulk_stats": c.Stages.BulkStatsCommand,
		"summary":    c.Stages.SummaryCommand,
		"compare":    c.Stages.CompareCommand,
	}
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
