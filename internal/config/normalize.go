package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	c.applyEnvironment()
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeStatusStore()
	c.normalizeStages()
	c.normalizeLogging()
	return nil
}

// applyEnvironment fills values from the process environment. Environment
// variables win for bucket, prefix and root because hosted deployments set
// them per invocation; credentials only fill blanks.
func (c *Config) applyEnvironment() {
	if value, ok := lookupEnv("DATA_BUCKET"); ok {
		c.Storage.DataBucket = value
	}
	if value, ok := lookupEnv("OBJECT_PREFIX"); ok {
		c.Storage.ObjectPrefix = value
	}
	if value, ok := lookupEnv("CACHE_BUCKET"); ok {
		c.Storage.CacheBucket = value
	}
	if value, ok := lookupEnv("FSOI_ROOT_DIR"); ok {
		c.Paths.WorkRoot = value
	}
	if c.Storage.AccessKeyID == "" {
		c.Storage.AccessKeyID, _ = lookupEnv("AWS_ACCESS_KEY_ID")
	}
	if c.Storage.SecretAccessKey == "" {
		c.Storage.SecretAccessKey, _ = lookupEnv("AWS_SECRET_ACCESS_KEY")
	}
	if value, ok := lookupEnv("AWS_REGION"); ok && strings.TrimSpace(c.Storage.Region) == "" {
		c.Storage.Region = value
	}
	if c.StatusStore.RedisAddr == "" {
		c.StatusStore.RedisAddr, _ = lookupEnv("REDIS_ADDR")
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkRoot) == "" {
		c.Paths.WorkRoot = defaultWorkRoot
	}
	if c.Paths.WorkRoot, err = expandPath(c.Paths.WorkRoot); err != nil {
		return fmt.Errorf("paths.work_root: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Storage.LocalRoot) == "" {
		c.Storage.LocalRoot = defaultLocalStorageRoot
	}
	if c.Storage.LocalRoot, err = expandPath(c.Storage.LocalRoot); err != nil {
		return fmt.Errorf("storage.local_root: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.DataBucket = strings.TrimSpace(c.Storage.DataBucket)
	c.Storage.CacheBucket = strings.TrimSpace(c.Storage.CacheBucket)
	c.Storage.ObjectPrefix = strings.Trim(strings.TrimSpace(c.Storage.ObjectPrefix), "/")
	if strings.TrimSpace(c.Storage.Region) == "" {
		c.Storage.Region = defaultRegion
	}
}

func (c *Config) normalizeStatusStore() {
	c.StatusStore.Backend = strings.ToLower(strings.TrimSpace(c.StatusStore.Backend))
	if c.StatusStore.Backend == "" {
		c.StatusStore.Backend = defaultStatusBackend
	}
	c.StatusStore.RedisAddr = strings.TrimSpace(c.StatusStore.RedisAddr)
	if strings.TrimSpace(c.StatusStore.RedisKeyPrefix) == "" {
		c.StatusStore.RedisKeyPrefix = defaultRedisKeyPrefix
	}
}

func (c *Config) normalizeStages() {
	c.Stages.BulkStatsCommand = strings.TrimSpace(c.Stages.BulkStatsCommand)
	c.Stages.SummaryCommand = strings.TrimSpace(c.Stages.SummaryCommand)
	c.Stages.CompareCommand = strings.TrimSpace(c.Stages.CompareCommand)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
