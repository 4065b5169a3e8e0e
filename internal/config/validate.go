package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateStatusStore(); err != nil {
		return err
	}
	if err := c.validateStages(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	if c.UsesLocalStorage() {
		return nil
	}
	if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
		return errors.New("storage.access_key_id and storage.secret_access_key are required when storage.endpoint is set (or export AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY)")
	}
	return nil
}

func (c *Config) validateStatusStore() error {
	switch c.StatusStore.Backend {
	case StatusBackendSQLite:
		return nil
	case StatusBackendRedis:
		if c.StatusStore.RedisAddr == "" {
			return errors.New("status_store.redis_addr is required when status_store.backend is redis (or export REDIS_ADDR)")
		}
		return nil
	default:
		return fmt.Errorf("status_store.backend: unsupported value %q (want sqlite or redis)", c.StatusStore.Backend)
	}
}

func (c *Config) validateStages() error {
	for name, command := range c.StageCommands() {
		if command == "" {
			return fmt.Errorf("stages.%s_command must be set", name)
		}
	}
	if c.Stages.Timeout < 0 {
		return errors.New("stages.timeout must be >= 0")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.Workers <= 0 {
		return errors.New("workflow.workers must be positive")
	}
	if c.Workflow.QueuePollInterval <= 0 {
		return errors.New("workflow.queue_poll_interval must be positive")
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		return errors.New("workflow.error_retry_interval must be positive")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	if c.Workflow.StaleWorkspaceHours < 0 {
		return errors.New("workflow.stale_workspace_hours must be >= 0")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	if c.Notifications.WriteTimeout <= 0 {
		return errors.New("notifications.write_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must be >= 0")
	}
	return nil
}
