package main

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"fsoi/internal/api"
	"fsoi/internal/config"
	"fsoi/internal/queue"
)

const (
	clientTimeout = 10 * time.Second
	probeTimeout  = 2 * time.Second
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) apiClient() (*api.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Paths.APIBind, clientTimeout), nil
}

// reachableDaemon returns a client and the daemon status when the daemon
// answers within probeTimeout.
func (c *commandContext) reachableDaemon(ctx context.Context) (*api.Client, *api.DaemonStatus) {
	client, err := c.apiClient()
	if err != nil {
		return nil, nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	status, err := client.Status(probeCtx)
	if err != nil {
		return nil, nil
	}
	return client, &status
}

// withJobs runs fn against the daemon API when it is reachable, otherwise
// against the job database opened directly.
func (c *commandContext) withJobs(ctx context.Context, fn func(jobsAPI) error) error {
	if client, _ := c.reachableDaemon(ctx); client != nil {
		return fn(&jobsHTTPAdapter{client: client})
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(&jobsStoreAdapter{store: store})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
