package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"fsoi/internal/config"
	"fsoi/internal/daemon"
	"fsoi/internal/daemonctl"
	"fsoi/internal/logging"
	"fsoi/internal/logs"
	"fsoi/internal/notifications"
	"fsoi/internal/preflight"
	"fsoi/internal/queue"
	"fsoi/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the fsoi daemon and blocks until SIGINT/SIGTERM or cmdCtx ends.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logPath := filepath.Join(cfg.Paths.LogDir, logging.RunLogName("fsoi", time.Now()))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update fsoi.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "fsoi-*.log", Exclude: []string{logPath}},
	)
	pidPath := daemonctl.PIDPath(cfg.Paths.LogDir)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logging.ErrorWithContext(logger, "open job database", "queue_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log_dir permissions"),
		)
		return err
	}
	records, err := OpenRecords(cfg, store)
	if err != nil {
		_ = store.Close()
		logging.ErrorWithContext(logger, "open status store", "status_store_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check status_store settings and connectivity"),
		)
		return err
	}

	hub := notifications.NewHub(time.Duration(cfg.Notifications.WriteTimeout)*time.Second, logger)
	router := notifications.NewRouter(hub, CallbackSender(cfg))
	services, err := BuildServices(cfg, records, router, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	logPreflight(signalCtx, logger, cfg, preflight.Probes{Objects: services.Objects, Records: records, Stages: services.Runner})

	manager := workflow.NewManager(cfg, store, services.Executor, services.Notifier, logger)
	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:    store,
		Records:  records,
		Workflow: manager,
		Hub:      hub,
		Notifier: services.Notifier,
	}, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api_bind, the lock file and job database access"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("fsoi daemon shutting down")
	return nil
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config, probes preflight.Probes) {
	results := preflight.RunAll(ctx, cfg, probes)
	for _, result := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run fsoi status for the full report"),
			logging.String(logging.FieldImpact, "requests depending on this check will fail"),
		)
	}
	logger.Info("preflight complete",
		logging.String(logging.FieldEventType, "preflight_complete"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
	)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := logs.CurrentPath(logDir)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
