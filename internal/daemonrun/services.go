package daemonrun

import (
	"fmt"
	"log/slog"
	"time"

	"fsoi/internal/artifacts"
	"fsoi/internal/config"
	"fsoi/internal/notifications"
	"fsoi/internal/pipeline"
	"fsoi/internal/queue"
	"fsoi/internal/stage"
	"fsoi/internal/storage"
)

// Services bundles the collaborators that execute requests.
type Services struct {
	Objects  storage.ObjectStore
	Runner   *stage.CommandRunner
	Notifier *notifications.Service
	Executor *pipeline.Executor
}

// BuildServices wires the object store, stage runner, artifact cache and
// notifier into a pipeline executor.
func BuildServices(cfg *config.Config, records notifications.StatusStore, sender notifications.Sender, logger *slog.Logger) (*Services, error) {
	if cfg == nil || records == nil {
		return nil, fmt.Errorf("config and status store are required")
	}
	objects, err := storage.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("open object store: %w", err)
	}
	runner, err := stage.NewCommandRunner(cfg.Stages, stage.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("configure stages: %w", err)
	}
	notifier := notifications.NewService(records, sender, logger)
	executor, err := pipeline.New(pipeline.Options{
		Objects:      objects,
		Runner:       runner,
		Cache:        artifacts.NewCache(objects, cfg.Storage.CacheBucket, logger),
		Notifier:     notifier,
		DataBucket:   cfg.Storage.DataBucket,
		ObjectPrefix: cfg.Storage.ObjectPrefix,
		WorkRoot:     cfg.Paths.WorkRoot,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	return &Services{Objects: objects, Runner: runner, Notifier: notifier, Executor: executor}, nil
}

// OpenRecords returns the status store selected by configuration. The SQLite
// backend shares the job database so records and jobs never diverge.
func OpenRecords(cfg *config.Config, store *queue.Store) (queue.StatusStore, error) {
	if cfg.StatusStore.Backend == config.StatusBackendSQLite && store != nil {
		return store, nil
	}
	return queue.OpenStatusStore(cfg)
}

// CallbackSender returns the HTTP callback transport configured for cfg.
func CallbackSender(cfg *config.Config) *notifications.CallbackSender {
	return notifications.NewCallbackSender(time.Duration(cfg.Notifications.RequestTimeout) * time.Second)
}
