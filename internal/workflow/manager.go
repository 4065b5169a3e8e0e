package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fsoi/internal/config"
	"fsoi/internal/logging"
	"fsoi/internal/pipeline"
	"fsoi/internal/queue"
	"fsoi/internal/request"
)

// Processor executes one request to completion.
type Processor interface {
	Handle(ctx context.Context, req *request.Request) pipeline.Result
}

// Notifier updates job records and pushes them to subscribers.
type Notifier interface {
	UpdateAndBroadcast(ctx context.Context, fingerprint string, status queue.Status, message string, progress int) (int, error)
}

// Manager coordinates queue processing across worker lanes.
type Manager struct {
	cfg        *config.Config
	store      *queue.Store
	processor  Processor
	notifier   Notifier
	logger     *slog.Logger
	workers    int
	pollEvery  time.Duration
	retryAfter time.Duration

	heartbeat *HeartbeatMonitor

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
	active  map[string]string
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *queue.Store, processor Processor, notifier Notifier, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		cfg:        cfg,
		store:      store,
		processor:  processor,
		notifier:   notifier,
		logger:     logger,
		workers:    workers,
		pollEvery:  time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		retryAfter: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			notifier,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		active: make(map[string]string),
	}
}

func laneName(index int) string {
	return fmt.Sprintf("worker-%d", index+1)
}
