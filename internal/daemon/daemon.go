package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/gofrs/flock"

	"fsoi/internal/config"
	"fsoi/internal/daemonctl"
	"fsoi/internal/logging"
	"fsoi/internal/notifications"
	"fsoi/internal/queue"
	"fsoi/internal/request"
	"fsoi/internal/services"
	"fsoi/internal/workflow"
)

// Notifier persists status changes and pushes them to subscribers.
type Notifier interface {
	UpdateAndBroadcast(ctx context.Context, fingerprint string, status queue.Status, message string, progress int) (int, error)
	Publish(ctx context.Context, fingerprint string) (int, error)
}

// Dependencies groups the collaborators a daemon coordinates.
type Dependencies struct {
	Store    *queue.Store
	Records  queue.StatusStore
	Workflow *workflow.Manager
	Hub      *notifications.Hub
	Notifier Notifier
}

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	records  queue.StatusStore
	workflow *workflow.Manager
	hub      *notifications.Hub
	notifier Notifier
	api      *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	StatusStore  string
	Subscribers  int
}

// SubmitResult describes the job a submission converged on.
type SubmitResult struct {
	Job          *queue.Job
	Deduplicated bool
	Subscribed   bool
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Workflow == nil || deps.Notifier == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and notifier")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	records := deps.Records
	if records == nil {
		records = deps.Store
	}
	lockPath := daemonctl.LockPath(cfg.Paths.LogDir)
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    deps.Store,
		records:  records,
		workflow: deps.Workflow,
		hub:      deps.Hub,
		notifier: deps.Notifier,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager and begins
// serving the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another fsoi daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		d.abortStart()
		return err
	}

	d.running.Store(true)
	d.logger.Info("fsoi daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.APIAddress()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if d.hub != nil {
		d.hub.Close()
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if the next start reports another instance"),
			logging.String(logging.FieldImpact, "lock file may linger"),
		)
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("fsoi daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.records != nil && d.records != queue.StatusStore(d.store) {
		errs = append(errs, d.records.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// APIAddress returns the bound API address, or the configured bind before
// the listener starts.
func (d *Daemon) APIAddress() string {
	if d.api != nil && d.api.listener != nil {
		return d.api.listener.Addr().String()
	}
	return d.cfg.Paths.APIBind
}

// Submit validates a raw request body, enqueues it under its fingerprint and
// optionally registers an HTTP callback subscriber. A pending or running job
// with the same fingerprint absorbs the submission.
func (d *Daemon) Submit(ctx context.Context, body []byte, callback string) (SubmitResult, error) {
	req, err := request.DecodeBytes(body)
	if err != nil {
		return SubmitResult{}, err
	}
	callback = strings.TrimSpace(callback)
	if callback != "" && (!notifications.IsSupportedChannel(callback) || strings.HasPrefix(callback, notifications.WebsocketChannelPrefix)) {
		return SubmitResult{}, services.Wrap(services.ErrValidation, "request", "subscribe", "callback must be an http or https URL", nil)
	}

	// Workspaces are host-local; clients never choose them.
	req.RootDir = ""
	fingerprint := request.Fingerprint(req)
	referenceID := request.ReferenceID(req)
	req.RequestID = referenceID
	encoded, err := json.Marshal(req)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("encode request: %w", err)
	}

	job, deduplicated, err := d.store.Enqueue(ctx, fingerprint, string(encoded), referenceID)
	if err != nil {
		return SubmitResult{}, err
	}
	logger := logging.WithContext(services.WithFingerprint(ctx, fingerprint), d.logger)
	if !deduplicated {
		if err := d.publishQueued(ctx, fingerprint); err != nil {
			logging.WarnWithContext(logger, "failed to publish queued status", "queued_status_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check status store connectivity"),
				logging.String(logging.FieldImpact, "subscribers miss the queued update"),
			)
		}
	}

	result := SubmitResult{Job: job, Deduplicated: deduplicated}
	if callback != "" {
		if err := d.records.AddSubscriber(ctx, fingerprint, callback); err != nil {
			return result, fmt.Errorf("register callback: %w", err)
		}
		result.Subscribed = true
	}
	logger.Info("request accepted",
		logging.String(logging.FieldEventType, "request_accepted"),
		logging.Bool("deduplicated", deduplicated),
		logging.Bool("callback", result.Subscribed),
		logging.String(logging.FieldCorrelationID, referenceID),
	)
	return result, nil
}

// publishQueued announces a freshly queued job. Enqueue already wrote the
// PENDING row, and a lane may have claimed it since, so the jobs table is only
// republished. A separate status store gets the queued record; it never
// overwrites a record that is already RUNNING.
func (d *Daemon) publishQueued(ctx context.Context, fingerprint string) error {
	if d.records == queue.StatusStore(d.store) {
		_, err := d.notifier.Publish(ctx, fingerprint)
		return err
	}
	_, err := d.notifier.UpdateAndBroadcast(ctx, fingerprint, queue.StatusPending, queue.QueuedMessage, 0)
	return err
}

// Job returns the job for fingerprint with status fields taken from the
// status store, or nil when unknown.
func (d *Daemon) Job(ctx context.Context, fingerprint string) (*queue.Job, *queue.Job, error) {
	job, err := d.store.Get(ctx, fingerprint)
	if err != nil {
		return nil, nil, err
	}
	if d.records == queue.StatusStore(d.store) {
		return job, job, nil
	}
	record, err := d.records.Get(ctx, fingerprint)
	if err != nil {
		return job, nil, err
	}
	return job, record, nil
}

// ListJobs returns jobs filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses []queue.Status) ([]*queue.Job, error) {
	return d.store.List(ctx, statuses...)
}

// ClearJobs removes finished jobs. scope is "completed", "failed" or "all"
// (pending and running jobs are kept by the first two).
func (d *Daemon) ClearJobs(ctx context.Context, scope string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "", "completed":
		return d.store.ClearCompleted(ctx)
	case "failed":
		return d.store.ClearFailed(ctx)
	case "all":
		return d.store.Clear(ctx)
	default:
		return 0, services.Wrap(services.ErrValidation, "jobs", "clear", fmt.Sprintf("unknown scope %q", scope), nil)
	}
}

// Subscribe registers channel on fingerprint's record.
func (d *Daemon) Subscribe(ctx context.Context, fingerprint, channel string) error {
	return d.records.AddSubscriber(ctx, fingerprint, channel)
}

// Unsubscribe removes channel from fingerprint's record.
func (d *Daemon) Unsubscribe(ctx context.Context, fingerprint, channel string) error {
	return d.records.RemoveSubscriber(ctx, fingerprint, channel)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		StatusStore:  d.cfg.StatusStore.Backend,
	}
	if d.hub != nil {
		status.Subscribers = d.hub.Count()
	}
	return status
}
