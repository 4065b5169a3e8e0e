package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"fsoi/internal/logging"
	"fsoi/internal/queue"
	"fsoi/internal/services"
	"fsoi/internal/staging"
)

// Start recovers state left by a previous process and begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if m.processor == nil {
		m.mu.Unlock()
		return errors.New("workflow processor not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	m.recoverInterrupted(runCtx)
	m.sweepWorkspaces(runCtx)

	for i := 0; i < m.workers; i++ {
		go m.runLane(runCtx, laneName(i), i == 0)
	}
	m.logger.Info("workflow started",
		logging.String(logging.FieldEventType, "workflow_start"),
		logging.Int("workers", m.workers),
	)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// recoverInterrupted fails jobs left RUNNING by a previous process. No lane
// is active yet, so none of them can still be owned by a worker.
func (m *Manager) recoverInterrupted(ctx context.Context) {
	failed, err := m.store.FailRunning(ctx, queue.StaleFailureMessage)
	if err != nil {
		logging.WarnWithContext(m.logger, "failed to recover interrupted jobs", "recover_failed",
			logging.String(logging.FieldImpact, "interrupted jobs stay RUNNING until reclaimed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.Error(err),
		)
		return
	}
	if len(failed) == 0 {
		return
	}
	m.logger.Info("failed interrupted jobs",
		logging.String(logging.FieldEventType, "jobs_recovered"),
		logging.Strings("fingerprints", failed),
	)
	m.heartbeat.announceFailures(ctx, m.logger, failed, queue.StaleFailureMessage)
}

func (m *Manager) sweepWorkspaces(ctx context.Context) {
	hours := m.cfg.Workflow.StaleWorkspaceHours
	if hours <= 0 {
		return
	}
	result := staging.CleanStale(ctx, m.cfg.Paths.WorkRoot, time.Duration(hours)*time.Hour, m.activeSet(), m.logger)
	if len(result.Removed) > 0 {
		m.logger.Info("removed stale workspaces",
			logging.String(logging.FieldEventType, "workspace_sweep"),
			logging.Int("count", len(result.Removed)),
		)
	}
}

func (m *Manager) runLane(ctx context.Context, lane string, reclaimer bool) {
	defer m.wg.Done()
	ctx = services.WithLane(ctx, lane)
	logger := logging.WithContext(ctx, m.logger)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if reclaimer {
			if _, err := m.heartbeat.ReclaimStale(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
				logging.WarnWithContext(logger, "reclaim stale jobs failed; stuck jobs may remain", "heartbeat_reclaim_failed",
					logging.String(logging.FieldErrorHint, "check queue database access"),
					logging.Error(err),
				)
			}
		}

		job, err := m.store.ClaimNext(ctx)
		if err != nil {
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		m.processJob(ctx, lane, logger, job)
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to claim next job", "queue_claim_failed",
		logging.String(logging.FieldErrorHint, "check queue database access"),
		logging.Error(err),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.retryAfter):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollEvery):
	}
}
