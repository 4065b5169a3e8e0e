package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"fsoi/internal/logging"
	"fsoi/internal/queue"
)

// HeartbeatMonitor manages job heartbeats and stale job reclamation.
type HeartbeatMonitor struct {
	store             *queue.Store
	notifier          Notifier
	logger            *slog.Logger
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, notifier Notifier, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:             store,
		notifier:          notifier,
		logger:            logger,
		heartbeatInterval: interval,
		heartbeatTimeout:  timeout,
	}
}

// ReclaimStale fails RUNNING jobs that stopped heartbeating and notifies
// their subscribers. It returns the reclaimed fingerprints.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context, logger *slog.Logger) ([]string, error) {
	if h.heartbeatTimeout <= 0 {
		return nil, nil
	}
	cutoff := time.Now().Add(-h.heartbeatTimeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(reclaimed) > 0 {
		logger.Info("reclaimed stale jobs",
			logging.String(logging.FieldEventType, "heartbeat_reclaimed"),
			logging.Int("count", len(reclaimed)),
		)
		h.announceFailures(ctx, logger, reclaimed, queue.StaleFailureMessage)
	}
	return reclaimed, nil
}

func (h *HeartbeatMonitor) announceFailures(ctx context.Context, logger *slog.Logger, fingerprints []string, message string) {
	if h.notifier == nil {
		return
	}
	for _, fp := range fingerprints {
		if _, err := h.notifier.UpdateAndBroadcast(ctx, fp, queue.StatusFail, message, 0); err != nil {
			logging.WarnWithContext(logger, "failed to announce reclaimed job", "reclaim_broadcast_failed",
				logging.String(logging.FieldFingerprint, fp),
				logging.String(logging.FieldImpact, "subscribers miss the failure notice"),
				logging.String(logging.FieldErrorHint, "check the status store"),
				logging.Error(err),
			)
		}
	}
}

// StartLoop runs a heartbeat updater for a specific job until context cancellation.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, fingerprint string) {
	defer wg.Done()
	if h.heartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, fingerprint); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Info("daemon shutting down, heartbeat update cancelled")
				} else {
					logging.WarnWithContext(logger, "heartbeat update failed", "heartbeat_failed",
						logging.String(logging.FieldImpact, "job may be reclaimed as stale"),
						logging.String(logging.FieldErrorHint, "check queue database access"),
						logging.Error(err),
					)
				}
			}
		}
	}
}
