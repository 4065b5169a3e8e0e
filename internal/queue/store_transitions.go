package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// QueuedMessage is the status message of a freshly queued job.
const QueuedMessage = "Queued"

// ClaimNext atomically moves the oldest PENDING job to RUNNING and returns
// it. It returns nil when nothing is queued.
func (s *Store) ClaimNext(ctx context.Context) (*Job, error) {
	ctx = ensureContext(ctx)
	var fingerprint string
	err := retryOnBusy(ctx, func() error {
		now := formatTime(time.Now())
		return s.db.QueryRowContext(
			ctx,
			`UPDATE jobs
             SET status = ?, started_at = ?, last_heartbeat = ?, updated_at = ?
             WHERE fingerprint = (
                 SELECT fingerprint FROM jobs WHERE status = ? ORDER BY created_at, fingerprint LIMIT 1
             ) AND status = ?
             RETURNING fingerprint`,
			StatusRunning,
			now,
			now,
			now,
			StatusPending,
			StatusPending,
		).Scan(&fingerprint)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return s.Get(ctx, fingerprint)
}

// UpdateHeartbeat records liveness for a running job.
func (s *Store) UpdateHeartbeat(ctx context.Context, fingerprint string) error {
	now := formatTime(time.Now())
	if _, err := s.execWithRetry(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE fingerprint = ? AND status = ?`,
		now,
		now,
		fingerprint,
		StatusRunning,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale fails RUNNING jobs whose heartbeat is older than cutoff (or
// missing) and returns their fingerprints so callers can broadcast.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	return s.failRunning(ctx, StaleFailureMessage, `AND (last_heartbeat IS NULL OR last_heartbeat < ?)`, formatTime(cutoff))
}

// FailRunning fails every RUNNING job with message. The daemon uses it at
// start-up, when no worker can still own a running job.
func (s *Store) FailRunning(ctx context.Context, message string) ([]string, error) {
	return s.failRunning(ctx, message, "")
}

func (s *Store) failRunning(ctx context.Context, message, filter string, filterArgs ...any) ([]string, error) {
	var fingerprints []string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		fingerprints = fingerprints[:0]
		args := append([]any{StatusRunning}, filterArgs...)
		rows, err := tx.QueryContext(ctx, `SELECT fingerprint FROM jobs WHERE status = ? `+filter, args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var fp string
			if err := rows.Scan(&fp); err != nil {
				rows.Close()
				return err
			}
			fingerprints = append(fingerprints, fp)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return err
		}
		if err := rows.Close(); err != nil {
			return err
		}
		now := formatTime(time.Now())
		for _, fp := range fingerprints {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE jobs
                 SET status = ?, message = ?, progress = 0, last_heartbeat = NULL,
                     finished_at = ?, updated_at = ?
                 WHERE fingerprint = ?`,
				StatusFail,
				message,
				now,
				now,
				fp,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fail running jobs: %w", err)
	}
	return fingerprints, nil
}
