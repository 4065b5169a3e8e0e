package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UpdateStatus upserts the status record for fingerprint. The caller owns
// progress monotonicity within a run; the store only clamps to 0..100. A
// PENDING write never replaces a RUNNING row, so a late queued update cannot
// make a claimed job claimable again.
func (s *Store) UpdateStatus(ctx context.Context, fingerprint string, status Status, message string, progress int) error {
	if strings.TrimSpace(fingerprint) == "" {
		return errors.New("update status: fingerprint is required")
	}
	now := formatTime(time.Now())
	var finished any
	if status.IsTerminal() {
		finished = now
	}
	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO jobs (fingerprint, status, message, progress, created_at, updated_at, finished_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (fingerprint) DO UPDATE SET
             status = excluded.status,
             message = excluded.message,
             progress = excluded.progress,
             updated_at = excluded.updated_at,
             finished_at = excluded.finished_at
         WHERE NOT (jobs.status = ? AND excluded.status = ?)`,
		fingerprint,
		status,
		nullableString(message),
		clampProgress(progress),
		now,
		now,
		finished,
		StatusRunning,
		StatusPending,
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// Get returns the record for fingerprint including its subscribers, or nil
// when no record exists.
func (s *Store) Get(ctx context.Context, fingerprint string) (*Job, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE fingerprint = ?`, fingerprint)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	subs, err := s.Subscribers(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	job.Subscribers = subs
	return job, nil
}

// Enqueue records a request for processing. When a PENDING or RUNNING job
// already exists for the fingerprint it is returned unchanged with
// deduplicated set; finished jobs are reset to PENDING.
func (s *Store) Enqueue(ctx context.Context, fingerprint, requestJSON, referenceID string) (*Job, bool, error) {
	if strings.TrimSpace(fingerprint) == "" {
		return nil, false, errors.New("enqueue: fingerprint is required")
	}
	deduplicated := false
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		deduplicated = false
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE fingerprint = ?`, fingerprint).Scan(&current)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		case Status(current).IsActive():
			deduplicated = true
			return nil
		}
		now := formatTime(time.Now())
		_, err = tx.ExecContext(
			ctx,
			`INSERT INTO jobs (fingerprint, status, message, progress, request_json, reference_id, created_at, updated_at)
             VALUES (?, ?, ?, 0, ?, ?, ?, ?)
             ON CONFLICT (fingerprint) DO UPDATE SET
                 status = excluded.status,
                 message = excluded.message,
                 progress = 0,
                 request_json = excluded.request_json,
                 response_json = NULL,
                 reference_id = excluded.reference_id,
                 created_at = excluded.created_at,
                 updated_at = excluded.updated_at,
                 started_at = NULL,
                 finished_at = NULL,
                 last_heartbeat = NULL`,
			fingerprint,
			StatusPending,
			QueuedMessage,
			nullableString(requestJSON),
			nullableString(referenceID),
			now,
			now,
		)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}
	job, err := s.Get(ctx, fingerprint)
	if err != nil {
		return nil, false, err
	}
	return job, deduplicated, nil
}

// SetResult stores the terminal status and serialized response of a job.
func (s *Store) SetResult(ctx context.Context, fingerprint string, status Status, message string, progress int, responseJSON []byte) error {
	now := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`UPDATE jobs
         SET status = ?, message = ?, progress = ?, response_json = ?,
             finished_at = ?, updated_at = ?, last_heartbeat = NULL
         WHERE fingerprint = ?`,
		status,
		nullableString(message),
		clampProgress(progress),
		nullableString(string(responseJSON)),
		now,
		now,
		fingerprint,
	)
	if err != nil {
		return fmt.Errorf("set result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set result: job %s not found", fingerprint)
	}
	return nil
}

// List returns jobs ordered by creation time, optionally filtered by status.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	ctx = ensureContext(ctx)
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at, fingerprint`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Remove deletes a single job and its subscribers.
func (s *Store) Remove(ctx context.Context, fingerprint string) (bool, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM job_subscribers WHERE fingerprint = ?`, fingerprint); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE fingerprint = ?`, fingerprint)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove job: %w", err)
	}
	return removed > 0, nil
}

// ClearCompleted removes successful jobs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	return s.clearStatuses(ctx, StatusSuccess)
}

// ClearFailed removes failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	return s.clearStatuses(ctx, StatusFail)
}

// Clear removes every job that is not queued or running.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	return s.clearStatuses(ctx, StatusSuccess, StatusFail)
}

func (s *Store) clearStatuses(ctx context.Context, statuses ...Status) (int64, error) {
	args := make([]any, 0, len(statuses))
	for _, status := range statuses {
		args = append(args, status)
	}
	in := `(` + makePlaceholders(len(statuses)) + `)`
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM job_subscribers WHERE fingerprint IN (SELECT fingerprint FROM jobs WHERE status IN `+in+`)`,
			args...,
		); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE status IN `+in, args...)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return removed, nil
}
