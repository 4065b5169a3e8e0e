package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrJobNotFound is returned when an operation needs an existing record.
var ErrJobNotFound = errors.New("job not found")

// AddSubscriber registers a delivery channel on an existing job record.
func (s *Store) AddSubscriber(ctx context.Context, fingerprint, channel string) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("add subscriber: channel is required")
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM jobs WHERE fingerprint = ?`, fingerprint).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrJobNotFound, fingerprint)
		}
		_, err := tx.ExecContext(
			ctx,
			`INSERT INTO job_subscribers (fingerprint, channel, added_at) VALUES (?, ?, ?)
             ON CONFLICT (fingerprint, channel) DO NOTHING`,
			fingerprint,
			channel,
			formatTime(time.Now()),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("add subscriber: %w", err)
	}
	return nil
}

// RemoveSubscriber unregisters a delivery channel. Removing an unknown
// channel is not an error.
func (s *Store) RemoveSubscriber(ctx context.Context, fingerprint, channel string) error {
	if _, err := s.execWithRetry(
		ctx,
		`DELETE FROM job_subscribers WHERE fingerprint = ? AND channel = ?`,
		fingerprint,
		channel,
	); err != nil {
		return fmt.Errorf("remove subscriber: %w", err)
	}
	return nil
}

// Subscribers lists the channels registered for fingerprint in registration order.
func (s *Store) Subscribers(ctx context.Context, fingerprint string) ([]string, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT channel FROM job_subscribers WHERE fingerprint = ? ORDER BY added_at, channel`,
		fingerprint,
	)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var channel string
		if err := rows.Scan(&channel); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		channels = append(channels, channel)
	}
	return channels, rows.Err()
}
