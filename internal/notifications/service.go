package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"fsoi/internal/logging"
	"fsoi/internal/queue"
)

// Sender delivers one text message to one subscriber channel.
type Sender interface {
	Send(ctx context.Context, channel, text string) error
}

// StatusStore is the slice of the job status store the fan-out needs.
type StatusStore interface {
	UpdateStatus(ctx context.Context, fingerprint string, status queue.Status, message string, progress int) error
	Get(ctx context.Context, fingerprint string) (*queue.Job, error)
}

// Service broadcasts messages to every subscriber of a job.
type Service struct {
	store  StatusStore
	sender Sender
	logger *slog.Logger
}

// NewService wires a status store and a sender.
func NewService(store StatusStore, sender Sender, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		sender: sender,
		logger: logging.NewComponentLogger(logger, "notifications"),
	}
}

// Broadcast sends message to each subscriber of fingerprint and returns the
// number of successful deliveries. Structured messages are JSON encoded. A
// missing record or an empty subscriber set yields 0 without error; only a
// status store failure is returned.
func (s *Service) Broadcast(ctx context.Context, fingerprint string, message any) (int, error) {
	job, err := s.store.Get(ctx, fingerprint)
	if err != nil {
		return 0, fmt.Errorf("load subscribers: %w", err)
	}
	text, err := encodeMessage(message)
	if err != nil {
		return 0, err
	}
	return s.deliver(ctx, job, text), nil
}

// UpdateAndBroadcast persists the status, reloads the record and broadcasts
// it with the subscriber list stripped.
func (s *Service) UpdateAndBroadcast(ctx context.Context, fingerprint string, status queue.Status, message string, progress int) (int, error) {
	if err := s.store.UpdateStatus(ctx, fingerprint, status, message, progress); err != nil {
		return 0, fmt.Errorf("update status: %w", err)
	}
	return s.Publish(ctx, fingerprint)
}

// Publish broadcasts the stored record for fingerprint as it is now, without
// writing it. A missing record yields 0 without error.
func (s *Service) Publish(ctx context.Context, fingerprint string) (int, error) {
	job, err := s.store.Get(ctx, fingerprint)
	if err != nil {
		return 0, fmt.Errorf("reload status: %w", err)
	}
	if job == nil {
		return 0, nil
	}
	text, err := encodeMessage(job.Record())
	if err != nil {
		return 0, err
	}
	return s.deliver(ctx, job, text), nil
}

func (s *Service) deliver(ctx context.Context, job *queue.Job, text string) int {
	if job == nil || len(job.Subscribers) == 0 || s.sender == nil {
		return 0
	}
	logger := logging.WithContext(ctx, s.logger)
	sent := 0
	for _, channel := range job.Subscribers {
		if err := s.sender.Send(ctx, channel, text); err != nil {
			logging.WarnWithContext(logger, "subscriber delivery failed", "broadcast_delivery_failed",
				logging.String(logging.FieldFingerprint, job.Fingerprint),
				logging.String("channel", channel),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "subscriber may have disconnected; it will miss this update"),
				logging.String(logging.FieldImpact, "one subscriber not notified"),
			)
			continue
		}
		sent++
	}
	logger.Debug("broadcast delivered",
		logging.String(logging.FieldEventType, "broadcast"),
		logging.String(logging.FieldFingerprint, job.Fingerprint),
		logging.Int("sent", sent),
		logging.Int("subscribers", len(job.Subscribers)),
	)
	return sent
}

func encodeMessage(message any) (string, error) {
	switch v := message.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode broadcast message: %w", err)
		}
		return string(data), nil
	}
}
