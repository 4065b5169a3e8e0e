package queue

import (
	"context"
	"fmt"

	"fsoi/internal/config"
)

// StatusStore is the record-level contract shared by the SQLite and Redis
// backends: status upserts, record reads and subscriber registration.
type StatusStore interface {
	UpdateStatus(ctx context.Context, fingerprint string, status Status, message string, progress int) error
	Get(ctx context.Context, fingerprint string) (*Job, error)
	AddSubscriber(ctx context.Context, fingerprint, channel string) error
	RemoveSubscriber(ctx context.Context, fingerprint, channel string) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ StatusStore = (*Store)(nil)
	_ StatusStore = (*RedisStore)(nil)
)

// OpenStatusStore returns the backend selected by status_store.backend. For
// the sqlite backend the returned store is the job database itself.
func OpenStatusStore(cfg *config.Config) (StatusStore, error) {
	switch cfg.StatusStore.Backend {
	case config.StatusBackendRedis:
		return OpenRedis(cfg)
	case config.StatusBackendSQLite, "":
		return Open(cfg)
	default:
		return nil, fmt.Errorf("unsupported status store backend %q", cfg.StatusStore.Backend)
	}
}
