package testsupport

import (
	"context"
	"testing"

	"fsoi/internal/config"
	"fsoi/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustEnqueue queues a job for fingerprint and fails the test on error.
func MustEnqueue(t testing.TB, store *queue.Store, fingerprint, requestJSON string) *queue.Job {
	t.Helper()

	job, _, err := store.Enqueue(context.Background(), fingerprint, requestJSON, "ref-"+fingerprint)
	if err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return job
}
