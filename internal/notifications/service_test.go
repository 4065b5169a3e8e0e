package notifications_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"fsoi/internal/logging"
	"fsoi/internal/notifications"
	"fsoi/internal/queue"
)

type memoryStore struct {
	mu      sync.Mutex
	jobs    map[string]*queue.Job
	getErr  error
	updates []queue.Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{jobs: make(map[string]*queue.Job)}
}

func (m *memoryStore) UpdateStatus(_ context.Context, fp string, status queue.Status, message string, progress int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[fp]
	if !ok {
		job = &queue.Job{Fingerprint: fp}
		m.jobs[fp] = job
	}
	job.Status, job.Message, job.Progress = status, message, progress
	m.updates = append(m.updates, job.Record())
	return nil
}

func (m *memoryStore) Get(_ context.Context, fp string) (*queue.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	job, ok := m.jobs[fp]
	if !ok {
		return nil, nil
	}
	cp := *job
	cp.Subscribers = append([]string(nil), job.Subscribers...)
	return &cp, nil
}

type recordingSender struct {
	mu     sync.Mutex
	failOn map[string]bool
	sent   map[string][]string
}

func (r *recordingSender) Send(_ context.Context, channel, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[channel] {
		return errors.New("gone")
	}
	if r.sent == nil {
		r.sent = make(map[string][]string)
	}
	r.sent[channel] = append(r.sent[channel], text)
	return nil
}

func TestBroadcastCountsSuccessfulDeliveries(t *testing.T) {
	store := newMemoryStore()
	store.jobs["fp"] = &queue.Job{Fingerprint: "fp", Subscribers: []string{"ws:a", "ws:dead", "ws:b"}}
	sender := &recordingSender{failOn: map[string]bool{"ws:dead": true}}
	svc := notifications.NewService(store, sender, logging.NewNop())

	sent, err := svc.Broadcast(context.Background(), "fp", "hello")
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 deliveries, got %d", sent)
	}
	if got := sender.sent["ws:b"]; len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected delivery to ws:b: %v", got)
	}
}

func TestBroadcastSerializesStructuredMessages(t *testing.T) {
	store := newMemoryStore()
	store.jobs["fp"] = &queue.Job{Fingerprint: "fp", Subscribers: []string{"ws:a"}}
	sender := &recordingSender{}
	svc := notifications.NewService(store, sender, logging.NewNop())

	payload := map[string]any{"hash": "fp", "keys": []string{"fp/a.png"}}
	if _, err := svc.Broadcast(context.Background(), "fp", payload); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(sender.sent["ws:a"][0]), &decoded); err != nil {
		t.Fatalf("expected JSON text, got %q", sender.sent["ws:a"][0])
	}
	if decoded["hash"] != "fp" {
		t.Fatalf("unexpected payload %v", decoded)
	}
}

func TestBroadcastWithoutRecordOrSubscribers(t *testing.T) {
	store := newMemoryStore()
	store.jobs["empty"] = &queue.Job{Fingerprint: "empty"}
	svc := notifications.NewService(store, &recordingSender{}, logging.NewNop())

	for _, fp := range []string{"absent", "empty"} {
		sent, err := svc.Broadcast(context.Background(), fp, "x")
		if err != nil || sent != 0 {
			t.Fatalf("%s: expected 0 without error, got %d %v", fp, sent, err)
		}
	}
}

func TestBroadcastReturnsStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.getErr = errors.New("db down")
	svc := notifications.NewService(store, &recordingSender{}, logging.NewNop())
	if _, err := svc.Broadcast(context.Background(), "fp", "x"); err == nil {
		t.Fatal("expected store error to surface")
	}
}

func TestUpdateAndBroadcastStripsSubscribers(t *testing.T) {
	store := newMemoryStore()
	store.jobs["fp"] = &queue.Job{Fingerprint: "fp", Subscribers: []string{"ws:a", "https://hook.test/x"}}
	sender := &recordingSender{}
	svc := notifications.NewService(store, sender, logging.NewNop())

	sent, err := svc.UpdateAndBroadcast(context.Background(), "fp", queue.StatusRunning, "Processing bulk stats for GMAO", 5)
	if err != nil {
		t.Fatalf("UpdateAndBroadcast: %v", err)
	}
	if sent != 2 {
		t.Fatalf("expected 2 deliveries, got %d", sent)
	}
	text := sender.sent["ws:a"][0]
	if strings.Contains(text, "hook.test") || strings.Contains(text, "ws:a") {
		t.Fatalf("subscriber handles leaked into broadcast: %s", text)
	}
	var rec queue.Record
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	want := queue.Record{Status: queue.StatusRunning, Message: "Processing bulk stats for GMAO", Progress: 5}
	if rec != want {
		t.Fatalf("got %+v want %+v", rec, want)
	}
}

func TestUpdateAndBroadcastCreatesRecord(t *testing.T) {
	store := newMemoryStore()
	svc := notifications.NewService(store, &recordingSender{}, logging.NewNop())
	sent, err := svc.UpdateAndBroadcast(context.Background(), "new", queue.StatusRunning, "Accessing data objects", 0)
	if err != nil || sent != 0 {
		t.Fatalf("expected silent success, got %d %v", sent, err)
	}
	if job, _ := store.Get(context.Background(), "new"); job == nil || job.Status != queue.StatusRunning {
		t.Fatalf("expected record to be created, got %+v", job)
	}
}

func TestPublishSendsStoredRecordWithoutWriting(t *testing.T) {
	store := newMemoryStore()
	store.jobs["fp"] = &queue.Job{
		Fingerprint: "fp",
		Status:      queue.StatusRunning,
		Message:     "Accessing data objects",
		Progress:    5,
		Subscribers: []string{"ws:a"},
	}
	sender := &recordingSender{}
	svc := notifications.NewService(store, sender, logging.NewNop())

	sent, err := svc.Publish(context.Background(), "fp")
	if err != nil || sent != 1 {
		t.Fatalf("Publish = %d, %v", sent, err)
	}
	if len(store.updates) != 0 {
		t.Fatalf("Publish wrote to the store: %+v", store.updates)
	}
	var record queue.Record
	if err := json.Unmarshal([]byte(sender.sent["ws:a"][0]), &record); err != nil {
		t.Fatalf("decode broadcast: %v", err)
	}
	if record.Status != queue.StatusRunning || record.Progress != 5 {
		t.Fatalf("unexpected record %+v", record)
	}

	if sent, err := svc.Publish(context.Background(), "absent"); err != nil || sent != 0 {
		t.Fatalf("Publish absent = %d, %v", sent, err)
	}
}
