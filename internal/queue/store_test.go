package queue_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"fsoi/internal/queue"
	"fsoi/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health %+v", health)
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", health.SchemaVersion)
	}
	if store.Path() != cfg.QueueDBPath() {
		t.Fatalf("expected db at %s, got %s", cfg.QueueDBPath(), store.Path())
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := store.UpdateStatus(ctx, "fp", queue.StatusRunning, "working", 10); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	store.Close()

	reopened := testsupport.MustOpenStore(t, cfg)
	job, err := reopened.Get(ctx, "fp")
	if err != nil || job == nil {
		t.Fatalf("expected persisted job, got %v %v", job, err)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	job, err := store.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil job, got %+v", job)
	}
}

func TestUpdateStatusUpserts(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.UpdateStatus(ctx, "fp", queue.StatusRunning, "Accessing data objects", 0); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.UpdateStatus(ctx, "fp", queue.StatusRunning, "Processing bulk stats for GMAO", 20); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	job, err := store.Get(ctx, "fp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != queue.StatusRunning || job.Progress != 20 || job.Message != "Processing bulk stats for GMAO" {
		t.Fatalf("unexpected job %+v", job)
	}
	if job.FinishedAt != nil {
		t.Fatal("running job should not have finished_at")
	}

	if err := store.UpdateStatus(ctx, "fp", queue.StatusSuccess, "Done.", 150); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	job, _ = store.Get(ctx, "fp")
	if job.Progress != 100 || job.FinishedAt == nil {
		t.Fatalf("expected clamped progress and finished time, got %+v", job)
	}
	if err := store.UpdateStatus(ctx, "", queue.StatusRunning, "x", 0); err == nil {
		t.Fatal("expected error for empty fingerprint")
	}
}

func TestQueuedWriteKeepsClaimedJobRunning(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.MustEnqueue(t, store, "fp", `{}`)

	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v %v", claimed, err)
	}
	if err := store.UpdateStatus(ctx, "fp", queue.StatusRunning, "Accessing data objects", 5); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.UpdateStatus(ctx, "fp", queue.StatusPending, queue.QueuedMessage, 0); err != nil {
		t.Fatalf("UpdateStatus pending: %v", err)
	}

	job, err := store.Get(ctx, "fp")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if job.Status != queue.StatusRunning || job.Progress != 5 || job.Message != "Accessing data objects" {
		t.Fatalf("queued write replaced running job: %+v", job)
	}
	if again, err := store.ClaimNext(ctx); err != nil || again != nil {
		t.Fatalf("running job was claimable again: %+v %v", again, err)
	}

	// Finished jobs may still be reset to PENDING.
	if err := store.UpdateStatus(ctx, "fp", queue.StatusSuccess, "Done.", 100); err != nil {
		t.Fatalf("UpdateStatus success: %v", err)
	}
	if err := store.UpdateStatus(ctx, "fp", queue.StatusPending, queue.QueuedMessage, 0); err != nil {
		t.Fatalf("UpdateStatus pending: %v", err)
	}
	if job, _ := store.Get(ctx, "fp"); job.Status != queue.StatusPending || job.Progress != 0 {
		t.Fatalf("expected finished job to be re-queued, got %+v", job)
	}
}

func TestEnqueueDeduplicatesActiveJobs(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	first, dedup, err := store.Enqueue(ctx, "fp", `{"a":1}`, "ref-1")
	if err != nil || dedup {
		t.Fatalf("first enqueue: dedup=%v err=%v", dedup, err)
	}
	if first.Status != queue.StatusPending || first.Message != queue.QueuedMessage || first.ReferenceID != "ref-1" {
		t.Fatalf("unexpected job %+v", first)
	}

	second, dedup, err := store.Enqueue(ctx, "fp", `{"a":2}`, "ref-2")
	if err != nil || !dedup {
		t.Fatalf("second enqueue: dedup=%v err=%v", dedup, err)
	}
	if second.RequestJSON != `{"a":1}` || second.ReferenceID != "ref-1" {
		t.Fatalf("deduplicated job should be unchanged, got %+v", second)
	}

	if err := store.SetResult(ctx, "fp", queue.StatusSuccess, "Done.", 100, []byte(`{"keys":[]}`)); err != nil {
		t.Fatalf("SetResult: %v", err)
	}
	requeued, dedup, err := store.Enqueue(ctx, "fp", `{"a":3}`, "ref-3")
	if err != nil || dedup {
		t.Fatalf("requeue: dedup=%v err=%v", dedup, err)
	}
	if requeued.Status != queue.StatusPending || requeued.ResponseJSON != "" || requeued.Progress != 0 {
		t.Fatalf("expected reset job, got %+v", requeued)
	}
}

func TestClaimNextTakesOldestPending(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "second-in-name-order", "{}")
	time.Sleep(2 * time.Millisecond)
	testsupport.MustEnqueue(t, store, "a-later", "{}")

	job, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if job == nil || job.Fingerprint != "second-in-name-order" {
		t.Fatalf("expected oldest job, got %+v", job)
	}
	if job.Status != queue.StatusRunning || job.StartedAt == nil || job.LastHeartbeat == nil {
		t.Fatalf("expected claimed job to be running with heartbeat, got %+v", job)
	}

	next, err := store.ClaimNext(ctx)
	if err != nil || next == nil || next.Fingerprint != "a-later" {
		t.Fatalf("expected second job, got %+v %v", next, err)
	}
	none, err := store.ClaimNext(ctx)
	if err != nil || none != nil {
		t.Fatalf("expected empty queue, got %+v %v", none, err)
	}
}

func TestReclaimStaleFailsExpiredJobs(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "fp", "{}")
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}

	reclaimed, err := store.ReclaimStale(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if len(reclaimed) != 0 {
		t.Fatalf("fresh heartbeat should not be reclaimed, got %v", reclaimed)
	}

	reclaimed, err = store.ReclaimStale(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0] != "fp" {
		t.Fatalf("expected fp reclaimed, got %v", reclaimed)
	}
	job, _ := store.Get(ctx, "fp")
	if job.Status != queue.StatusFail || job.Message != queue.StaleFailureMessage || job.Progress != 0 {
		t.Fatalf("unexpected reclaimed job %+v", job)
	}
}

func TestFailRunningAtStartup(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "running", "{}")
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	testsupport.MustEnqueue(t, store, "pending", "{}")

	failed, err := store.FailRunning(ctx, "Daemon restarted")
	if err != nil {
		t.Fatalf("FailRunning: %v", err)
	}
	if len(failed) != 1 || failed[0] != "running" {
		t.Fatalf("expected only running job failed, got %v", failed)
	}
	pending, _ := store.Get(ctx, "pending")
	if pending.Status != queue.StatusPending {
		t.Fatalf("pending job should be untouched, got %s", pending.Status)
	}
}

func TestHeartbeatOnlyTouchesRunningJobs(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	testsupport.MustEnqueue(t, store, "fp", "{}")
	if err := store.UpdateHeartbeat(ctx, "fp"); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}
	job, _ := store.Get(ctx, "fp")
	if job.LastHeartbeat != nil {
		t.Fatal("pending job should not receive a heartbeat")
	}
}

func TestSubscribers(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	if err := store.UpdateStatus(ctx, "fp", queue.StatusPending, "", 0); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	for _, ch := range []string{"ws:1", "https://example.test/hook", "ws:1"} {
		if err := store.AddSubscriber(ctx, "fp", ch); err != nil {
			t.Fatalf("AddSubscriber %s: %v", ch, err)
		}
	}
	job, _ := store.Get(ctx, "fp")
	if len(job.Subscribers) != 2 || !job.HasSubscriber("ws:1") {
		t.Fatalf("unexpected subscribers %v", job.Subscribers)
	}
	if rec := job.Record(); rec.Status != queue.StatusPending {
		t.Fatalf("unexpected record %+v", rec)
	}

	if err := store.RemoveSubscriber(ctx, "fp", "ws:1"); err != nil {
		t.Fatalf("RemoveSubscriber: %v", err)
	}
	if err := store.RemoveSubscriber(ctx, "fp", "ws:unknown"); err != nil {
		t.Fatalf("RemoveSubscriber unknown: %v", err)
	}
	job, _ = store.Get(ctx, "fp")
	if len(job.Subscribers) != 1 || job.Subscribers[0] != "https://example.test/hook" {
		t.Fatalf("unexpected subscribers after removal %v", job.Subscribers)
	}
	if err := store.AddSubscriber(ctx, "absent", "ws:2"); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("expected not found subscribing to a missing record, got %v", err)
	}
}

func TestListStatsAndClear(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(store.UpdateStatus(ctx, "ok", queue.StatusSuccess, "Done.", 100))
	must(store.UpdateStatus(ctx, "bad", queue.StatusFail, "Failed to process request", 40))
	testsupport.MustEnqueue(t, store, "queued", "{}")

	all, err := store.List(ctx)
	must(err)
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}
	failed, err := store.List(ctx, queue.StatusFail)
	must(err)
	if len(failed) != 1 || failed[0].Fingerprint != "bad" {
		t.Fatalf("unexpected failed list %+v", failed)
	}

	health, err := store.Health(ctx)
	must(err)
	if health.Total != 3 || health.Pending != 1 || health.Success != 1 || health.Failed != 1 {
		t.Fatalf("unexpected health %+v", health)
	}

	removed, err := store.Clear(ctx)
	must(err)
	if removed != 2 {
		t.Fatalf("expected 2 cleared, got %d", removed)
	}
	stats, err := store.Stats(ctx)
	must(err)
	if stats[queue.StatusPending] != 1 || len(stats) != 1 {
		t.Fatalf("unexpected stats %v", stats)
	}
}

func TestSchemaMismatchIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	store.Close()

	raw, err := sql.Open("sqlite", cfg.QueueDBPath())
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := raw.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	raw.Close()

	if _, err := queue.OpenPath(cfg.QueueDBPath()); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := queue.ParseStatus(" running "); !ok || s != queue.StatusRunning {
		t.Fatalf("expected RUNNING, got %q %v", s, ok)
	}
	if _, ok := queue.ParseStatus("done"); ok {
		t.Fatal("unexpected status accepted")
	}
	if !queue.StatusFail.IsTerminal() || queue.StatusPending.IsTerminal() || !queue.StatusRunning.IsActive() {
		t.Fatal("unexpected status classification")
	}
}
