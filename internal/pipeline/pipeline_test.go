package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"

	"fsoi/internal/artifacts"
	"fsoi/internal/queue"
	"fsoi/internal/request"
	"fsoi/internal/stage"
	"fsoi/internal/staging"
	"fsoi/internal/storage"
)

type fakeObjects struct {
	mu        sync.Mutex
	available map[string]bool
	calls     []string
	panicOn   string
}

func (f *fakeObjects) Download(_ context.Context, bucket, key, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, bucket+"/"+key)
	if key == f.panicOn {
		panic("connection pool corrupted")
	}
	if !f.available[key] {
		return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, []byte("h5"), 0o644)
}

type stageCall struct {
	name    string
	centers []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []stageCall
	fail  map[string]string
	plots bool
}

func (f *fakeRunner) record(name string, centers []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stageCall{name: name, centers: centers})
}

func (f *fakeRunner) failFor(name, center string) error {
	if f.fail[name] == center {
		return errors.New("exit status 1")
	}
	return nil
}

func (f *fakeRunner) BulkStats(_ context.Context, p stage.BulkStatsParams) error {
	f.record(stage.NameBulkStats, p.Centers)
	return f.failFor(stage.NameBulkStats, p.Centers[0])
}

func (f *fakeRunner) Summary(_ context.Context, p stage.SummaryParams) error {
	f.record(stage.NameSummary, []string{p.Center})
	if err := f.failFor(stage.NameSummary, p.Center); err != nil {
		return err
	}
	if !f.plots {
		return nil
	}
	cycle := artifacts.CycleString(p.Cycles)
	for _, metric := range artifacts.Metrics {
		path := filepath.Join(p.RootDir, "plots", "summary", p.Center, fmt.Sprintf("%s_%s_%s.png", p.Center, metric, cycle))
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRunner) Compare(_ context.Context, p stage.CompareParams) error {
	f.record(stage.NameCompare, p.Centers)
	if err := f.failFor(stage.NameCompare, ""); err != nil {
		return err
	}
	cycle := artifacts.CycleString(p.Cycles)
	for _, metric := range artifacts.Metrics[:2] {
		path := filepath.Join(p.RootDir, "plots", "compare", "full", fmt.Sprintf("%s_%s.png", metric, cycle))
		if err := os.WriteFile(path, []byte("png"), 0o644); err != nil {
			return err
		}
	}
	return nil
}

type update struct {
	status   queue.Status
	message  string
	progress int
}

type fakeNotifier struct {
	mu         sync.Mutex
	updates    []update
	broadcasts []any
	failAfter  int
}

func (f *fakeNotifier) UpdateAndBroadcast(_ context.Context, _ string, status queue.Status, message string, progress int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter > 0 && len(f.updates) >= f.failAfter && status == queue.StatusRunning {
		return 0, errors.New("status store unavailable")
	}
	f.updates = append(f.updates, update{status, message, progress})
	return 1, nil
}

func (f *fakeNotifier) Broadcast(_ context.Context, _ string, message any) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, message)
	return 1, nil
}

type countingWorkspace struct {
	mu       sync.Mutex
	releases int
}

func (w *countingWorkspace) Prepare(root string, centers []string) (staging.Layout, error) {
	return staging.Prepare(root, centers)
}

func (w *countingWorkspace) Release(root string) error {
	w.mu.Lock()
	w.releases++
	w.mu.Unlock()
	return staging.Release(root)
}

type harness struct {
	objects   *fakeObjects
	runner    *fakeRunner
	notifier  *fakeNotifier
	workspace *countingWorkspace
	executor  *Executor
	root      string
}

func newHarness(t *testing.T, available ...string) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{
		objects:   &fakeObjects{available: make(map[string]bool)},
		runner:    &fakeRunner{plots: true},
		notifier:  &fakeNotifier{},
		workspace: &countingWorkspace{},
		root:      filepath.Join(base, "work", "job"),
	}
	for _, key := range available {
		h.objects.available[key] = true
	}
	cacheStore, err := storage.NewLocalStore(filepath.Join(base, "objects"))
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	h.executor, err = New(Options{
		Objects:      h.objects,
		Runner:       h.runner,
		Cache:        artifacts.NewCache(cacheStore, "fsoi-cache", nil),
		Notifier:     h.notifier,
		Workspace:    h.workspace,
		DataBucket:   "fsoi-data",
		ObjectPrefix: "data",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h
}

func sampleRequest(root string, centers ...string) *request.Request {
	return &request.Request{
		Centers:   centers,
		StartDate: "20190101",
		EndDate:   "20190101",
		Cycles:    request.CycleList{"00"},
		Norm:      "dry",
		Platforms: "conv",
		Interval:  6,
		RootDir:   root,
		RequestID: "ref-1",
	}
}

func assertMonotonic(t *testing.T, updates []update) {
	t.Helper()
	for i := 1; i < len(updates); i++ {
		if updates[i].progress < updates[i-1].progress {
			t.Fatalf("progress decreased at %d: %+v", i, updates)
		}
	}
}

func keysWithPrefix(keys []string, prefix string) int {
	n := 0
	for _, key := range keys {
		if strings.HasPrefix(key, prefix) {
			n++
		}
	}
	return n
}

func TestHandleSucceedsWithAllData(t *testing.T) {
	h := newHarness(t, "data/GMAO/GMAO.dry.2019010100.h5", "data/NRL/NRL.dry.2019010100.h5")
	req := sampleRequest(h.root, "GMAO", "NRL")

	result := h.executor.Handle(context.Background(), req)

	if result.Status != queue.StatusSuccess || result.Progress != 100 || result.Message != MessageDone {
		t.Fatalf("unexpected result %+v", result)
	}
	resp := result.Response
	if resp.Failed || len(resp.Errors) != 0 {
		t.Fatalf("unexpected errors %v", resp.Errors)
	}
	fp := request.Fingerprint(req)
	if resp.Hash != fp || result.Fingerprint != fp {
		t.Fatalf("hash mismatch %s vs %s", resp.Hash, fp)
	}
	if keysWithPrefix(resp.Keys, fp+"/GMAO_") != 6 || keysWithPrefix(resp.Keys, fp+"/NRL_") != 6 || keysWithPrefix(resp.Keys, fp+"/comparefull_") != 2 {
		t.Fatalf("unexpected keys %v", resp.Keys)
	}
	if !reflect.DeepEqual(req.Centers, []string{"GMAO", "NRL"}) {
		t.Fatalf("request centers mutated: %v", req.Centers)
	}
	if h.workspace.releases != 1 {
		t.Fatalf("expected one release, got %d", h.workspace.releases)
	}
	if _, err := os.Stat(h.root); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected workspace removed, stat err=%v", err)
	}

	wantMessages := []string{
		MessageAccessing,
		"Processing bulk stats for GMAO", "Processing FSOI summary for GMAO", "Storing images for GMAO",
		"Processing bulk stats for NRL", "Processing FSOI summary for NRL", "Storing images for NRL",
		MessageComparing, MessageStoringCompare, MessageDone,
	}
	var got []string
	for _, u := range h.notifier.updates {
		got = append(got, u.message)
	}
	if !reflect.DeepEqual(got, wantMessages) {
		t.Fatalf("messages = %v", got)
	}
	// step = 90 / (2*3) = 15
	wantProgress := []int{0, 5, 20, 35, 50, 65, 80, 95, 98, 100}
	for i, u := range h.notifier.updates {
		if u.progress != wantProgress[i] {
			t.Fatalf("update %d progress %d, want %d", i, u.progress, wantProgress[i])
		}
	}
	assertMonotonic(t, h.notifier.updates)
	if len(h.notifier.broadcasts) != 1 {
		t.Fatalf("expected final response broadcast, got %d", len(h.notifier.broadcasts))
	}
	if _, ok := h.notifier.broadcasts[0].(request.Response); !ok {
		t.Fatalf("expected broadcast of response, got %T", h.notifier.broadcasts[0])
	}
}

func TestHandleDropsCenterWithoutData(t *testing.T) {
	h := newHarness(t, "data/GMAO/GMAO.dry.2019010100.h5")
	req := sampleRequest(h.root, "GMAO", "NRL")

	result := h.executor.Handle(context.Background(), req)

	if result.Status != queue.StatusSuccess {
		t.Fatalf("expected success, got %+v", result)
	}
	warnings := result.Response.Warnings
	if !containsString(warnings, "No data available for NRL") || !containsString(warnings, "Missing data: NRL 20190101 00Z") {
		t.Fatalf("unexpected warnings %v", warnings)
	}
	fp := result.Fingerprint
	if keysWithPrefix(result.Response.Keys, fp+"/NRL_") != 0 || keysWithPrefix(result.Response.Keys, fp+"/GMAO_") != 6 {
		t.Fatalf("unexpected keys %v", result.Response.Keys)
	}
	last := h.runner.calls[len(h.runner.calls)-1]
	if last.name != stage.NameCompare || !reflect.DeepEqual(last.centers, []string{"GMAO"}) {
		t.Fatalf("expected compare over reduced centers, got %+v", last)
	}
	for _, call := range h.runner.calls {
		if containsString(call.centers, "NRL") {
			t.Fatalf("stage ran for dropped center: %+v", call)
		}
	}
	if !reflect.DeepEqual(req.Centers, []string{"GMAO", "NRL"}) {
		t.Fatalf("request centers mutated: %v", req.Centers)
	}
	assertMonotonic(t, h.notifier.updates)
}

func TestHandleFailsWhenNoDataExists(t *testing.T) {
	h := newHarness(t)
	req := sampleRequest(h.root, "GMAO", "NRL")

	result := h.executor.Handle(context.Background(), req)

	if result.Status != queue.StatusFail || result.Message != MessageFailed {
		t.Fatalf("expected failure, got %+v", result)
	}
	wantErrors := []string{"Missing data: GMAO 20190101 00Z", "Missing data: NRL 20190101 00Z", "Reference ID: ref-1"}
	if !reflect.DeepEqual(result.Response.Errors, wantErrors) {
		t.Fatalf("errors = %v", result.Response.Errors)
	}
	if len(result.Response.Keys) != 0 {
		t.Fatalf("expected no keys, got %v", result.Response.Keys)
	}
	if containsString(result.Response.Warnings, "Missing data: GMAO 20190101 00Z") {
		t.Fatalf("missing data should be errors only: %v", result.Response.Warnings)
	}
	if len(h.runner.calls) != 0 {
		t.Fatalf("no stage should run, got %+v", h.runner.calls)
	}
	lastUpdate := h.notifier.updates[len(h.notifier.updates)-1]
	if lastUpdate.status != queue.StatusFail || lastUpdate.progress != 5 || result.Progress != 5 {
		t.Fatalf("unexpected terminal update %+v (result progress %d)", lastUpdate, result.Progress)
	}
	if h.workspace.releases != 1 {
		t.Fatalf("expected one release, got %d", h.workspace.releases)
	}
}

func TestStageFailureSkipsRemainingCenters(t *testing.T) {
	h := newHarness(t,
		"data/GMAO/GMAO.dry.2019010100.h5",
		"data/NRL/NRL.dry.2019010100.h5",
		"data/JMA/JMA.dry.2019010100.h5",
	)
	h.runner.fail = map[string]string{stage.NameBulkStats: "GMAO"}
	req := sampleRequest(h.root, "GMAO", "NRL", "JMA")

	result := h.executor.Handle(context.Background(), req)

	if result.Status != queue.StatusFail {
		t.Fatalf("expected failure, got %+v", result)
	}
	if len(h.runner.calls) != 1 || h.runner.calls[0].name != stage.NameBulkStats {
		t.Fatalf("expected only the failing stage to run, got %+v", h.runner.calls)
	}
	if !reflect.DeepEqual(result.Response.Errors, []string{ErrorBulkStats, "Reference ID: ref-1"}) {
		t.Fatalf("errors = %v", result.Response.Errors)
	}
	// step = 90 / 9 = 10, applied once after the failed bulk stats stage.
	if result.Progress != 15 {
		t.Fatalf("expected progress 15, got %d", result.Progress)
	}
	if h.workspace.releases != 1 {
		t.Fatalf("expected one release, got %d", h.workspace.releases)
	}
}

func TestMissingPlotsFailRequest(t *testing.T) {
	h := newHarness(t, "data/GMAO/GMAO.dry.2019010100.h5")
	h.runner.plots = false
	result := h.executor.Handle(context.Background(), sampleRequest(h.root, "GMAO"))

	if result.Status != queue.StatusFail || !containsString(result.Response.Errors, ErrorNoPlots) {
		t.Fatalf("expected %q failure, got %+v", ErrorNoPlots, result.Response)
	}
	for _, call := range h.runner.calls {
		if call.name == stage.NameCompare {
			t.Fatal("compare must not run after a caching failure")
		}
	}
}

func TestPrepareCollisionIsRecorded(t *testing.T) {
	h := newHarness(t, "data/GMAO/GMAO.dry.2019010100.h5")
	if err := os.MkdirAll(h.root, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(h.root, "work"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := h.executor.Handle(context.Background(), sampleRequest(h.root, "GMAO"))

	if !reflect.DeepEqual(result.Response.Errors, []string{ErrorPrepare, "Reference ID: ref-1"}) {
		t.Fatalf("errors = %v", result.Response.Errors)
	}
	if len(h.runner.calls) != 0 {
		t.Fatalf("no stage should run, got %+v", h.runner.calls)
	}
	if h.workspace.releases != 1 {
		t.Fatalf("expected one release, got %d", h.workspace.releases)
	}
}

func TestExistingLocalInputCountsAsFetched(t *testing.T) {
	h := newHarness(t)
	local := filepath.Join(h.root, "data", "GMAO", "GMAO.dry.2019010100.h5")
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(local, []byte("h5"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := h.executor.Handle(context.Background(), sampleRequest(h.root, "GMAO"))

	if result.Status != queue.StatusSuccess {
		t.Fatalf("expected success, got %+v", result.Response)
	}
	if len(h.objects.calls) != 0 {
		t.Fatalf("expected no downloads, got %v", h.objects.calls)
	}
}

func TestStatusStoreFailureIsSystemic(t *testing.T) {
	h := newHarness(t, "data/GMAO/GMAO.dry.2019010100.h5")
	h.notifier.failAfter = 2
	result := h.executor.Handle(context.Background(), sampleRequest(h.root, "GMAO"))

	if result.Status != queue.StatusFail || result.Message != MessageSystemic || result.Progress != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if !reflect.DeepEqual(result.Response.Errors, []string{MessageSystemic, "Reference ID: ref-1"}) {
		t.Fatalf("errors = %v", result.Response.Errors)
	}
	last := h.notifier.updates[len(h.notifier.updates)-1]
	if last != (update{queue.StatusFail, MessageSystemic, 0}) {
		t.Fatalf("unexpected final update %+v", last)
	}
	if h.workspace.releases != 1 {
		t.Fatalf("expected one release, got %d", h.workspace.releases)
	}
}

func TestPanicOutsideStagesIsSystemic(t *testing.T) {
	h := newHarness(t)
	h.objects.panicOn = "data/GMAO/GMAO.dry.2019010100.h5"
	result := h.executor.Handle(context.Background(), sampleRequest(h.root, "GMAO"))

	if result.Message != MessageSystemic || result.Progress != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if h.workspace.releases != 1 {
		t.Fatalf("expected one release, got %d", h.workspace.releases)
	}
}

func TestInputsOrder(t *testing.T) {
	req := sampleRequest("/w", "GMAO", "NRL")
	req.EndDate = "20190102"
	req.Cycles = request.CycleList{"00", "12"}
	objects, err := Inputs(req)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	want := []string{
		"GMAO/GMAO.dry.2019010100.h5", "GMAO/GMAO.dry.2019010112.h5",
		"NRL/NRL.dry.2019010100.h5", "NRL/NRL.dry.2019010112.h5",
		"GMAO/GMAO.dry.2019010200.h5", "GMAO/GMAO.dry.2019010212.h5",
		"NRL/NRL.dry.2019010200.h5", "NRL/NRL.dry.2019010212.h5",
	}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v", keys)
	}
	if got := objects[0].RemoteKey("data"); got != "data/GMAO/GMAO.dry.2019010100.h5" {
		t.Fatalf("remote key = %s", got)
	}
}

func TestConcurrentRequestsAreIsolated(t *testing.T) {
	h := newHarness(t, "data/GMAO/GMAO.dry.2019010100.h5")
	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := sampleRequest(filepath.Join(h.root, fmt.Sprint(i)), "GMAO", "NRL")
			res, err := h.executor.Process(context.Background(), req)
			if err != nil {
				t.Errorf("Process: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()
	for _, res := range results {
		if len(res.Response.Warnings) != 2 {
			t.Fatalf("warnings leaked across runs: %v", res.Response.Warnings)
		}
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
