package stage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"fsoi/internal/config"
	"fsoi/internal/services"
)

type recordingExecutor struct {
	binary string
	args   []string
	err    error
	block  bool
}

func (e *recordingExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	e.binary = binary
	e.args = append([]string(nil), args...)
	if onOutput != nil {
		onOutput("working")
	}
	if e.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return e.err
}

func testStages() config.Stages {
	return config.Stages{
		BulkStatsCommand: "fsoi-bulk",
		SummaryCommand:   "fsoi-summary",
		CompareCommand:   "fsoi-compare",
		Timeout:          60,
	}
}

func TestArgsBuilders(t *testing.T) {
	bulk := BulkStatsParams{Centers: []string{"GMAO"}, Norm: "dry", RootDir: "/w", BeginDate: "2019010100", EndDate: "2019010218", Interval: 6}
	wantBulk := []string{"--center", "GMAO", "--norm", "dry", "--rootdir", "/w", "--begin_date", "2019010100", "--end_date", "2019010218", "--interval", "6"}
	if got := bulk.Args(); !reflect.DeepEqual(got, wantBulk) {
		t.Fatalf("bulk args = %v", got)
	}

	summary := SummaryParams{Center: "NRL", Norm: "moist", RootDir: "/w", Platforms: "conv", Cycles: []string{"00", "12"}, SaveFigure: true}
	wantSummary := []string{"--center", "NRL", "--norm", "moist", "--rootdir", "/w", "--platform", "conv", "--savefigure", "--cycle", "00", "12"}
	if got := summary.Args(); !reflect.DeepEqual(got, wantSummary) {
		t.Fatalf("summary args = %v", got)
	}

	compare := CompareParams{RootDir: "/w", Centers: []string{"GMAO", "NRL"}, Norm: "dry", Cycles: []string{"06"}, SaveFigure: true}
	wantCompare := []string{"--rootdir", "/w", "--centers", "GMAO", "NRL", "--norm", "dry", "--savefigure", "--cycle", "06"}
	if got := compare.Args(); !reflect.DeepEqual(got, wantCompare) {
		t.Fatalf("compare args = %v", got)
	}
}

func TestNewCommandRunnerRequiresCommands(t *testing.T) {
	stages := testStages()
	stages.SummaryCommand = " "
	if _, err := NewCommandRunner(stages); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestBulkStatsRemovesStaleOutput(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "work", "GMAO", "dry", "bulk_stats.h5")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	exec := &recordingExecutor{}
	runner, err := NewCommandRunner(testStages(), WithExecutor(exec))
	if err != nil {
		t.Fatalf("NewCommandRunner: %v", err)
	}
	params := BulkStatsParams{Centers: []string{"GMAO"}, Norm: "dry", RootDir: root, BeginDate: "2019010100", EndDate: "2019010100", Interval: 6}
	if err := runner.BulkStats(context.Background(), params); err != nil {
		t.Fatalf("BulkStats: %v", err)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected stale bulk stats removed, stat err=%v", err)
	}
	if exec.binary != "fsoi-bulk" || !reflect.DeepEqual(exec.args, params.Args()) {
		t.Fatalf("unexpected invocation %s %v", exec.binary, exec.args)
	}
}

func TestRunnerClassifiesFailures(t *testing.T) {
	exec := &recordingExecutor{err: errors.New("exit status 1")}
	runner, err := NewCommandRunner(testStages(), WithExecutor(exec))
	if err != nil {
		t.Fatal(err)
	}
	err = runner.Summary(context.Background(), SummaryParams{Center: "GMAO", Cycles: []string{"00"}})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if exec.binary != "fsoi-summary" {
		t.Fatalf("unexpected binary %s", exec.binary)
	}
}

func TestRunnerEnforcesTimeout(t *testing.T) {
	exec := &recordingExecutor{block: true}
	runner, err := NewCommandRunner(testStages(), WithExecutor(exec))
	if err != nil {
		t.Fatal(err)
	}
	runner.timeout = 20 * time.Millisecond
	err = runner.Compare(context.Background(), CompareParams{Centers: []string{"GMAO"}, Cycles: []string{"00"}})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestCommandExecutorRunsProcess(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}
	var lines []string
	err := commandExecutor{}.Run(context.Background(), "/bin/sh", []string{"-c", "echo hello; echo oops 1>&2"}, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 output lines, got %v", lines)
	}
	if err := (commandExecutor{}).Run(context.Background(), "/bin/sh", []string{"-c", "exit 3"}, nil); err == nil {
		t.Fatal("expected non-zero exit to fail")
	}
}

func TestHealthCheckReportsMissingCommands(t *testing.T) {
	runner, err := NewCommandRunner(testStages())
	if err != nil {
		t.Fatal(err)
	}
	health := runner.HealthCheck()
	if len(health) != 3 {
		t.Fatalf("expected three stages, got %+v", health)
	}
	want := []string{NameBulkStats, NameSummary, NameCompare}
	for i, h := range health {
		if h.Stage != want[i] {
			t.Fatalf("expected stage %s at %d, got %s", want[i], i, h.Stage)
		}
		if h.Ready || !strings.Contains(h.Detail, h.Command) {
			t.Fatalf("expected %s to be unavailable with detail, got %+v", h.Stage, h)
		}
	}
}

func TestHealthCheckFindsStubbedCommands(t *testing.T) {
	dir := t.TempDir()
	stages := testStages()
	for _, cmd := range []*string{&stages.BulkStatsCommand, &stages.SummaryCommand, &stages.CompareCommand} {
		path := filepath.Join(dir, *cmd)
		if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatal(err)
		}
		*cmd = path
	}
	runner, err := NewCommandRunner(stages)
	if err != nil {
		t.Fatal(err)
	}
	for _, h := range runner.HealthCheck() {
		if !h.Ready || h.Detail != "" {
			t.Fatalf("expected %s to be ready, got %+v", h.Stage, h)
		}
	}
}
