package daemonctl

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"testing"
	"time"

	"fsoi/internal/api"
)

// fakeClient answers with status until down is set.
type fakeClient struct {
	mu   sync.Mutex
	pid  int
	down bool
	// stopAfter flips down once Status has been called this many times.
	stopAfter int
	calls     int
}

func (f *fakeClient) Status(context.Context) (api.DaemonStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.stopAfter > 0 && f.calls > f.stopAfter {
		f.down = true
	}
	if f.down {
		return api.DaemonStatus{}, errors.New("connection refused")
	}
	return api.DaemonStatus{Running: true, PID: f.pid}, nil
}

func startSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})
	return cmd
}

func TestStopNotRunning(t *testing.T) {
	_, err := Stop(context.Background(), &fakeClient{down: true}, t.TempDir(), time.Second)
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestStopSignalsDaemon(t *testing.T) {
	sleeper := startSleeper(t)
	client := &fakeClient{pid: sleeper.Process.Pid, stopAfter: 1}

	result, err := Stop(context.Background(), client, t.TempDir(), 2*time.Second)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if result.PID != sleeper.Process.Pid || result.ForcedKill {
		t.Fatalf("unexpected result %+v", result)
	}
	state, _ := sleeper.Process.Wait()
	if state == nil || state.Success() {
		t.Fatalf("expected sleeper to be terminated, got %v", state)
	}
}

func TestForceKillUsesPIDFile(t *testing.T) {
	sleeper := startSleeper(t)
	dir := t.TempDir()
	if err := os.WriteFile(PIDPath(dir), []byte(strconv.Itoa(sleeper.Process.Pid)+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if err := os.WriteFile(LockPath(dir), nil, 0o644); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	pid, err := ForceKill(PIDPath(dir), LockPath(dir), 0)
	if err != nil {
		t.Fatalf("ForceKill: %v", err)
	}
	if pid != sleeper.Process.Pid {
		t.Fatalf("pid = %d, want %d", pid, sleeper.Process.Pid)
	}
	for _, path := range []string{PIDPath(dir), LockPath(dir)} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed, got %v", path, err)
		}
	}
}

func TestForceKillWithoutPID(t *testing.T) {
	dir := t.TempDir()
	if _, err := ForceKill(PIDPath(dir), "", 0); err == nil {
		t.Fatal("expected error without pid")
	}
}

func TestWaitForAPITimesOut(t *testing.T) {
	_, err := WaitForAPI(context.Background(), &fakeClient{down: true}, 300*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
}

func TestEnsureStartedAlreadyRunning(t *testing.T) {
	result, err := EnsureStarted(context.Background(), &fakeClient{pid: 42}, "", LaunchOptions{}, time.Second)
	if err != nil {
		t.Fatalf("EnsureStarted: %v", err)
	}
	if result.Launched || result.PID != 42 {
		t.Fatalf("unexpected result %+v", result)
	}
}
