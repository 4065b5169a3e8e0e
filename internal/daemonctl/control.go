package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"fsoi/internal/api"
)

// File names the daemon keeps in its log directory.
const (
	PIDFileName  = "fsoi.pid"
	LockFileName = "fsoi.lock"
)

const pollInterval = 200 * time.Millisecond

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StatusClient reports daemon status over the API.
type StatusClient interface {
	Status(ctx context.Context) (api.DaemonStatus, error)
}

// LaunchOptions controls how a detached daemon is started.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

// StartResult reports whether Start had to launch a process.
type StartResult struct {
	Launched bool
	PID      int
}

// StopResult captures the stop outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// PIDPath returns the pid file inside logDir.
func PIDPath(logDir string) string {
	return filepath.Join(logDir, PIDFileName)
}

// LockPath returns the single-instance lock file inside logDir.
func LockPath(logDir string) string {
	return filepath.Join(logDir, LockFileName)
}

// Launch starts `<executable> daemon` detached from the calling session.
func Launch(executable string, opts LaunchOptions) error {
	if strings.TrimSpace(executable) == "" {
		return errors.New("resolve executable: executable path is empty")
	}
	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}
	proc := exec.Command(executable, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForAPI polls the status endpoint until it answers or timeout elapses.
func WaitForAPI(ctx context.Context, client StatusClient, timeout time.Duration) (api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		status, err := client.Status(ctx)
		if err == nil {
			return status, nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return api.DaemonStatus{}, fmt.Errorf("daemon failed to start: %w", lastErr)
		}
		select {
		case <-ctx.Done():
			return api.DaemonStatus{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// EnsureStarted launches the daemon unless its API already answers.
func EnsureStarted(ctx context.Context, client StatusClient, executable string, opts LaunchOptions, timeout time.Duration) (StartResult, error) {
	if status, err := client.Status(ctx); err == nil {
		return StartResult{PID: status.PID}, nil
	}
	if err := Launch(executable, opts); err != nil {
		return StartResult{}, err
	}
	status, err := WaitForAPI(ctx, client, timeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{Launched: true, PID: status.PID}, nil
}

// Stop sends SIGTERM to the running daemon and waits up to grace for its API
// to disappear before killing the process.
func Stop(ctx context.Context, client StatusClient, logDir string, grace time.Duration) (StopResult, error) {
	status, err := client.Status(ctx)
	if err != nil {
		return StopResult{}, ErrDaemonNotRunning
	}
	pid := status.PID
	if pid <= 0 {
		pid, err = readPID(PIDPath(logDir))
		if err != nil {
			return StopResult{}, err
		}
	}
	if err := signal(pid, unix.SIGTERM); err != nil {
		return StopResult{PID: pid}, err
	}
	if waitForShutdown(ctx, client, grace) {
		return StopResult{PID: pid}, nil
	}
	killed, err := ForceKill(PIDPath(logDir), LockPath(logDir), pid)
	if err != nil {
		return StopResult{PID: pid}, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	return StopResult{PID: killed, ForcedKill: true}, nil
}

func waitForShutdown(ctx context.Context, client StatusClient, grace time.Duration) bool {
	deadline := time.Now().Add(grace)
	for time.Now().Before(deadline) {
		if _, err := client.Status(ctx); err != nil {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		}
	}
	return false
}

// ForceKill sends SIGKILL to the pid recorded in pidPath (or fallbackPID) and
// removes the pid and lock files.
func ForceKill(pidPath, lockPath string, fallbackPID int) (int, error) {
	pid := fallbackPID
	if recorded, err := readPID(pidPath); err == nil {
		pid = recorded
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", pidPath)
	}
	if err := signal(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return 0, err
	}
	if err := os.Remove(pidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", pidPath, err)
	}
	if lockPath != "" {
		_ = os.Remove(lockPath)
	}
	return pid, nil
}

func signal(pid int, sig unix.Signal) error {
	if pid == os.Getpid() {
		return fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, sig); err != nil {
		return fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid daemon pid file %q", path)
	}
	return pid, nil
}
