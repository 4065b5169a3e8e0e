package stage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fsoi/internal/config"
	"fsoi/internal/logging"
	"fsoi/internal/services"
)

// Runner executes the computation stages. Implementations return an error
// when the stage did not complete.
type Runner interface {
	BulkStats(ctx context.Context, params BulkStatsParams) error
	Summary(ctx context.Context, params SummaryParams) error
	Compare(ctx context.Context, params CompareParams) error
}

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures a CommandRunner.
type Option func(*CommandRunner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *CommandRunner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// WithLogger sets the logger used for stage output.
func WithLogger(logger *slog.Logger) Option {
	return func(r *CommandRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// CommandRunner runs each stage as an external command.
type CommandRunner struct {
	stages   config.Stages
	commands map[string]string
	timeout  time.Duration
	exec     Executor
	logger   *slog.Logger
}

// NewCommandRunner builds a runner from the stage section of the config.
func NewCommandRunner(cfg config.Stages, opts ...Option) (*CommandRunner, error) {
	commands := map[string]string{
		NameBulkStats: strings.TrimSpace(cfg.BulkStatsCommand),
		NameSummary:   strings.TrimSpace(cfg.SummaryCommand),
		NameCompare:   strings.TrimSpace(cfg.CompareCommand),
	}
	for name, binary := range commands {
		if binary == "" {
			return nil, services.Wrap(services.ErrConfiguration, name, "configure", "stage command is empty", nil)
		}
	}
	runner := &CommandRunner{
		stages:   cfg,
		commands: commands,
		timeout:  time.Duration(cfg.Timeout) * time.Second,
		exec:     commandExecutor{},
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner, nil
}

// BulkStats removes stale per-center bulk statistics and recomputes them.
func (r *CommandRunner) BulkStats(ctx context.Context, params BulkStatsParams) error {
	for _, center := range params.Centers {
		stale := filepath.Join(params.RootDir, "work", center, params.Norm, "bulk_stats.h5")
		if err := os.Remove(stale); err != nil && !errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrExternalTool, NameBulkStats, "remove stale output", stale, err)
		}
	}
	return r.run(ctx, NameBulkStats, params.Args())
}

// Summary renders the summary plots for one center.
func (r *CommandRunner) Summary(ctx context.Context, params SummaryParams) error {
	return r.run(ctx, NameSummary, params.Args())
}

// Compare renders the comparison plots across centers.
func (r *CommandRunner) Compare(ctx context.Context, params CompareParams) error {
	return r.run(ctx, NameCompare, params.Args())
}

func (r *CommandRunner) run(ctx context.Context, name string, args []string) error {
	binary := r.commands[name]
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("running stage command",
		logging.String("command", binary),
		logging.String("args", strings.Join(args, " ")),
	)
	err := r.exec.Run(runCtx, binary, args, func(line string) {
		logger.Debug("stage output", logging.String("line", line))
	})
	if err == nil {
		return nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, name, "run", fmt.Sprintf("%s exceeded %s", binary, r.timeout), err)
	}
	return services.Wrap(services.ErrExternalTool, name, "run", binary, err)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput == nil {
				continue
			}
			mu.Lock()
			onOutput(scanner.Text())
			mu.Unlock()
		}
	}
	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
