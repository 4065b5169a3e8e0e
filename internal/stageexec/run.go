package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fsoi/internal/logging"
	"fsoi/internal/services"
)

// Recorder collects the client-facing error strings of a single run.
type Recorder interface {
	AddError(message string)
}

// Options controls guarded stage execution.
type Options struct {
	Logger *slog.Logger
	// StageName labels log lines and the stage context field.
	StageName string
	// Center is the center being processed, empty for cross-center stages.
	Center string
	// Errors receives FailureMessage when the stage fails.
	Errors Recorder
	// FailureMessage is the error string reported to the client.
	FailureMessage string
}

// Run executes fn once, converting a returned error or panic into a recorded
// failure. It reports whether the stage completed.
func Run(ctx context.Context, opts Options, fn func(context.Context) error) (ok bool) {
	stageCtx := logging.WithStage(ctx, opts.StageName)
	if center := strings.TrimSpace(opts.Center); center != "" {
		stageCtx = services.WithCenter(stageCtx, center)
	}
	logger := logging.WithContext(stageCtx, opts.Logger)
	started := time.Now()

	logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))

	err := invoke(stageCtx, fn)
	if err != nil {
		handleFailure(logger, opts, err)
		return false
	}

	logger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Duration("duration", time.Since(started)),
	)
	return true
}

func invoke(ctx context.Context, fn func(context.Context) error) (err error) {
	if fn == nil {
		return errors.New("stage function unavailable")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func handleFailure(logger *slog.Logger, opts Options, stageErr error) {
	message := strings.TrimSpace(opts.FailureMessage)
	if message == "" {
		message = fmt.Sprintf("%s failed", opts.StageName)
	}
	if opts.Errors != nil {
		opts.Errors.AddError(message)
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String("error_message", message),
		logging.String(logging.FieldErrorHint, services.Hint(stageErr)),
		logging.Error(stageErr),
	)
}
