package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"fsoi/internal/artifacts"
	"fsoi/internal/logging"
	"fsoi/internal/queue"
	"fsoi/internal/request"
	"fsoi/internal/services"
	"fsoi/internal/stage"
	"fsoi/internal/staging"
)

// Client-facing status messages and error strings.
const (
	MessageAccessing      = "Accessing data objects"
	MessageBulkStats      = "Processing bulk stats for %s"
	MessageSummary        = "Processing FSOI summary for %s"
	MessageStoringImages  = "Storing images for %s"
	MessageComparing      = "Creating comparison plots"
	MessageStoringCompare = "Storing comparison plots"
	MessageDone           = "Done."
	MessageFailed         = "Failed to process request"
	MessageSystemic       = "Request processing failed"

	ErrorPrepare       = "Error preparing working directory"
	ErrorBulkStats     = "Error computing bulk statistics"
	ErrorSummary       = "Error computing FSOI summary"
	ErrorCompare       = "Error creating FSOI comparison plots"
	ErrorNoPlots       = "Failed to generate plots"
	ErrorDownload      = "Error downloading data object from S3"
	ErrorCleanup       = "Error cleaning up working directory"
	WarningNoData      = "No data available for %s"
	ReferenceIDMessage = "Reference ID: %s"
)

// Progress increments.
const (
	progressFetched       = 5
	progressCompared      = 3
	progressCompareCached = 1
	progressStageBudget   = 90
)

// Downloader fetches source objects.
type Downloader interface {
	Download(ctx context.Context, bucket, key, localPath string) error
}

// Notifier persists status updates and pushes messages to subscribers.
type Notifier interface {
	UpdateAndBroadcast(ctx context.Context, fingerprint string, status queue.Status, message string, progress int) (int, error)
	Broadcast(ctx context.Context, fingerprint string, message any) (int, error)
}

// Workspace prepares and releases request working directories.
type Workspace interface {
	Prepare(root string, centers []string) (staging.Layout, error)
	Release(root string) error
}

type filesystemWorkspace struct{}

func (filesystemWorkspace) Prepare(root string, centers []string) (staging.Layout, error) {
	return staging.Prepare(root, centers)
}

func (filesystemWorkspace) Release(root string) error {
	return staging.Release(root)
}

// Options wires an Executor to its collaborators.
type Options struct {
	Objects      Downloader
	Runner       stage.Runner
	Cache        *artifacts.Cache
	Notifier     Notifier
	Workspace    Workspace
	DataBucket   string
	ObjectPrefix string
	// WorkRoot hosts <WorkRoot>/<fingerprint> when a request carries no root_dir.
	WorkRoot string
	Logger   *slog.Logger
}

// Executor runs requests. It holds no per-request state and is safe for
// concurrent use.
type Executor struct {
	objects      Downloader
	runner       stage.Runner
	cache        *artifacts.Cache
	notifier     Notifier
	workspace    Workspace
	dataBucket   string
	objectPrefix string
	workRoot     string
	logger       *slog.Logger
}

// New validates opts and returns an Executor.
func New(opts Options) (*Executor, error) {
	switch {
	case opts.Objects == nil:
		return nil, errors.New("pipeline: object store is required")
	case opts.Runner == nil:
		return nil, errors.New("pipeline: stage runner is required")
	case opts.Cache == nil:
		return nil, errors.New("pipeline: artifact cache is required")
	case opts.Notifier == nil:
		return nil, errors.New("pipeline: notifier is required")
	}
	workspace := opts.Workspace
	if workspace == nil {
		workspace = filesystemWorkspace{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		objects:      opts.Objects,
		runner:       opts.Runner,
		cache:        opts.Cache,
		notifier:     opts.Notifier,
		workspace:    workspace,
		dataBucket:   opts.DataBucket,
		objectPrefix: strings.Trim(opts.ObjectPrefix, "/"),
		workRoot:     opts.WorkRoot,
		logger:       logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// Result is the terminal outcome of a request.
type Result struct {
	Fingerprint string
	ReferenceID string
	Status      queue.Status
	Message     string
	Progress    int
	Response    request.Response
}

// Handle processes req and pushes the final response to every subscriber.
// Failures outside the staged flow yield a generic FAIL at progress 0.
func (e *Executor) Handle(ctx context.Context, req *request.Request) Result {
	result, err := e.Process(ctx, req)
	if err != nil {
		return e.systemicFailure(ctx, result, err)
	}
	if _, err := e.notifier.Broadcast(ctx, result.Fingerprint, result.Response); err != nil {
		logging.WarnWithContext(e.logger, "final response broadcast failed", "response_broadcast_failed",
			logging.String(logging.FieldFingerprint, result.Fingerprint),
			logging.String(logging.FieldImpact, "subscribers must poll for the result"),
			logging.Error(err),
		)
	}
	return result
}

// Process runs the staged flow for req. A returned error means the flow was
// interrupted outside stage guards; Result still carries the fingerprint and
// reference id in that case.
func (e *Executor) Process(ctx context.Context, req *request.Request) (result Result, err error) {
	if req == nil {
		return Result{}, services.Wrap(services.ErrValidation, "pipeline", "process", "request is required", nil)
	}
	r := e.newRun(ctx, req)
	result = Result{Fingerprint: r.fingerprint, ReferenceID: r.referenceID, Progress: r.progress}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pipeline panic: %v", rec)
		}
		if err != nil {
			r.release()
			result.Progress = r.progress
		}
	}()

	if err := r.execute(); err != nil {
		return result, err
	}
	return r.result(), nil
}

func (e *Executor) systemicFailure(ctx context.Context, result Result, cause error) Result {
	ctx = services.WithFingerprint(ctx, result.Fingerprint)
	logger := logging.WithContext(ctx, e.logger)
	logging.ErrorWithContext(logger, "request processing failed", "request_systemic_failure",
		logging.String("reference_id", result.ReferenceID),
		logging.Error(cause),
	)
	if _, err := e.notifier.UpdateAndBroadcast(ctx, result.Fingerprint, queue.StatusFail, MessageSystemic, 0); err != nil {
		logging.ErrorWithContext(logger, "failure status update failed", "status_update_failed",
			logging.String(logging.FieldErrorHint, "check the status store"),
			logging.Error(err),
		)
	}
	result.Status = queue.StatusFail
	result.Message = MessageSystemic
	result.Progress = 0
	result.Response = request.Failure(result.Fingerprint, []string{
		MessageSystemic,
		fmt.Sprintf(ReferenceIDMessage, result.ReferenceID),
	}, nil)
	return result
}

func (e *Executor) workspaceRoot(req *request.Request, fingerprint string) string {
	if root := strings.TrimSpace(req.RootDir); root != "" {
		return root
	}
	return filepath.Join(e.workRoot, fingerprint)
}
