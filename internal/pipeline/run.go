package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"fsoi/internal/fileutil"
	"fsoi/internal/logging"
	"fsoi/internal/queue"
	"fsoi/internal/request"
	"fsoi/internal/services"
	"fsoi/internal/stage"
	"fsoi/internal/stageexec"
	"fsoi/internal/staging"
)

// run is the state of a single invocation.
type run struct {
	e           *Executor
	ctx         context.Context
	logger      *slog.Logger
	req         *request.Request
	fingerprint string
	referenceID string
	root        string
	layout      staging.Layout
	acc         Accumulator
	progress    int
	step        int
	keys        []string
	released    bool
	skipLogged  bool
}

func (e *Executor) newRun(ctx context.Context, req *request.Request) *run {
	req = req.Clone()
	fingerprint := request.Fingerprint(req)
	referenceID := request.ReferenceID(req)
	ctx = services.WithFingerprint(ctx, fingerprint)
	ctx = services.WithRequestID(ctx, referenceID)
	root := e.workspaceRoot(req, fingerprint)
	step := 0
	if n := len(req.Centers); n > 0 {
		step = progressStageBudget / (n * 3)
	}
	return &run{
		e:           e,
		ctx:         ctx,
		logger:      logging.WithContext(ctx, e.logger),
		req:         req,
		fingerprint: fingerprint,
		referenceID: referenceID,
		root:        root,
		layout:      staging.NewLayout(root),
		step:        step,
	}
}

func (r *run) execute() error {
	r.logger.Info("request processing started",
		logging.String(logging.FieldEventType, "request_start"),
		logging.String("reference_id", r.referenceID),
		logging.Strings("centers", r.req.Centers),
		logging.String("root_dir", r.root),
	)

	if err := r.update(queue.StatusRunning, MessageAccessing); err != nil {
		return err
	}
	objects := r.fetch()
	r.advance(progressFetched)

	centers := r.activeCenters(objects)
	for _, center := range centers {
		if err := r.processCenter(center); err != nil {
			return err
		}
	}
	if err := r.compare(centers); err != nil {
		return err
	}

	r.release()
	return r.finish()
}

// proceed is the single skip decision: once any error has been recorded no
// further stage of the request runs.
func (r *run) proceed() bool {
	if !r.acc.HasErrors() {
		return true
	}
	if !r.skipLogged {
		r.skipLogged = true
		r.logger.Info("skipping remaining stages",
			logging.String(logging.FieldEventType, "stages_skipped"),
			logging.Strings("errors", r.acc.Errors()),
		)
	}
	return false
}

func (r *run) update(status queue.Status, message string) error {
	if _, err := r.e.notifier.UpdateAndBroadcast(r.ctx, r.fingerprint, status, message, r.progress); err != nil {
		return fmt.Errorf("update status %q: %w", message, err)
	}
	return nil
}

func (r *run) advance(delta int) {
	if delta > 0 {
		r.progress += delta
	}
}

func (r *run) fetch() []InputObject {
	objects, err := Inputs(r.req)
	if err != nil {
		r.acc.AddError(ErrorDownload)
		logging.ErrorWithContext(r.logger, "enumerate input objects", "fetch_failed", logging.Error(err))
		return objects
	}

	var missing []string
	fetched := 0
	for i := range objects {
		obj := &objects[i]
		local := filepath.Join(r.layout.Data, filepath.FromSlash(obj.Key))
		if err := fileutil.EnsureDir(filepath.Dir(local)); err != nil {
			r.acc.AddError(ErrorDownload)
			logging.ErrorWithContext(r.logger, "create data directory", "fetch_failed",
				logging.String("path", filepath.Dir(local)),
				logging.Error(err),
			)
			return objects
		}
		if fileutil.FileExists(local) {
			obj.Fetched = true
			fetched++
			continue
		}
		remote := obj.RemoteKey(r.e.objectPrefix)
		if err := r.e.objects.Download(r.ctx, r.e.dataBucket, remote, local); err != nil {
			missing = append(missing, obj.MissingMessage())
			logging.WarnWithContext(r.logger, "input object unavailable", "fetch_miss",
				logging.String("bucket", r.e.dataBucket),
				logging.String("key", remote),
				logging.String(logging.FieldImpact, "center statistics omit this analysis time"),
				logging.String(logging.FieldErrorHint, "verify the object exists in the configured bucket"),
				logging.Error(err),
			)
			continue
		}
		obj.Fetched = true
		fetched++
	}

	for _, msg := range missing {
		if fetched == 0 {
			r.acc.AddError(msg)
		} else {
			r.acc.AddWarning(msg)
		}
	}
	r.logger.Info("input objects fetched",
		logging.String(logging.FieldEventType, "fetch_complete"),
		logging.Int("expected", len(objects)),
		logging.Int("fetched", fetched),
	)
	return objects
}

// activeCenters drops centers without any fetched object. The request's own
// center list is never modified.
func (r *run) activeCenters(objects []InputObject) []string {
	order, counts := FetchedByCenter(objects)
	dropped := make(map[string]struct{})
	for _, center := range order {
		if counts[center] > 0 {
			continue
		}
		dropped[center] = struct{}{}
		r.acc.AddWarning(fmt.Sprintf(WarningNoData, center))
		logging.WarnWithContext(r.logger, "center has no data", "center_dropped",
			logging.String(logging.FieldCenter, center),
			logging.String(logging.FieldImpact, "center omitted from results"),
			logging.String(logging.FieldErrorHint, "check source data for the requested dates"),
		)
	}
	active := make([]string, 0, len(r.req.Centers))
	for _, center := range r.req.Centers {
		if _, ok := dropped[center]; !ok {
			active = append(active, center)
		}
	}
	return active
}

func (r *run) processCenter(center string) error {
	if r.proceed() {
		if _, err := r.e.workspace.Prepare(r.root, []string{center}); err != nil {
			r.acc.AddError(ErrorPrepare)
			logging.ErrorWithContext(r.logger, "prepare working directory", "workspace_prepare_failed",
				logging.String(logging.FieldCenter, center),
				logging.String(logging.FieldErrorHint, "remove files colliding with the workspace layout"),
				logging.Error(err),
			)
		}
	}

	if r.proceed() {
		if err := r.update(queue.StatusRunning, fmt.Sprintf(MessageBulkStats, center)); err != nil {
			return err
		}
		r.runStage(stage.NameBulkStats, center, ErrorBulkStats, func(ctx context.Context) error {
			return r.e.runner.BulkStats(ctx, stage.BulkStatsParams{
				Centers:   []string{center},
				Norm:      r.req.Norm,
				RootDir:   r.root,
				BeginDate: r.req.BeginDate(),
				EndDate:   r.req.FinalDate(),
				Interval:  r.req.Interval,
			})
		})
		r.advance(r.step)
	}

	if r.proceed() {
		if err := r.update(queue.StatusRunning, fmt.Sprintf(MessageSummary, center)); err != nil {
			return err
		}
		r.runStage(stage.NameSummary, center, ErrorSummary, func(ctx context.Context) error {
			return r.e.runner.Summary(ctx, stage.SummaryParams{
				Center:     center,
				Norm:       r.req.Norm,
				RootDir:    r.root,
				Platforms:  r.req.Platforms,
				Cycles:     append([]string(nil), r.req.Cycles...),
				SaveFigure: true,
			})
		})
		r.advance(r.step)
	}

	if r.proceed() {
		if err := r.update(queue.StatusRunning, fmt.Sprintf(MessageStoringImages, center)); err != nil {
			return err
		}
		keys, err := r.e.cache.StoreSummary(r.ctx, r.fingerprint, r.layout.Summary, []string{center}, r.req.Cycles)
		r.keys = append(r.keys, keys...)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			r.acc.AddError(ErrorNoPlots)
			logging.ErrorWithContext(r.logger, "no summary plots produced", "artifacts_missing",
				logging.String(logging.FieldCenter, center),
				logging.String(logging.FieldErrorHint, "inspect the summary stage output"),
			)
		}
		r.advance(r.step)
	}
	return nil
}

func (r *run) compare(centers []string) error {
	if !r.proceed() {
		return nil
	}
	if err := r.update(queue.StatusRunning, MessageComparing); err != nil {
		return err
	}
	ok := r.runStage(stage.NameCompare, "", ErrorCompare, func(ctx context.Context) error {
		return r.e.runner.Compare(ctx, stage.CompareParams{
			RootDir:    r.root,
			Centers:    append([]string(nil), centers...),
			Norm:       r.req.Norm,
			Cycles:     append([]string(nil), r.req.Cycles...),
			SaveFigure: true,
		})
	})
	r.advance(progressCompared)
	if !ok || !r.proceed() {
		return nil
	}

	if err := r.update(queue.StatusRunning, MessageStoringCompare); err != nil {
		return err
	}
	keys, err := r.e.cache.StoreCompare(r.ctx, r.fingerprint, r.layout.CompareFull, r.req.Cycles)
	r.keys = append(r.keys, keys...)
	if err != nil {
		return err
	}
	r.advance(progressCompareCached)
	return nil
}

func (r *run) runStage(name, center, failure string, fn func(context.Context) error) bool {
	return stageexec.Run(r.ctx, stageexec.Options{
		Logger:         r.e.logger,
		StageName:      name,
		Center:         center,
		Errors:         &r.acc,
		FailureMessage: failure,
	}, fn)
}

// release removes the workspace at most once per run.
func (r *run) release() {
	if r.released {
		return
	}
	r.released = true
	if err := r.e.workspace.Release(r.root); err != nil {
		r.acc.AddError(ErrorCleanup)
		hint := "remove the workspace manually"
		if errors.Is(err, staging.ErrUnsafeRoot) {
			hint = "set root_dir or paths.work_root to a dedicated directory"
		}
		logging.ErrorWithContext(r.logger, "release working directory", "workspace_release_failed",
			logging.String("root_dir", r.root),
			logging.String(logging.FieldErrorHint, hint),
			logging.Error(err),
		)
	}
}

func (r *run) finish() error {
	if !r.acc.HasErrors() {
		r.progress = 100
		if err := r.update(queue.StatusSuccess, MessageDone); err != nil {
			return err
		}
		r.logger.Info("request processing succeeded",
			logging.String(logging.FieldEventType, "request_success"),
			logging.Int("keys", len(r.keys)),
			logging.Int("warnings", len(r.acc.Warnings())),
		)
		return nil
	}
	if err := r.update(queue.StatusFail, MessageFailed); err != nil {
		return err
	}
	r.acc.AddError(fmt.Sprintf(ReferenceIDMessage, r.referenceID))
	logging.ErrorWithContext(r.logger, "request processing failed", "request_failure",
		logging.Strings("errors", r.acc.Errors()),
		logging.Strings("warnings", r.acc.Warnings()),
		logging.Int(logging.FieldProgress, r.progress),
	)
	return nil
}

func (r *run) result() Result {
	res := Result{
		Fingerprint: r.fingerprint,
		ReferenceID: r.referenceID,
		Progress:    r.progress,
	}
	if r.acc.HasErrors() {
		res.Status = queue.StatusFail
		res.Message = MessageFailed
		res.Response = request.Failure(r.fingerprint, r.acc.Errors(), r.acc.Warnings())
		return res
	}
	res.Status = queue.StatusSuccess
	res.Message = MessageDone
	res.Response = request.Success(r.fingerprint, r.keys, r.acc.Warnings())
	return res
}
