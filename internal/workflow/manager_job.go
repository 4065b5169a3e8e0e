package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"fsoi/internal/logging"
	"fsoi/internal/pipeline"
	"fsoi/internal/queue"
	"fsoi/internal/request"
	"fsoi/internal/services"
)

func (m *Manager) processJob(ctx context.Context, lane string, logger *slog.Logger, job *queue.Job) {
	jobCtx := services.WithFingerprint(ctx, job.Fingerprint)
	jobCtx = services.WithRequestID(jobCtx, job.ReferenceID)
	logger = logging.WithContext(jobCtx, logger)

	m.markActive(job.Fingerprint, lane)
	defer m.markInactive(job.Fingerprint)
	m.setLastJob(job)

	hbCtx, stopHeartbeat := context.WithCancel(jobCtx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.Fingerprint)

	result := m.execute(jobCtx, logger, job)

	stopHeartbeat()
	hbWG.Wait()

	payload, err := json.Marshal(result.Response)
	if err != nil {
		payload = nil
		logging.ErrorWithContext(logger, "encode job response", "response_encode_failed", logging.Error(err))
	}
	// The daemon context may already be cancelled; the result must still land.
	storeCtx := context.WithoutCancel(jobCtx)
	if err := m.store.SetResult(storeCtx, job.Fingerprint, result.Status, result.Message, result.Progress, payload); err != nil {
		m.setLastError(err)
		logging.ErrorWithContext(logger, "failed to persist job result", "result_persist_failed",
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.Error(err),
		)
		return
	}
	logger.Info("job finished",
		logging.String(logging.FieldEventType, "job_finished"),
		logging.String("status", string(result.Status)),
		logging.Int(logging.FieldProgress, result.Progress),
	)
}

// execute decodes the stored request and runs it in the job's workspace. A
// request that cannot be decoded fails like any other systemic error.
func (m *Manager) execute(ctx context.Context, logger *slog.Logger, job *queue.Job) pipeline.Result {
	req, err := request.DecodeBytes([]byte(job.RequestJSON))
	if err != nil {
		logging.ErrorWithContext(logger, "stored request is invalid", "request_decode_failed",
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.Error(err),
		)
		if _, nerr := m.notifier.UpdateAndBroadcast(ctx, job.Fingerprint, queue.StatusFail, pipeline.MessageSystemic, 0); nerr != nil {
			logger.Warn("failed to broadcast decode failure", logging.Error(nerr))
		}
		return pipeline.Result{
			Fingerprint: job.Fingerprint,
			ReferenceID: job.ReferenceID,
			Status:      queue.StatusFail,
			Message:     pipeline.MessageSystemic,
			Response: request.Failure(job.Fingerprint, []string{
				pipeline.MessageSystemic,
				fmt.Sprintf(pipeline.ReferenceIDMessage, job.ReferenceID),
			}, nil),
		}
	}
	req.RootDir = filepath.Join(m.cfg.Paths.WorkRoot, job.Fingerprint)
	if req.RequestID == "" {
		req.RequestID = job.ReferenceID
	}
	return m.processor.Handle(ctx, req)
}
