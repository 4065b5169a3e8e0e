package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"fsoi/internal/api"
	"fsoi/internal/config"
	"fsoi/internal/logging"
	"fsoi/internal/queue"
	"fsoi/internal/services"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/requests", s.handleRequests)
	mux.HandleFunc("/api/requests/", s.handleRequest)
	mux.HandleFunc("/api/ws", s.handleWebsocket)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.log(), "api server error", "api_server_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "restart the daemon; check api_bind"),
			)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		StatusStore:  status.StatusStore,
		Subscribers:  status.Subscribers,
		Workflow:     api.FromStatusSummary(status.Workflow),
	})
}

func (s *apiServer) handleRequests(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleSubmit(w, r)
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodDelete:
		s.handleClear(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxRequestBody {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	result, err := s.daemon.Submit(r.Context(), body, r.URL.Query().Get("callback"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	code := http.StatusAccepted
	if result.Deduplicated {
		code = http.StatusOK
	}
	s.writeJSON(w, code, api.SubmitResponse{
		Fingerprint:  result.Job.Fingerprint,
		Status:       string(result.Job.Status),
		Deduplicated: result.Deduplicated,
		Subscribed:   result.Subscribed,
	})
}

func (s *apiServer) handleList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	for _, value := range r.URL.Query()["status"] {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := queue.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", value))
			return
		}
		statuses = append(statuses, status)
	}
	jobs, err := s.daemon.ListJobs(r.Context(), statuses)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) handleClear(w http.ResponseWriter, r *http.Request) {
	removed, err := s.daemon.ClearJobs(r.Context(), r.URL.Query().Get("scope"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ClearResponse{Removed: removed})
}

func (s *apiServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	fingerprint := strings.TrimPrefix(r.URL.Path, "/api/requests/")
	if fingerprint == "" || strings.Contains(fingerprint, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	job, record, err := s.daemon.Job(r.Context(), fingerprint)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if job == nil && record == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	dto := api.FromJob(job)
	if job == nil {
		dto.Fingerprint = fingerprint
	}
	s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.OverlayRecord(dto, record)})
}

// handleWebsocket registers the connection as a subscriber of one
// fingerprint, pushes the current record, and unsubscribes on disconnect.
func (s *apiServer) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.hub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "websocket subscriptions disabled")
		return
	}
	fingerprint := strings.TrimSpace(r.URL.Query().Get("hash"))
	if fingerprint == "" {
		s.writeError(w, http.StatusBadRequest, "hash query parameter is required")
		return
	}
	_, record, err := s.daemon.Job(r.Context(), fingerprint)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	channel, err := s.daemon.hub.Accept(w, r)
	if err != nil {
		// The upgrader has already replied to the client.
		s.log().Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	ctx := r.Context()
	logger := s.log().With(logging.String(logging.FieldFingerprint, fingerprint), logging.String("channel", channel))
	if err := s.daemon.Subscribe(ctx, fingerprint, channel); err != nil {
		logging.WarnWithContext(logger, "failed to register websocket subscriber", "subscribe_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check status store connectivity"),
			logging.String(logging.FieldImpact, "connection closed without updates"),
		)
		s.daemon.hub.Remove(channel)
		return
	}
	defer func() {
		if err := s.daemon.Unsubscribe(context.WithoutCancel(ctx), fingerprint, channel); err != nil {
			logging.WarnWithContext(logger, "failed to remove websocket subscriber", "unsubscribe_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "stale handles fail delivery and are harmless"),
				logging.String(logging.FieldImpact, "record keeps a dead subscriber"),
			)
		}
	}()

	if payload, err := json.Marshal(record.Record()); err == nil {
		if err := s.daemon.hub.Send(ctx, channel, string(payload)); err != nil {
			logger.Debug("initial record push failed", logging.Error(err))
		}
	}
	s.daemon.hub.Wait(ctx, channel)
}

func (s *apiServer) writeFailure(w http.ResponseWriter, err error) {
	if services.IsClientError(err) {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	logging.ErrorWithContext(s.log(), "api request failed", "api_request_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, services.Hint(err)),
	)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
