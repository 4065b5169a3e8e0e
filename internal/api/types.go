package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a job record in a transport-friendly format.
type Job struct {
	Fingerprint string          `json:"hash"`
	Status      string          `json:"status"`
	Message     string          `json:"message"`
	Progress    int             `json:"progress"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Subscribers int             `json:"subscribers"`
	CreatedAt   string          `json:"created_at,omitempty"`
	UpdatedAt   string          `json:"updated_at,omitempty"`
	StartedAt   string          `json:"started_at,omitempty"`
	FinishedAt  string          `json:"finished_at,omitempty"`
	Request     json.RawMessage `json:"request,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// SubmitResponse is returned by POST /api/requests.
type SubmitResponse struct {
	Fingerprint  string `json:"hash"`
	Status       string `json:"status"`
	Deduplicated bool   `json:"deduplicated"`
	Subscribed   bool   `json:"subscribed"`
}

// ClearResponse reports how many jobs a DELETE /api/requests removed.
type ClearResponse struct {
	Removed int64 `json:"removed"`
}

// ActiveJob names a job held by a workflow lane.
type ActiveJob struct {
	Fingerprint string `json:"hash"`
	Lane        string `json:"lane"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	Workers    int            `json:"workers"`
	Active     []ActiveJob    `json:"active"`
	QueueStats map[string]int `json:"queue_stats"`
	LastError  string         `json:"last_error,omitempty"`
	LastJob    string         `json:"last_job,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	QueueDBPath  string         `json:"queue_db_path"`
	LockFilePath string         `json:"lock_file_path"`
	StatusStore  string         `json:"status_store"`
	Subscribers  int            `json:"websocket_subscribers"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
