package queue

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a job status record.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFail    Status = "FAIL"
)

// StaleFailureMessage is recorded when a running job stops heartbeating.
const StaleFailureMessage = "Request processing failed"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusSuccess,
	StatusFail,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status. Matching ignores case.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToUpper(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if normalized == status {
			return status, true
		}
	}
	return "", false
}

// IsActive reports whether the status represents queued or in-flight work.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning
}

// IsTerminal reports whether the status is a final outcome.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFail
}

// Job is the persisted record for one fingerprint.
type Job struct {
	Fingerprint   string
	Status        Status
	Message       string
	Progress      int
	Subscribers   []string
	RequestJSON   string
	ResponseJSON  string
	ReferenceID   string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
	LastHeartbeat *time.Time
}

// Record is the broadcast-safe view of a job: subscriber handles and
// request payloads are never included.
type Record struct {
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// Record strips everything but status, message and progress.
func (j *Job) Record() Record {
	if j == nil {
		return Record{}
	}
	return Record{Status: j.Status, Message: j.Message, Progress: j.Progress}
}

// HasSubscriber reports whether channel is registered on the job.
func (j *Job) HasSubscriber(channel string) bool {
	if j == nil {
		return false
	}
	for _, sub := range j.Subscribers {
		if sub == channel {
			return true
		}
	}
	return false
}

// HealthSummary aggregates job counts per lifecycle state.
type HealthSummary struct {
	Total   int
	Pending int
	Running int
	Success int
	Failed  int
}

// DatabaseHealth captures diagnostic information about the job database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TableExists      bool
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}
