package api

import (
	"encoding/json"
	"time"

	"fsoi/internal/queue"
	"fsoi/internal/workflow"
)

// FromJob converts a job record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		Fingerprint: job.Fingerprint,
		Status:      string(job.Status),
		Message:     job.Message,
		Progress:    job.Progress,
		ReferenceID: job.ReferenceID,
		Subscribers: len(job.Subscribers),
		CreatedAt:   formatTime(job.CreatedAt),
		UpdatedAt:   formatTime(job.UpdatedAt),
		StartedAt:   formatTimePtr(job.StartedAt),
		FinishedAt:  formatTimePtr(job.FinishedAt),
	}
	if raw := job.RequestJSON; raw != "" && json.Valid([]byte(raw)) {
		dto.Request = json.RawMessage(raw)
	}
	if raw := job.ResponseJSON; raw != "" && json.Valid([]byte(raw)) {
		dto.Response = json.RawMessage(raw)
	}
	return dto
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// OverlayRecord replaces the status fields of dto with those of a record
// read from a separate status store.
func OverlayRecord(dto Job, record *queue.Job) Job {
	if record == nil {
		return dto
	}
	dto.Status = string(record.Status)
	dto.Message = record.Message
	dto.Progress = record.Progress
	dto.Subscribers = len(record.Subscribers)
	return dto
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	active := make([]ActiveJob, 0, len(summary.Active))
	for _, a := range summary.Active {
		active = append(active, ActiveJob{Fingerprint: a.Fingerprint, Lane: a.Lane})
	}
	return WorkflowStatus{
		Running:    summary.Running,
		Workers:    summary.Workers,
		Active:     active,
		QueueStats: MergeQueueStats(summary.QueueStats),
		LastError:  summary.LastError,
		LastJob:    summary.LastJob,
	}
}

// MergeQueueStats produces a string-keyed representation of queue stats.
func MergeQueueStats(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
