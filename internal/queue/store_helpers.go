package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "fingerprint, status, message, progress, request_json, response_json, reference_id, created_at, updated_at, started_at, finished_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		fingerprint  string
		statusStr    string
		message      sql.NullString
		progress     sql.NullInt64
		requestJSON  sql.NullString
		responseJSON sql.NullString
		referenceID  sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		heartbeatRaw sql.NullString
	)
	if err := scanner.Scan(
		&fingerprint,
		&statusStr,
		&message,
		&progress,
		&requestJSON,
		&responseJSON,
		&referenceID,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		Fingerprint:   fingerprint,
		Status:        Status(statusStr),
		Message:       message.String,
		Progress:      int(progress.Int64),
		RequestJSON:   requestJSON.String,
		ResponseJSON:  responseJSON.String,
		ReferenceID:   referenceID.String,
		StartedAt:     parseNullableTime(startedRaw),
		FinishedAt:    parseNullableTime(finishedRaw),
		LastHeartbeat: parseNullableTime(heartbeatRaw),
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timestampLayout is fixed width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(value time.Time) string {
	return value.UTC().Format(timestampLayout)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func clampProgress(progress int) int {
	switch {
	case progress < 0:
		return 0
	case progress > 100:
		return 100
	default:
		return progress
	}
}
