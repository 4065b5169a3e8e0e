package logging

import (
	"context"
	"log/slog"

	"fsoi/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (stage_start, fetch_miss, ...).
	FieldEventType = "event_type"
	// FieldErrorHint carries the operator's next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldFingerprint is the job fingerprint.
	FieldFingerprint = "fingerprint"
	// FieldStage is the pipeline stage name.
	FieldStage = "stage"
	// FieldCenter is the center currently being processed.
	FieldCenter = "center"
	// FieldLane is the workflow lane name.
	FieldLane = "lane"
	// FieldCorrelationID is the request correlation identifier.
	FieldCorrelationID = "correlation_id"
	// FieldProgress is the job progress percentage.
	FieldProgress = "progress"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 5)
	if fp, ok := services.FingerprintFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldFingerprint, fp))
	}
	if stage, ok := services.StageFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldStage, stage))
	}
	if center, ok := services.CenterFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCenter, center))
	}
	if lane, ok := services.LaneFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldLane, lane))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}

// WithStage annotates ctx with a stage name so WithContext picks it up.
func WithStage(ctx context.Context, stage string) context.Context {
	return services.WithStage(ctx, stage)
}
