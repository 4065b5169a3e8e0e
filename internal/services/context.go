package services

import "context"

type contextKey string

const (
	fingerprintKey contextKey = "fingerprint"
	stageKey       contextKey = "stage"
	centerKey      contextKey = "center"
	laneKey        contextKey = "lane"
	requestIDKey   contextKey = "request_id"
)

// WithFingerprint annotates context with the job fingerprint.
func WithFingerprint(ctx context.Context, fingerprint string) context.Context {
	if fingerprint == "" {
		return ctx
	}
	return context.WithValue(ctx, fingerprintKey, fingerprint)
}

// FingerprintFromContext extracts the job fingerprint if present.
func FingerprintFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(fingerprintKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name.
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithCenter annotates context with the center currently being processed.
func WithCenter(ctx context.Context, center string) context.Context {
	if center == "" {
		return ctx
	}
	return context.WithValue(ctx, centerKey, center)
}

// CenterFromContext returns the center name if present.
func CenterFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(centerKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithLane annotates context with the workflow lane name.
func WithLane(ctx context.Context, lane string) context.Context {
	if lane == "" {
		return ctx
	}
	return context.WithValue(ctx, laneKey, lane)
}

// LaneFromContext returns the lane name if present.
func LaneFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(laneKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
