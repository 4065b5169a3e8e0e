package services_test

import (
	"context"
	"testing"

	"fsoi/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithFingerprint(ctx, "abc123")
	ctx = services.WithStage(ctx, "bulk_stats")
	ctx = services.WithCenter(ctx, "GMAO")
	ctx = services.WithRequestID(ctx, "req-123")

	if fp, ok := services.FingerprintFromContext(ctx); !ok || fp != "abc123" {
		t.Fatalf("unexpected fingerprint: %v %v", fp, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "bulk_stats" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if center, ok := services.CenterFromContext(ctx); !ok || center != "GMAO" {
		t.Fatalf("unexpected center: %v %v", center, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithCenter(ctx, "")
	ctx = services.WithFingerprint(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.CenterFromContext(ctx); ok {
		t.Fatal("expected no center value")
	}
	if _, ok := services.FingerprintFromContext(ctx); ok {
		t.Fatal("expected no fingerprint value")
	}
}
