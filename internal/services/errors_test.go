package services_test

import (
	"errors"
	"strings"
	"testing"

	"fsoi/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "summary", "run", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"summary", "run", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsClientError(t *testing.T) {
	if !services.IsClientError(services.Wrap(services.ErrValidation, "request", "decode", "bad", nil)) {
		t.Fatal("expected validation error to be a client error")
	}
	if services.IsClientError(services.Wrap(services.ErrExternalTool, "compare", "run", "exit 1", nil)) {
		t.Fatal("expected external tool error to be a server error")
	}
	if services.Hint(nil) != "" {
		t.Fatal("expected empty hint for nil error")
	}
}
