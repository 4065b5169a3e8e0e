package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"fsoi/internal/preflight"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestJobStatusKind(t *testing.T) {
	cases := map[string]statusKind{
		"SUCCESS": statusOK,
		"fail":    statusError,
		"RUNNING": statusWarn,
		"PENDING": statusInfo,
		"":        statusInfo,
	}
	for status, want := range cases {
		if got := jobStatusKind(status); got != want {
			t.Fatalf("jobStatusKind(%q) = %v, want %v", status, got, want)
		}
	}
}

func TestPreflightLines(t *testing.T) {
	lines := preflightLines([]preflight.Result{
		{Name: "Work root", Passed: true, Detail: "/tmp/work"},
		{Name: "Cache bucket", Passed: false, Detail: "bucket missing"},
	}, false)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[OK] /tmp/work") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "[ERROR] bucket missing") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}
