package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fsoi/internal/logs"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), logs.CurrentLogName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestTailLastLines(t *testing.T) {
	path := writeLog(t, "a\nb\nc\n")

	result, err := logs.Tail(context.Background(), path, logs.Options{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[0] != "b" || result.Lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
	if result.Offset != 6 {
		t.Fatalf("offset = %d, want 6", result.Offset)
	}
}

func TestTailFiltersByFingerprint(t *testing.T) {
	path := writeLog(t, "fingerprint=aaa start\nfingerprint=bbb start\nfingerprint=aaa done\n")

	result, err := logs.Tail(context.Background(), path, logs.Options{Offset: -1, Limit: 10, Fingerprint: "aaa"})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 2 || result.Lines[1] != "fingerprint=aaa done" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
}

func TestTailResumesFromOffset(t *testing.T) {
	path := writeLog(t, "one\ntwo\n")

	result, err := logs.Tail(context.Background(), path, logs.Options{Offset: 4})
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(result.Lines) != 1 || result.Lines[0] != "two" {
		t.Fatalf("unexpected lines: %#v", result.Lines)
	}
}

func TestTailMissingFile(t *testing.T) {
	result, err := logs.Tail(context.Background(), filepath.Join(t.TempDir(), "absent.log"), logs.Options{Offset: -1, Limit: 5})
	if err != nil || len(result.Lines) != 0 {
		t.Fatalf("expected empty result, got %+v, %v", result, err)
	}
}

func TestTailFollowWaits(t *testing.T) {
	path := writeLog(t, "start\n")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	initial, err := logs.Tail(ctx, path, logs.Options{Offset: -1, Limit: 1})
	if err != nil {
		t.Fatalf("initial Tail: %v", err)
	}

	done := make(chan logs.Result, 1)
	go func() {
		res, err := logs.Tail(ctx, path, logs.Options{Offset: initial.Offset, Follow: true, Wait: 5 * time.Second})
		if err != nil {
			t.Errorf("follow Tail: %v", err)
		}
		done <- res
	}()

	time.Sleep(200 * time.Millisecond)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString("later\n"); err != nil {
		t.Fatalf("append log: %v", err)
	}
	_ = f.Close()

	select {
	case res := <-done:
		if len(res.Lines) != 1 || res.Lines[0] != "later" {
			t.Fatalf("unexpected follow lines: %#v", res.Lines)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("follow did not return")
	}
}
