package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CurrentLogName is the pointer the daemon keeps at its active log file.
const CurrentLogName = "fsoi.log"

const (
	pollInterval = 250 * time.Millisecond
	maxLineBytes = 1 << 20
)

// Options controls a single Tail call.
type Options struct {
	// Offset < 0 returns the last Limit lines; otherwise reading resumes at
	// the byte offset.
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	// Fingerprint keeps only lines mentioning the request fingerprint.
	Fingerprint string
}

// Result carries matching lines and the offset to resume from.
type Result struct {
	Lines  []string
	Offset int64
}

// CurrentPath returns the daemon log pointer inside logDir.
func CurrentPath(logDir string) string {
	return filepath.Join(logDir, CurrentLogName)
}

// Tail reads lines from path according to opts. A missing file yields an
// empty result.
func Tail(ctx context.Context, path string, opts Options) (Result, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return Result{}, nil
	}
	if err != nil {
		return Result{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return Result{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	match := matcher(opts.Fingerprint)
	var res Result
	if opts.Offset < 0 {
		res, err = lastLines(path, opts.Limit, match)
	} else {
		offset := opts.Offset
		if offset > info.Size() {
			offset = info.Size()
		}
		res, err = readFrom(path, offset, match)
	}
	if err != nil || !opts.Follow || opts.Wait <= 0 || len(res.Lines) > 0 {
		return res, err
	}
	return waitForLines(ctx, path, res.Offset, opts.Wait, match)
}

func matcher(fingerprint string) func(string) bool {
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return func(string) bool { return true }
	}
	return func(line string) bool { return strings.Contains(line, fingerprint) }
}

func lastLines(path string, limit int, match func(string) bool) (Result, error) {
	file, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if limit <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return Result{}, fmt.Errorf("seek log file: %w", err)
		}
		return Result{Offset: end}, nil
	}

	ring := make([]string, limit)
	count, next := 0, 0
	end, err := scan(file, func(line string) {
		if !match(line) {
			return
		}
		ring[next] = line
		next = (next + 1) % limit
		if count < limit {
			count++
		}
	})
	if err != nil {
		return Result{}, err
	}

	lines := make([]string, count)
	start := 0
	if count == limit {
		start = next
	}
	for i := range lines {
		lines[i] = ring[(start+i)%limit]
	}
	return Result{Lines: lines, Offset: end}, nil
}

func readFrom(path string, offset int64, match func(string) bool) (Result, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Result{}, nil
	}
	if err != nil {
		return Result{Offset: offset}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return Result{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	var lines []string
	end, err := scan(file, func(line string) {
		if match(line) {
			lines = append(lines, line)
		}
	})
	if err != nil {
		return Result{Offset: offset}, err
	}
	return Result{Lines: lines, Offset: end}, nil
}

// scan feeds every complete line to fn and returns the file position after
// the last one.
func scan(file *os.File, fn func(string)) (int64, error) {
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read log file: %w", err)
	}
	end, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("determine log offset: %w", err)
	}
	return end, nil
}

func waitForLines(ctx context.Context, path string, offset int64, wait time.Duration, match func(string) bool) (Result, error) {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		res, err := readFrom(path, offset, match)
		if err != nil || len(res.Lines) > 0 {
			return res, err
		}
		offset = res.Offset
		if time.Now().After(deadline) {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-ticker.C:
		}
	}
}
