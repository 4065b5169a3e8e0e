package preflight

import (
	"context"
	"fmt"
	"strings"

	"fsoi/internal/config"
	"fsoi/internal/stage"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Probes carries the live collaborators checked by RunAll. Nil probes are
// reported as skipped.
type Probes struct {
	Objects BucketChecker
	Records Pinger
	Stages  StageChecker
}

// StageChecker reports whether the stage commands can be started.
type StageChecker interface {
	HealthCheck() []stage.Health
}

// minFreeBytes is the free space below which the work root check fails.
const minFreeBytes = 1 << 30

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config, probes Probes) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work root", cfg.Paths.WorkRoot),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckFreeSpace("Work root free space", cfg.Paths.WorkRoot, minFreeBytes),
	}
	results = append(results, CheckStages(probes.Stages)...)
	results = append(results,
		CheckBucket(ctx, "Data bucket", probes.Objects, cfg.Storage.DataBucket),
		CheckBucket(ctx, "Cache bucket", probes.Objects, cfg.Storage.CacheBucket),
		CheckStatusStore(ctx, cfg.StatusStore.Backend, probes.Records),
	)
	return results
}

// Failed returns the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// CheckStages turns each stage command's health into a result.
func CheckStages(stages StageChecker) []Result {
	if stages == nil {
		return []Result{{Name: "Stage commands", Detail: "stage runner unavailable"}}
	}
	var results []Result
	for _, health := range stages.HealthCheck() {
		name := fmt.Sprintf("Stage command (%s)", health.Stage)
		if health.Ready {
			results = append(results, Result{Name: name, Passed: true, Detail: health.Command})
			continue
		}
		detail := strings.TrimSpace(health.Detail)
		if detail == "" {
			detail = "unavailable"
		}
		results = append(results, Result{Name: name, Detail: detail})
	}
	return results
}
