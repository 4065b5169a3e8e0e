package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fsoi/internal/api"
	"fsoi/internal/queue"
)

type jobsAPI interface {
	Stats(ctx context.Context) (map[string]int, error)
	List(ctx context.Context, statuses []string) ([]api.Job, error)
	Describe(ctx context.Context, fingerprint string) (*api.Job, error)
	Clear(ctx context.Context, scope string) (int64, error)
}

// --- HTTP adapter ---

type jobsHTTPAdapter struct {
	client *api.Client
}

func (a *jobsHTTPAdapter) Stats(ctx context.Context) (map[string]int, error) {
	status, err := a.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return status.Workflow.QueueStats, nil
}

func (a *jobsHTTPAdapter) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	return a.client.Jobs(ctx, statuses...)
}

func (a *jobsHTTPAdapter) Describe(ctx context.Context, fingerprint string) (*api.Job, error) {
	job, err := a.client.Job(ctx, fingerprint)
	if errors.Is(err, api.ErrJobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (a *jobsHTTPAdapter) Clear(ctx context.Context, scope string) (int64, error) {
	return a.client.Clear(ctx, scope)
}

// --- Store adapter ---

type jobsStoreAdapter struct {
	store *queue.Store
}

func (a *jobsStoreAdapter) Stats(ctx context.Context) (map[string]int, error) {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return api.MergeQueueStats(stats), nil
}

func (a *jobsStoreAdapter) List(ctx context.Context, statuses []string) ([]api.Job, error) {
	parsed, err := parseStatuses(statuses)
	if err != nil {
		return nil, err
	}
	jobs, err := a.store.List(ctx, parsed...)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(jobs), nil
}

func (a *jobsStoreAdapter) Describe(ctx context.Context, fingerprint string) (*api.Job, error) {
	job, err := a.store.Get(ctx, fingerprint)
	if err != nil || job == nil {
		return nil, err
	}
	dto := api.FromJob(job)
	return &dto, nil
}

func (a *jobsStoreAdapter) Clear(ctx context.Context, scope string) (int64, error) {
	switch scope {
	case "completed":
		return a.store.ClearCompleted(ctx)
	case "failed":
		return a.store.ClearFailed(ctx)
	case "all":
		return a.store.Clear(ctx)
	default:
		return 0, fmt.Errorf("unknown clear scope %q", scope)
	}
}

func parseStatuses(values []string) ([]queue.Status, error) {
	var out []queue.Status
	for _, value := range values {
		if strings.TrimSpace(value) == "" {
			continue
		}
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q (expected one of %s)", value, statusChoices())
		}
		out = append(out, status)
	}
	return out, nil
}

func statusChoices() string {
	names := make([]string, 0, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}
