package workflow

import (
	"context"
	"sort"

	"fsoi/internal/logging"
	"fsoi/internal/queue"
)

// ActiveJob names a job currently held by a lane.
type ActiveJob struct {
	Fingerprint string `json:"fingerprint"`
	Lane        string `json:"lane"`
}

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool                 `json:"running"`
	Workers    int                  `json:"workers"`
	Active     []ActiveJob          `json:"active"`
	LastError  string               `json:"last_error,omitempty"`
	LastJob    string               `json:"last_job,omitempty"`
	QueueStats map[queue.Status]int `json:"queue_stats"`
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{Running: m.running, Workers: m.workers}
	for fp, lane := range m.active {
		summary.Active = append(summary.Active, ActiveJob{Fingerprint: fp, Lane: lane})
	}
	if m.lastErr != nil {
		summary.LastError = m.lastErr.Error()
	}
	if m.lastJob != nil {
		summary.LastJob = m.lastJob.Fingerprint
	}
	m.mu.RUnlock()

	sort.Slice(summary.Active, func(i, j int) bool { return summary.Active[i].Lane < summary.Active[j].Lane })

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}
	summary.QueueStats = stats
	return summary
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		cp := *job
		m.lastJob = &cp
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}

func (m *Manager) markActive(fingerprint, lane string) {
	m.mu.Lock()
	m.active[fingerprint] = lane
	m.mu.Unlock()
}

func (m *Manager) markInactive(fingerprint string) {
	m.mu.Lock()
	delete(m.active, fingerprint)
	m.mu.Unlock()
}

func (m *Manager) activeSet() map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{}, len(m.active))
	for fp := range m.active {
		set[fp] = struct{}{}
	}
	return set
}
