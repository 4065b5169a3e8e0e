package stage

import "fsoi/internal/deps"

// Health reports whether one stage command can be started.
type Health struct {
	Stage   string
	Command string
	Ready   bool
	Detail  string
}

// HealthCheck resolves every configured stage command on PATH.
func (r *CommandRunner) HealthCheck() []Health {
	statuses := deps.CheckBinaries(deps.StageRequirements(r.stages))
	out := make([]Health, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, Health{
			Stage:   status.Name,
			Command: status.Command,
			Ready:   status.Available,
			Detail:  status.Detail,
		})
	}
	return out
}
