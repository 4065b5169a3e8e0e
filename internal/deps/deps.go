package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"fsoi/internal/config"
)

// Requirement defines an external command fsoi relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// StageRequirements lists the configured stage commands.
func StageRequirements(cfg config.Stages) []Requirement {
	return []Requirement{
		{Name: "bulk_stats", Command: cfg.BulkStatsCommand, Description: "Computes per-center bulk statistics"},
		{Name: "summary", Command: cfg.SummaryCommand, Description: "Renders per-center FSOI summary plots"},
		{Name: "compare", Command: cfg.CompareCommand, Description: "Renders cross-center comparison plots"},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing returns the names of required dependencies that are unavailable.
func Missing(statuses []Status) []string {
	var names []string
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			names = append(names, status.Name)
		}
	}
	return names
}
