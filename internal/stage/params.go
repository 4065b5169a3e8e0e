package stage

import (
	"strconv"
	"strings"
)

// Stage names used in logs and health reports.
const (
	NameBulkStats = "bulk_stats"
	NameSummary   = "summary"
	NameCompare   = "compare"
)

// BulkStatsParams drives bulk statistics for one or more centers.
type BulkStatsParams struct {
	Centers   []string
	Norm      string
	RootDir   string
	BeginDate string
	EndDate   string
	Interval  int
}

// Args renders the parameters as command-line flags.
func (p BulkStatsParams) Args() []string {
	return []string{
		"--center", strings.Join(p.Centers, ","),
		"--norm", p.Norm,
		"--rootdir", p.RootDir,
		"--begin_date", p.BeginDate,
		"--end_date", p.EndDate,
		"--interval", strconv.Itoa(p.Interval),
	}
}

// SummaryParams drives the FSOI summary plots for a single center.
type SummaryParams struct {
	Center     string
	Norm       string
	RootDir    string
	Platforms  string
	Cycles     []string
	SaveFigure bool
}

// Args renders the parameters as command-line flags.
func (p SummaryParams) Args() []string {
	args := []string{
		"--center", p.Center,
		"--norm", p.Norm,
		"--rootdir", p.RootDir,
		"--platform", p.Platforms,
	}
	if p.SaveFigure {
		args = append(args, "--savefigure")
	}
	args = append(args, "--cycle")
	return append(args, p.Cycles...)
}

// CompareParams drives the cross-center comparison plots.
type CompareParams struct {
	RootDir    string
	Centers    []string
	Norm       string
	Cycles     []string
	SaveFigure bool
}

// Args renders the parameters as command-line flags.
func (p CompareParams) Args() []string {
	args := []string{"--rootdir", p.RootDir, "--centers"}
	args = append(args, p.Centers...)
	args = append(args, "--norm", p.Norm)
	if p.SaveFigure {
		args = append(args, "--savefigure")
	}
	args = append(args, "--cycle")
	return append(args, p.Cycles...)
}
