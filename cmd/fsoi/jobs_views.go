package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"fsoi/internal/api"
)

const shortHashLength = 12

var jobListColumns = []column{
	{Header: "Hash"},
	{Header: "Status"},
	{Header: "Progress", Align: alignRight},
	{Header: "Message"},
	{Header: "Updated"},
}

var statusCaser = cases.Title(language.English)

func buildJobListRows(jobs []api.Job) [][]string {
	sorted := make([]api.Job, len(jobs))
	copy(sorted, jobs)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti := parseAPITime(sorted[i].CreatedAt)
		tj := parseAPITime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].Fingerprint < sorted[j].Fingerprint
		}
		return ti.After(tj)
	})

	rows := make([][]string, 0, len(sorted))
	for _, job := range sorted {
		rows = append(rows, []string{
			shortHash(job.Fingerprint),
			formatStatusLabel(job.Status),
			fmt.Sprintf("%d%%", job.Progress),
			job.Message,
			formatDisplayTime(job.UpdatedAt),
		})
	}
	return rows
}

func buildStatsRows(stats map[string]int) [][]string {
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func jobDetailLines(job api.Job) []string {
	lines := []string{
		fmt.Sprintf("Hash:        %s", job.Fingerprint),
		fmt.Sprintf("Status:      %s", formatStatusLabel(job.Status)),
		fmt.Sprintf("Progress:    %d%%", job.Progress),
		fmt.Sprintf("Message:     %s", job.Message),
	}
	if job.ReferenceID != "" {
		lines = append(lines, fmt.Sprintf("Reference:   %s", job.ReferenceID))
	}
	lines = append(lines, fmt.Sprintf("Subscribers: %d", job.Subscribers))
	for _, ts := range []struct{ label, value string }{
		{"Created", job.CreatedAt},
		{"Started", job.StartedAt},
		{"Finished", job.FinishedAt},
	} {
		if ts.value != "" {
			lines = append(lines, fmt.Sprintf("%-12s %s", ts.label+":", formatDisplayTime(ts.value)))
		}
	}
	return lines
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	return statusCaser.String(strings.ToLower(status))
}

func shortHash(fingerprint string) string {
	if len(fingerprint) <= shortHashLength {
		return fingerprint
	}
	return fingerprint[:shortHashLength]
}

func parseAPITime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatDisplayTime(value string) string {
	t := parseAPITime(value)
	if t.IsZero() {
		return value
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
