package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fsoi/internal/daemonrun"
	"fsoi/internal/preflight"
	"fsoi/internal/queue"
	"fsoi/internal/stage"
	"fsoi/internal/storage"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			lines := renderSectionHeader("Daemon", colorize)
			_, daemonStatus := ctx.reachableDaemon(cmd.Context())
			var stats map[string]int
			if daemonStatus != nil {
				lines = append(lines,
					renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", daemonStatus.PID), colorize),
					renderStatusLine("Status store", statusInfo, daemonStatus.StatusStore, colorize),
					renderStatusLine("Workers", statusInfo, fmt.Sprintf("%d (%d active)", daemonStatus.Workflow.Workers, len(daemonStatus.Workflow.Active)), colorize),
					renderStatusLine("Websocket subscribers", statusInfo, fmt.Sprintf("%d", daemonStatus.Subscribers), colorize),
				)
				for _, active := range daemonStatus.Workflow.Active {
					lines = append(lines, renderStatusLine("Lane "+active.Lane, statusWarn, shortHash(active.Fingerprint), colorize))
				}
				if daemonStatus.Workflow.LastError != "" {
					lines = append(lines, renderStatusLine("Last error", statusError, daemonStatus.Workflow.LastError, colorize))
				}
				stats = daemonStatus.Workflow.QueueStats
			} else {
				lines = append(lines, renderStatusLine("Daemon", statusError, "Not running", colorize))
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Preflight", colorize)...)
			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			var probes preflight.Probes
			if records, err := daemonrun.OpenRecords(cfg, store); err == nil {
				probes.Records = records
				if records != queue.StatusStore(store) {
					defer records.Close()
				}
			}
			if objects, err := storage.New(cfg); err == nil {
				probes.Objects = objects
			}
			if runner, err := stage.NewCommandRunner(cfg.Stages); err == nil {
				probes.Stages = runner
			}
			lines = append(lines, preflightLines(preflight.RunAll(cmd.Context(), cfg, probes), colorize)...)

			if stats == nil {
				raw, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				stats = make(map[string]int, len(raw))
				for status, count := range raw {
					stats[string(status)] = count
				}
			}
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Jobs", colorize) {
				fmt.Fprintln(out, line)
			}
			if len(stats) == 0 {
				fmt.Fprintln(out, "No jobs recorded")
				return nil
			}
			fmt.Fprintln(out, renderTable([]column{{Header: "Status"}, {Header: "Count", Align: alignRight}}, buildStatsRows(stats)))
			return nil
		},
	}
}
