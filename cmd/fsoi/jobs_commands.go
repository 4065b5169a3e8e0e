package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage processed requests",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsClearCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withJobs(cmd.Context(), func(jobs jobsAPI) error {
				items, err := jobs.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, items)
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(jobListColumns, buildJobListRows(items)))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (PENDING, RUNNING, SUCCESS, FAIL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print jobs as JSON")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <hash>",
		Short: "Show a job and its final response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fingerprint := strings.TrimSpace(args[0])
			return ctx.withJobs(cmd.Context(), func(jobs jobsAPI) error {
				job, err := jobs.Describe(cmd.Context(), fingerprint)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", fingerprint)
				}
				if asJSON {
					return writeJSON(cmd, job)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderStatusLine("Job "+shortHash(job.Fingerprint), jobStatusKind(job.Status), formatStatusLabel(job.Status), shouldColorize(out)))
				for _, line := range jobDetailLines(*job) {
					fmt.Fprintln(out, line)
				}
				if len(job.Response) > 0 {
					var pretty bytes.Buffer
					if err := json.Indent(&pretty, job.Response, "", "  "); err == nil {
						fmt.Fprintln(out, "Response:")
						fmt.Fprintln(out, pretty.String())
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the job as JSON")
	return cmd
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var failed, all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs (successful ones by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if failed && all {
				return errors.New("--failed and --all are mutually exclusive")
			}
			scope := "completed"
			switch {
			case failed:
				scope = "failed"
			case all:
				scope = "all"
			}
			return ctx.withJobs(cmd.Context(), func(jobs jobsAPI) error {
				removed, err := jobs.Clear(cmd.Context(), scope)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n", removed, pluralize(removed, "job", "jobs"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "Remove failed jobs")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every job, including pending and running ones")
	return cmd
}

func pluralize(n int64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
