package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"fsoi/internal/api"
	"fsoi/internal/queue"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var file, callback string
	var wait bool
	var pollInterval time.Duration

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a request to the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readRequestBody(cmd, file)
			if err != nil {
				return err
			}
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			resp, err := client.Submit(cmd.Context(), body, callback)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			state := "queued"
			if resp.Deduplicated {
				state = "already " + formatStatusLabel(resp.Status)
			}
			fmt.Fprintf(out, "%s (%s)\n", resp.Fingerprint, state)
			if !wait {
				return nil
			}
			job, err := waitForJob(cmd.Context(), client, resp.Fingerprint, pollInterval)
			if err != nil {
				return err
			}
			if len(job.Response) > 0 {
				fmt.Fprintln(out, string(job.Response))
			}
			if job.Status != string(queue.StatusSuccess) {
				return fmt.Errorf("request %s failed: %s", shortHash(job.Fingerprint), job.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Request JSON file (default stdin)")
	cmd.Flags().StringVar(&callback, "callback", "", "HTTP(S) URL notified on every status change")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish and print its response")
	cmd.Flags().DurationVar(&pollInterval, "poll", 2*time.Second, "Polling interval used with --wait")
	return cmd
}

func waitForJob(ctx context.Context, client *api.Client, fingerprint string, interval time.Duration) (api.Job, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := client.Job(ctx, fingerprint)
		switch {
		case errors.Is(err, api.ErrJobNotFound):
			return api.Job{}, fmt.Errorf("job %s disappeared", shortHash(fingerprint))
		case err != nil:
			return api.Job{}, err
		}
		if status, ok := queue.ParseStatus(job.Status); ok && status.IsTerminal() && len(job.Response) > 0 {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return api.Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
