package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fsoi/internal/daemonrun"
	"fsoi/internal/logging"
	"fsoi/internal/notifications"
	"fsoi/internal/pipeline"
	"fsoi/internal/queue"
	"fsoi/internal/request"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var file, callback, logLevel string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one request in-process and print the response",
		Long: "Process one request in-process and print the response JSON.\n" +
			"The request is read from --file or stdin. Exits non-zero when the response is a failure.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			req, err := readRequest(cmd, file)
			if err != nil {
				return err
			}
			callback = strings.TrimSpace(callback)
			if callback != "" && (!notifications.IsSupportedChannel(callback) || strings.HasPrefix(callback, notifications.WebsocketChannelPrefix)) {
				return fmt.Errorf("callback must be an http or https URL")
			}

			level := logLevel
			if level == "" {
				level = cfg.Logging.Level
			}
			logger, err := logging.New(logging.Options{
				Level:       level,
				Format:      cfg.Logging.Format,
				OutputPaths: []string{"stderr", filepath.Join(cfg.Paths.LogDir, logging.RunLogName("fsoi-run", time.Now()))},
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			records, err := daemonrun.OpenRecords(cfg, store)
			if err != nil {
				return err
			}
			if records != queue.StatusStore(store) {
				defer records.Close()
			}

			sender := notifications.NewRouter(nil, daemonrun.CallbackSender(cfg))
			services, err := daemonrun.BuildServices(cfg, records, sender, logger)
			if err != nil {
				return err
			}

			fingerprint := request.Fingerprint(req)
			if callback != "" {
				if err := records.UpdateStatus(cmd.Context(), fingerprint, queue.StatusRunning, pipeline.MessageAccessing, 0); err != nil {
					return fmt.Errorf("create status record: %w", err)
				}
				if err := records.AddSubscriber(cmd.Context(), fingerprint, callback); err != nil {
					return fmt.Errorf("register callback: %w", err)
				}
			}

			result := services.Executor.Handle(cmd.Context(), req)
			if records == queue.StatusStore(store) {
				if payload, err := json.Marshal(result.Response); err == nil {
					if err := store.SetResult(cmd.Context(), fingerprint, result.Status, result.Message, result.Progress, payload); err != nil {
						logging.WarnWithContext(logger, "failed to store response", "result_persist_failed",
							logging.String(logging.FieldFingerprint, fingerprint),
							logging.Error(err),
							logging.String(logging.FieldErrorHint, "the printed response is authoritative"),
							logging.String(logging.FieldImpact, "fsoi jobs show will not include the response"),
						)
					}
				}
			}

			if err := writeJSON(cmd, result.Response); err != nil {
				return err
			}
			if result.Status != queue.StatusSuccess {
				return fmt.Errorf("request %s failed (reference id %s)", shortHash(fingerprint), result.ReferenceID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Request JSON file (default stdin)")
	cmd.Flags().StringVar(&callback, "callback", "", "HTTP(S) URL notified on every status change")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override the configured log level")
	return cmd
}
