package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"fsoi/internal/config"
	"fsoi/internal/daemon"
	"fsoi/internal/notifications"
	"fsoi/internal/pipeline"
	"fsoi/internal/queue"
	"fsoi/internal/request"
	"fsoi/internal/testsupport"
	"fsoi/internal/workflow"
)

const sampleRequestBody = `{"centers":["GMAO","NRL"],"start_date":"20190101","end_date":"20190101","cycles":[0],"norm":"dry","platforms":"conv","interval":24}`

// heldProcessor keeps every job RUNNING until the daemon stops.
type heldProcessor struct{}

func (heldProcessor) Handle(ctx context.Context, req *request.Request) pipeline.Result {
	<-ctx.Done()
	fp := request.Fingerprint(req)
	return pipeline.Result{
		Fingerprint: fp,
		Status:      queue.StatusFail,
		Message:     pipeline.MessageSystemic,
		Response:    request.Failure(fp, []string{pipeline.MessageSystemic}, nil),
	}
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Storage.LocalRoot, cfg.Storage.DataBucket), 0o755); err != nil {
		t.Fatalf("mkdir data bucket: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.Storage.LocalRoot, cfg.Storage.CacheBucket), 0o755); err != nil {
		t.Fatalf("mkdir cache bucket: %v", err)
	}
	env := &cliTestEnv{cfg: cfg, configPath: filepath.Join(testsupport.BaseDir(cfg), "config.toml")}
	writeTestConfig(t, env.configPath, cfg)
	return env
}

// startDaemon runs a daemon on an ephemeral port and rewrites the config so
// CLI commands reach it.
func (e *cliTestEnv) startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()
	store := testsupport.MustOpenStore(t, e.cfg)
	hub := notifications.NewHub(time.Second, nil)
	notifier := notifications.NewService(store, notifications.NewRouter(hub, nil), nil)
	mgr := workflow.NewManager(e.cfg, store, heldProcessor{}, notifier, nil)
	d, err := daemon.New(e.cfg, daemon.Dependencies{Store: store, Workflow: mgr, Hub: hub, Notifier: notifier}, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)

	live := *e.cfg
	live.Paths.APIBind = d.APIAddress()
	writeTestConfig(t, e.configPath, &live)
	return d
}

func runCLI(t *testing.T, configPath, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
