package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"archivist/internal/archive"
	"archivist/internal/config"
	"archivist/internal/daemon"
	"archivist/internal/deps"
	"archivist/internal/logging"
	"archivist/internal/queue"
	"archivist/internal/testsupport"
	"archivist/internal/workflow"
)

type completeRunner struct{}

func (completeRunner) Run(context.Context, *archive.Recording) (archive.Outcome, error) {
	return archive.OutcomeCompleted, nil
}

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *queue.Store) {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	mgr := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithPreflight(func(*config.Config) []deps.Status { return nil }),
		workflow.WithPollInterval(10*time.Millisecond),
	)
	mgr.ConfigureRunner(completeRunner{})
	d, err := daemon.New(cfg, store, logging.NewNop(), mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d, store
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LockFilePath != cfg.LockPath() || status.QueueDBPath != cfg.QueueDBPath() {
		t.Fatalf("unexpected paths: %#v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	if d.Status(ctx).Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestSecondRunnerIsLockedOut(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, _ := newDaemon(t, cfg)
	second, _ := newDaemon(t, cfg)

	ctx := context.Background()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := second.Start(ctx); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	first.Stop()
	if err := second.Start(ctx); err != nil {
		t.Fatalf("second runner should start after the first stops: %v", err)
	}
	second.Stop()
}

func TestMetricsAndHealthEndpoints(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Metrics.Bind = "127.0.0.1:0"
	d, store := newDaemon(t, cfg)
	item := testsupport.AddRecording(t, store, cfg, "Nova", "http://tivo/1")

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, _ := store.GetByID(context.Background(), item.ID)
		if got != nil && got.Status == queue.StatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("item never completed: %#v", got)
		}
		time.Sleep(5 * time.Millisecond)
	}

	base := "http://" + d.MetricsAddr()
	resp, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "archivist_") {
		t.Fatalf("unexpected metrics response %d: %.200s", resp.StatusCode, body)
	}

	resp, err = http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	var health struct {
		Running bool           `json:"running"`
		Queue   map[string]int `json:"queue"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if !health.Running || health.Queue["completed"] != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}
}
