package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/metrics"
	"archivist/internal/queue"
	"archivist/internal/workflow"
)

// ErrAlreadyRunning reports that another runner holds the lock.
var ErrAlreadyRunning = errors.New("another archivist runner is already using this queue")

// Daemon coordinates background processing and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock

	server      *http.Server
	metricsAddr string

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	MetricsAddr  string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the runner lock, starts the metrics endpoint and launches
// the workflow manager.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return err
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return ErrAlreadyRunning
	}

	if err := d.startMetrics(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		d.stopMetrics()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	d.running.Store(true)
	d.logger.Info("archivist runner started",
		logging.String("lock", d.lockPath),
		logging.String("queue_db", d.store.Path()),
		logging.String("metrics", d.metricsAddr),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop cancels active runs, waits for them to clean up and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.workflow.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.stopMetrics()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release runner lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("archivist runner stopped", logging.String(logging.FieldEventType, "daemon_stop"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports runtime information.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		MetricsAddr:  d.metricsAddr,
	}
}

// MetricsAddr returns the bound metrics address, empty when disabled.
func (d *Daemon) MetricsAddr() string {
	return d.metricsAddr
}

func (d *Daemon) startMetrics() error {
	bind := d.cfg.Metrics.Bind
	if bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("listen on metrics bind %q: %w", bind, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", d.handleHealth)
	d.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	d.metricsAddr = listener.Addr().String()
	go func() {
		if err := d.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server stopped",
				logging.Error(err),
				logging.String(logging.FieldEventType, "metrics_server_failed"),
				logging.String(logging.FieldErrorHint, "check metrics.bind"),
			)
		}
	}()
	return nil
}

func (d *Daemon) stopMetrics() {
	if d.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = d.server.Shutdown(ctx)
	d.server = nil
}

type healthResponse struct {
	Running bool           `json:"running"`
	Queue   map[string]int `json:"queue"`
	Active  []activeJSON   `json:"active"`
	Error   string         `json:"last_error,omitempty"`
}

type activeJSON struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Stage  string `json:"stage"`
	Status string `json:"status"`
}

func (d *Daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := d.Status(r.Context())
	resp := healthResponse{
		Running: status.Running,
		Queue:   make(map[string]int, len(status.Workflow.QueueStats)),
		Active:  []activeJSON{},
		Error:   status.Workflow.LastError,
	}
	for st, count := range status.Workflow.QueueStats {
		resp.Queue[string(st)] = count
	}
	for _, run := range status.Workflow.Active {
		resp.Active = append(resp.Active, activeJSON{
			ID:     run.ID,
			Title:  run.Title,
			Stage:  run.Status.Stage.String(),
			Status: run.Status.String(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		d.logger.Debug("health response write failed", logging.Error(err))
	}
}
