package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"archivist/internal/archive"
	"archivist/internal/config"
	"archivist/internal/logging"
	"archivist/internal/procexec"
	"archivist/internal/queue"
	"archivist/internal/tivo"
	"archivist/internal/workflow"
)

// Options configures runner process behavior.
type Options struct {
	// Once stops the runner when no pending or running items remain.
	Once bool
}

// Run drains the queue until the context ends or a termination signal
// arrives. With Options.Once it returns as soon as the queue is empty.
func Run(cmdCtx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}

	mgr, err := NewManager(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	d, err := New(cfg, store, logger, mgr)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("close queue failed", logging.Error(err))
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		return err
	}
	if opts.Once {
		return waitForDrain(signalCtx, store, cfg.PollInterval())
	}
	<-signalCtx.Done()
	return nil
}

// NewManager builds a workflow manager wired to the device client, the
// process runner and a pipeline that reports status back to the manager.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...workflow.ManagerOption) (*workflow.Manager, error) {
	client, err := tivo.NewClient(cfg.Device, logger)
	if err != nil {
		return nil, fmt.Errorf("device client: %w", err)
	}
	mgr := workflow.NewManager(cfg, store, logger, opts...)
	pipeline := archive.NewPipeline(cfg, archive.NewSlots(), client, procexec.NewRunner(logger), logger,
		archive.WithStatusSink(mgr),
	)
	mgr.ConfigureRunner(pipeline)
	return mgr, nil
}

func waitForDrain(ctx context.Context, store *queue.Store, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		health, err := store.Health(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("queue health: %w", err)
		}
		if health.Pending+health.Running == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
