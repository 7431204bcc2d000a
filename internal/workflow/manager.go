package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"archivist/internal/archive"
	"archivist/internal/config"
	"archivist/internal/deps"
	"archivist/internal/logging"
	"archivist/internal/notifications"
	"archivist/internal/preflight"
	"archivist/internal/queue"
)

const (
	heartbeatInterval  = 5 * time.Second
	errorRetryInterval = 10 * time.Second
	persistTimeout     = 5 * time.Second
)

// Runner archives one recording. *archive.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, rec *archive.Recording) (archive.Outcome, error)
}

// Manager coordinates queue processing through a Runner.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration
	persistEvery time.Duration
	preflight    func(*config.Config) []deps.Status
	readiness    func(context.Context, *config.Config) []preflight.Result
	notReady     bool
	heartbeat    *HeartbeatMonitor

	capacity *semaphore.Weighted
	wake     chan struct{}

	mu       sync.RWMutex
	runner   Runner
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	lastErr  error
	lastItem *queue.Item
	active   map[int64]*activeRun

	queueActive bool
	queueStart  time.Time
}

type activeRun struct {
	ctx       context.Context
	item      *queue.Item
	rec       *archive.Recording
	cancel    context.CancelFunc
	requested bool
	lastStage archive.Stage
	throttle  *rate.Sometimes
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the ntfy service built from config.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) { m.notifier = n }
}

// WithPreflight replaces the external tool check run by Start.
func WithPreflight(fn func(*config.Config) []deps.Status) ManagerOption {
	return func(m *Manager) { m.preflight = fn }
}

// WithReadinessCheck replaces the filesystem checks run before each claim.
func WithReadinessCheck(fn func(context.Context, *config.Config) []preflight.Result) ManagerOption {
	return func(m *Manager) { m.readiness = fn }
}

// WithPollInterval overrides the queue polling interval.
func WithPollInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pollInterval = d }
}

// WithHeartbeatInterval overrides how often running items refresh their
// heartbeat and look for cancel requests.
func WithHeartbeatInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.heartbeat.interval = d }
}

// NewManager constructs a workflow manager. ConfigureRunner must be called
// before Start.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	maxRuns := cfg.Workflow.MaxActiveRuns
	if maxRuns < 1 {
		maxRuns = 1
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		notifier:     notifications.NewService(cfg),
		pollInterval: cfg.PollInterval(),
		persistEvery: time.Duration(cfg.Workflow.StatusPersistInterval) * time.Second,
		preflight: func(c *config.Config) []deps.Status {
			return deps.CheckBinaries(deps.Requirements(c))
		},
		readiness: preflight.RunAll,
		heartbeat: NewHeartbeatMonitor(store, logger, heartbeatInterval),
		capacity:  semaphore.NewWeighted(int64(maxRuns)),
		wake:      make(chan struct{}, 1),
		active:    make(map[int64]*activeRun),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.pollInterval <= 0 {
		m.pollInterval = time.Second
	}
	return m
}

// ConfigureRunner sets the pipeline that archives claimed items. The manager
// is usually also registered as the pipeline's status sink.
func (m *Manager) ConfigureRunner(r Runner) {
	m.mu.Lock()
	m.runner = r
	m.mu.Unlock()
}

// Wake asks the dispatcher to look at the queue now instead of at the next
// poll.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
