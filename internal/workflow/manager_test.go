package workflow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"archivist/internal/archive"
	"archivist/internal/config"
	"archivist/internal/deps"
	"archivist/internal/logging"
	"archivist/internal/notifications"
	"archivist/internal/preflight"
	"archivist/internal/queue"
	"archivist/internal/services"
	"archivist/internal/testsupport"
	"archivist/internal/workflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type runnerFunc func(ctx context.Context, rec *archive.Recording) (archive.Outcome, error)

func (f runnerFunc) Run(ctx context.Context, rec *archive.Recording) (archive.Outcome, error) {
	return f(ctx, rec)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
	last   map[notifications.Event]notifications.Payload
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	if n.last == nil {
		n.last = make(map[notifications.Event]notifications.Payload)
	}
	n.last[event] = payload
	return nil
}

func (n *recordingNotifier) count(event notifications.Event) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, e := range n.events {
		if e == event {
			total++
		}
	}
	return total
}

func (n *recordingNotifier) payload(event notifications.Event) notifications.Payload {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last[event]
}

func allToolsPresent(*config.Config) []deps.Status { return nil }

func newManager(t *testing.T, cfg *config.Config, store *queue.Store, notifier notifications.Service) *workflow.Manager {
	t.Helper()
	return workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithNotifier(notifier),
		workflow.WithPreflight(allToolsPresent),
		workflow.WithPollInterval(10*time.Millisecond),
		workflow.WithHeartbeatInterval(10*time.Millisecond),
	)
}

func startManager(t *testing.T, m *workflow.Manager) {
	t.Helper()
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(m.Stop)
}

func waitForStatus(t *testing.T, store *queue.Store, id int64, want queue.Status) *queue.Item {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		item, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if item != nil && item.Status == want {
			return item
		}
		time.Sleep(5 * time.Millisecond)
	}
	item, _ := store.GetByID(context.Background(), id)
	t.Fatalf("item %d never reached %s, last %#v", id, want, item)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManagerArchivesQueuedItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	a := testsupport.AddRecording(t, store, cfg, "Alpha", "http://tivo/1")
	b := testsupport.AddRecording(t, store, cfg, "Beta", "http://tivo/2")

	var seen sync.Map
	m := newManager(t, cfg, store, notifier)
	m.ConfigureRunner(runnerFunc(func(ctx context.Context, rec *archive.Recording) (archive.Outcome, error) {
		seen.Store(rec.ID, rec.Title)
		return archive.OutcomeCompleted, nil
	}))
	startManager(t, m)

	for _, id := range []int64{a.ID, b.ID} {
		item := waitForStatus(t, store, id, queue.StatusCompleted)
		if item.Stage != "done" || item.Progress != 1 {
			t.Fatalf("expected done stage, got %q %.2f", item.Stage, item.Progress)
		}
		if item.FinishedAt == nil {
			t.Fatal("expected finished timestamp")
		}
	}
	if title, _ := seen.Load(a.ID); title != "Alpha" {
		t.Fatalf("runner saw title %v", title)
	}

	waitFor(t, "queue completion notification", func() bool {
		return notifier.count(notifications.EventQueueCompleted) == 1
	})
	if got := notifier.count(notifications.EventArchiveCompleted); got != 2 {
		t.Fatalf("expected 2 archive notifications, got %d", got)
	}
	if got := notifier.count(notifications.EventQueueStarted); got != 1 {
		t.Fatalf("expected 1 queue start notification, got %d", got)
	}
	if processed := notifier.payload(notifications.EventQueueCompleted)["processed"]; processed != 2 {
		t.Fatalf("expected 2 processed, got %v", processed)
	}
}

func TestManagerRecordsFailureSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifier := &recordingNotifier{}
	item := testsupport.AddRecording(t, store, cfg, "Gamma", "http://tivo/3")

	m := newManager(t, cfg, store, notifier)
	m.ConfigureRunner(runnerFunc(func(ctx context.Context, rec *archive.Recording) (archive.Outcome, error) {
		return archive.OutcomeFailed, services.Wrap(services.ErrRetriesExhausted, "downloading", "download",
			"The device stayed too busy to serve the recording", errors.New("503 Service Unavailable"))
	}))
	startManager(t, m)

	got := waitForStatus(t, store, item.ID, queue.StatusFailed)
	if got.ErrorMessage != "The device stayed too busy to serve the recording" {
		t.Fatalf("unexpected summary %q", got.ErrorMessage)
	}
	if got.ErrorDetail == "" || got.Stage != "failed" {
		t.Fatalf("expected detail and failed stage, got %#v", got)
	}
	waitFor(t, "failure notification", func() bool {
		return notifier.count(notifications.EventArchiveFailed) == 1
	})
	if summary := notifier.payload(notifications.EventArchiveFailed)["summary"]; summary != got.ErrorMessage {
		t.Fatalf("notification summary %v", summary)
	}
	if status := m.Status(context.Background()); status.LastError == "" {
		t.Fatal("expected last error to be recorded")
	}
}

func blockingRunner(started chan<- int64) runnerFunc {
	return func(ctx context.Context, rec *archive.Recording) (archive.Outcome, error) {
		started <- rec.ID
		<-ctx.Done()
		return archive.OutcomeCancelled, nil
	}
}

func TestManagerCancelRunningItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.AddRecording(t, store, cfg, "Delta", "http://tivo/4")

	started := make(chan int64, 1)
	m := newManager(t, cfg, store, &recordingNotifier{})
	m.ConfigureRunner(blockingRunner(started))
	startManager(t, m)

	<-started
	status := m.Status(context.Background())
	if len(status.Active) != 1 || status.Active[0].ID != item.ID {
		t.Fatalf("expected one active run, got %#v", status.Active)
	}
	ok, err := m.Cancel(context.Background(), item.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v", ok, err)
	}
	got := waitForStatus(t, store, item.ID, queue.StatusCancelled)
	if got.ErrorMessage != "Cancelled by request" {
		t.Fatalf("unexpected reason %q", got.ErrorMessage)
	}
}

func TestManagerHonoursCancelFlagFromStore(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.AddRecording(t, store, cfg, "Epsilon", "http://tivo/5")

	started := make(chan int64, 1)
	m := newManager(t, cfg, store, &recordingNotifier{})
	m.ConfigureRunner(blockingRunner(started))
	startManager(t, m)

	<-started
	if ok, err := store.RequestCancel(context.Background(), item.ID); err != nil || !ok {
		t.Fatalf("RequestCancel = %v, %v", ok, err)
	}
	got := waitForStatus(t, store, item.ID, queue.StatusCancelled)
	if got.ErrorMessage != "Cancelled by request" {
		t.Fatalf("unexpected reason %q", got.ErrorMessage)
	}
}

func TestManagerCancelPendingItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.AddRecording(t, store, cfg, "Zeta", "http://tivo/6")

	m := newManager(t, cfg, store, &recordingNotifier{})
	ok, err := m.Cancel(context.Background(), item.ID)
	if err != nil || !ok {
		t.Fatalf("Cancel = %v, %v", ok, err)
	}
	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Status != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestManagerStopCancelsActiveRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.AddRecording(t, store, cfg, "Eta", "http://tivo/7")

	started := make(chan int64, 1)
	m := newManager(t, cfg, store, &recordingNotifier{})
	m.ConfigureRunner(blockingRunner(started))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-started
	m.Stop()

	got, _ := store.GetByID(context.Background(), item.ID)
	if got.Status != queue.StatusCancelled || got.ErrorMessage != queue.ShutdownReason {
		t.Fatalf("expected shutdown cancellation, got %s %q", got.Status, got.ErrorMessage)
	}
}

func TestManagerLimitsActiveRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.MaxActiveRuns = 2
	store := testsupport.MustOpenStore(t, cfg)
	var ids []int64
	for _, title := range []string{"One", "Two", "Three", "Four"} {
		ids = append(ids, testsupport.AddRecording(t, store, cfg, title, "http://tivo/"+title).ID)
	}

	var current, peak atomic.Int32
	m := newManager(t, cfg, store, &recordingNotifier{})
	m.ConfigureRunner(runnerFunc(func(ctx context.Context, rec *archive.Recording) (archive.Outcome, error) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		return archive.OutcomeCompleted, nil
	}))
	startManager(t, m)

	for _, id := range ids {
		waitForStatus(t, store, id, queue.StatusCompleted)
	}
	if got := peak.Load(); got != 2 {
		t.Fatalf("expected peak concurrency 2, got %d", got)
	}
}

func TestStatusChangedPersistsStageChangesImmediately(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.StatusPersistInterval = 3600
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.AddRecording(t, store, cfg, "Theta", "http://tivo/8")

	type snapshot struct {
		stage    string
		progress float64
	}
	snapshots := make(chan snapshot, 3)
	var m *workflow.Manager
	m = newManager(t, cfg, store, &recordingNotifier{})
	read := func(id int64) snapshot {
		got, err := store.GetByID(context.Background(), id)
		if err != nil || got == nil {
			return snapshot{}
		}
		return snapshot{got.Stage, got.Progress}
	}
	m.ConfigureRunner(runnerFunc(func(ctx context.Context, rec *archive.Recording) (archive.Outcome, error) {
		m.StatusChanged(rec, archive.StageStatus(archive.StageDownloading, 0.1, archive.Unknown))
		snapshots <- read(rec.ID)
		m.StatusChanged(rec, archive.StageStatus(archive.StageDownloading, 0.5, archive.Unknown))
		snapshots <- read(rec.ID)
		m.StatusChanged(rec, archive.StageStatus(archive.StageRemuxing, 0.2, archive.Unknown))
		snapshots <- read(rec.ID)
		return archive.OutcomeCompleted, nil
	}))
	startManager(t, m)
	waitForStatus(t, store, item.ID, queue.StatusCompleted)

	want := []snapshot{{"downloading", 0.1}, {"downloading", 0.1}, {"remuxing", 0.2}}
	for i, w := range want {
		if got := <-snapshots; got != w {
			t.Fatalf("snapshot %d: got %+v, want %+v", i, got, w)
		}
	}
}

func TestStartRequiresRunnerAndTools(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	m := newManager(t, cfg, store, &recordingNotifier{})
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected error without a runner")
	}

	m = workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithNotifier(&recordingNotifier{}),
		workflow.WithPreflight(func(*config.Config) []deps.Status {
			return []deps.Status{{Name: "FFmpeg", Command: "ffmpeg", Detail: `binary "ffmpeg" not found`}}
		}),
	)
	m.ConfigureRunner(runnerFunc(func(context.Context, *archive.Recording) (archive.Outcome, error) {
		return archive.OutcomeCompleted, nil
	}))
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected preflight failure")
	}
	if m.Status(context.Background()).Running {
		t.Fatal("manager must not report running after a failed start")
	}
}

func TestStartRequeuesStuckItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.AddRecording(t, store, cfg, "Iota", "http://tivo/9")
	if _, err := store.ClaimNext(context.Background()); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	m := newManager(t, cfg, store, &recordingNotifier{})
	m.ConfigureRunner(runnerFunc(func(context.Context, *archive.Recording) (archive.Outcome, error) {
		return archive.OutcomeCompleted, nil
	}))
	startManager(t, m)
	waitForStatus(t, store, item.ID, queue.StatusCompleted)
}

func TestManagerWaitsWhileNotReady(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.AddRecording(t, store, cfg, "Gamma", "http://tivo/3")

	var ready atomic.Bool
	m := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithNotifier(&recordingNotifier{}),
		workflow.WithPreflight(allToolsPresent),
		workflow.WithPollInterval(10*time.Millisecond),
		workflow.WithHeartbeatInterval(10*time.Millisecond),
		workflow.WithReadinessCheck(func(context.Context, *config.Config) []preflight.Result {
			if ready.Load() {
				return []preflight.Result{{Name: "Library free space", Passed: true}}
			}
			return []preflight.Result{{Name: "Library free space", Detail: "1.0 GiB free (need 5.0 GiB)"}}
		}),
	)
	m.ConfigureRunner(runnerFunc(func(context.Context, *archive.Recording) (archive.Outcome, error) {
		return archive.OutcomeCompleted, nil
	}))
	startManager(t, m)

	waitFor(t, "readiness error", func() bool {
		return strings.Contains(m.Status(context.Background()).LastError, "need 5.0 GiB")
	})
	got, err := store.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != queue.StatusPending {
		t.Fatalf("expected item to stay pending, got %s", got.Status)
	}

	ready.Store(true)
	m.Wake()
	waitForStatus(t, store, item.ID, queue.StatusCompleted)
}
