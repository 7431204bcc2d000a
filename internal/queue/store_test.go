package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"archivist/internal/queue"
	"archivist/internal/testsupport"
	"archivist/internal/tivo"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if store.Path() != cfg.QueueDBPath() {
		t.Fatalf("expected db at %s, got %s", cfg.QueueDBPath(), store.Path())
	}

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists {
		t.Fatalf("unexpected health: %#v", health)
	}
	if len(health.MissingColumns) != 0 {
		t.Fatalf("missing columns: %v", health.MissingColumns)
	}
	if !health.IntegrityCheck {
		t.Fatal("expected integrity check to pass")
	}
	if health.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", health.SchemaVersion)
	}
}

func TestReopenKeepsItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	item := testsupport.AddRecording(t, store, cfg, "Nova", "http://tivo/download/1")
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	got, err := reopened.GetByID(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil || got.Title != "Nova" {
		t.Fatalf("unexpected item after reopen: %#v", got)
	}
}

func TestAddStoresRecording(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	recorded := time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)
	item, err := store.Add(ctx, queue.NewItem{
		Source:      " http://tivo/download/7 ",
		Destination: filepath.Join(cfg.Paths.LibraryDir, "Nova.mp4"),
		Format:      "mp4",
		Metadata: tivo.Metadata{
			Title:      "Nova",
			CallSign:   "WGBH",
			RecordedAt: recorded,
			Duration:   time.Hour,
		},
	})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected item ID to be assigned")
	}
	if item.Status != queue.StatusPending {
		t.Fatalf("expected pending, got %s", item.Status)
	}
	if item.Title != "Nova" {
		t.Fatalf("expected title from metadata, got %q", item.Title)
	}
	if item.Source != "http://tivo/download/7" {
		t.Fatalf("expected trimmed source, got %q", item.Source)
	}
	if item.Format != "mp4" {
		t.Fatalf("expected mp4, got %q", item.Format)
	}
	if item.Metadata.CallSign != "WGBH" || !item.Metadata.RecordedAt.Equal(recorded) || item.Metadata.Duration != time.Hour {
		t.Fatalf("metadata did not round trip: %#v", item.Metadata)
	}
	if item.CreatedAt.IsZero() || item.StartedAt != nil || item.FinishedAt != nil {
		t.Fatalf("unexpected timestamps: %#v", item)
	}
}

func TestAddRequiresSourceAndDestination(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if _, err := store.Add(ctx, queue.NewItem{Destination: "/tmp/x.ts"}); err == nil {
		t.Fatal("expected error when source missing")
	}
	if _, err := store.Add(ctx, queue.NewItem{Source: "http://tivo/1"}); err == nil {
		t.Fatal("expected error when destination missing")
	}
}

func TestGetByIDMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	item, err := store.GetByID(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil item, got %#v", item)
	}
}

func TestClaimNextIsFIFOAndExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.AddRecording(t, store, cfg, "First", "http://tivo/1")
	second := testsupport.AddRecording(t, store, cfg, "Second", "http://tivo/2")

	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if claimed == nil || claimed.ID != first.ID {
		t.Fatalf("expected first item, got %#v", claimed)
	}
	if claimed.Status != queue.StatusRunning || claimed.StartedAt == nil || claimed.LastHeartbeat == nil {
		t.Fatalf("claimed item not marked running: %#v", claimed)
	}

	next, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if next == nil || next.ID != second.ID {
		t.Fatalf("expected second item, got %#v", next)
	}

	none, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected empty queue, got %#v", none)
	}
}

func TestProgressAndFinish(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.AddRecording(t, store, cfg, "Show", "http://tivo/1")
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	progress := queue.Progress{Stage: "downloading", Percent: 0.4, Message: "Downloading 40%", Bytes: 400, Estimated: 1000, Failures: 1}
	if err := store.UpdateProgress(ctx, item.ID, progress); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	got, _ := store.GetByID(ctx, item.ID)
	if got.Stage != "downloading" || got.Progress != 0.4 || got.BytesTransferred != 400 || got.BytesEstimated != 1000 || got.Failures != 1 {
		t.Fatalf("progress not stored: %#v", got)
	}

	if err := store.Finish(ctx, item.ID, queue.StatusFailed, queue.Progress{Stage: "failed"}, "device busy", "downloading: refused"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	got, _ = store.GetByID(ctx, item.ID)
	if got.Status != queue.StatusFailed || got.ErrorMessage != "device busy" || got.ErrorDetail != "downloading: refused" {
		t.Fatalf("failure not stored: %#v", got)
	}
	if got.FinishedAt == nil || got.LastHeartbeat != nil {
		t.Fatalf("expected finished timestamp and cleared heartbeat: %#v", got)
	}

	// Progress updates only land on running items.
	if err := store.UpdateProgress(ctx, item.ID, queue.Progress{Stage: "remuxing", Percent: 0.9}); err != nil {
		t.Fatalf("UpdateProgress failed: %v", err)
	}
	got, _ = store.GetByID(ctx, item.ID)
	if got.Stage != "failed" {
		t.Fatalf("terminal item was overwritten: %#v", got)
	}

	if err := store.Finish(ctx, item.ID, queue.StatusRunning, queue.Progress{}, "", ""); err == nil {
		t.Fatal("expected error finishing with a non-terminal status")
	}
}

func TestFinishCompletedClearsErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.AddRecording(t, store, cfg, "Show", "http://tivo/1")
	if err := store.Finish(ctx, item.ID, queue.StatusCompleted, queue.Progress{Stage: "done", Percent: 1}, "ignored", "ignored"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	got, _ := store.GetByID(ctx, item.ID)
	if got.Status != queue.StatusCompleted || got.ErrorMessage != "" || got.ErrorDetail != "" {
		t.Fatalf("unexpected completed item: %#v", got)
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	running := testsupport.AddRecording(t, store, cfg, "Running", "http://tivo/1")
	pending := testsupport.AddRecording(t, store, cfg, "Pending", "http://tivo/2")
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 item reset, got %d", count)
	}
	for _, id := range []int64{running.ID, pending.ID} {
		got, _ := store.GetByID(ctx, id)
		if got.Status != queue.StatusPending {
			t.Fatalf("item %d: expected pending, got %s", id, got.Status)
		}
		if got.LastHeartbeat != nil {
			t.Fatalf("item %d: expected heartbeat cleared", id)
		}
	}
}

func TestRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	failed := testsupport.AddRecording(t, store, cfg, "Failed", "http://tivo/1")
	cancelled := testsupport.AddRecording(t, store, cfg, "Cancelled", "http://tivo/2")
	done := testsupport.AddRecording(t, store, cfg, "Done", "http://tivo/3")
	mustFinish(t, store, failed.ID, queue.StatusFailed)
	mustFinish(t, store, cancelled.ID, queue.StatusCancelled)
	mustFinish(t, store, done.ID, queue.StatusCompleted)

	count, err := store.RetryFailed(ctx, failed.ID, done.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only the failed item retried, got %d", count)
	}
	got, _ := store.GetByID(ctx, failed.ID)
	if got.Status != queue.StatusPending || got.ErrorMessage != "" || got.FinishedAt != nil {
		t.Fatalf("retry did not reset item: %#v", got)
	}

	count, err = store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected cancelled item retried, got %d", count)
	}
	got, _ = store.GetByID(ctx, done.ID)
	if got.Status != queue.StatusCompleted {
		t.Fatalf("completed item must stay completed, got %s", got.Status)
	}
}

func TestCancelPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.AddRecording(t, store, cfg, "Show", "http://tivo/1")
	ok, err := store.CancelPending(ctx, item.ID)
	if err != nil || !ok {
		t.Fatalf("CancelPending = %v, %v", ok, err)
	}
	ok, err = store.CancelPending(ctx, item.ID)
	if err != nil || ok {
		t.Fatalf("second CancelPending = %v, %v; want false", ok, err)
	}
	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	if claimed != nil {
		t.Fatalf("cancelled item must not be claimed: %#v", claimed)
	}
}

func TestRequestCancelSurfacesThroughHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.AddRecording(t, store, cfg, "Show", "http://tivo/1")
	if ok, err := store.RequestCancel(ctx, item.ID); err != nil || ok {
		t.Fatalf("RequestCancel on pending item = %v, %v; want false", ok, err)
	}
	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}

	requested, err := store.UpdateHeartbeat(ctx, item.ID)
	if err != nil || requested {
		t.Fatalf("UpdateHeartbeat = %v, %v; want no cancel", requested, err)
	}
	if ok, err := store.RequestCancel(ctx, item.ID); err != nil || !ok {
		t.Fatalf("RequestCancel = %v, %v", ok, err)
	}
	requested, err = store.UpdateHeartbeat(ctx, item.ID)
	if err != nil || !requested {
		t.Fatalf("UpdateHeartbeat = %v, %v; want cancel requested", requested, err)
	}

	mustFinish(t, store, item.ID, queue.StatusCancelled)
	if _, err := store.RetryFailed(ctx, item.ID); err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	got, _ := store.GetByID(ctx, item.ID)
	if got.CancelRequested {
		t.Fatal("retry must clear the cancel flag")
	}
}

func TestListRemoveAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.AddRecording(t, store, cfg, "A", "http://tivo/1")
	b := testsupport.AddRecording(t, store, cfg, "B", "http://tivo/2")
	c := testsupport.AddRecording(t, store, cfg, "C", "http://tivo/3")
	mustFinish(t, store, b.ID, queue.StatusCompleted)
	mustFinish(t, store, c.ID, queue.StatusFailed)

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 || all[0].ID != a.ID || all[2].ID != c.ID {
		t.Fatalf("unexpected list order: %#v", all)
	}

	failed, err := store.List(ctx, queue.StatusFailed, queue.StatusCancelled)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != c.ID {
		t.Fatalf("unexpected filtered list: %#v", failed)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 3 || health.Pending != 1 || health.Completed != 1 || health.Failed != 1 {
		t.Fatalf("unexpected health: %#v", health)
	}

	if n, err := store.ClearCompleted(ctx); err != nil || n != 1 {
		t.Fatalf("ClearCompleted = %d, %v", n, err)
	}
	if n, err := store.ClearFailed(ctx); err != nil || n != 1 {
		t.Fatalf("ClearFailed = %d, %v", n, err)
	}

	if _, err := store.ClaimNext(ctx); err != nil {
		t.Fatalf("ClaimNext failed: %v", err)
	}
	removed, err := store.Remove(ctx, a.ID)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if removed {
		t.Fatal("running item must not be removed")
	}
	if n, err := store.Clear(ctx); err != nil || n != 0 {
		t.Fatalf("Clear = %d, %v; running items stay", n, err)
	}

	mustFinish(t, store, a.ID, queue.StatusCancelled)
	removed, err = store.Remove(ctx, a.ID)
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
}

func TestParseStatus(t *testing.T) {
	status, ok := queue.ParseStatus(" Failed ")
	if !ok || status != queue.StatusFailed {
		t.Fatalf("ParseStatus = %q, %v", status, ok)
	}
	if _, ok := queue.ParseStatus("ripping"); ok {
		t.Fatal("unknown status accepted")
	}
	if queue.StatusRunning.IsTerminal() || !queue.StatusCancelled.IsTerminal() {
		t.Fatal("terminal classification wrong")
	}
}

func TestElapsed(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Second)
	item := queue.Item{StartedAt: &start, FinishedAt: &end}
	if got := item.Elapsed(start.Add(time.Hour)); got != 90*time.Second {
		t.Fatalf("Elapsed = %s", got)
	}
	if got := (queue.Item{}).Elapsed(end); got != 0 {
		t.Fatalf("Elapsed without start = %s", got)
	}
}

func TestSchemaMismatchRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	if err := store.ForceSchemaVersionForTest(context.Background(), 99); err != nil {
		t.Fatalf("force version: %v", err)
	}
	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrSchemaMismatch) {
		t.Fatalf("expected schema mismatch, got %v", err)
	}
}

func mustFinish(t *testing.T, store *queue.Store, id int64, status queue.Status) {
	t.Helper()
	if err := store.Finish(context.Background(), id, status, queue.Progress{Stage: string(status)}, "summary", "detail"); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
}
