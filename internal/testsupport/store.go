package testsupport

import (
	"context"
	"path/filepath"
	"testing"

	"archivist/internal/config"
	"archivist/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// AddRecording queues a recording whose destination sits in the library dir.
func AddRecording(t testing.TB, store *queue.Store, cfg *config.Config, title, source string) *queue.Item {
	t.Helper()

	item, err := store.Add(context.Background(), queue.NewItem{
		Title:       title,
		Source:      source,
		Destination: filepath.Join(cfg.Paths.LibraryDir, title+".ts"),
	})
	if err != nil {
		t.Fatalf("store.Add: %v", err)
	}
	return item
}
