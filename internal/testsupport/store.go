package testsupport

import (
	"context"
	"testing"

	"caretaker/internal/config"
	"caretaker/internal/library"
)

// MustOpenStore opens a library.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *library.Store {
	t.Helper()

	store, err := library.Open(cfg)
	if err != nil {
		t.Fatalf("library.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedItem inserts a library item for tests using the provided store.
func SeedItem(t testing.TB, store *library.Store, item *library.Item) *library.Item {
	t.Helper()

	if _, _, err := store.UpsertItem(context.Background(), item); err != nil {
		t.Fatalf("store.UpsertItem: %v", err)
	}
	return item
}

// SeedFile attaches a media file to an item for tests.
func SeedFile(t testing.TB, store *library.Store, file *library.MediaFile) *library.MediaFile {
	t.Helper()

	if _, _, err := store.UpsertFile(context.Background(), file); err != nil {
		t.Fatalf("store.UpsertFile: %v", err)
	}
	return file
}
