package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/lingopad/lexsync/pkg/adapters/sqlite"
	"github.com/lingopad/lexsync/pkg/core"
)

func setupStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "lexsync.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSetGetRemove(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "words:verbs", []byte(`[{"id":"w1"}]`)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := store.Get(ctx, "words:verbs")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != `[{"id":"w1"}]` {
		t.Errorf("unexpected value: %s", got)
	}

	// Upsert replaces.
	if err := store.Set(ctx, "words:verbs", []byte(`[]`)); err != nil {
		t.Fatalf("Set (upsert) failed: %v", err)
	}
	got, err = store.Get(ctx, "words:verbs")
	if err != nil {
		t.Fatalf("Get after upsert failed: %v", err)
	}
	if string(got) != `[]` {
		t.Errorf("upsert did not replace: %s", got)
	}

	if err := store.Remove(ctx, "words:verbs"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := store.Get(ctx, "words:verbs"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
}

func TestGetAllFiltersByPrefix(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	for key, value := range map[string]string{
		"notes:daily":  "a",
		"notes:weekly": "b",
		"words:verbs":  "c",
	} {
		if err := store.Set(ctx, key, []byte(value)); err != nil {
			t.Fatalf("Set %s failed: %v", key, err)
		}
	}

	got, err := store.GetAll(ctx, "notes:")
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(got))
	}
	if string(got["notes:daily"]) != "a" {
		t.Errorf("unexpected entries: %v", got)
	}
}

func TestValuesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexsync.db")
	ctx := context.Background()

	store, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Set(ctx, "chats:lesson-1", []byte("persisted")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "chats:lesson-1")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != "persisted" {
		t.Errorf("unexpected value: %s", got)
	}
}
