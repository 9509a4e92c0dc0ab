package local_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"inventory-admin/internal/store"
	"inventory-admin/internal/store/local"
)

func newStore(t *testing.T) (*local.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := local.NewStore(dir, "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, dir
}

func TestLocalStore_PersistsUnderNamespacedKey(t *testing.T) {
	ctx := context.Background()
	s, dir := newStore(t)

	if _, err := s.Insert(ctx, "items", store.Record{"name": "bolt", "quantity": 3}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "inventory_admin_items.json")); err != nil {
		t.Fatalf("expected items file on disk: %v", err)
	}

	reopened, err := local.NewStore(dir, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	recs, err := reopened.List(ctx, "items")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0]["name"] != "bolt" {
		t.Fatalf("expected persisted bolt, got %v", recs)
	}
	if _, ok := recs[0][store.FieldCreatedAt].(string); !ok {
		t.Errorf("expected created_at stored as string, got %T", recs[0][store.FieldCreatedAt])
	}
}

func TestLocalStore_UpdateDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	if _, err := s.Update(ctx, "items", "missing", store.Record{"name": "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "items", "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_ListOrderAndFind(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.Insert(ctx, "suppliers", store.Record{"name": name, "country": "NZ"}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	recs, _ := s.List(ctx, "suppliers")
	if len(recs) != 3 || recs[0]["name"] != "c" || recs[2]["name"] != "a" {
		t.Errorf("expected newest first [c b a], got %v", names(recs))
	}

	found, err := s.Find(ctx, "suppliers", "name", "b")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("expected one match, got %d", len(found))
	}
}

func TestLocalStore_CountersAndCloudMode(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment(ctx, "item")
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
	counters, err := s.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters: %v", err)
	}
	if counters["item"] != 3 {
		t.Errorf("expected item counter 3, got %d", counters["item"])
	}

	on, err := s.CloudMode(ctx)
	if err != nil || on {
		t.Fatalf("expected cloud mode off by default, got %v (%v)", on, err)
	}
	if err := s.SetCloudMode(ctx, true); err != nil {
		t.Fatalf("SetCloudMode: %v", err)
	}
	if on, _ := s.CloudMode(ctx); !on {
		t.Error("expected cloud mode on")
	}
}

func names(recs []store.Record) []any {
	out := make([]any, len(recs))
	for i, r := range recs {
		out[i] = r["name"]
	}
	return out
}
