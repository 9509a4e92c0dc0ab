package migrate_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"inventory-admin/internal/migrate"
	"inventory-admin/internal/store"
	"inventory-admin/internal/store/local"
	"inventory-admin/internal/store/memory"
)

type failingTarget struct{}

func (failingTarget) WriteBatch(context.Context, []store.BatchEntry) error {
	return errors.New("transaction aborted")
}

func seedLocal(t *testing.T, items, suppliers, invoices int) (*local.Store, string) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	src, err := local.NewStore(dir, "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	var supplierID, itemID string
	for i := 0; i < suppliers; i++ {
		rec, err := src.Insert(ctx, "suppliers", store.Record{"name": "Supplier"})
		if err != nil {
			t.Fatalf("Insert supplier: %v", err)
		}
		supplierID = rec.ID()
	}
	for i := 0; i < items; i++ {
		rec, err := src.Insert(ctx, "items", store.Record{"name": "Item", "supplier_id": supplierID, "quantity": 1})
		if err != nil {
			t.Fatalf("Insert item: %v", err)
		}
		itemID = rec.ID()
	}
	for i := 0; i < invoices; i++ {
		_, err := src.Insert(ctx, "invoices", store.Record{
			"invoice_number": "INV",
			"supplier_id":    supplierID,
			"issue_date":     "2024-01-15",
			"items":          []any{map[string]any{"item_id": itemID, "quantity": 1}},
		})
		if err != nil {
			t.Fatalf("Insert invoice: %v", err)
		}
	}
	for i := 0; i < items; i++ {
		src.Increment(ctx, "item")
	}
	return src, dir
}

func snapshotDir(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() == "inventory_admin_cloud_mode.json" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("ReadFile: %v", err)
		}
		out[e.Name()] = string(b)
	}
	return out
}

func TestMigrator_Run(t *testing.T) {
	ctx := context.Background()
	const m, n, p = 4, 2, 3
	src, dir := seedLocal(t, m, n, p)
	before := snapshotDir(t, dir)
	cloud := memory.NewStore()

	res, err := migrate.New(src, src, cloud).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Total() != m+n+p {
		t.Errorf("expected %d records migrated, got %d", m+n+p, res.Total())
	}
	if got := cloud.Count("items") + cloud.Count("suppliers") + cloud.Count("invoices"); got != m+n+p {
		t.Errorf("expected %d cloud records, got %d", m+n+p, got)
	}

	t.Run("LocalUnchanged", func(t *testing.T) {
		after := snapshotDir(t, dir)
		for k, v := range before {
			if after[k] != v {
				t.Errorf("local key %s changed during migration", k)
			}
		}
	})

	t.Run("CloudModeSet", func(t *testing.T) {
		on, err := src.CloudMode(ctx)
		if err != nil || !on {
			t.Errorf("expected cloud mode on after success, got %v (%v)", on, err)
		}
	})

	t.Run("ReferencesRewritten", func(t *testing.T) {
		invs, _ := cloud.List(ctx, "invoices")
		inv := invs[0]
		if _, err := cloud.Get(ctx, "suppliers", inv["supplier_id"].(string)); err != nil {
			t.Errorf("invoice supplier_id does not resolve in cloud: %v", err)
		}
		line := inv["items"].([]any)[0].(map[string]any)
		if _, err := cloud.Get(ctx, "items", line["item_id"].(string)); err != nil {
			t.Errorf("invoice line item_id does not resolve in cloud: %v", err)
		}
		if _, ok := inv["issue_date"].(time.Time); !ok {
			t.Errorf("expected issue_date converted to time.Time, got %T", inv["issue_date"])
		}
		if _, ok := inv["created_at"].(time.Time); !ok {
			t.Errorf("expected created_at converted to time.Time, got %T", inv["created_at"])
		}
	})

	t.Run("CountersCarriedOver", func(t *testing.T) {
		next, _ := cloud.Increment(ctx, "item")
		if next != m+1 {
			t.Errorf("expected item numbering to continue at %d, got %d", m+1, next)
		}
	})

	t.Run("SecondRunRefused", func(t *testing.T) {
		if _, err := migrate.New(src, src, cloud).Run(ctx); !errors.Is(err, migrate.ErrAlreadyMigrated) {
			t.Errorf("expected ErrAlreadyMigrated, got %v", err)
		}
	})
}

func TestMigrator_FailureCommitsNothing(t *testing.T) {
	ctx := context.Background()
	src, dir := seedLocal(t, 2, 1, 1)
	before := snapshotDir(t, dir)

	if _, err := migrate.New(src, src, failingTarget{}).Run(ctx); err == nil {
		t.Fatal("expected error from failing batch")
	}
	on, _ := src.CloudMode(ctx)
	if on {
		t.Error("expected cloud mode to stay off after a failed migration")
	}
	after := snapshotDir(t, dir)
	for k, v := range before {
		if after[k] != v {
			t.Errorf("local key %s changed after failed migration", k)
		}
	}

	// Retry against a healthy target succeeds.
	cloud := memory.NewStore()
	res, err := migrate.New(src, src, cloud).Run(ctx)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if res.Total() != 4 {
		t.Errorf("expected 4 records on retry, got %d", res.Total())
	}
}
