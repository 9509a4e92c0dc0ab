package cli_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"inventory-admin/internal/adapters/cli"
	"inventory-admin/internal/app"
	"inventory-admin/internal/core"
	"inventory-admin/internal/store"
	"inventory-admin/internal/store/local"
	"inventory-admin/internal/store/memory"

	"github.com/shopspring/decimal"
)

func newLocalService(t *testing.T) app.ApplicationService {
	t.Helper()
	src, err := local.NewStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("local.NewStore: %v", err)
	}
	svc, err := app.NewAppService(app.Deps{Backend: src, BackendName: "local", Local: src, LowStockThreshold: 5})
	if err != nil {
		t.Fatalf("NewAppService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func noCloud(context.Context, string) (store.BatchWriter, func(), error) {
	return nil, nil, errors.New("no cloud configured")
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService(t)
	svc.Currencies().Add(ctx, core.Currency{Code: "USD", Name: "US Dollar", ExchangeRate: decimal.NewFromInt(1), IsBase: true})
	svc.Currencies().Add(ctx, core.Currency{Code: "SAR", Name: "Riyal", ExchangeRate: decimal.RequireFromString("3.75")})
	sup, _ := svc.Suppliers().Add(ctx, core.Supplier{Name: "Acme"})
	loc, _ := svc.Locations().Add(ctx, core.Location{Name: "Main", Kind: core.LocationWarehouse, Capacity: 10})
	svc.Items().Add(ctx, core.Item{Name: "Bolt", Unit: "pcs", SupplierID: sup.ID, LocationID: loc.ID})

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"NextNumber", []string{"next-number", "location"}, "LOC-000001"},
		{"CheckBlocked", []string{"check", "suppliers", sup.ID}, "cannot delete supplier: referenced by 1 item"},
		{"CheckDeletable", []string{"check", "locations", "nowhere"}, "can be deleted"},
		{"Convert", []string{"convert", "100", "usd", "sar"}, "100 USD = 375.00 SAR"},
		{"Report", []string{"report", "inventory"}, `"name": "Main"`},
		{"List", []string{"list", "items"}, `"reference": "ITEM-000001"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := cli.Run(ctx, svc, noCloud, &out, tt.args); err != nil {
				t.Fatalf("Run %v: %v", tt.args, err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("expected output to contain %q, got:\n%s", tt.want, out.String())
			}
		})
	}
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService(t)

	tests := []struct {
		name string
		args []string
	}{
		{"NoArgs", nil},
		{"UnknownCommand", []string{"payroll"}},
		{"MissingID", []string{"check", "items"}},
		{"BadAmount", []string{"convert", "abc", "USD", "SAR"}},
		{"UnknownReport", []string{"report", "payroll"}},
		{"UploadNotConfigured", []string{"report", "dashboard", "--upload"}},
		{"UnknownCollection", []string{"list", "pallets"}},
		{"CloudUnavailable", []string{"migrate", "--to", "mongo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if err := cli.Run(ctx, svc, noCloud, &out, tt.args); err == nil {
				t.Errorf("expected error for %v", tt.args)
			}
		})
	}
}

func TestRun_Migrate(t *testing.T) {
	ctx := context.Background()
	svc := newLocalService(t)
	svc.Suppliers().Add(ctx, core.Supplier{Name: "Acme"})

	cloud := memory.NewStore()
	var opened string
	open := func(_ context.Context, name string) (store.BatchWriter, func(), error) {
		opened = name
		return cloud, func() {}, nil
	}

	var out bytes.Buffer
	if err := cli.Run(ctx, svc, open, &out, []string{"migrate", "--to", "mongo"}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if opened != "mongo" {
		t.Errorf("expected mongo target, got %q", opened)
	}
	if cloud.Count(core.CollectionSuppliers) != 1 {
		t.Errorf("expected supplier in cloud store")
	}
	if !strings.Contains(out.String(), "Migrated to mongo") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	if err := cli.Run(ctx, svc, open, &out, []string{"migrate"}); err == nil {
		t.Error("expected second migration to be refused")
	}
}
