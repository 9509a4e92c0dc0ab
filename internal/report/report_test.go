package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"inventory-admin/internal/core"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/shopspring/decimal"
)

type staticList[T any] struct {
	items []T
	err   error
}

func (l staticList[T]) GetAll(context.Context) ([]T, error) { return l.items, l.err }

// gatedList blocks GetAll until release is closed and reports when it starts.
type gatedList[T any] struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
	items   []T
}

func (l *gatedList[T]) GetAll(ctx context.Context) ([]T, error) {
	l.once.Do(func() { close(l.started) })
	select {
	case <-l.release:
		return l.items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixture() Sources {
	usd := core.Currency{Base: core.Base{ID: "usd"}, Code: "USD", ExchangeRate: dec("1"), IsBase: true}
	sar := core.Currency{Base: core.Base{ID: "sar"}, Code: "SAR", ExchangeRate: dec("3.75")}
	return Sources{
		Currencies: staticList[core.Currency]{items: []core.Currency{usd, sar}},
		Locations: staticList[core.Location]{items: []core.Location{
			{Base: core.Base{ID: "wh"}, Name: "Warehouse", Kind: core.LocationWarehouse, Capacity: 200, CurrentStock: 50},
			{Base: core.Base{ID: "sh"}, Name: "Shelf", Kind: core.LocationShelf, Capacity: 0},
		}},
		Suppliers: staticList[core.Supplier]{items: []core.Supplier{
			{Base: core.Base{ID: "acme"}, Name: "Acme"},
			{Base: core.Base{ID: "globex"}, Name: "Globex"},
		}},
		Items: staticList[core.Item]{items: []core.Item{
			{Base: core.Base{ID: "i1"}, Name: "Bolt", Quantity: 100, UnitPrice: dec("2"), LocationID: "wh"},
			{Base: core.Base{ID: "i2"}, Name: "Lamp", Quantity: 5, UnitPrice: dec("75"), LocationID: "wh", CurrencyID: "sar"},
			{Base: core.Base{ID: "i3"}, Name: "Rope", Quantity: 0, UnitPrice: dec("10"), LocationID: "sh"},
		}},
		Invoices: staticList[core.Invoice]{items: []core.Invoice{
			{SupplierID: "acme", Status: core.InvoicePending, TotalAmount: dec("300")},
			{SupplierID: "acme", Status: core.InvoicePaid, TotalAmount: dec("100")},
			{SupplierID: "globex", Status: core.InvoicePending, TotalAmount: dec("375"), CurrencyID: "SAR"},
			{SupplierID: "globex", Status: core.InvoiceCancelled, TotalAmount: dec("999")},
		}},
		Shipments: staticList[core.Shipment]{items: []core.Shipment{
			{Status: core.ShipmentInTransit, ShippingCost: dec("100"), CustomsFees: dec("20"), Insurance: dec("5"),
				Items: []core.ShipmentItem{{ItemID: "i1", Quantity: 1, Weight: dec("12.5")}}},
			{Status: core.ShipmentInTransit, ShippingCost: dec("50"), CustomsFees: dec("0"), Insurance: dec("0")},
			{Status: core.ShipmentDelivered, ShippingCost: dec("10"), CustomsFees: dec("1"), Insurance: dec("1")},
		}},
	}
}

func TestDashboard(t *testing.T) {
	svc := NewService(fixture(), 5)
	d, err := svc.Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if d.BaseCurrency != "USD" {
		t.Errorf("expected base USD, got %s", d.BaseCurrency)
	}
	if d.Counts[core.CollectionItems] != 3 || d.Counts[core.CollectionInvoices] != 4 {
		t.Errorf("unexpected counts %v", d.Counts)
	}
	// 100*2 + (5*75)/3.75 + 0 = 200 + 100
	if !d.InventoryValue.Equal(dec("300")) {
		t.Errorf("expected inventory value 300, got %s", d.InventoryValue)
	}
	if len(d.LowStock) != 2 || d.LowStock[0].Name != "Rope" {
		t.Errorf("expected Rope then Lamp as low stock, got %+v", d.LowStock)
	}
	// 300 + 375/3.75
	if d.PendingInvoices != 2 || !d.PendingInvoiceTotal.Equal(dec("400")) {
		t.Errorf("expected 2 pending invoices totalling 400, got %d / %s", d.PendingInvoices, d.PendingInvoiceTotal)
	}
	if d.ShipmentsInTransit != 2 {
		t.Errorf("expected 2 shipments in transit, got %d", d.ShipmentsInTransit)
	}
	if len(d.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", d.Warnings)
	}
}

func TestDashboard_NoBaseCurrencyWarns(t *testing.T) {
	src := fixture()
	src.Currencies = staticList[core.Currency]{items: []core.Currency{
		{Code: "SAR", ExchangeRate: dec("3.75")},
	}}
	d, err := NewService(src, 5).Dashboard(context.Background())
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if len(d.Warnings) != 1 || !strings.Contains(d.Warnings[0], "not converted") {
		t.Errorf("expected one conversion warning, got %v", d.Warnings)
	}
}

func TestInventoryByLocation(t *testing.T) {
	rows, err := NewService(fixture(), 5).InventoryByLocation(context.Background())
	if err != nil {
		t.Fatalf("InventoryByLocation: %v", err)
	}
	if len(rows) != 2 || rows[1].Name != "Warehouse" {
		t.Fatalf("expected Shelf then Warehouse, got %+v", rows)
	}
	wh := rows[1]
	if wh.ItemCount != 2 || wh.Units != 105 {
		t.Errorf("expected 2 items / 105 units, got %d / %d", wh.ItemCount, wh.Units)
	}
	if !wh.Utilization.Equal(dec("25")) {
		t.Errorf("expected 25%% utilization, got %s", wh.Utilization)
	}
	if !wh.StockValue.Equal(dec("300")) {
		t.Errorf("expected stock value 300, got %s", wh.StockValue)
	}
	if !rows[0].Utilization.IsZero() {
		t.Errorf("expected zero utilization for zero-capacity shelf, got %s", rows[0].Utilization)
	}
}

func TestSupplierSpend(t *testing.T) {
	rows, err := NewService(fixture(), 5).SupplierSpend(context.Background())
	if err != nil {
		t.Fatalf("SupplierSpend: %v", err)
	}
	if rows[0].Name != "Acme" {
		t.Fatalf("expected Acme first, got %s", rows[0].Name)
	}
	if !rows[0].Total.Equal(dec("400")) || !rows[0].Paid.Equal(dec("100")) || !rows[0].Outstanding.Equal(dec("300")) {
		t.Errorf("unexpected Acme totals %+v", rows[0])
	}
	if rows[1].InvoiceCount != 1 || !rows[1].Total.Equal(dec("100")) {
		t.Errorf("expected cancelled invoice excluded for Globex, got %+v", rows[1])
	}
}

func TestShipmentCosts(t *testing.T) {
	rows, err := NewService(fixture(), 5).ShipmentCosts(context.Background())
	if err != nil {
		t.Fatalf("ShipmentCosts: %v", err)
	}
	if len(rows) != 4 || rows[0].Status != string(core.ShipmentInTransit) {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if rows[0].Count != 2 || !rows[0].LandedCost.Equal(dec("175")) || !rows[0].TotalWeight.Equal(dec("12.5")) {
		t.Errorf("unexpected in-transit totals %+v", rows[0])
	}
	if rows[3].Count != 1 || !rows[3].LandedCost.Equal(dec("12")) {
		t.Errorf("unexpected delivered totals %+v", rows[3])
	}
}

func TestBuild_LoadFailure(t *testing.T) {
	src := fixture()
	src.Items = staticList[core.Item]{err: errors.New("backend down")}
	if _, err := NewService(src, 5).Build(context.Background(), TypeInventory); err == nil {
		t.Fatal("expected load failure to surface")
	}
	if _, err := NewService(fixture(), 5).Build(context.Background(), "payroll"); err == nil {
		t.Fatal("expected unknown report type error")
	}
}

func TestExport(t *testing.T) {
	svc := NewService(fixture(), 5)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC) }

	a, err := svc.Export(context.Background(), TypeShipments)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if a.FileName() != "shipments-report-20240301T101500Z.json" {
		t.Errorf("unexpected file name %s", a.FileName())
	}
	var buf bytes.Buffer
	if _, err := a.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	var decoded struct {
		Type        string    `json:"type"`
		GeneratedAt time.Time `json:"generatedAt"`
		Data        []any     `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode artifact: %v", err)
	}
	if decoded.Type != TypeShipments || len(decoded.Data) != 4 || decoded.GeneratedAt.IsZero() {
		t.Errorf("unexpected artifact %+v", decoded)
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	return &s3.PutObjectOutput{}, nil
}

func TestUploader_Upload(t *testing.T) {
	a := &Artifact{Type: TypeDashboard, GeneratedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Data: map[string]int{"x": 1}}

	tests := []struct {
		name    string
		cfg     S3Config
		wantURL string
	}{
		{"S3URL", S3Config{Bucket: "exports", Region: "eu-west-1"},
			"https://exports.s3.eu-west-1.amazonaws.com/reports/dashboard-report-20240301T000000Z.json"},
		{"CloudFront", S3Config{Bucket: "exports", Region: "eu-west-1", CloudFrontDomain: "cdn.example.com"},
			"https://cdn.example.com/reports/dashboard-report-20240301T000000Z.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeS3{}
			url, err := NewUploaderWithClient(fake, tt.cfg).Upload(context.Background(), a)
			if err != nil {
				t.Fatalf("Upload: %v", err)
			}
			if url != tt.wantURL {
				t.Errorf("expected %s, got %s", tt.wantURL, url)
			}
			if *fake.input.ContentType != "application/json" {
				t.Errorf("unexpected content type %s", *fake.input.ContentType)
			}
		})
	}
}

func TestDashboard_CancelledCallerDoesNotFailOthers(t *testing.T) {
	src := fixture()
	gate := &gatedList[core.Item]{started: make(chan struct{}), release: make(chan struct{})}
	src.Items = gate
	svc := NewService(src, 5)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Dashboard(first)
		firstErr <- err
	}()
	<-gate.started

	second := make(chan error, 1)
	go func() {
		d, err := svc.Dashboard(context.Background())
		if err == nil && d.Counts[core.CollectionItems] != 0 {
			err = errors.New("unexpected item count")
		}
		second <- err
	}()

	cancel()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("expected the cancelled caller to see context.Canceled, got %v", err)
	}
	close(gate.release)

	select {
	case err := <-second:
		if err != nil {
			t.Errorf("expected the other caller to get the dashboard, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
}
