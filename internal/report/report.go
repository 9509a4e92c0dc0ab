// Package report computes the read-only dashboard and aggregate reports shown
// on the admin pages, and packages them as downloadable artifacts.
package report

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"inventory-admin/internal/core"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Report types accepted by Build and Export.
const (
	TypeDashboard = "dashboard"
	TypeInventory = "inventory"
	TypeSuppliers = "suppliers"
	TypeShipments = "shipments"
)

// Types lists every report type.
var Types = []string{TypeDashboard, TypeInventory, TypeSuppliers, TypeShipments}

// ErrUnknownType is returned for a report type outside Types.
var ErrUnknownType = errors.New("unknown report type")

// Lister is the read side of an entity store.
type Lister[T any] interface {
	GetAll(ctx context.Context) ([]T, error)
}

// Sources are the collections reports are computed from.
type Sources struct {
	Items      Lister[core.Item]
	Suppliers  Lister[core.Supplier]
	Invoices   Lister[core.Invoice]
	Locations  Lister[core.Location]
	Shipments  Lister[core.Shipment]
	Currencies Lister[core.Currency]
}

// ── Report types ──────────────────────────────────────────────────────────────

type LowStockItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Reference string `json:"reference"`
	Quantity  int    `json:"quantity"`
}

// Dashboard is the landing-page summary. Money is in the base currency.
type Dashboard struct {
	BaseCurrency        string          `json:"baseCurrency"`
	Counts              map[string]int  `json:"counts"`
	InventoryValue      decimal.Decimal `json:"inventoryValue"`
	TotalUnits          int             `json:"totalUnits"`
	LowStockThreshold   int             `json:"lowStockThreshold"`
	LowStock            []LowStockItem  `json:"lowStock"`
	PendingInvoices     int             `json:"pendingInvoices"`
	PendingInvoiceTotal decimal.Decimal `json:"pendingInvoiceTotal"`
	ShipmentsInTransit  int             `json:"shipmentsInTransit"`
	Warnings            []string        `json:"warnings,omitempty"`
}

// LocationUsage is one row of the inventory-by-location report.
type LocationUsage struct {
	LocationID   string          `json:"locationId"`
	Name         string          `json:"name"`
	Kind         string          `json:"kind"`
	Capacity     int             `json:"capacity"`
	CurrentStock int             `json:"currentStock"`
	Utilization  decimal.Decimal `json:"utilization"`
	ItemCount    int             `json:"itemCount"`
	Units        int             `json:"units"`
	StockValue   decimal.Decimal `json:"stockValue"`
}

// SupplierSpend totals invoices per supplier.
type SupplierSpend struct {
	SupplierID   string          `json:"supplierId"`
	Name         string          `json:"name"`
	InvoiceCount int             `json:"invoiceCount"`
	Total        decimal.Decimal `json:"total"`
	Paid         decimal.Decimal `json:"paid"`
	Outstanding  decimal.Decimal `json:"outstanding"`
}

// ShipmentCost totals landed cost per shipment status.
type ShipmentCost struct {
	Status       string          `json:"status"`
	Count        int             `json:"count"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	CustomsFees  decimal.Decimal `json:"customsFees"`
	Insurance    decimal.Decimal `json:"insurance"`
	LandedCost   decimal.Decimal `json:"landedCost"`
	TotalWeight  decimal.Decimal `json:"totalWeight"`
}

// Artifact is the exported report file.
type Artifact struct {
	Type        string    `json:"type"`
	GeneratedAt time.Time `json:"generatedAt"`
	Data        any       `json:"data"`
}

// ── Service ───────────────────────────────────────────────────────────────────

// Service builds reports. Concurrent dashboard requests share one computation.
type Service struct {
	src               Sources
	lowStockThreshold int
	now               func() time.Time
	group             singleflight.Group
}

// NewService returns a Service. Items at or below lowStockThreshold units are
// listed as low stock.
func NewService(src Sources, lowStockThreshold int) *Service {
	return &Service{src: src, lowStockThreshold: lowStockThreshold, now: time.Now}
}

// snapshot is every collection read at roughly the same moment.
type snapshot struct {
	items      []core.Item
	suppliers  []core.Supplier
	invoices   []core.Invoice
	locations  []core.Location
	shipments  []core.Shipment
	currencies []core.Currency
}

func fetch[T any](ctx context.Context, g *errgroup.Group, l Lister[T], dst *[]T) {
	if l == nil {
		return
	}
	g.Go(func() error {
		v, err := l.GetAll(ctx)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	})
}

func (s *Service) load(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)
	fetch(gctx, g, s.src.Items, &snap.items)
	fetch(gctx, g, s.src.Suppliers, &snap.suppliers)
	fetch(gctx, g, s.src.Invoices, &snap.invoices)
	fetch(gctx, g, s.src.Locations, &snap.locations)
	fetch(gctx, g, s.src.Shipments, &snap.shipments)
	fetch(gctx, g, s.src.Currencies, &snap.currencies)
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load report data: %w", err)
	}
	return snap, nil
}

// Build computes the report of the given type.
func (s *Service) Build(ctx context.Context, reportType string) (any, error) {
	switch reportType {
	case TypeDashboard:
		return s.Dashboard(ctx)
	case TypeInventory:
		return s.InventoryByLocation(ctx)
	case TypeSuppliers:
		return s.SupplierSpend(ctx)
	case TypeShipments:
		return s.ShipmentCosts(ctx)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownType, reportType)
}

// Export builds the report and wraps it in an Artifact.
func (s *Service) Export(ctx context.Context, reportType string) (*Artifact, error) {
	data, err := s.Build(ctx, reportType)
	if err != nil {
		return nil, err
	}
	return &Artifact{Type: reportType, GeneratedAt: s.now().UTC(), Data: data}, nil
}

// dashboardLoadTimeout bounds a coalesced dashboard load, which no longer
// follows any single caller's context.
const dashboardLoadTimeout = 30 * time.Second

// Dashboard computes the landing-page summary. Concurrent callers share one
// load; a caller that gives up does not cancel it for the others.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	ch := s.group.DoChan(TypeDashboard, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dashboardLoadTimeout)
		defer cancel()
		snap, err := s.load(loadCtx)
		if err != nil {
			return nil, err
		}
		return s.dashboard(snap), nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Dashboard), nil
	}
}

func (s *Service) dashboard(snap *snapshot) *Dashboard {
	conv := newConverter(snap.currencies)
	d := &Dashboard{
		BaseCurrency: conv.baseCode(),
		Counts: map[string]int{
			core.CollectionItems:      len(snap.items),
			core.CollectionSuppliers:  len(snap.suppliers),
			core.CollectionInvoices:   len(snap.invoices),
			core.CollectionLocations:  len(snap.locations),
			core.CollectionShipments:  len(snap.shipments),
			core.CollectionCurrencies: len(snap.currencies),
		},
		InventoryValue:      decimal.Zero,
		LowStockThreshold:   s.lowStockThreshold,
		LowStock:            []LowStockItem{},
		PendingInvoiceTotal: decimal.Zero,
	}
	for _, it := range snap.items {
		d.TotalUnits += it.Quantity
		d.InventoryValue = d.InventoryValue.Add(conv.toBase(it.StockValue(), it.CurrencyID))
		if it.Quantity <= s.lowStockThreshold {
			d.LowStock = append(d.LowStock, LowStockItem{ID: it.ID, Name: it.Name, Reference: it.Reference, Quantity: it.Quantity})
		}
	}
	sort.SliceStable(d.LowStock, func(i, j int) bool { return d.LowStock[i].Quantity < d.LowStock[j].Quantity })

	for _, inv := range snap.invoices {
		if inv.Status == core.InvoicePending {
			d.PendingInvoices++
			d.PendingInvoiceTotal = d.PendingInvoiceTotal.Add(conv.toBase(inv.TotalAmount, inv.CurrencyID))
		}
	}
	for _, sh := range snap.shipments {
		if sh.Status == core.ShipmentInTransit {
			d.ShipmentsInTransit++
		}
	}
	d.Warnings = conv.warnings
	return d
}

// InventoryByLocation reports usage against capacity and the value stored at
// each location.
func (s *Service) InventoryByLocation(ctx context.Context) ([]LocationUsage, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	conv := newConverter(snap.currencies)
	rows := make([]LocationUsage, 0, len(snap.locations))
	index := make(map[string]int, len(snap.locations))
	for _, loc := range snap.locations {
		index[loc.ID] = len(rows)
		util := decimal.Zero
		if loc.Capacity > 0 {
			util = decimal.NewFromInt(int64(loc.CurrentStock)).
				Div(decimal.NewFromInt(int64(loc.Capacity))).
				Mul(decimal.NewFromInt(100)).Round(2)
		}
		rows = append(rows, LocationUsage{
			LocationID:   loc.ID,
			Name:         loc.Name,
			Kind:         string(loc.Kind),
			Capacity:     loc.Capacity,
			CurrentStock: loc.CurrentStock,
			Utilization:  util,
			StockValue:   decimal.Zero,
		})
	}
	for _, it := range snap.items {
		i, ok := index[it.LocationID]
		if !ok {
			continue
		}
		rows[i].ItemCount++
		rows[i].Units += it.Quantity
		rows[i].StockValue = rows[i].StockValue.Add(conv.toBase(it.StockValue(), it.CurrencyID))
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
	return rows, nil
}

// SupplierSpend totals invoices per supplier, largest spend first.
func (s *Service) SupplierSpend(ctx context.Context) ([]SupplierSpend, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	conv := newConverter(snap.currencies)
	rows := make([]SupplierSpend, 0, len(snap.suppliers))
	index := make(map[string]int, len(snap.suppliers))
	for _, sup := range snap.suppliers {
		index[sup.ID] = len(rows)
		rows = append(rows, SupplierSpend{
			SupplierID:  sup.ID,
			Name:        sup.Name,
			Total:       decimal.Zero,
			Paid:        decimal.Zero,
			Outstanding: decimal.Zero,
		})
	}
	for _, inv := range snap.invoices {
		i, ok := index[inv.SupplierID]
		if !ok || inv.Status == core.InvoiceCancelled {
			continue
		}
		amount := conv.toBase(inv.TotalAmount, inv.CurrencyID)
		r := &rows[i]
		r.InvoiceCount++
		r.Total = r.Total.Add(amount)
		if inv.Status == core.InvoicePaid {
			r.Paid = r.Paid.Add(amount)
		} else {
			r.Outstanding = r.Outstanding.Add(amount)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Total.GreaterThan(rows[j].Total) })
	return rows, nil
}

// ShipmentCosts totals landed cost per status in a fixed status order.
func (s *Service) ShipmentCosts(ctx context.Context) ([]ShipmentCost, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	order := []core.ShipmentStatus{core.ShipmentInTransit, core.ShipmentCustoms, core.ShipmentArrived, core.ShipmentDelivered}
	byStatus := make(map[core.ShipmentStatus]*ShipmentCost, len(order))
	for _, st := range order {
		byStatus[st] = &ShipmentCost{
			Status:       string(st),
			ShippingCost: decimal.Zero,
			CustomsFees:  decimal.Zero,
			Insurance:    decimal.Zero,
			LandedCost:   decimal.Zero,
			TotalWeight:  decimal.Zero,
		}
	}
	for _, sh := range snap.shipments {
		c, ok := byStatus[sh.Status]
		if !ok {
			continue
		}
		c.Count++
		c.ShippingCost = c.ShippingCost.Add(sh.ShippingCost)
		c.CustomsFees = c.CustomsFees.Add(sh.CustomsFees)
		c.Insurance = c.Insurance.Add(sh.Insurance)
		c.LandedCost = c.LandedCost.Add(sh.LandedCost())
		c.TotalWeight = c.TotalWeight.Add(sh.TotalWeight())
	}
	out := make([]ShipmentCost, 0, len(order))
	for _, st := range order {
		out = append(out, *byStatus[st])
	}
	return out, nil
}

// converter turns amounts into the base currency. With no usable currency
// table amounts pass through unchanged and a warning is recorded.
type converter struct {
	table    *core.CurrencyTable
	warnings []string
	seen     map[string]bool
}

func newConverter(currencies []core.Currency) *converter {
	c := &converter{seen: make(map[string]bool)}
	if len(currencies) == 0 {
		return c
	}
	table, err := core.NewCurrencyTable(currencies)
	if err != nil {
		c.warn(fmt.Sprintf("currency table unusable, amounts not converted: %v", err))
		return c
	}
	c.table = table
	return c
}

func (c *converter) baseCode() string {
	if c.table == nil {
		return ""
	}
	return c.table.Base().Code
}

func (c *converter) toBase(amount decimal.Decimal, ref string) decimal.Decimal {
	if c.table == nil || ref == "" {
		return amount
	}
	v, err := c.table.ToBase(amount, ref)
	if err != nil {
		c.warn(fmt.Sprintf("unknown currency %q, amount not converted", ref))
		return amount
	}
	return v
}

func (c *converter) warn(msg string) {
	if !c.seen[msg] {
		c.seen[msg] = true
		c.warnings = append(c.warnings, msg)
	}
}
