// Package integrity decides whether an entity can be deleted without leaving
// other records pointing at it.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"inventory-admin/internal/core"
	"inventory-admin/internal/store"
)

// MaxSampleLabels caps how many blocking records are named in a Blocker.
const MaxSampleLabels = 5

// Kind is the entity kind being checked.
type Kind string

const (
	KindSupplier Kind = "supplier"
	KindItem     Kind = "item"
	KindLocation Kind = "location"
	KindInvoice  Kind = "invoice"
	KindShipment Kind = "shipment"
	KindCurrency Kind = "currency"
)

var collectionKinds = map[string]Kind{
	core.CollectionSuppliers:  KindSupplier,
	core.CollectionItems:      KindItem,
	core.CollectionLocations:  KindLocation,
	core.CollectionInvoices:   KindInvoice,
	core.CollectionShipments:  KindShipment,
	core.CollectionCurrencies: KindCurrency,
}

// KindForCollection maps a collection name to the kind checked before deletes.
func KindForCollection(collection string) (Kind, bool) {
	k, ok := collectionKinds[collection]
	return k, ok
}

// Blocker is one kind of dependent record preventing a delete.
type Blocker struct {
	Kind         string   `json:"kind"`
	Count        int      `json:"count"`
	SampleLabels []string `json:"sampleLabels"`
}

// Report is the outcome of a deletability check. Deletable is true iff
// Blockers is empty.
type Report struct {
	Kind      Kind      `json:"entity"`
	ID        string    `json:"id"`
	Deletable bool      `json:"deletable"`
	Blockers  []Blocker `json:"blockers"`
}

// Message renders the report for display, e.g.
// "cannot delete supplier: referenced by 2 items, 1 invoice".
func (r *Report) Message() string {
	if r.Deletable {
		return ""
	}
	parts := make([]string, 0, len(r.Blockers))
	for _, b := range r.Blockers {
		noun := b.Kind
		if b.Count == 1 {
			noun = singular(noun)
		}
		parts = append(parts, fmt.Sprintf("%d %s", b.Count, noun))
	}
	return fmt.Sprintf("cannot delete %s: referenced by %s", r.Kind, strings.Join(parts, ", "))
}

func singular(collection string) string {
	if collection == core.CollectionCurrencies {
		return "currency"
	}
	return strings.TrimSuffix(collection, "s")
}

func (r *Report) add(b *Blocker) {
	if b == nil || b.Count == 0 {
		return
	}
	r.Blockers = append(r.Blockers, *b)
	r.Deletable = false
}

// Checker runs relationship checks against a backend.
type Checker struct {
	backend store.Backend
}

// NewChecker returns a Checker reading from backend.
func NewChecker(backend store.Backend) *Checker {
	return &Checker{backend: backend}
}

// Check reports whether the entity of the given kind can be deleted. A read
// failure is returned as an error; callers must treat it as not deletable.
func (c *Checker) Check(ctx context.Context, kind Kind, id string) (*Report, error) {
	var (
		rep *Report
		err error
	)
	switch kind {
	case KindSupplier:
		rep, err = c.CheckSupplier(ctx, id)
	case KindItem:
		rep, err = c.CheckItem(ctx, id)
	case KindLocation:
		rep, err = c.CheckLocation(ctx, id)
	case KindCurrency:
		rep, err = c.CheckCurrency(ctx, id)
	case KindInvoice, KindShipment:
		// Nothing references invoices or shipments.
		rep = newReport(kind, id)
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	if err != nil {
		log.Printf("integrity: check %s %s failed: %v", kind, id, err)
		return nil, fmt.Errorf("check %s %s: %w", kind, id, err)
	}
	return rep, nil
}

// Guard adapts Check for a single kind so it can gate an entity store's deletes.
func (c *Checker) Guard(kind Kind) func(ctx context.Context, id string) (*Report, error) {
	return func(ctx context.Context, id string) (*Report, error) {
		return c.Check(ctx, kind, id)
	}
}

// CheckSupplier looks for items and invoices with a matching supplier_id.
func (c *Checker) CheckSupplier(ctx context.Context, id string) (*Report, error) {
	rep := newReport(KindSupplier, id)
	for _, coll := range []string{core.CollectionItems, core.CollectionInvoices} {
		b, err := c.byField(ctx, coll, "supplier_id", id)
		if err != nil {
			return nil, err
		}
		rep.add(b)
	}
	return rep, nil
}

// CheckItem looks for invoice and shipment lines pointing at the item.
func (c *Checker) CheckItem(ctx context.Context, id string) (*Report, error) {
	rep := newReport(KindItem, id)
	for _, coll := range []string{core.CollectionInvoices, core.CollectionShipments} {
		b, err := c.byLine(ctx, coll, id)
		if err != nil {
			return nil, err
		}
		rep.add(b)
	}
	return rep, nil
}

// CheckLocation looks for items stored at the location.
func (c *Checker) CheckLocation(ctx context.Context, id string) (*Report, error) {
	rep := newReport(KindLocation, id)
	b, err := c.byField(ctx, core.CollectionItems, "location_id", id)
	if err != nil {
		return nil, err
	}
	rep.add(b)
	return rep, nil
}

// CheckCurrency looks for items and invoices priced in the currency. The base
// currency is also blocked while any other currency exists, since their rates
// are expressed against it.
func (c *Checker) CheckCurrency(ctx context.Context, id string) (*Report, error) {
	rep := newReport(KindCurrency, id)
	for _, coll := range []string{core.CollectionItems, core.CollectionInvoices} {
		b, err := c.byField(ctx, coll, "currency_id", id)
		if err != nil {
			return nil, err
		}
		rep.add(b)
	}

	cur, err := c.backend.Get(ctx, core.CollectionCurrencies, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return rep, nil
		}
		return nil, err
	}
	if isBase, _ := cur["is_base"].(bool); isBase {
		all, err := c.backend.List(ctx, core.CollectionCurrencies)
		if err != nil {
			return nil, err
		}
		var others []store.Record
		for _, r := range all {
			if r.ID() != id {
				others = append(others, r)
			}
		}
		rep.add(blocker(core.CollectionCurrencies, others))
	}
	return rep, nil
}

func (c *Checker) byField(ctx context.Context, collection, field, id string) (*Blocker, error) {
	recs, err := c.backend.Find(ctx, collection, field, id)
	if err != nil {
		return nil, err
	}
	return blocker(collection, recs), nil
}

// byLine uses the backend's array lookup when it has one and otherwise scans
// the whole collection.
func (c *Checker) byLine(ctx context.Context, collection, itemID string) (*Blocker, error) {
	if cf, ok := c.backend.(store.ContainsFinder); ok {
		recs, err := cf.FindContaining(ctx, collection, "items", "item_id", itemID)
		if err != nil {
			return nil, err
		}
		return blocker(collection, recs), nil
	}

	all, err := c.backend.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	var recs []store.Record
	for _, r := range all {
		if hasLine(r, itemID) {
			recs = append(recs, r)
		}
	}
	return blocker(collection, recs), nil
}

func hasLine(r store.Record, itemID string) bool {
	lines, _ := r["items"].([]any)
	for _, l := range lines {
		if m, ok := l.(map[string]any); ok && m["item_id"] == itemID {
			return true
		}
	}
	return false
}

func blocker(collection string, recs []store.Record) *Blocker {
	if len(recs) == 0 {
		return nil
	}
	b := &Blocker{Kind: collection, Count: len(recs)}
	for i := 0; i < len(recs) && i < MaxSampleLabels; i++ {
		b.SampleLabels = append(b.SampleLabels, label(recs[i]))
	}
	return b
}

// label picks the most human-readable identifier a record has.
func label(r store.Record) string {
	for _, f := range []string{"invoice_number", "shipment_number", "name", "reference", "code"} {
		if s, ok := r[f].(string); ok && s != "" {
			return s
		}
	}
	return r.ID()
}

func newReport(kind Kind, id string) *Report {
	return &Report{Kind: kind, ID: id, Deletable: true, Blockers: []Blocker{}}
}
