// Package migrate copies everything kept in the local store into a cloud
// backend in one atomic batch, then flips the storage-mode preference.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"inventory-admin/internal/core"
	"inventory-admin/internal/mapper"
	"inventory-admin/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrAlreadyMigrated is returned when the cloud-mode preference is already set.
var ErrAlreadyMigrated = errors.New("local data already migrated to cloud")

// Source is the local store being migrated from.
type Source interface {
	List(ctx context.Context, collection string) ([]store.Record, error)
	Counters(ctx context.Context) (map[string]int64, error)
}

// Preferences records whether the user has switched to cloud storage.
type Preferences interface {
	CloudMode(ctx context.Context) (bool, error)
	SetCloudMode(ctx context.Context, on bool) error
}

// Result summarizes a completed migration.
type Result struct {
	Records  map[string]int `json:"records"`
	Counters int            `json:"counters"`
}

// Total is the number of entity records written.
func (r *Result) Total() int {
	n := 0
	for _, c := range r.Records {
		n += c
	}
	return n
}

// Migrator moves local collections into a cloud BatchWriter.
type Migrator struct {
	source      Source
	prefs       Preferences
	target      store.BatchWriter
	collections []string
}

// New returns a Migrator over every business collection.
func New(source Source, prefs Preferences, target store.BatchWriter) *Migrator {
	return &Migrator{
		source:      source,
		prefs:       prefs,
		target:      target,
		collections: core.BusinessCollections,
	}
}

// references maps a persisted reference field to the collection it points at.
var references = map[string]string{
	"supplier_id": core.CollectionSuppliers,
	"location_id": core.CollectionLocations,
	"currency_id": core.CollectionCurrencies,
}

// Run performs the migration. Local ids are replaced with fresh cloud ids and
// every reference between records is rewritten to match. Either every record
// is committed or none is; the local store is only read, so a failed run can
// be retried.
func (m *Migrator) Run(ctx context.Context) (*Result, error) {
	on, err := m.prefs.CloudMode(ctx)
	if err != nil {
		return nil, fmt.Errorf("read storage mode: %w", err)
	}
	if on {
		return nil, ErrAlreadyMigrated
	}

	loaded := make([][]store.Record, len(m.collections))
	var counters map[string]int64
	g, gctx := errgroup.WithContext(ctx)
	for i, coll := range m.collections {
		g.Go(func() error {
			recs, err := m.source.List(gctx, coll)
			if err != nil {
				return fmt.Errorf("read local %s: %w", coll, err)
			}
			loaded[i] = recs
			return nil
		})
	}
	g.Go(func() error {
		c, err := m.source.Counters(gctx)
		if err != nil {
			return fmt.Errorf("read local counters: %w", err)
		}
		counters = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ids := make(map[string]map[string]string, len(m.collections))
	for i, coll := range m.collections {
		ids[coll] = make(map[string]string, len(loaded[i]))
		for _, rec := range loaded[i] {
			if old := rec.ID(); old != "" {
				ids[coll][old] = uuid.NewString()
			}
		}
	}

	res := &Result{Records: make(map[string]int, len(m.collections))}
	var entries []store.BatchEntry
	for i, coll := range m.collections {
		for _, rec := range loaded[i] {
			newID := ids[coll][rec.ID()]
			if newID == "" {
				newID = uuid.NewString()
			}
			entries = append(entries, store.BatchEntry{
				Collection: coll,
				ID:         newID,
				Record:     convert(coll, rec, ids),
			})
		}
		res.Records[coll] = len(loaded[i])
	}

	types := make([]string, 0, len(counters))
	for t := range counters {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		entries = append(entries, store.BatchEntry{
			Collection: core.CollectionCounters,
			Record:     store.Record{"entity_type": t, "value": counters[t]},
		})
	}
	res.Counters = len(types)

	if err := m.target.WriteBatch(ctx, entries); err != nil {
		log.Printf("migrate: batch of %d entries abandoned: %v", len(entries), err)
		return nil, fmt.Errorf("write cloud batch: %w", err)
	}
	if err := m.prefs.SetCloudMode(ctx, true); err != nil {
		return nil, fmt.Errorf("records migrated but storage mode not saved: %w", err)
	}
	log.Printf("migrate: moved %d records and %d counters to cloud", res.Total(), res.Counters)
	return res, nil
}

// convert prepares one local record for the cloud: the id is dropped, date
// fields become time.Time and references point at the new ids.
func convert(collection string, rec store.Record, ids map[string]map[string]string) store.Record {
	out := rec.Clone()
	delete(out, store.FieldID)

	dateFields := append([]string{store.FieldCreatedAt, store.FieldUpdatedAt}, mapper.DateFields[collection]...)
	for _, f := range dateFields {
		if t, ok := mapper.ParseDate(out[f]); ok {
			out[f] = t
		}
	}

	for field, target := range references {
		if old, ok := out[field].(string); ok {
			if id, ok := ids[target][old]; ok {
				out[field] = id
			}
		}
	}
	if lines, ok := out["items"].([]any); ok {
		for _, l := range lines {
			if line, ok := l.(map[string]any); ok {
				if old, ok := line["item_id"].(string); ok {
					if id, ok := ids[core.CollectionItems][old]; ok {
						line["item_id"] = id
					}
				}
			}
		}
	}
	return out
}
