// Package memory is an in-process Backend used by tests and the "memory"
// storage mode. It implements every optional capability of package store.
package memory

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"inventory-admin/internal/store"

	"github.com/google/uuid"
)

var (
	_ store.Backend        = (*Store)(nil)
	_ store.Watcher        = (*Store)(nil)
	_ store.ContainsFinder = (*Store)(nil)
	_ store.Counter        = (*Store)(nil)
	_ store.BatchWriter    = (*Store)(nil)
)

type entry struct {
	rec store.Record
	seq uint64
}

// Store keeps collections in maps guarded by a single RWMutex.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]entry
	counters    map[string]int64
	seq         uint64
	now         func() time.Time

	watchMu  sync.Mutex
	watchers map[string]map[chan struct{}]struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns an empty in-memory store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]map[string]entry),
		counters:    make(map[string]int64),
		now:         time.Now,
		watchers:    make(map[string]map[chan struct{}]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Record, error) {
	if err := precheck(ctx, collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(collection, func(store.Record) bool { return true }), nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	if err := precheck(ctx, collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.collections[collection][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e.rec.Clone(), nil
}

func (s *Store) Insert(ctx context.Context, collection string, rec store.Record) (store.Record, error) {
	if err := precheck(ctx, collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := s.insertLocked(collection, "", rec)
	s.mu.Unlock()
	s.notify(collection)
	return out, nil
}

func (s *Store) insertLocked(collection, id string, rec store.Record) store.Record {
	now := s.now().UTC()
	created, updated := now, now
	if t, ok := rec[store.FieldCreatedAt].(time.Time); ok && id != "" {
		created, updated = t, t
		if u, ok := rec[store.FieldUpdatedAt].(time.Time); ok {
			updated = u
		}
	}
	if id == "" {
		id = uuid.NewString()
	}
	stored := store.StripSystemFields(rec.Clone())
	stored[store.FieldID] = id
	stored[store.FieldCreatedAt] = created
	stored[store.FieldUpdatedAt] = updated
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]entry)
	}
	s.seq++
	s.collections[collection][stored.ID()] = entry{rec: stored, seq: s.seq}
	return stored.Clone()
}

func (s *Store) Update(ctx context.Context, collection, id string, patch store.Record) (store.Record, error) {
	if err := precheck(ctx, collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	e, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	for k, v := range store.StripSystemFields(patch.Clone()) {
		e.rec[k] = v
	}
	e.rec[store.FieldUpdatedAt] = s.now().UTC()
	s.collections[collection][id] = e
	out := e.rec.Clone()
	s.mu.Unlock()
	s.notify(collection)
	return out, nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := precheck(ctx, collection); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.collections[collection][id]; !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	delete(s.collections[collection], id)
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *Store) Find(ctx context.Context, collection, field string, value any) ([]store.Record, error) {
	if err := precheck(ctx, collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(collection, func(r store.Record) bool { return equal(r[field], value) }), nil
}

// FindContaining matches records whose arrayField holds an element with
// elemField equal to value.
func (s *Store) FindContaining(ctx context.Context, collection, arrayField, elemField string, value any) ([]store.Record, error) {
	if err := precheck(ctx, collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sorted(collection, func(r store.Record) bool {
		elems, _ := r[arrayField].([]any)
		for _, el := range elems {
			if m, ok := el.(map[string]any); ok && equal(m[elemField], value) {
				return true
			}
		}
		return false
	}), nil
}

// Increment implements store.Counter.
func (s *Store) Increment(ctx context.Context, entityType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[entityType]++
	return s.counters[entityType], nil
}

// WriteBatch inserts every entry or, if any collection is unknown, none.
func (s *Store) WriteBatch(ctx context.Context, entries []store.BatchEntry) error {
	for _, e := range entries {
		if err := precheck(ctx, e.Collection); err != nil {
			return err
		}
	}
	touched := make(map[string]bool)
	s.mu.Lock()
	for _, e := range entries {
		if e.Collection == "counters" {
			if et, ok := e.Record["entity_type"].(string); ok {
				if v, ok := store.AsInt64(e.Record["value"]); ok && v > s.counters[et] {
					s.counters[et] = v
				}
			}
			continue
		}
		id := e.ID
		if id == "" {
			id = uuid.NewString()
		}
		s.insertLocked(e.Collection, id, e.Record)
		touched[e.Collection] = true
	}
	s.mu.Unlock()
	for c := range touched {
		s.notify(c)
	}
	return nil
}

// Count returns the number of records in a collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Watch implements store.Watcher. Notifications are coalesced: a slow
// onChange sees at most one pending signal.
func (s *Store) Watch(ctx context.Context, collection string, onChange func()) error {
	if err := store.CheckCollection(collection); err != nil {
		return err
	}
	ch := make(chan struct{}, 1)
	s.watchMu.Lock()
	if s.watchers[collection] == nil {
		s.watchers[collection] = make(map[chan struct{}]struct{})
	}
	s.watchers[collection][ch] = struct{}{}
	s.watchMu.Unlock()

	defer func() {
		s.watchMu.Lock()
		delete(s.watchers[collection], ch)
		s.watchMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			onChange()
		}
	}
}

func (s *Store) notify(collection string) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for ch := range s.watchers[collection] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) sorted(collection string, keep func(store.Record) bool) []store.Record {
	entries := make([]entry, 0, len(s.collections[collection]))
	for _, e := range s.collections[collection] {
		if keep(e.rec) {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		ti := store.TimeOf(entries[i].rec, store.FieldCreatedAt)
		tj := store.TimeOf(entries[j].rec, store.FieldCreatedAt)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].seq > entries[j].seq
	})
	out := make([]store.Record, len(entries))
	for i, e := range entries {
		out[i] = e.rec.Clone()
	}
	return out
}

func precheck(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.CheckCollection(collection)
}

func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta.Comparable() && tb.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
