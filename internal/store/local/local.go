// Package local is the on-device backend: every collection is a JSON array
// stored under its own namespaced key (one file per key), alongside a key for
// sequence counters and a key for the local-vs-cloud mode preference.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"time"

	"inventory-admin/internal/store"

	"github.com/google/uuid"
)

var (
	_ store.Backend = (*Store)(nil)
	_ store.Counter = (*Store)(nil)
)

const (
	DefaultNamespace = "inventory_admin"
	countersKey      = "counters_seq"
	cloudModeKey     = "cloud_mode"
)

// Store persists collections as JSON files under dir.
type Store struct {
	dir       string
	namespace string
	mu        sync.Mutex
	now       func() time.Time
}

// NewStore opens (creating if needed) a local store rooted at dir.
func NewStore(dir, namespace string) (*Store, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create local data dir %s: %w", dir, err)
	}
	return &Store{dir: dir, namespace: namespace, now: time.Now}, nil
}

// Key returns the namespaced storage key for name, e.g. "inventory_admin_items".
func (s *Store) Key(name string) string {
	return s.namespace + "_" + name
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, s.Key(name)+".json")
}

func (s *Store) List(ctx context.Context, collection string) ([]store.Record, error) {
	if err := precheck(ctx, collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(collection)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(recs)
	return recs, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (store.Record, error) {
	if err := precheck(ctx, collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(collection)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) Insert(ctx context.Context, collection string, rec store.Record) (store.Record, error) {
	if err := precheck(ctx, collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(collection)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	stored := store.StripSystemFields(rec)
	stored[store.FieldID] = uuid.NewString()
	stored[store.FieldCreatedAt] = now
	stored[store.FieldUpdatedAt] = now
	recs = append(recs, stored)
	if err := s.save(collection, recs); err != nil {
		return nil, err
	}
	return roundTrip(stored)
}

func (s *Store) Update(ctx context.Context, collection, id string, patch store.Record) (store.Record, error) {
	if err := precheck(ctx, collection); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(collection)
	if err != nil {
		return nil, err
	}
	for i, r := range recs {
		if r.ID() != id {
			continue
		}
		for k, v := range store.StripSystemFields(patch) {
			r[k] = v
		}
		r[store.FieldUpdatedAt] = s.now().UTC().Format(time.RFC3339Nano)
		recs[i] = r
		if err := s.save(collection, recs); err != nil {
			return nil, err
		}
		return roundTrip(r)
	}
	return nil, store.ErrNotFound
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := precheck(ctx, collection); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, err := s.load(collection)
	if err != nil {
		return err
	}
	for i, r := range recs {
		if r.ID() == id {
			recs = append(recs[:i], recs[i+1:]...)
			return s.save(collection, recs)
		}
	}
	return store.ErrNotFound
}

func (s *Store) Find(ctx context.Context, collection, field string, value any) ([]store.Record, error) {
	recs, err := s.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, r := range recs {
		if reflect.DeepEqual(r[field], value) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Increment implements store.Counter using the counters key.
func (s *Store) Increment(ctx context.Context, entityType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	counters, err := s.loadCounters()
	if err != nil {
		return 0, err
	}
	counters[entityType]++
	if err := s.writeJSON(countersKey, counters); err != nil {
		return 0, err
	}
	return counters[entityType], nil
}

// Counters returns a snapshot of every sequence counter.
func (s *Store) Counters(ctx context.Context) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCounters()
}

// CloudMode reports whether the user has switched to cloud storage.
func (s *Store) CloudMode(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var on bool
	if err := s.readJSON(cloudModeKey, &on); err != nil {
		return false, err
	}
	return on, nil
}

// SetCloudMode records the storage mode preference.
func (s *Store) SetCloudMode(ctx context.Context, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeJSON(cloudModeKey, on)
}

func (s *Store) loadCounters() (map[string]int64, error) {
	counters := make(map[string]int64)
	if err := s.readJSON(countersKey, &counters); err != nil {
		return nil, err
	}
	return counters, nil
}

func (s *Store) load(collection string) ([]store.Record, error) {
	var recs []store.Record
	if err := s.readJSON(collection, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *Store) save(collection string, recs []store.Record) error {
	if recs == nil {
		recs = []store.Record{}
	}
	return s.writeJSON(collection, recs)
}

// readJSON leaves v untouched when the key has never been written.
func (s *Store) readJSON(name string, v any) error {
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", s.Key(name), err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", s.Key(name), err)
	}
	return nil
}

// writeJSON replaces the file atomically through a rename.
func (s *Store) writeJSON(name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.Key(name), err)
	}
	tmp, err := os.CreateTemp(s.dir, s.Key(name)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write %s: %w", s.Key(name), err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", s.Key(name), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", s.Key(name), err)
	}
	if err := os.Rename(tmp.Name(), s.path(name)); err != nil {
		return fmt.Errorf("write %s: %w", s.Key(name), err)
	}
	return nil
}

// roundTrip returns rec as it would be read back from disk, so callers see
// the same value types from Insert/Update as from List.
func roundTrip(rec store.Record) (store.Record, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var out store.Record
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// sortNewestFirst orders by created_at descending; records sharing a timestamp
// keep reverse insertion order.
func sortNewestFirst(recs []store.Record) {
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return store.TimeOf(recs[i], store.FieldCreatedAt).After(store.TimeOf(recs[j], store.FieldCreatedAt))
	})
}

func precheck(ctx context.Context, collection string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return store.CheckCollection(collection)
}
