// Package store defines the persistence capability interface shared by every
// backend (memory, local files, Postgres, Mongo, REST). Records crossing this
// boundary are in persisted form: snake_case keys plus id, created_at and
// updated_at.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrUnknownCollection = errors.New("unknown collection")
)

// System-managed field names in persisted form.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// Record is one row/document in persisted form.
type Record map[string]any

// ID returns the record's id as a string, or "".
func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// Clone returns a deep copy of the record's maps and slices.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return Record(cloneValue(map[string]any(r)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Record:
		return Record(cloneValue(map[string]any(t)).(map[string]any))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}

// Backend is the CRUD surface every persistence adapter provides.
type Backend interface {
	// List returns every record in the collection, newest first by created_at.
	List(ctx context.Context, collection string) ([]Record, error)

	// Get returns one record or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Record, error)

	// Insert stores rec and returns it with id, created_at and updated_at assigned
	// by the backend. Any id or timestamps on rec are ignored.
	Insert(ctx context.Context, collection string, rec Record) (Record, error)

	// Update merges patch into the stored record, re-stamps updated_at, and returns
	// the full updated record. Returns ErrNotFound when the id does not exist.
	Update(ctx context.Context, collection, id string, patch Record) (Record, error)

	// Delete removes the record. Returns ErrNotFound when the id does not exist.
	Delete(ctx context.Context, collection, id string) error

	// Find returns records whose top-level field equals value.
	Find(ctx context.Context, collection, field string, value any) ([]Record, error)
}

// Watcher is implemented by backends with a live change feed. Watch blocks until
// ctx is cancelled or the feed fails, calling onChange after every committed
// change to the collection.
type Watcher interface {
	Watch(ctx context.Context, collection string, onChange func()) error
}

// ContainsFinder is implemented by backends that can look inside embedded arrays
// without scanning the whole collection client-side.
type ContainsFinder interface {
	FindContaining(ctx context.Context, collection, arrayField, elemField string, value any) ([]Record, error)
}

// Counter hands out per-entity-type sequence values starting at 1.
type Counter interface {
	Increment(ctx context.Context, entityType string) (int64, error)
}

// BatchEntry is one record destined for a collection in a batch write. When
// ID is set the record is stored under it; otherwise the backend assigns one.
type BatchEntry struct {
	Collection string
	ID         string
	Record     Record
}

// BatchWriter writes a set of records atomically: either all are committed or
// none are.
type BatchWriter interface {
	WriteBatch(ctx context.Context, entries []BatchEntry) error
}

// KnownCollections is the closed set of collection names a backend accepts.
var KnownCollections = map[string]bool{
	"items":      true,
	"suppliers":  true,
	"invoices":   true,
	"locations":  true,
	"shipments":  true,
	"currencies": true,
	"counters":   true,
}

// CheckCollection returns ErrUnknownCollection for names outside KnownCollections.
func CheckCollection(name string) error {
	if !KnownCollections[name] {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return nil
}

// StripSystemFields returns a copy of rec without id and timestamps.
func StripSystemFields(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		switch k {
		case FieldID, FieldCreatedAt, FieldUpdatedAt:
			continue
		}
		out[k] = v
	}
	return out
}

// TimeOf reads a timestamp field that may be a time.Time or an RFC 3339 string.
func TimeOf(rec Record, field string) time.Time {
	switch t := rec[field].(type) {
	case time.Time:
		return t
	case string:
		ts, err := time.Parse(time.RFC3339Nano, t)
		if err == nil {
			return ts
		}
	}
	return time.Time{}
}
