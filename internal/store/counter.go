package store

import (
	"context"
	"fmt"
	"math"
)

// BackendCounter implements Counter on top of any Backend by reading the
// counters row for an entity type, incrementing it and writing it back. It is
// not safe against concurrent writers on other processes; backends with an
// atomic upsert should implement Counter themselves.
type BackendCounter struct {
	backend Backend
}

// NewBackendCounter wraps backend's counters collection.
func NewBackendCounter(backend Backend) *BackendCounter {
	return &BackendCounter{backend: backend}
}

// Increment returns the next value for entityType, creating the row at 1.
func (c *BackendCounter) Increment(ctx context.Context, entityType string) (int64, error) {
	rows, err := c.backend.Find(ctx, "counters", "entity_type", entityType)
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", entityType, err)
	}
	if len(rows) == 0 {
		if _, err := c.backend.Insert(ctx, "counters", Record{"entity_type": entityType, "value": int64(1)}); err != nil {
			return 0, fmt.Errorf("create counter %s: %w", entityType, err)
		}
		return 1, nil
	}
	row := rows[0]
	current, ok := AsInt64(row["value"])
	if !ok {
		return 0, fmt.Errorf("counter %s: value %v is not an integer", entityType, row["value"])
	}
	next := current + 1
	if _, err := c.backend.Update(ctx, "counters", row.ID(), Record{"value": next}); err != nil {
		return 0, fmt.Errorf("update counter %s: %w", entityType, err)
	}
	return next, nil
}

// AsInt64 converts the numeric types produced by JSON, BSON and pgx into int64.
func AsInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case interface{ Int64() (int64, error) }:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}
