// Package numbering mints human-readable, gapless document numbers such as
// INV-000042 from per-entity-type counters.
package numbering

import (
	"context"
	"fmt"
	"log"
	"time"

	"inventory-admin/internal/store"
)

// DefaultPrefixes maps entity type to its number prefix.
var DefaultPrefixes = map[string]string{
	"item":     "ITEM-",
	"supplier": "SUP-",
	"invoice":  "INV-",
	"location": "LOC-",
	"shipment": "SHP-",
}

// Service hands out numbers from a store.Counter.
type Service struct {
	counter store.Counter
	now     func() time.Time
}

// NewService uses the backend's own counter when it has one and otherwise
// falls back to read-increment-write on the counters collection.
func NewService(backend store.Backend) *Service {
	counter, ok := backend.(store.Counter)
	if !ok {
		counter = store.NewBackendCounter(backend)
	}
	return &Service{counter: counter, now: time.Now}
}

// Number is a minted document number. Seq is the counter value behind it, or
// zero when the number came from the time-based fallback.
type Number struct {
	Value string
	Seq   int64
}

// Mint advances the counter for entityType and formats the result with
// prefix. If the counter cannot be advanced the last six digits of the current
// unix millisecond time are used instead, so a caller always gets a number;
// such numbers may collide.
func (s *Service) Mint(ctx context.Context, entityType, prefix string) Number {
	n, err := s.counter.Increment(ctx, entityType)
	if err != nil {
		fallback := fmt.Sprintf("%s%06d", prefix, s.now().UnixMilli()%1_000_000)
		log.Printf("numbering: counter %s unavailable, using %s: %v", entityType, fallback, err)
		return Number{Value: fallback}
	}
	return Number{Value: Format(prefix, n), Seq: n}
}

// Next returns prefix followed by the next six-digit sequence value for
// entityType, falling back as Mint does.
func (s *Service) Next(ctx context.Context, entityType, prefix string) string {
	return s.Mint(ctx, entityType, prefix).Value
}

// NextDefault is Mint with the prefix from DefaultPrefixes.
func (s *Service) NextDefault(ctx context.Context, entityType string) (Number, error) {
	prefix, ok := DefaultPrefixes[entityType]
	if !ok {
		return Number{}, fmt.Errorf("no number prefix for entity type %q", entityType)
	}
	return s.Mint(ctx, entityType, prefix), nil
}

// Format pads n to six digits. Values past 999999 are printed in full.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%06d", prefix, n)
}
