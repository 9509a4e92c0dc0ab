// Package entity is the typed CRUD and subscription facade over a single
// collection. A Store hides which backend holds the data, gates deletes on a
// relationship check and tells subscribers about every change.
package entity

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"reflect"
	"sync"
	"time"

	"inventory-admin/internal/events"
	"inventory-admin/internal/integrity"
	"inventory-admin/internal/mapper"
	"inventory-admin/internal/store"
)

// ErrClosed is reported to subscribers that register after Close.
var ErrClosed = errors.New("entity store closed")

// Patch is a partial update in application (camelCase) form.
type Patch map[string]any

// Snapshot is the full collection as seen after a change, or the error that
// prevented reading it.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

// DeleteResult reports whether a delete went ahead. When Success is false,
// Message and Blockers explain which records still reference the entity.
type DeleteResult struct {
	Success  bool                `json:"success"`
	Message  string              `json:"message,omitempty"`
	Blockers []integrity.Blocker `json:"blockers,omitempty"`
}

// Guard decides whether the entity with id may be deleted.
type Guard func(ctx context.Context, id string) (*integrity.Report, error)

// BeforeWrite runs before validation and persisting. current is nil on Add.
// The hook may fill in next (derived totals, assigned numbers) or reject it.
type BeforeWrite[T any] func(ctx context.Context, current, next *T) error

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithGuard installs the relationship check run before every delete.
func WithGuard[T any](g Guard) Option[T] {
	return func(s *Store[T]) { s.guard = g }
}

// WithValidator rejects Add and Update values that fail fn.
func WithValidator[T any](fn func(T) error) Option[T] {
	return func(s *Store[T]) { s.validate = fn }
}

// WithBeforeWrite appends an invariant hook.
func WithBeforeWrite[T any](fn BeforeWrite[T]) Option[T] {
	return func(s *Store[T]) { s.beforeWrite = append(s.beforeWrite, fn) }
}

// WithPublisher sends a change event after every committed mutation.
func WithPublisher[T any](p events.Publisher) Option[T] {
	return func(s *Store[T]) { s.publisher = p }
}

// WithDateFields overrides which persisted fields are normalized to
// YYYY-MM-DD on read. The default comes from mapper.DateFields.
func WithDateFields[T any](fields ...string) Option[T] {
	return func(s *Store[T]) { s.dateFields = fields }
}

// Store is the facade for one collection. Mutations are serialized so
// subscribers observe broadcasts in the order the mutations were issued, and
// each successful mutation is broadcast exactly once even when the backend's
// change feed reports it as well.
// Subscriber callbacks run synchronously and must not call back into the
// same Store.
type Store[T any] struct {
	backend    store.Backend
	collection string
	pair       mapper.Pair
	dateFields []string

	guard       Guard
	validate    func(T) error
	beforeWrite []BeforeWrite[T]
	publisher   events.Publisher
	now         func() time.Time

	mu sync.Mutex
	// Digest of the last snapshot broadcast, guarded by mu. A feed signal whose
	// re-read matches it is the echo of a mutation already broadcast.
	lastSum  [sha256.Size]byte
	lastSent bool

	// pubMu is taken before mu is released so change events leave in
	// mutation order without holding up the next mutation's reads.
	pubMu sync.Mutex

	subMu      sync.Mutex
	subs       map[uint64]func(Snapshot[T])
	nextSub    uint64
	feedCancel context.CancelFunc
	feedDone   chan struct{}
	closed     bool
}

// New returns a Store over collection. The caller owns it and must Close it
// when done; nothing is started until the first Subscribe.
func New[T any](backend store.Backend, collection string, opts ...Option[T]) (*Store[T], error) {
	if err := store.CheckCollection(collection); err != nil {
		return nil, err
	}
	s := &Store[T]{
		backend:    backend,
		collection: collection,
		pair:       mapper.ForCollection(collection),
		dateFields: mapper.DateFields[collection],
		publisher:  events.Nop{},
		now:        time.Now,
		subs:       make(map[uint64]func(Snapshot[T])),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Collection returns the collection name.
func (s *Store[T]) Collection() string { return s.collection }

// GetAll returns every entity, newest first.
func (s *Store[T]) GetAll(ctx context.Context) ([]T, error) {
	recs, err := s.backend.List(ctx, s.collection)
	if err != nil {
		log.Printf("entity: list %s failed: %v", s.collection, err)
		return nil, fmt.Errorf("list %s: %w", s.collection, err)
	}
	out := make([]T, 0, len(recs))
	for _, r := range recs {
		v, err := s.decode(r)
		if err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", s.collection, r.ID(), err)
		}
		out = append(out, *v)
	}
	return out, nil
}

// GetByID returns store.ErrNotFound (wrapped) when id does not exist.
func (s *Store[T]) GetByID(ctx context.Context, id string) (*T, error) {
	rec, err := s.backend.Get(ctx, s.collection, id)
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", s.collection, id, err)
	}
	v, err := s.decode(rec)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", s.collection, id, err)
	}
	return v, nil
}

// Add validates and inserts v, returning it with id and timestamps assigned.
func (s *Store[T]) Add(ctx context.Context, v T) (*T, error) {
	s.mu.Lock()
	var ev *events.Event
	defer func() { s.unlockAndPublish(ctx, ev) }()

	if err := s.check(ctx, nil, &v); err != nil {
		return nil, err
	}
	app, err := toMap(v)
	if err != nil {
		return nil, err
	}
	rec, err := s.backend.Insert(ctx, s.collection, store.StripSystemFields(s.pair.ToPersisted(app)))
	if err != nil {
		log.Printf("entity: insert into %s failed: %v", s.collection, err)
		return nil, fmt.Errorf("add %s: %w", s.collection, err)
	}
	out, err := s.decode(rec)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", s.collection, rec.ID(), err)
	}

	ev = s.event(events.OpCreated, rec)
	s.broadcastLocked(ctx, false)
	return out, nil
}

// Update merges patch into the stored entity, validates the result and
// persists only the changed fields. The backend stamps updatedAt.
func (s *Store[T]) Update(ctx context.Context, id string, patch Patch) (*T, error) {
	s.mu.Lock()
	var ev *events.Event
	defer func() { s.unlockAndPublish(ctx, ev) }()

	rec, err := s.backend.Get(ctx, s.collection, id)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", s.collection, id, err)
	}
	current, err := s.decode(rec)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", s.collection, id, err)
	}

	merged, err := toMap(*current)
	if err != nil {
		return nil, err
	}
	for k, v := range patch {
		merged[k] = v
	}
	next, err := fromMap[T](merged)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	if err := s.check(ctx, current, next); err != nil {
		return nil, err
	}

	// Fields rewritten by hooks are persisted along with the patch.
	nextMap, err := toMap(*next)
	if err != nil {
		return nil, err
	}
	diff := make(map[string]any, len(patch))
	for k, v := range nextMap {
		if _, inPatch := patch[k]; inPatch || !reflect.DeepEqual(v, merged[k]) {
			diff[k] = v
		}
	}

	updated, err := s.backend.Update(ctx, s.collection, id, store.StripSystemFields(s.pair.ToPersisted(diff)))
	if err != nil {
		log.Printf("entity: update %s %s failed: %v", s.collection, id, err)
		return nil, fmt.Errorf("update %s %s: %w", s.collection, id, err)
	}
	out, err := s.decode(updated)
	if err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", s.collection, id, err)
	}

	ev = s.event(events.OpUpdated, updated)
	s.broadcastLocked(ctx, false)
	return out, nil
}

// Delete removes the entity unless the guard reports it is still referenced.
// A guard failure is returned as an error and nothing is deleted.
func (s *Store[T]) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	s.mu.Lock()
	var ev *events.Event
	defer func() { s.unlockAndPublish(ctx, ev) }()

	if s.guard != nil {
		rep, err := s.guard(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("delete %s %s: relationship check: %w", s.collection, id, err)
		}
		if !rep.Deletable {
			return &DeleteResult{Success: false, Message: rep.Message(), Blockers: rep.Blockers}, nil
		}
	}

	if err := s.backend.Delete(ctx, s.collection, id); err != nil {
		log.Printf("entity: delete %s %s failed: %v", s.collection, id, err)
		return nil, fmt.Errorf("delete %s %s: %w", s.collection, id, err)
	}

	ev = s.event(events.OpDeleted, store.Record{store.FieldID: id})
	s.broadcastLocked(ctx, false)
	return &DeleteResult{Success: true}, nil
}

// Subscribe registers fn and immediately calls it with the current
// collection. fn is called again after every mutation through this Store and
// after every change reported by the backend's change feed, when it has one.
// The returned function removes fn and is safe to call more than once.
func (s *Store[T]) Subscribe(ctx context.Context, fn func(Snapshot[T])) (unsubscribe func()) {
	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		fn(Snapshot[T]{Err: ErrClosed})
		return func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.startFeedLocked()
	s.subMu.Unlock()

	s.mu.Lock()
	fn(s.snapshot(ctx))
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// Close stops the shared change feed and drops every subscriber. The feed is
// only torn down here, never by an individual unsubscribe.
func (s *Store[T]) Close() {
	s.subMu.Lock()
	if s.closed {
		s.subMu.Unlock()
		return
	}
	s.closed = true
	cancel, done := s.feedCancel, s.feedDone
	s.subs = make(map[uint64]func(Snapshot[T]))
	s.subMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (s *Store[T]) startFeedLocked() {
	if s.feedCancel != nil {
		return
	}
	w, ok := s.backend.(store.Watcher)
	if !ok {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.feedCancel, s.feedDone = cancel, done

	go func() {
		defer close(done)
		err := w.Watch(ctx, s.collection, func() {
			s.mu.Lock()
			s.broadcastLocked(ctx, true)
			s.mu.Unlock()
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("entity: change feed for %s stopped: %v", s.collection, err)
			s.deliver(Snapshot[T]{Err: fmt.Errorf("change feed: %w", err)})
		}
	}()
}

// broadcastLocked re-reads the whole collection and hands it to every
// subscriber. A feed signal that finds the collection unchanged since the last
// broadcast is dropped. s.mu must be held.
func (s *Store[T]) broadcastLocked(ctx context.Context, fromFeed bool) {
	s.subMu.Lock()
	n := len(s.subs)
	s.subMu.Unlock()
	if n == 0 {
		return
	}
	snap := s.snapshot(ctx)
	if snap.Err == nil {
		sum, err := digest(snap.Items)
		if err == nil {
			if fromFeed && s.lastSent && sum == s.lastSum {
				return
			}
			s.lastSum, s.lastSent = sum, true
		}
	}
	s.deliver(snap)
}

func digest(v any) ([sha256.Size]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return [sha256.Size]byte{}, err
	}
	return sha256.Sum256(b), nil
}

func (s *Store[T]) deliver(snap Snapshot[T]) {
	s.subMu.Lock()
	fns := make([]func(Snapshot[T]), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (s *Store[T]) snapshot(ctx context.Context) Snapshot[T] {
	items, err := s.GetAll(ctx)
	return Snapshot[T]{Items: items, Err: err}
}

func (s *Store[T]) check(ctx context.Context, current, next *T) error {
	for _, hook := range s.beforeWrite {
		if err := hook(ctx, current, next); err != nil {
			return err
		}
	}
	if s.validate != nil {
		return s.validate(*next)
	}
	return nil
}

func (s *Store[T]) event(op events.Op, rec store.Record) *events.Event {
	ev := &events.Event{Collection: s.collection, Op: op, ID: rec.ID(), At: s.now().UTC()}
	if op != events.OpDeleted {
		ev.Data = s.pair.ToApplication(store.Record(mapper.NormalizeDates(rec, s.dateFields...)))
	}
	return ev
}

// unlockAndPublish releases s.mu and then sends ev, if any, to the publisher.
func (s *Store[T]) unlockAndPublish(ctx context.Context, ev *events.Event) {
	if ev == nil {
		s.mu.Unlock()
		return
	}
	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()
	if err := s.publisher.Publish(ctx, *ev); err != nil {
		log.Printf("entity: publish %s %s event failed: %v", s.collection, ev.Op, err)
	}
}

// decode turns a persisted record into T through its application form.
func (s *Store[T]) decode(rec store.Record) (*T, error) {
	app := s.pair.ToApplication(mapper.NormalizeDates(rec, s.dateFields...))
	return fromMap[T](app)
}

// ValidationError wraps a patch that could not be applied to the entity type,
// such as a string where a number belongs.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid patch: " + e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

func toMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("encode entity: %w", err)
	}
	return m, nil
}

func fromMap[T any](m map[string]any) (*T, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
