package entity_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"inventory-admin/internal/core"
	"inventory-admin/internal/entity"
	"inventory-admin/internal/events"
	"inventory-admin/internal/integrity"
	"inventory-admin/internal/store"
	"inventory-admin/internal/store/memory"

	"github.com/shopspring/decimal"
)

// plainBackend hides the memory store's change feed so only local mutations
// trigger broadcasts.
type plainBackend struct{ store.Backend }

type failingList struct{ store.Backend }

func (failingList) List(context.Context, string) ([]store.Record, error) {
	return nil, errors.New("backend unavailable")
}

type recordingPublisher struct {
	mu  sync.Mutex
	evs []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

// lockCheckingPublisher subscribes to the store from inside Publish. Subscribe
// takes the mutation lock, so it only completes if Publish runs after the
// mutation has released it.
type lockCheckingPublisher struct {
	st       *entity.Store[core.Supplier]
	unlocked []bool
}

func (p *lockCheckingPublisher) Publish(ctx context.Context, ev events.Event) error {
	done := make(chan struct{})
	go func() {
		unsubscribe := p.st.Subscribe(ctx, func(entity.Snapshot[core.Supplier]) {})
		unsubscribe()
		close(done)
	}()
	select {
	case <-done:
		p.unlocked = append(p.unlocked, true)
	case <-time.After(time.Second):
		p.unlocked = append(p.unlocked, false)
	}
	return nil
}

func (p *lockCheckingPublisher) Close() error { return nil }

func newSupplierStore(t *testing.T, backend store.Backend, opts ...entity.Option[core.Supplier]) *entity.Store[core.Supplier] {
	t.Helper()
	s, err := entity.New[core.Supplier](backend, core.CollectionSuppliers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestStore_CRUD(t *testing.T) {
	ctx := context.Background()
	v := core.NewValidator()
	s := newSupplierStore(t, memory.NewStore(),
		entity.WithValidator(func(sup core.Supplier) error { return core.Validate(v, sup) }))

	t.Run("Add_AssignsIdentity", func(t *testing.T) {
		sup, err := s.Add(ctx, core.Supplier{Name: "Acme", ContactPerson: "Ana"})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if sup.ID == "" || sup.CreatedAt.IsZero() {
			t.Errorf("expected id and createdAt to be set, got %+v", sup.Base)
		}

		got, err := s.GetByID(ctx, sup.ID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if got.ContactPerson != "Ana" {
			t.Errorf("expected contactPerson Ana, got %q", got.ContactPerson)
		}
	})

	t.Run("Add_ValidationFailure", func(t *testing.T) {
		_, err := s.Add(ctx, core.Supplier{Email: "not-an-email"})
		var verr *core.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
		if _, ok := verr.Fields["name"]; !ok {
			t.Errorf("expected name field error, got %v", verr.Fields)
		}
		if _, ok := verr.Fields["email"]; !ok {
			t.Errorf("expected email field error, got %v", verr.Fields)
		}
	})

	t.Run("Update_MergesPatch", func(t *testing.T) {
		sup, _ := s.Add(ctx, core.Supplier{Name: "Globex", Country: "NZ"})
		time.Sleep(2 * time.Millisecond)
		upd, err := s.Update(ctx, sup.ID, entity.Patch{"phone": "555-0100"})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if upd.Name != "Globex" || upd.Country != "NZ" || upd.Phone != "555-0100" {
			t.Errorf("expected merged supplier, got %+v", upd)
		}
		if !upd.UpdatedAt.After(sup.UpdatedAt) {
			t.Errorf("expected updatedAt to advance: %v -> %v", sup.UpdatedAt, upd.UpdatedAt)
		}
	})

	t.Run("Update_RejectsInvalidResult", func(t *testing.T) {
		sup, _ := s.Add(ctx, core.Supplier{Name: "Initech"})
		if _, err := s.Update(ctx, sup.ID, entity.Patch{"name": ""}); err == nil {
			t.Fatal("expected validation error when clearing a required field")
		}
		got, _ := s.GetByID(ctx, sup.ID)
		if got.Name != "Initech" {
			t.Errorf("expected stored name unchanged, got %q", got.Name)
		}
	})

	t.Run("Update_NotFound", func(t *testing.T) {
		_, err := s.Update(ctx, "missing", entity.Patch{"name": "x"})
		if !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("GetAll_NewestFirst", func(t *testing.T) {
		all, err := s.GetAll(ctx)
		if err != nil {
			t.Fatalf("GetAll: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 suppliers, got %d", len(all))
		}
		if all[0].Name != "Initech" {
			t.Errorf("expected newest supplier first, got %s", all[0].Name)
		}
	})
}

func TestStore_GetAllReportsFailure(t *testing.T) {
	s := newSupplierStore(t, failingList{memory.NewStore()})
	items, err := s.GetAll(context.Background())
	if err == nil {
		t.Fatal("expected an error rather than an empty collection")
	}
	if items != nil {
		t.Errorf("expected no items on failure, got %v", items)
	}
}

func TestStore_DeleteGate(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	checker := integrity.NewChecker(backend)
	s := newSupplierStore(t, backend, entity.WithGuard[core.Supplier](checker.Guard(integrity.KindSupplier)))

	t.Run("Unreferenced_Deletes", func(t *testing.T) {
		sup, _ := s.Add(ctx, core.Supplier{Name: "Idle"})
		res, err := s.Delete(ctx, sup.ID)
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if !res.Success {
			t.Fatalf("expected success, got %+v", res)
		}
		if _, err := s.GetByID(ctx, sup.ID); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("expected supplier gone, got %v", err)
		}
	})

	t.Run("Referenced_Blocked", func(t *testing.T) {
		sup, _ := s.Add(ctx, core.Supplier{Name: "Busy"})
		backend.Insert(ctx, core.CollectionItems, store.Record{"name": "Bolt", "supplier_id": sup.ID})

		res, err := s.Delete(ctx, sup.ID)
		if err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if res.Success {
			t.Fatal("expected delete to be blocked")
		}
		if len(res.Blockers) != 1 || res.Blockers[0].Kind != "items" || res.Blockers[0].Count != 1 {
			t.Errorf("unexpected blockers %+v", res.Blockers)
		}
		if res.Message == "" {
			t.Error("expected a message naming the blockers")
		}
		if _, err := s.GetByID(ctx, sup.ID); err != nil {
			t.Errorf("expected supplier still retrievable, got %v", err)
		}
	})

	t.Run("GuardFailure_FailsClosed", func(t *testing.T) {
		sup, _ := s.Add(ctx, core.Supplier{Name: "Guarded"})
		failing := newSupplierStore(t, backend, entity.WithGuard[core.Supplier](func(context.Context, string) (*integrity.Report, error) {
			return nil, errors.New("checker offline")
		}))
		if _, err := failing.Delete(ctx, sup.ID); err == nil {
			t.Fatal("expected error when the relationship check fails")
		}
		if _, err := s.GetByID(ctx, sup.ID); err != nil {
			t.Errorf("expected supplier to survive a failed check, got %v", err)
		}
	})
}

func TestStore_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := newSupplierStore(t, plainBackend{memory.NewStore()})

	var (
		mu    sync.Mutex
		snaps []entity.Snapshot[core.Supplier]
	)
	unsubscribe := s.Subscribe(ctx, func(snap entity.Snapshot[core.Supplier]) {
		mu.Lock()
		defer mu.Unlock()
		snaps = append(snaps, snap)
	})

	mu.Lock()
	if len(snaps) != 1 || len(snaps[0].Items) != 0 {
		t.Fatalf("expected one immediate empty snapshot, got %+v", snaps)
	}
	mu.Unlock()

	added, err := s.Add(ctx, core.Supplier{Name: "Acme"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	s.Update(ctx, added.ID, entity.Patch{"phone": "1"})
	s.Delete(ctx, added.ID)

	mu.Lock()
	if len(snaps) != 4 {
		t.Fatalf("expected exactly one broadcast per mutation (4 total), got %d", len(snaps))
	}
	if len(snaps[1].Items) != 1 || snaps[1].Items[0].ID != added.ID {
		t.Errorf("expected snapshot after add to hold the new supplier, got %+v", snaps[1].Items)
	}
	if snaps[2].Items[0].Phone != "1" {
		t.Errorf("expected snapshot after update to carry the new phone")
	}
	if len(snaps[3].Items) != 0 {
		t.Errorf("expected empty snapshot after delete, got %d items", len(snaps[3].Items))
	}
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	s.Add(ctx, core.Supplier{Name: "Later"})
	mu.Lock()
	if len(snaps) != 4 {
		t.Errorf("expected no broadcast after unsubscribe, got %d snapshots", len(snaps))
	}
	mu.Unlock()
}

func TestStore_SubscribeIndependentListeners(t *testing.T) {
	ctx := context.Background()
	s := newSupplierStore(t, plainBackend{memory.NewStore()})

	var a, b int
	unsubA := s.Subscribe(ctx, func(entity.Snapshot[core.Supplier]) { a++ })
	s.Subscribe(ctx, func(entity.Snapshot[core.Supplier]) { b++ })

	unsubA()
	s.Add(ctx, core.Supplier{Name: "Acme"})

	if a != 1 {
		t.Errorf("expected listener A to see only its initial snapshot, got %d", a)
	}
	if b != 2 {
		t.Errorf("expected listener B to keep receiving, got %d", b)
	}
}

func TestStore_ChangeFeed(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	s := newSupplierStore(t, backend)

	seen := make(chan int, 16)
	s.Subscribe(ctx, func(snap entity.Snapshot[core.Supplier]) { seen <- len(snap.Items) })
	<-seen

	// A write that bypasses the Store reaches subscribers through the feed.
	deadline := time.After(2 * time.Second)
	for {
		backend.Insert(ctx, core.CollectionSuppliers, store.Record{"name": "External"})
		select {
		case n := <-seen:
			if n == 0 {
				t.Fatalf("expected feed snapshot to include the external write")
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("no snapshot delivered from the change feed")
		}
	}
}

func TestStore_ChangeFeedDoesNotRepeatMutations(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	s := newSupplierStore(t, backend)

	seen := make(chan int, 64)
	s.Subscribe(ctx, func(snap entity.Snapshot[core.Supplier]) { seen <- len(snap.Items) })
	<-seen

	// Wait until the feed is live by writing around the Store until it reports.
	deadline := time.After(2 * time.Second)
warmUp:
	for {
		backend.Insert(ctx, core.CollectionSuppliers, store.Record{"name": "Warm-up"})
		select {
		case <-seen:
			break warmUp
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("change feed never started")
		}
	}
	drain := func() int {
		n := 0
		for {
			select {
			case <-seen:
				n++
			case <-time.After(200 * time.Millisecond):
				return n
			}
		}
	}
	drain()

	if _, err := s.Add(ctx, core.Supplier{Name: "Acme"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := drain(); got != 1 {
		t.Errorf("expected exactly one broadcast for one Add, got %d", got)
	}

	// A write made outside the Store is still delivered once.
	backend.Insert(ctx, core.CollectionSuppliers, store.Record{"name": "External"})
	if got := drain(); got != 1 {
		t.Errorf("expected one broadcast for an external write, got %d", got)
	}
}

func TestStore_PublishesOutsideMutationLock(t *testing.T) {
	ctx := context.Background()
	pub := &lockCheckingPublisher{}
	s := newSupplierStore(t, plainBackend{memory.NewStore()}, entity.WithPublisher[core.Supplier](pub))
	pub.st = s

	added, err := s.Add(ctx, core.Supplier{Name: "Acme"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Update(ctx, added.ID, entity.Patch{"phone": "1"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := s.Delete(ctx, added.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(pub.unlocked) != 3 {
		t.Fatalf("expected 3 events, got %d", len(pub.unlocked))
	}
	for i, ok := range pub.unlocked {
		if !ok {
			t.Errorf("event %d was published while the mutation lock was held", i+1)
		}
	}
}

func TestStore_CloseDropsSubscribers(t *testing.T) {
	ctx := context.Background()
	s, _ := entity.New[core.Supplier](memory.NewStore(), core.CollectionSuppliers)

	calls := 0
	s.Subscribe(ctx, func(entity.Snapshot[core.Supplier]) { calls++ })
	s.Close()
	s.Close()

	s.Add(ctx, core.Supplier{Name: "Acme"})
	if calls != 1 {
		t.Errorf("expected no broadcasts after Close, got %d calls", calls)
	}

	var closedErr error
	s.Subscribe(ctx, func(snap entity.Snapshot[core.Supplier]) { closedErr = snap.Err })
	if !errors.Is(closedErr, entity.ErrClosed) {
		t.Errorf("expected ErrClosed for late subscriber, got %v", closedErr)
	}
}

func TestStore_LocationCurrentStockMapping(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	s, _ := entity.New[core.Location](backend, core.CollectionLocations)
	defer s.Close()

	loc, err := s.Add(ctx, core.Location{Name: "Main", Kind: core.LocationWarehouse, Capacity: 100, CurrentStock: 40})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	raw, _ := backend.Get(ctx, core.CollectionLocations, loc.ID)
	if raw["current_usage"] != float64(40) {
		t.Errorf("expected current_usage 40 in persisted form, got %v", raw["current_usage"])
	}
	if _, ok := raw["current_stock"]; ok {
		t.Error("expected no current_stock key in persisted form")
	}
	if loc.CurrentStock != 40 {
		t.Errorf("expected currentStock 40 read back, got %d", loc.CurrentStock)
	}
}

func TestStore_InvoiceDatesAndHooks(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewStore()
	pub := &recordingPublisher{}
	s, _ := entity.New[core.Invoice](backend, core.CollectionInvoices,
		entity.WithPublisher[core.Invoice](pub),
		entity.WithBeforeWrite[core.Invoice](func(_ context.Context, _, next *core.Invoice) error {
			next.Recalculate()
			return nil
		}))
	defer s.Close()

	inv, err := s.Add(ctx, core.Invoice{
		InvoiceNumber: "INV-000001",
		SupplierID:    "sup",
		IssueDate:     "2024-02-01",
		Status:        core.InvoicePending,
		Items: []core.InvoiceItem{
			{ItemID: "a", Quantity: 2, UnitPrice: decimal.RequireFromString("10.50")},
		},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !inv.TotalAmount.Equal(decimal.RequireFromString("21")) {
		t.Errorf("expected total 21, got %s", inv.TotalAmount)
	}

	// Backends with native timestamps hand dates back as time values.
	backend.Update(ctx, core.CollectionInvoices, inv.ID, store.Record{
		"issue_date": time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	got, err := s.GetByID(ctx, inv.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.IssueDate != "2024-02-01" {
		t.Errorf("expected issueDate normalized to 2024-02-01, got %q", got.IssueDate)
	}

	upd, err := s.Update(ctx, inv.ID, entity.Patch{"items": []any{
		map[string]any{"itemId": "a", "quantity": 3, "unitPrice": "10.50"},
	}})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !upd.TotalAmount.Equal(decimal.RequireFromString("31.5")) {
		t.Errorf("expected recalculated total 31.5 to be persisted, got %s", upd.TotalAmount)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.evs) != 2 || pub.evs[0].Op != events.OpCreated || pub.evs[1].Op != events.OpUpdated {
		t.Errorf("expected created then updated events, got %+v", pub.evs)
	}
}
