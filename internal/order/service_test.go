// README: State machine service tests against the in-memory store.
package order

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"courierd/internal/docstore"
	"courierd/internal/events"
	"courierd/internal/types"
)

// recordingPublisher captures lifecycle events in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

// recordingNotifier counts notification fan-out.
type recordingNotifier struct {
	mu       sync.Mutex
	changed  int
	reopened int
}

func (n *recordingNotifier) StatusChanged(context.Context, *Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed++
	return nil
}

func (n *recordingNotifier) OrderReopened(context.Context, *Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reopened++
	return nil
}

// cacheSpy records write-through puts.
type cacheSpy struct {
	mu   sync.Mutex
	puts []types.ID
}

func (c *cacheSpy) Put(_ context.Context, o *Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts = append(c.puts, o.ID)
}

func seedOrder(t *testing.T, store *docstore.MemoryStore, id string, overrides docstore.Doc) {
	t.Helper()
	doc := docstore.Doc{
		"status":     "placed",
		"customerId": "c1",
		"basePool":   []any{"d1", "d2"},
		"accessPool": []any{"d1", "d2"},
		"poolOpen":   false,
		"noContact":  false,
		"dropoff":    map[string]any{"lat": 25.0478, "lng": 121.5318},
		"createdAt":  time.Now().UTC(),
	}
	for k, v := range overrides {
		doc[k] = v
	}
	if err := store.Write(context.Background(), CollectionOrders, id, doc, false); err != nil {
		t.Fatalf("seed order %s: %v", id, err)
	}
}

func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	publisher := &recordingPublisher{}
	notifier := &recordingNotifier{}
	svc := NewService(Deps{
		Docs:     store,
		Access:   NewAccess(BoundedPoolAdmission),
		Events:   publisher,
		Notifier: notifier,
	})
	seedOrder(t, store, "o1", nil)

	o, err := svc.Accept(ctx, "o1", "d1")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if o.Status != StatusAccepted {
		t.Fatalf("status after accept: %s", o.Status)
	}
	if !o.Assigned("d1") {
		t.Fatal("accept did not assign d1")
	}
	if len(o.AccessPool) != 0 {
		t.Fatalf("accept must clear the pool, got %v", o.AccessPool)
	}

	steps := []struct {
		kind Kind
		want Status
	}{
		{KindArriveAtStore, StatusArrivedAtStore},
		{KindConfirmPickup, StatusPickedUp},
		{KindDepartForDelivery, StatusOutForDelivery},
		{KindArriveAtCustomer, StatusArrived},
	}
	for _, step := range steps {
		o, err = svc.Advance(ctx, "o1", "d1", step.kind, Payload{})
		if err != nil {
			t.Fatalf("%s: %v", step.kind, err)
		}
		if o.Status != step.want {
			t.Fatalf("%s: status %s, want %s", step.kind, o.Status, step.want)
		}
	}

	o, err = svc.Advance(ctx, "o1", "d1", KindConfirmDelivery, Payload{Proof: Proof{PhotoURL: "gs://proofs/o1.jpg"}})
	if err != nil {
		t.Fatalf("confirm_delivery: %v", err)
	}
	if o.Status != StatusDelivered {
		t.Fatalf("status after delivery: %s", o.Status)
	}
	if o.CompletedAt == nil {
		t.Fatal("delivered order has no completedAt")
	}
	if o.Proof.PhotoURL != "gs://proofs/o1.jpg" {
		t.Fatalf("proof not recorded: %+v", o.Proof)
	}

	got := publisher.all()
	if len(got) != 6 {
		t.Fatalf("expected 6 lifecycle events, got %d", len(got))
	}
	// Each event's From must chain to the previous event's To.
	for i := 1; i < len(got); i++ {
		if got[i].From != got[i-1].To {
			t.Errorf("event %d: from %s does not chain to %s", i, got[i].From, got[i-1].To)
		}
	}
	if notifier.changed != 6 || notifier.reopened != 0 {
		t.Errorf("notifications: changed=%d reopened=%d", notifier.changed, notifier.reopened)
	}
}

func TestAccept_RequiresAdmission(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewService(Deps{Docs: store, Access: NewAccess(BoundedPoolAdmission)})
	seedOrder(t, store, "o1", nil)

	if _, err := svc.Accept(ctx, "o1", "d_outsider"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	// The order is untouched.
	o, err := svc.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.Status != StatusPlaced || o.AssignedDriverID != nil {
		t.Fatalf("rejected accept mutated the order: %+v", o)
	}
}

func TestAccept_OpenPoolAdmitsOutsider(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewService(Deps{Docs: store, Access: NewAccess(PoolAdmission)})
	seedOrder(t, store, "o1", docstore.Doc{"poolOpen": true})

	o, err := svc.Accept(ctx, "o1", "d_outsider")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !o.Assigned("d_outsider") {
		t.Fatal("open pool accept did not assign")
	}
}

func TestAccept_SecondAcceptLoses(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewService(Deps{Docs: store, Access: NewAccess(BoundedPoolAdmission)})
	seedOrder(t, store, "o1", nil)

	if _, err := svc.Accept(ctx, "o1", "d1"); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := svc.Accept(ctx, "o1", "d2"); !errors.Is(err, ErrInvalidSourceState) {
		t.Fatalf("expected ErrInvalidSourceState, got %v", err)
	}
}

func TestAdvance_RejectsDedicatedKinds(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewService(Deps{Docs: store})
	seedOrder(t, store, "o1", nil)

	for _, kind := range []Kind{KindAccept, KindRelease, KindCancel} {
		if _, err := svc.Advance(ctx, "o1", "d1", kind, Payload{}); err == nil {
			t.Errorf("Advance(%s): expected error", kind)
		}
	}
}

func TestAdvance_GuardOrdering(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewService(Deps{Docs: store, Access: NewAccess(BoundedPoolAdmission)})
	seedOrder(t, store, "o1", nil)
	if _, err := svc.Accept(ctx, "o1", "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Wrong edge out of the current status is a state error even for the
	// assigned driver.
	if _, err := svc.Advance(ctx, "o1", "d1", KindConfirmPickup, Payload{}); !errors.Is(err, ErrInvalidSourceState) {
		t.Fatalf("skip edge: expected ErrInvalidSourceState, got %v", err)
	}
	// Valid edge by the wrong driver is an authorization error.
	if _, err := svc.Advance(ctx, "o1", "d2", KindArriveAtStore, Payload{}); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("wrong driver: expected ErrNotAuthorized, got %v", err)
	}
}

func TestConfirmDelivery_ProofRules(t *testing.T) {
	cases := []struct {
		name      string
		noContact bool
		proof     Proof
		wantErr   bool
	}{
		{"photo", false, Proof{PhotoURL: "gs://p/1.jpg"}, false},
		{"typed signature", false, Proof{Signature: "J. Chen"}, false},
		{"whitespace signature only", false, Proof{Signature: "   "}, true},
		{"nothing", false, Proof{}, true},
		{"safe drop on no-contact", true, Proof{SafeDropAck: true}, false},
		{"safe drop on contact order", false, Proof{SafeDropAck: true}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := docstore.NewMemoryStore()
			svc := NewService(Deps{Docs: store, Access: NewAccess(BoundedPoolAdmission)})
			seedOrder(t, store, "o1", docstore.Doc{
				"status":           "arrived",
				"assignedDriverId": "d1",
				"accessPool":       []any{},
				"noContact":        tc.noContact,
			})

			o, err := svc.Advance(ctx, "o1", "d1", KindConfirmDelivery, Payload{Proof: tc.proof})
			if tc.wantErr {
				if !errors.Is(err, ErrMissingProof) {
					t.Fatalf("expected ErrMissingProof, got %v", err)
				}
				cur, err := svc.Get(ctx, "o1")
				if err != nil {
					t.Fatalf("get: %v", err)
				}
				if cur.Status != StatusArrived {
					t.Fatalf("rejected delivery mutated status to %s", cur.Status)
				}
				return
			}
			if err != nil {
				t.Fatalf("confirm_delivery: %v", err)
			}
			if o.Status != StatusDelivered || o.CompletedAt == nil {
				t.Fatalf("bad delivered order: %+v", o)
			}
		})
	}
}

func TestConfirmDelivery_StrayAckNotStoredForContactOrder(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewService(Deps{Docs: store, Access: NewAccess(BoundedPoolAdmission)})
	seedOrder(t, store, "o1", docstore.Doc{
		"status":           "arrived",
		"assignedDriverId": "d1",
		"accessPool":       []any{},
	})

	o, err := svc.Advance(ctx, "o1", "d1", KindConfirmDelivery,
		Payload{Proof: Proof{PhotoURL: "gs://p/1.jpg", SafeDropAck: true}})
	if err != nil {
		t.Fatalf("confirm_delivery: %v", err)
	}
	if o.Proof.SafeDropAck {
		t.Error("safe-drop ack must not be recorded for a contact order")
	}
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	notifier := &recordingNotifier{}
	svc := NewService(Deps{Docs: store, Access: NewAccess(BoundedPoolAdmission), Notifier: notifier})
	seedOrder(t, store, "o1", nil)
	if _, err := svc.Accept(ctx, "o1", "d1"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// Reason is mandatory.
	for _, reason := range []string{"", "   "} {
		if _, err := svc.Release(ctx, "o1", "d1", reason); !errors.Is(err, ErrMissingReason) {
			t.Fatalf("reason %q: expected ErrMissingReason, got %v", reason, err)
		}
	}
	o, err := svc.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.Status != StatusAccepted {
		t.Fatalf("rejected release mutated status to %s", o.Status)
	}

	o, err = svc.Release(ctx, "o1", "d1", "vehicle breakdown")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if o.Status != StatusPlaced {
		t.Fatalf("status after release: %s", o.Status)
	}
	if o.AssignedDriverID != nil {
		t.Fatal("release did not unassign")
	}
	if len(o.AccessPool) != 1 || o.AccessPool[0] != "d2" {
		t.Fatalf("pool after release: %v (want basePool minus d1)", o.AccessPool)
	}
	if o.LastReleaseReason != "vehicle breakdown" || o.LastReleaseFrom != StatusAccepted {
		t.Fatalf("release audit fields: %q from %q", o.LastReleaseReason, o.LastReleaseFrom)
	}
	if notifier.reopened != 1 {
		t.Errorf("reopened notifications: %d", notifier.reopened)
	}

	// The releasing driver is out of the pool; the remaining member may take it.
	if _, err := svc.Accept(ctx, "o1", "d1"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("releaser re-accept: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := svc.Accept(ctx, "o1", "d2"); err != nil {
		t.Fatalf("second driver accept after release: %v", err)
	}
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewService(Deps{Docs: store, Access: NewAccess(BoundedPoolAdmission)})
	seedOrder(t, store, "o1", nil)

	// Drivers and customers may not cancel.
	if _, err := svc.Cancel(ctx, "o1", Actor{ID: "d1", Role: types.RoleDriver}, "nope"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("driver cancel: expected ErrNotAuthorized, got %v", err)
	}
	if _, err := svc.Cancel(ctx, "o1", Actor{ID: "c1", Role: types.RoleCustomer}, "nope"); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("customer cancel: expected ErrNotAuthorized, got %v", err)
	}

	o, err := svc.Cancel(ctx, "o1", Actor{ID: "s1", Role: types.RoleSupport}, "customer request")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if o.Status != StatusCancelled {
		t.Fatalf("status after cancel: %s", o.Status)
	}
	if o.CancellationReason == nil || *o.CancellationReason != "customer request" {
		t.Fatalf("cancellation reason: %v", o.CancellationReason)
	}
	if o.CompletedAt == nil {
		t.Fatal("cancelled order has no completedAt")
	}

	// Terminal orders stay terminal.
	if _, err := svc.Cancel(ctx, "o1", Actor{ID: "s1", Role: types.RoleSupport}, "again"); !errors.Is(err, ErrInvalidSourceState) {
		t.Fatalf("cancel cancelled: expected ErrInvalidSourceState, got %v", err)
	}
}

func TestGet(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	spy := &cacheSpy{}
	svc := NewService(Deps{Docs: store, Cache: spy})
	seedOrder(t, store, "o1", nil)

	if _, err := svc.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	o, err := svc.Get(ctx, "o1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if o.ID != "o1" || o.CustomerID != "c1" {
		t.Fatalf("decoded order: %+v", o)
	}
	if len(spy.puts) != 1 || spy.puts[0] != "o1" {
		t.Fatalf("live read must write through the cache, puts=%v", spy.puts)
	}
}

func TestTransition_CorruptStatusSurfaces(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewService(Deps{Docs: store, Access: NewAccess(PoolAdmission)})
	seedOrder(t, store, "o1", docstore.Doc{"status": "en_route", "poolOpen": true})

	if _, err := svc.Accept(ctx, "o1", "d1"); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestTransition_MissingOrder(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	svc := NewService(Deps{Docs: store})

	if _, err := svc.Accept(ctx, "nope", "d1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
