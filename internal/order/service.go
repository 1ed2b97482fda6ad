// README: Order state machine — validates and applies lifecycle transitions
// as single-document compare-and-write operations against the store.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"courierd/internal/docstore"
	"courierd/internal/events"
	"courierd/internal/metrics"
	"courierd/internal/types"
)

// CollectionOrders is the store collection holding order documents.
const CollectionOrders = "orders"

// Notifier pushes best-effort notifications about lifecycle changes. A
// failed notification is logged and swallowed; the document-store
// subscription is the authoritative update channel.
type Notifier interface {
	// OrderReopened fires when a release returns an order to the pool.
	OrderReopened(ctx context.Context, o *Order) error
	// StatusChanged fires on every successful transition.
	StatusChanged(ctx context.Context, o *Order) error
}

// SnapshotCache receives the last-known-good snapshot after every
// successful live read (write-through).
type SnapshotCache interface {
	Put(ctx context.Context, o *Order)
}

// Payload carries the optional arguments of a transition: delivery proof
// for confirm_delivery, a reason for release and cancel.
type Payload struct {
	Proof  Proof
	Reason string
}

// Deps wires the service's collaborators. Docs and Access are required;
// the rest are optional and nil-safe.
type Deps struct {
	Docs     docstore.Store
	Access   *Access
	Events   events.Publisher
	Notifier Notifier
	Cache    SnapshotCache
	Log      *zap.Logger
}

type Service struct {
	docs     docstore.Store
	access   *Access
	events   events.Publisher
	notifier Notifier
	cache    SnapshotCache
	log      *zap.Logger
}

func NewService(d Deps) *Service {
	if d.Access == nil {
		d.Access = NewAccess(nil)
	}
	if d.Events == nil {
		d.Events = events.Noop{}
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Service{
		docs:     d.Docs,
		access:   d.Access,
		events:   d.Events,
		notifier: d.Notifier,
		cache:    d.Cache,
		log:      d.Log,
	}
}

// Access exposes the read guard for the API layer.
func (s *Service) Access() *Access { return s.access }

// Accept assigns a Placed order to the calling driver: the pool is cleared
// and assignedDriverId set in the same compare-and-write, so a racing
// second accept loses with ErrInvalidSourceState.
func (s *Service) Accept(ctx context.Context, orderID, driverID types.ID) (*Order, error) {
	return s.transition(ctx, orderID, Actor{ID: driverID, Role: types.RoleDriver}, KindAccept, Payload{})
}

// Advance applies one driver-initiated forward edge (arrive_at_store
// through confirm_delivery).
func (s *Service) Advance(ctx context.Context, orderID, driverID types.ID, kind Kind, p Payload) (*Order, error) {
	switch kind {
	case KindAccept, KindRelease, KindCancel:
		return nil, fmt.Errorf("%w: %s has a dedicated operation", ErrInvalidSourceState, kind)
	}
	return s.transition(ctx, orderID, Actor{ID: driverID, Role: types.RoleDriver}, kind, p)
}

// Release returns an assigned order to the pool. The reason is mandatory
// and recorded together with the status the order was released from.
func (s *Service) Release(ctx context.Context, orderID, driverID types.ID, reason string) (*Order, error) {
	return s.transition(ctx, orderID, Actor{ID: driverID, Role: types.RoleDriver}, KindRelease, Payload{Reason: reason})
}

// Cancel is administrative: support only, never driver-initiated.
func (s *Service) Cancel(ctx context.Context, orderID types.ID, actor Actor, reason string) (*Order, error) {
	return s.transition(ctx, orderID, actor, KindCancel, Payload{Reason: reason})
}

// Get performs a live read, writing the decoded snapshot through the
// offline cache on success.
func (s *Service) Get(ctx context.Context, orderID types.ID) (*Order, error) {
	snap, err := s.docs.Read(ctx, CollectionOrders, string(orderID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	o, err := decodeOrder(snap)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Put(ctx, o)
	}
	return o, nil
}

// transition runs the full guard chain inside the store transaction so
// every check holds at write time: lifecycle edge first (stale-write
// guard), then authorization, then payload validation.
func (s *Service) transition(ctx context.Context, orderID types.ID, actor Actor, kind Kind, p Payload) (*Order, error) {
	var from Status
	err := s.docs.Update(ctx, CollectionOrders, string(orderID), func(snap docstore.Snapshot) (docstore.Doc, error) {
		o, err := decodeOrder(snap)
		if err != nil {
			return nil, err
		}
		if !CanTransition(o.Status, kind) {
			return nil, fmt.Errorf("%w: cannot %s an order in status %s", ErrInvalidSourceState, kind, o.Status)
		}
		if !s.access.CanTransition(actor, o, kind) {
			return nil, fmt.Errorf("%w: %s may not %s order %s", ErrNotAuthorized, actor.ID, kind, o.ID)
		}
		patch, err := transitionPatch(o, actor, kind, p)
		if err != nil {
			return nil, err
		}
		from = o.Status
		return patch, nil
	})
	if err != nil {
		metrics.OrderTransitionRejectsTotal.WithLabelValues(RejectReason(wrapGuard(err))).Inc()
		return nil, wrapGuard(err)
	}
	metrics.OrderTransitionsTotal.WithLabelValues(string(kind)).Inc()

	// Read back the server-confirmed state (stamped timestamps included)
	// rather than displaying an optimistic local copy.
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, o, from, kind, actor, p.Reason)
	s.notify(ctx, o, kind)
	return o, nil
}

// transitionPatch validates the payload and builds the merge patch with
// this transition's side effects.
func transitionPatch(o *Order, actor Actor, kind Kind, p Payload) (docstore.Doc, error) {
	patch := docstore.Doc{fieldStatus: string(Target(o.Status, kind))}

	switch kind {
	case KindAccept:
		patch[fieldAssignedDriverID] = string(actor.ID)
		patch[fieldAccessPool] = []any{}

	case KindRelease:
		if strings.TrimSpace(p.Reason) == "" {
			return nil, fmt.Errorf("%w: release of order %s", ErrMissingReason, o.ID)
		}
		patch[fieldAssignedDriverID] = nil
		patch[fieldAccessPool] = poolValues(repopulatedPool(o, actor.ID))
		patch[fieldLastReleaseReason] = strings.TrimSpace(p.Reason)
		patch[fieldLastReleaseFrom] = string(o.Status)

	case KindConfirmDelivery:
		if err := validateProof(o, p.Proof); err != nil {
			return nil, err
		}
		patch[fieldProofPhotoURL] = p.Proof.PhotoURL
		patch[fieldProofSignature] = strings.TrimSpace(p.Proof.Signature)
		patch[fieldSafeDropAck] = o.NoContact && p.Proof.SafeDropAck
		patch[fieldCompletedAt] = docstore.ServerTime

	case KindCancel:
		if r := strings.TrimSpace(p.Reason); r != "" {
			patch[fieldCancellationReason] = r
		}
		patch[fieldCompletedAt] = docstore.ServerTime
	}
	return patch, nil
}

// repopulatedPool restores the order's invite pool minus the releasing
// driver. The invite list written at creation (basePool) survives the
// accept that cleared accessPool.
func repopulatedPool(o *Order, releasing types.ID) []types.ID {
	pool := make([]types.ID, 0, len(o.BasePool))
	for _, id := range o.BasePool {
		if id != releasing {
			pool = append(pool, id)
		}
	}
	return pool
}

// validateProof enforces the completion-evidence rule: photo or typed
// signature always count; a safe-drop acknowledgement counts only for
// no-contact orders.
func validateProof(o *Order, p Proof) error {
	if p.PhotoURL != "" || strings.TrimSpace(p.Signature) != "" {
		return nil
	}
	if o.NoContact && p.SafeDropAck {
		return nil
	}
	return fmt.Errorf("%w: order %s", ErrMissingProof, o.ID)
}

// wrapGuard classifies an Update error: the typed guard rejections pass
// through untouched, anything else is a store failure with an unknown
// write outcome.
func wrapGuard(err error) error {
	for _, sentinel := range []error{
		ErrInvalidSourceState, ErrNotAuthorized, ErrMissingProof,
		ErrMissingReason, ErrNotFound, ErrUnknownStatus,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

func (s *Service) publish(ctx context.Context, o *Order, from Status, kind Kind, actor Actor, reason string) {
	e := events.Event{
		ID:         uuid.NewString(),
		OrderID:    string(o.ID),
		Kind:       string(kind),
		From:       string(from),
		To:         string(o.Status),
		ActorID:    string(actor.ID),
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, e); err != nil {
		s.log.Warn("lifecycle event publish failed",
			zap.String("order_id", e.OrderID),
			zap.String("kind", e.Kind),
			zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, o *Order, kind Kind) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.StatusChanged(ctx, o); err != nil {
		s.log.Warn("status notification failed", zap.String("order_id", string(o.ID)), zap.Error(err))
	}
	if kind == KindRelease {
		if err := s.notifier.OrderReopened(ctx, o); err != nil {
			s.log.Warn("reopen notification failed", zap.String("order_id", string(o.ID)), zap.Error(err))
		}
	}
}
