// README: Order aggregate, status enumeration, and the transition table.
package order

import (
	"fmt"
	"strings"
	"time"

	"courierd/internal/types"
)

type Status string

const (
	StatusPlaced         Status = "placed"
	StatusAccepted       Status = "accepted"
	StatusArrivedAtStore Status = "arrived_at_store"
	StatusPickedUp       Status = "picked_up"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusArrived        Status = "arrived"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// AllStatuses lists the closed enumeration in lifecycle order.
var AllStatuses = []Status{
	StatusPlaced, StatusAccepted, StatusArrivedAtStore, StatusPickedUp,
	StatusOutForDelivery, StatusArrived, StatusDelivered, StatusCancelled,
}

// ParseStatus validates a raw status value at the store boundary. The
// mobile clients historically wrote status strings with inconsistent case
// and padding, so normalize before matching — but an unrecognized value is
// a decode error, never coerced to a default.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range AllStatuses {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// InTransit reports whether the status requires fine-grained order-scoped
// location tracking.
func (s Status) InTransit() bool {
	return s == StatusPickedUp || s == StatusOutForDelivery
}

// Kind names one edge of the lifecycle graph.
type Kind string

const (
	KindAccept            Kind = "accept"
	KindArriveAtStore     Kind = "arrive_at_store"
	KindConfirmPickup     Kind = "confirm_pickup"
	KindDepartForDelivery Kind = "depart_for_delivery"
	KindArriveAtCustomer  Kind = "arrive_at_customer"
	KindConfirmDelivery   Kind = "confirm_delivery"
	KindRelease           Kind = "release"
	KindCancel            Kind = "cancel"
)

// ParseKind validates a transition kind from the API boundary.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := forwardEdges[k]; ok {
		return k, nil
	}
	if k == KindRelease || k == KindCancel {
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown transition kind %q", ErrInvalidSourceState, raw)
}

// forwardEdges is the strict linear flow; no edge may skip or reverse a
// state. Release and cancel edges are handled separately because their
// source is a set of states.
var forwardEdges = map[Kind]struct{ From, To Status }{
	KindAccept:            {StatusPlaced, StatusAccepted},
	KindArriveAtStore:     {StatusAccepted, StatusArrivedAtStore},
	KindConfirmPickup:     {StatusArrivedAtStore, StatusPickedUp},
	KindDepartForDelivery: {StatusPickedUp, StatusOutForDelivery},
	KindArriveAtCustomer:  {StatusOutForDelivery, StatusArrived},
	KindConfirmDelivery:   {StatusArrived, StatusDelivered},
}

// releasable holds the states a driver may release back to Placed.
var releasable = map[Status]bool{
	StatusAccepted:       true,
	StatusArrivedAtStore: true,
	StatusPickedUp:       true,
	StatusOutForDelivery: true,
	StatusArrived:        true,
}

// CanTransition reports whether the lifecycle graph has an edge of the
// given kind out of the given status. Authorization is AccessController's
// concern, not this table's.
func CanTransition(from Status, kind Kind) bool {
	switch kind {
	case KindRelease:
		return releasable[from]
	case KindCancel:
		return !from.Terminal()
	default:
		edge, ok := forwardEdges[kind]
		return ok && edge.From == from
	}
}

// Target returns the destination status of kind taken from the given
// status. Valid only when CanTransition holds.
func Target(from Status, kind Kind) Status {
	switch kind {
	case KindRelease:
		return StatusPlaced
	case KindCancel:
		return StatusCancelled
	default:
		return forwardEdges[kind].To
	}
}

// Proof is the completion evidence supplied with confirmDelivery: a photo
// reference, a typed signature, or — for no-contact orders only — a
// left-at-safe-location acknowledgement.
type Proof struct {
	PhotoURL    string `json:"photoUrl"`
	Signature   string `json:"signature"`
	SafeDropAck bool   `json:"safeDropAck"`
}

func (p Proof) empty() bool {
	return p.PhotoURL == "" && strings.TrimSpace(p.Signature) == "" && !p.SafeDropAck
}

// Order is the central entity. It is mutated exclusively through the state
// machine's compare-and-write transitions and never deleted; terminal
// orders are retained for history.
type Order struct {
	ID                 types.ID    `json:"id"`
	Status             Status      `json:"status"`
	AssignedDriverID   *types.ID   `json:"assignedDriverId"`
	AccessPool         []types.ID  `json:"accessPool"`
	BasePool           []types.ID  `json:"basePool"`
	PoolOpen           bool        `json:"poolOpen"`
	CustomerID         types.ID    `json:"customerId"`
	CustomerToken      string      `json:"-"`
	NoContact          bool        `json:"noContact"`
	Dropoff            types.Point `json:"dropoff"`
	Proof              Proof       `json:"proof"`
	CancellationReason *string     `json:"cancellationReason,omitempty"`
	LastReleaseReason  string      `json:"lastReleaseReason,omitempty"`
	LastReleaseFrom    Status      `json:"lastReleaseFrom,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
	CompletedAt        *time.Time  `json:"completedAt,omitempty"`
}

// InPool reports pool membership.
func (o *Order) InPool(id types.ID) bool {
	for _, member := range o.AccessPool {
		if member == id {
			return true
		}
	}
	return false
}

// Assigned reports whether id is the assigned driver.
func (o *Order) Assigned(id types.ID) bool {
	return o.AssignedDriverID != nil && *o.AssignedDriverID == id
}
