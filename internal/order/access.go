// README: AccessController — pure read/transition guards invoked inline by the state machine.
package order

import "courierd/internal/types"

// Actor is a verified identity and its token-asserted role. The role is
// not re-derived here; the identity provider already vouched for it.
type Actor struct {
	ID   types.ID
	Role types.Role
}

// AdmissionPolicy decides whether an actor may accept an unassigned order.
// The pool semantics differ between deployments (a bounded set of invited
// drivers vs. any authenticated driver), so the policy is injected rather
// than hard-coded.
type AdmissionPolicy func(actor Actor, o *Order) bool

// PoolAdmission admits pool members, and — when the order's pool is open —
// any authenticated driver.
func PoolAdmission(actor Actor, o *Order) bool {
	if actor.Role != types.RoleDriver {
		return false
	}
	return o.PoolOpen || o.InPool(actor.ID)
}

// BoundedPoolAdmission admits strictly by pool membership, ignoring the
// open-pool flag.
func BoundedPoolAdmission(actor Actor, o *Order) bool {
	return actor.Role == types.RoleDriver && o.InPool(actor.ID)
}

// Access evaluates who may read or mutate an order at a given time. It is
// a guard, not a service boundary: violations surface as ErrNotAuthorized
// from the state machine.
type Access struct {
	admit AdmissionPolicy
}

func NewAccess(policy AdmissionPolicy) *Access {
	if policy == nil {
		policy = PoolAdmission
	}
	return &Access{admit: policy}
}

// CanRead is true for the assigned driver, pool members, admitted drivers,
// the order's customer, and support.
func (a *Access) CanRead(actor Actor, o *Order) bool {
	if actor.Role == types.RoleSupport {
		return true
	}
	if actor.Role == types.RoleCustomer {
		return actor.ID == o.CustomerID
	}
	return o.Assigned(actor.ID) || o.InPool(actor.ID) || a.admit(actor, o)
}

// CanTransition is true when the actor holds the right for this edge:
// accept goes by the admission policy on a Placed order, cancel is
// administrative, every other edge belongs to the assigned driver.
func (a *Access) CanTransition(actor Actor, o *Order, kind Kind) bool {
	switch kind {
	case KindAccept:
		return o.Status == StatusPlaced && a.admit(actor, o)
	case KindCancel:
		return actor.Role == types.RoleSupport
	default:
		return actor.Role == types.RoleDriver && o.Assigned(actor.ID)
	}
}
