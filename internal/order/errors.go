package order

import "errors"

// Transition guard failures. These are returned to the caller as-is; the
// caller re-reads current state and lets the user decide — a rejected
// transition is never retried automatically.
var (
	// ErrInvalidSourceState rejects a stale or out-of-order transition
	// attempt: the order is no longer in the source state the requested
	// transition departs from.
	ErrInvalidSourceState = errors.New("order: status does not allow this transition")

	// ErrNotAuthorized rejects an actor that is neither the assigned driver
	// nor, for accept, admitted by the access pool.
	ErrNotAuthorized = errors.New("order: actor not authorized for this transition")

	// ErrMissingProof rejects confirmDelivery without a photo, a typed
	// signature, or a no-contact safe-drop acknowledgement.
	ErrMissingProof = errors.New("order: delivery proof required")

	// ErrMissingReason rejects release with an empty or whitespace-only
	// reason.
	ErrMissingReason = errors.New("order: release reason required")

	// ErrNotFound means the order does not exist.
	ErrNotFound = errors.New("order: not found")

	// ErrUnknownStatus is a decode failure: the raw status value held by
	// the store is not part of the closed enumeration. It is never coerced
	// to a default.
	ErrUnknownStatus = errors.New("order: unrecognized status value")

	// ErrUpstreamUnavailable wraps store read/write failures. The outcome
	// of the write is unknown, so the caller must re-read before retrying.
	ErrUpstreamUnavailable = errors.New("order: store unavailable")
)

// RejectReason labels a guard failure for metrics and API responses.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSourceState):
		return "invalid_source_state"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrMissingProof):
		return "missing_proof"
	case errors.Is(err, ErrMissingReason):
		return "missing_reason"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnknownStatus):
		return "unknown_status"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "upstream_unavailable"
	default:
		return "internal"
	}
}
