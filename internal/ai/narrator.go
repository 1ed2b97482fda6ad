package ai

import "context"

// Narrator turns an order's current state into a short human-readable
// progress line for the customer tracker ("Your courier just picked up
// the order and is about 12 minutes away"). Peripheral feature: callers
// must tolerate failure and fall back to a plain status label.
type Narrator interface {
	DeliveryNarrative(ctx context.Context, status string, etaMinutes int) (string, error)
}
