// Package events publishes order lifecycle events to the message bus.
// Consumers (support console analytics, trust scoring) are downstream; the
// state machine treats publishing as best-effort telemetry.
package events

import (
	"context"
	"time"
)

type Event struct {
	ID         string    `json:"id"`
	OrderID    string    `json:"orderId"`
	Kind       string    `json:"kind"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ActorID    string    `json:"actorId"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Noop discards events; used when no broker is configured and in tests.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
