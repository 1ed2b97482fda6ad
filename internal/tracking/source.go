// Package tracking runs the permission-aware live-location pipeline: a
// presence watcher per tracking scope starts and stops the device's
// continuous position stream, and a throttling reporter turns the raw
// sample stream into at most one upstream beacon per interval.
package tracking

import (
	"context"
	"errors"
	"time"

	"courierd/internal/types"
)

// ErrPermissionDenied is reported by a position source when the device
// refuses location access. The watcher stops itself and does not retry.
var ErrPermissionDenied = errors.New("tracking: location permission denied")

// Sample is one raw position fix from the device.
type Sample struct {
	Lat        float64
	Lng        float64
	CapturedAt time.Time
}

// WatchOptions tune the underlying platform location service.
type WatchOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxSampleAge time.Duration
}

// Subscription is a live position stream. Samples and Errs are closed when
// the subscription ends; Stop is idempotent and synchronous.
type Subscription interface {
	Samples() <-chan Sample
	Errs() <-chan error
	Stop()
}

// PositionSource opens continuous position streams. The production
// implementation sits on the device bridge; tests inject fakes.
type PositionSource interface {
	Watch(ctx context.Context, opts WatchOptions) (Subscription, error)
}

// Scope distinguishes the two independent tracking contexts.
type Scope string

const (
	// ScopeApp is coarse app-wide tracking, active while the driver's
	// global availability flag is online.
	ScopeApp Scope = "app"
	// ScopeOrder is fine-grained tracking, active while the open order is
	// picked up or out for delivery.
	ScopeOrder Scope = "order"
)

// Beacon is one throttled upstream location write.
type Beacon struct {
	DriverID types.ID
	OrderID  types.ID // empty for app scope
	Scope    Scope
	Sample   Sample
}

// Sink receives throttled beacons. A sink failure is best-effort
// telemetry: the reporter logs and swallows it.
type Sink interface {
	Publish(ctx context.Context, b Beacon) error
}
