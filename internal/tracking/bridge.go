// README: Device bridge — per-driver position streams fed by the apps.
package tracking

import (
	"context"
	"sync"
	"time"

	"courierd/internal/types"
)

// SourceProvider resolves the position stream source for one driver.
type SourceProvider interface {
	Source(driverID types.ID) PositionSource
}

// DeviceBridge turns raw fixes posted by the driver apps into per-driver
// position streams. Push fans a sample out to every open subscription for
// that driver; Deny simulates the platform revoking location access, which
// surfaces as ErrPermissionDenied on open streams and on later Watch calls.
type DeviceBridge struct {
	mu     sync.Mutex
	subs   map[types.ID]map[*bridgeSub]struct{}
	denied map[types.ID]bool
}

func NewDeviceBridge() *DeviceBridge {
	return &DeviceBridge{
		subs:   make(map[types.ID]map[*bridgeSub]struct{}),
		denied: make(map[types.ID]bool),
	}
}

// Source returns the PositionSource view for one driver.
func (b *DeviceBridge) Source(driverID types.ID) PositionSource {
	return &driverSource{bridge: b, driverID: driverID}
}

// Push delivers one raw fix to the driver's open streams. Slow consumers
// drop samples rather than stall the caller.
func (b *DeviceBridge) Push(driverID types.ID, s Sample) {
	if s.CapturedAt.IsZero() {
		s.CapturedAt = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs[driverID] {
		if sub.opts.MaxSampleAge > 0 && time.Since(s.CapturedAt) > sub.opts.MaxSampleAge {
			continue
		}
		select {
		case sub.samples <- s:
		default:
		}
	}
}

// Deny records the driver's location permission state. Revoking while
// streams are open pushes ErrPermissionDenied to each of them.
func (b *DeviceBridge) Deny(driverID types.ID, denied bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.denied[driverID] = denied
	if !denied {
		return
	}
	for sub := range b.subs[driverID] {
		select {
		case sub.errs <- ErrPermissionDenied:
		default:
		}
	}
}

func (b *DeviceBridge) watch(driverID types.ID, opts WatchOptions) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.denied[driverID] {
		return nil, ErrPermissionDenied
	}
	sub := &bridgeSub{
		bridge:   b,
		driverID: driverID,
		opts:     opts,
		samples:  make(chan Sample, 16),
		errs:     make(chan error, 1),
	}
	if b.subs[driverID] == nil {
		b.subs[driverID] = make(map[*bridgeSub]struct{})
	}
	b.subs[driverID][sub] = struct{}{}
	return sub, nil
}

func (b *DeviceBridge) drop(sub *bridgeSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs[sub.driverID], sub)
	close(sub.samples)
	close(sub.errs)
}

type driverSource struct {
	bridge   *DeviceBridge
	driverID types.ID
}

func (s *driverSource) Watch(_ context.Context, opts WatchOptions) (Subscription, error) {
	return s.bridge.watch(s.driverID, opts)
}

type bridgeSub struct {
	bridge   *DeviceBridge
	driverID types.ID
	opts     WatchOptions
	samples  chan Sample
	errs     chan error
	stop     sync.Once
}

func (s *bridgeSub) Samples() <-chan Sample { return s.samples }
func (s *bridgeSub) Errs() <-chan error     { return s.errs }

func (s *bridgeSub) Stop() {
	s.stop.Do(func() { s.bridge.drop(s) })
}
