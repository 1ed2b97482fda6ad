// README: Throttle behavior tests.
package tracking

import (
	"context"
	"sync"
	"testing"
	"time"
)

// captureSink records published beacons.
type captureSink struct {
	mu      sync.Mutex
	beacons []Beacon
	err     error
}

func (s *captureSink) Publish(_ context.Context, b Beacon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.beacons = append(s.beacons, b)
	return nil
}

func (s *captureSink) all() []Beacon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Beacon(nil), s.beacons...)
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.beacons)
}

func sampleAt(lat float64) Sample {
	return Sample{Lat: lat, Lng: 121.5, CapturedAt: time.Now().UTC()}
}

func TestReporter_LeadingEdgeEmitsImmediately(t *testing.T) {
	sink := &captureSink{}
	r := NewReporter(100*time.Millisecond, sink, Beacon{DriverID: "d1", Scope: ScopeApp}, nil)

	r.Offer(sampleAt(25.01))
	if got := sink.count(); got != 1 {
		t.Fatalf("first sample should emit immediately, got %d beacons", got)
	}
	b := sink.all()[0]
	if b.DriverID != "d1" || b.Scope != ScopeApp || b.Sample.Lat != 25.01 {
		t.Fatalf("beacon template not applied: %+v", b)
	}
}

func TestReporter_BurstCoalescesToTrailingEmit(t *testing.T) {
	sink := &captureSink{}
	r := NewReporter(100*time.Millisecond, sink, Beacon{DriverID: "d1", Scope: ScopeOrder, OrderID: "o1"}, nil)

	// A burst well inside one window: leading edge, then coalesced tail.
	r.Offer(sampleAt(25.01))
	r.Offer(sampleAt(25.02))
	r.Offer(sampleAt(25.03))
	r.Offer(sampleAt(25.04))

	if got := sink.count(); got != 1 {
		t.Fatalf("mid-window samples must not emit, got %d beacons", got)
	}

	time.Sleep(200 * time.Millisecond)
	got := sink.all()
	if len(got) != 2 {
		t.Fatalf("expected leading + trailing emit, got %d", len(got))
	}
	if got[1].Sample.Lat != 25.04 {
		t.Fatalf("trailing emit must carry the latest sample, got lat %v", got[1].Sample.Lat)
	}
}

func TestReporter_SpacedSamplesAllEmit(t *testing.T) {
	sink := &captureSink{}
	r := NewReporter(50*time.Millisecond, sink, Beacon{DriverID: "d1", Scope: ScopeApp}, nil)

	for i := 0; i < 3; i++ {
		r.Offer(sampleAt(25.0 + float64(i)))
		time.Sleep(80 * time.Millisecond)
	}
	if got := sink.count(); got != 3 {
		t.Fatalf("spaced samples should each emit, got %d", got)
	}
}

func TestReporter_StopCancelsTrailingEmit(t *testing.T) {
	sink := &captureSink{}
	r := NewReporter(100*time.Millisecond, sink, Beacon{DriverID: "d1", Scope: ScopeApp}, nil)

	r.Offer(sampleAt(25.01))
	r.Offer(sampleAt(25.02)) // deferred to window end
	r.Stop()

	time.Sleep(200 * time.Millisecond)
	if got := sink.count(); got != 1 {
		t.Fatalf("stop must cancel the pending emission, got %d beacons", got)
	}
}

func TestReporter_ReusableAfterStop(t *testing.T) {
	sink := &captureSink{}
	r := NewReporter(80*time.Millisecond, sink, Beacon{DriverID: "d1", Scope: ScopeApp}, nil)

	r.Offer(sampleAt(25.01))
	r.Stop()

	// Immediately after stop the throttle window from the last emission
	// still applies.
	r.Offer(sampleAt(25.02))
	if got := sink.count(); got != 1 {
		t.Fatalf("sample inside the old window must defer, got %d", got)
	}
	time.Sleep(160 * time.Millisecond)
	if got := sink.count(); got != 2 {
		t.Fatalf("deferred sample should emit after the window, got %d", got)
	}
}

func TestReporter_SinkFailureIsSwallowed(t *testing.T) {
	sink := &captureSink{err: context.DeadlineExceeded}
	r := NewReporter(50*time.Millisecond, sink, Beacon{DriverID: "d1", Scope: ScopeApp}, nil)

	// Must not panic or block.
	r.Offer(sampleAt(25.01))
	if got := sink.count(); got != 0 {
		t.Fatalf("failed publish recorded a beacon: %d", got)
	}
}
