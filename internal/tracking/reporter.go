// README: Throttling reporter — leading-edge emit plus trailing-edge coalescing.
package tracking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"courierd/internal/metrics"
)

const publishTimeout = 5 * time.Second

// Reporter throttles a stream of position samples to at most one upstream
// write per interval. The first sample of a quiet period is emitted
// immediately; samples arriving inside the window are coalesced and the
// most recent one is emitted when the window closes, so the final sample
// of a burst is never dropped.
//
// State is private to one reporter instance and guarded by mu; Offer and
// Stop may be called from concurrent goroutines.
type Reporter struct {
	interval time.Duration
	sink     Sink
	beacon   Beacon // template: driver/order/scope of every emission
	log      *zap.Logger

	mu       sync.Mutex
	lastEmit time.Time
	pending  *Sample
	timer    *time.Timer
}

func NewReporter(interval time.Duration, sink Sink, template Beacon, log *zap.Logger) *Reporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reporter{interval: interval, sink: sink, beacon: template, log: log}
}

// Offer feeds one raw sample into the throttle.
func (r *Reporter) Offer(s Sample) {
	r.mu.Lock()
	if r.timer != nil {
		// Window already open with a deferred emission scheduled; keep
		// only the most recent sample.
		r.pending = &s
		r.mu.Unlock()
		return
	}
	now := time.Now()
	if elapsed := now.Sub(r.lastEmit); elapsed < r.interval {
		// Inside the quiet window after an emission: defer to window end.
		r.pending = &s
		r.timer = time.AfterFunc(r.interval-elapsed, r.flush)
		r.mu.Unlock()
		return
	}
	// Leading edge of a new burst.
	r.lastEmit = now
	r.mu.Unlock()
	r.emit(s)
}

// flush is the trailing-edge emission at the end of a throttle window.
func (r *Reporter) flush() {
	r.mu.Lock()
	r.timer = nil
	s := r.pending
	r.pending = nil
	if s == nil {
		// Stop cleared the window before the timer fired.
		r.mu.Unlock()
		return
	}
	r.lastEmit = time.Now()
	r.mu.Unlock()
	r.emit(*s)
}

// Stop cancels any scheduled trailing emission so no beacon escapes after
// tracking has ended. The reporter stays usable: a later Offer opens a
// fresh window, still throttled against the last emission time.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.pending = nil
}

func (r *Reporter) emit(s Sample) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	b := r.beacon
	b.Sample = s
	if err := r.sink.Publish(ctx, b); err != nil {
		// A missed beacon is not escalated and not retried; the next
		// sample supersedes it.
		metrics.LocationBeaconErrorsTotal.Inc()
		r.log.Warn("location beacon dropped",
			zap.String("driver_id", string(b.DriverID)),
			zap.String("scope", string(b.Scope)),
			zap.Error(err))
		return
	}
	metrics.LocationBeaconsTotal.WithLabelValues(string(b.Scope)).Inc()
}
