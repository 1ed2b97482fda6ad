// README: PresenceWatcher — Idle/Watching state machine over the position stream.
package tracking

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// WarnFunc surfaces a user-facing warning (permission denied). The watcher
// guarantees at most one warning per denial episode.
type WarnFunc func(message string)

// Watcher owns one continuous position stream and feeds every sample into
// its reporter. Start and Stop are idempotent; Stop synchronously
// unsubscribes the stream and clears the reporter's throttle timer.
type Watcher struct {
	src      PositionSource
	opts     WatchOptions
	reporter *Reporter
	warn     WarnFunc
	log      *zap.Logger

	mu           sync.Mutex
	sub          Subscription
	watching     bool
	warnedDenial bool
}

func NewWatcher(src PositionSource, opts WatchOptions, reporter *Reporter, warn WarnFunc, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	if warn == nil {
		warn = func(msg string) { log.Warn(msg) }
	}
	return &Watcher{src: src, opts: opts, reporter: reporter, warn: warn, log: log}
}

// Start moves Idle -> Watching. Starting a watcher that is already
// watching is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	sub, err := w.src.Watch(ctx, w.opts)
	if err != nil {
		w.mu.Unlock()
		if errors.Is(err, ErrPermissionDenied) {
			w.denied()
			return err
		}
		return err
	}
	w.sub = sub
	w.watching = true
	w.warnedDenial = false // new denial episode begins with a fresh stream
	w.mu.Unlock()

	go w.pump(sub)
	return nil
}

// Stop moves Watching -> Idle. Stopping an idle watcher is a no-op; the
// underlying stream is unsubscribed exactly once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.watching {
		w.mu.Unlock()
		return
	}
	sub := w.sub
	w.sub = nil
	w.watching = false
	w.mu.Unlock()

	sub.Stop()
	w.reporter.Stop()
}

// Watching reports the current state.
func (w *Watcher) Watching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

// pump drains the subscription until it closes or a permission denial
// stops the watcher.
func (w *Watcher) pump(sub Subscription) {
	samples, errs := sub.Samples(), sub.Errs()
	for samples != nil || errs != nil {
		select {
		case s, ok := <-samples:
			if !ok {
				samples = nil
				continue
			}
			w.reporter.Offer(s)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if errors.Is(err, ErrPermissionDenied) {
				w.denied()
				w.Stop()
				return
			}
			// Transient stream errors (timeout, no fix) are expected; the
			// stream keeps delivering.
			w.log.Debug("position stream error", zap.Error(err))
		}
	}
}

// denied raises the user-facing warning once per denial episode.
func (w *Watcher) denied() {
	w.mu.Lock()
	already := w.warnedDenial
	w.warnedDenial = true
	w.mu.Unlock()
	if !already {
		w.warn("location permission denied: live tracking is off until access is restored")
	}
}
