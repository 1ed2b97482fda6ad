// README: Tracking manager — owns one presence watcher per scope/key and
// drives it from document-store subscriptions.
package tracking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"courierd/internal/docstore"
	"courierd/internal/order"
	"courierd/internal/types"
)

// CollectionDriverStatus holds per-driver availability documents with an
// "available" flag toggled by the app.
const CollectionDriverStatus = "driver_status"

// Config carries the throttle intervals per scope.
type Config struct {
	AppInterval   time.Duration
	OrderInterval time.Duration
}

// Manager owns at most one watcher per (scope, key). App-scope tracking
// follows the driver's global availability flag; order-scope tracking
// follows the order's status entering the in-transit states. The two
// scopes are independent and may run concurrently for the same driver.
type Manager struct {
	docs docstore.Store
	srcs SourceProvider
	sink Sink
	cfg  Config
	warn WarnFunc
	log  *zap.Logger

	// Condition subscriptions outlive the HTTP request that armed them;
	// they are bound to the manager's own context, released by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tracked map[string]*trackedScope
}

type trackedScope struct {
	watcher     *Watcher
	unsubscribe func()
	done        chan struct{}
}

func NewManager(docs docstore.Store, srcs SourceProvider, sink Sink, cfg Config, warn WarnFunc, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		docs:    docs,
		srcs:    srcs,
		sink:    sink,
		cfg:     cfg,
		warn:    warn,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		tracked: make(map[string]*trackedScope),
	}
}

// Start begins observing the tracked condition for the given scope. For
// ScopeApp the key is the driver id; for ScopeOrder it is the order id.
// Starting an already-tracked scope is a no-op. The scope keeps following
// the condition until Stop or Close; it is not tied to the caller's
// request lifetime.
func (m *Manager) Start(scope Scope, driverID, key types.ID) error {
	if driverID == "" || key == "" {
		return fmt.Errorf("tracking: driver and key are required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	mapKey := scopeKey(scope, key)
	if _, ok := m.tracked[mapKey]; ok {
		return nil
	}

	interval := m.cfg.AppInterval
	template := Beacon{DriverID: driverID, Scope: scope}
	collection, docID := CollectionDriverStatus, string(driverID)
	if scope == ScopeOrder {
		interval = m.cfg.OrderInterval
		template.OrderID = key
		collection, docID = order.CollectionOrders, string(key)
	}

	reporter := NewReporter(interval, m.sink, template, m.log)
	watcher := NewWatcher(m.srcs.Source(driverID), watchOptions(scope), reporter, m.warn, m.log)

	snaps, unsubscribe, err := m.docs.Subscribe(m.ctx, collection, docID)
	if err != nil {
		return fmt.Errorf("tracking: subscribe %s/%s: %w", collection, docID, err)
	}

	t := &trackedScope{watcher: watcher, unsubscribe: unsubscribe, done: make(chan struct{})}
	m.tracked[mapKey] = t

	go m.follow(scope, watcher, snaps, t.done)
	return nil
}

// Stop tears down the scope: condition subscription released, watcher
// stopped, throttle timer cleared. Stopping an untracked scope is a no-op.
func (m *Manager) Stop(scope Scope, key types.ID) {
	m.mu.Lock()
	t, ok := m.tracked[scopeKey(scope, key)]
	if ok {
		delete(m.tracked, scopeKey(scope, key))
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	t.unsubscribe()
	<-t.done
	t.watcher.Stop()
}

// Close stops every tracked scope and releases the condition subscriptions.
func (m *Manager) Close() {
	m.cancel()
	m.mu.Lock()
	all := make(map[string]*trackedScope, len(m.tracked))
	for k, t := range m.tracked {
		all[k] = t
		delete(m.tracked, k)
	}
	m.mu.Unlock()
	for _, t := range all {
		t.unsubscribe()
		<-t.done
		t.watcher.Stop()
	}
}

// follow evaluates the tracked condition on every snapshot and flips the
// watcher accordingly. Start/Stop idempotency makes redundant snapshots
// harmless.
func (m *Manager) follow(scope Scope, w *Watcher, snaps <-chan docstore.Snapshot, done chan<- struct{}) {
	defer close(done)
	for snap := range snaps {
		if m.condition(scope, snap) {
			if err := w.Start(m.ctx); err != nil {
				m.log.Warn("watcher start failed", zap.String("scope", string(scope)), zap.Error(err))
			}
		} else {
			w.Stop()
		}
	}
}

func (m *Manager) condition(scope Scope, snap docstore.Snapshot) bool {
	if !snap.Exists {
		return false
	}
	switch scope {
	case ScopeApp:
		online, _ := snap.Data["available"].(bool)
		return online
	case ScopeOrder:
		raw, _ := snap.Data["status"].(string)
		status, err := order.ParseStatus(raw)
		if err != nil {
			m.log.Warn("undecodable order status in tracking condition",
				zap.String("order_id", snap.ID), zap.Error(err))
			return false
		}
		return status.InTransit()
	}
	return false
}

func scopeKey(scope Scope, key types.ID) string {
	return string(scope) + "/" + string(key)
}

// watchOptions mirror the app's platform location settings per scope.
func watchOptions(scope Scope) WatchOptions {
	if scope == ScopeOrder {
		return WatchOptions{HighAccuracy: true, Timeout: 10 * time.Second, MaxSampleAge: 5 * time.Second}
	}
	return WatchOptions{Timeout: 15 * time.Second, MaxSampleAge: 30 * time.Second}
}
