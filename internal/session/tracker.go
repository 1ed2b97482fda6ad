// Package session records login-to-logout spans for activity analytics and
// multi-device sign-out.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"courierd/internal/docstore"
	"courierd/internal/metrics"
	"courierd/internal/types"
)

// CollectionSessions holds one document per login span. logoutAt == nil
// means the session is still active.
const CollectionSessions = "sessions"

// ErrUpstreamUnavailable wraps store failures.
var ErrUpstreamUnavailable = errors.New("session: store unavailable")

const (
	fieldUserID   = "userId"
	fieldLoginAt  = "loginAt"
	fieldLogoutAt = "logoutAt"
	fieldDate     = "date"
	fieldDevice   = "device"
)

// Session is one login-to-logout span.
type Session struct {
	ID       string
	UserID   types.ID
	LoginAt  time.Time
	LogoutAt *time.Time
	Date     string // UTC calendar-day bucket, YYYY-MM-DD
	Device   string
}

// Tracker owns at most one session per (user, device) execution context.
// The marker is keyed, never shared: one server process serves many
// callers, and user A's remembered session must stay invisible to user B.
type Tracker struct {
	docs          docstore.Store
	defaultDevice string
	log           *zap.Logger

	mu      sync.Mutex
	current map[string]string // (user, device) -> remembered session id
}

func NewTracker(docs docstore.Store, defaultDevice string, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		docs:          docs,
		defaultDevice: defaultDevice,
		log:           log,
		current:       make(map[string]string),
	}
}

func (t *Tracker) markerKey(userID types.ID, device string) string {
	if device == "" {
		device = t.defaultDevice
	}
	return string(userID) + "\x00" + device
}

// Start opens a session for userID on the given device. Idempotent per
// (user, device): if a session is already remembered for that pair, its id
// is returned without a second write.
func (t *Tracker) Start(ctx context.Context, userID types.ID, device string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := t.markerKey(userID, device)
	if id, ok := t.current[key]; ok {
		return id, nil
	}
	if device == "" {
		device = t.defaultDevice
	}

	id := uuid.NewString()
	doc := docstore.Doc{
		fieldUserID:   string(userID),
		fieldLoginAt:  docstore.ServerTime,
		fieldLogoutAt: nil,
		fieldDate:     time.Now().UTC().Format("2006-01-02"),
		fieldDevice:   device,
	}
	if err := t.docs.Write(ctx, CollectionSessions, id, doc, false); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	t.current[key] = id
	metrics.SessionsStartedTotal.Inc()
	return id, nil
}

// End stamps the logout timestamp of the session remembered for the
// caller's (user, device). Safe to call when none is remembered; it can
// only ever touch a session the same pair started.
func (t *Tracker) End(ctx context.Context, userID types.ID, device string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := t.markerKey(userID, device)
	id, ok := t.current[key]
	if !ok {
		return nil
	}
	patch := docstore.Doc{fieldLogoutAt: docstore.ServerTime}
	if err := t.docs.Write(ctx, CollectionSessions, id, patch, true); err != nil {
		// Keep the marker so a later End can retry.
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	delete(t.current, key)
	metrics.SessionsEndedTotal.Inc()
	return nil
}

// EndAllOthers signs the user out of every other active session in one
// atomic batch, never touching the caller's own remembered session. It
// returns the number of sessions closed.
func (t *Tracker) EndAllOthers(ctx context.Context, userID types.ID, device string) (int, error) {
	t.mu.Lock()
	own := t.current[t.markerKey(userID, device)]
	t.mu.Unlock()

	active, err := t.docs.Query(ctx, CollectionSessions,
		docstore.Filter{Path: fieldUserID, Op: "==", Value: string(userID)},
		docstore.Filter{Path: fieldLogoutAt, Op: "==", Value: nil},
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	var ops []docstore.WriteOp
	for _, snap := range active {
		if own != "" && snap.ID == own {
			continue
		}
		ops = append(ops, docstore.WriteOp{
			Collection: CollectionSessions,
			ID:         snap.ID,
			Patch:      docstore.Doc{fieldLogoutAt: docstore.ServerTime},
			Merge:      true,
		})
	}
	if len(ops) == 0 {
		return 0, nil
	}
	// Batched, not fired individually: partial sign-outs are worse than a
	// failed attempt the user can retry.
	if err := t.docs.BatchWrite(ctx, ops); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	metrics.SessionsEndedTotal.Add(float64(len(ops)))
	t.log.Info("signed out other devices",
		zap.String("user_id", string(userID)), zap.Int("sessions", len(ops)))
	return len(ops), nil
}

// Current returns the session id remembered for the (user, device) pair,
// if any.
func (t *Tracker) Current(userID types.ID, device string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current[t.markerKey(userID, device)]
}
