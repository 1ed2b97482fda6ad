// README: Tracking handler — drivers opt scopes in and out of live tracking.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courierd/internal/http/middleware"
	"courierd/internal/tracking"
	"courierd/internal/types"
)

// TrackingHandler flips the per-scope tracking intent. The manager still
// gates actual emission on the observed condition (availability flag or
// in-transit order status), so starting a scope whose condition is false
// just arms it.
type TrackingHandler struct {
	manager *tracking.Manager
	bridge  *tracking.DeviceBridge
	log     *zap.Logger
}

func NewTrackingHandler(manager *tracking.Manager, bridge *tracking.DeviceBridge, log *zap.Logger) *TrackingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TrackingHandler{manager: manager, bridge: bridge, log: log}
}

type trackingRequest struct {
	Scope   string `json:"scope" binding:"required"`
	OrderID string `json:"orderId"`
}

// scopeAndKey resolves the request to a (scope, key) pair. App scope keys
// on the driver themselves; order scope keys on the given order.
func scopeAndKey(r trackingRequest, driverID types.ID) (tracking.Scope, types.ID, bool) {
	switch r.Scope {
	case string(tracking.ScopeApp):
		return tracking.ScopeApp, driverID, true
	case string(tracking.ScopeOrder):
		if r.OrderID == "" {
			return "", "", false
		}
		return tracking.ScopeOrder, types.ID(r.OrderID), true
	}
	return "", "", false
}

func (h *TrackingHandler) Start(c *gin.Context) {
	driverID, role := middleware.CallerActor(c)
	if role != types.RoleDriver {
		writeError(c, http.StatusForbidden, "not_authorized", "only drivers can report location")
		return
	}

	var req trackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "scope is required")
		return
	}
	scope, key, ok := scopeAndKey(req, driverID)
	if !ok {
		writeError(c, http.StatusBadRequest, "bad_request", "scope must be app or order, with orderId for order scope")
		return
	}

	if err := h.manager.Start(scope, driverID, key); err != nil {
		h.log.Warn("tracking start failed",
			zap.String("driver_id", string(driverID)), zap.String("scope", string(scope)), zap.Error(err))
		writeError(c, http.StatusServiceUnavailable, "upstream_unavailable", "could not arm tracking — try again")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"scope": string(scope), "key": string(key), "tracking": true})
}

func (h *TrackingHandler) Stop(c *gin.Context) {
	driverID, role := middleware.CallerActor(c)
	if role != types.RoleDriver {
		writeError(c, http.StatusForbidden, "not_authorized", "only drivers can report location")
		return
	}

	var req trackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "scope is required")
		return
	}
	scope, key, ok := scopeAndKey(req, driverID)
	if !ok {
		writeError(c, http.StatusBadRequest, "bad_request", "scope must be app or order, with orderId for order scope")
		return
	}

	h.manager.Stop(scope, key)
	writeJSON(c, http.StatusOK, gin.H{"scope": string(scope), "key": string(key), "tracking": false})
}

// Lat/lng are pointers: 0 is a valid coordinate (equator, prime meridian),
// so presence is checked explicitly rather than through binding:"required".
type beaconRequest struct {
	Lat        *float64   `json:"lat"`
	Lng        *float64   `json:"lng"`
	CapturedAt *time.Time `json:"capturedAt"`
	Denied     bool       `json:"denied"`
}

func (r beaconRequest) validCoordinates() bool {
	return r.Lat != nil && r.Lng != nil &&
		*r.Lat >= -90 && *r.Lat <= 90 &&
		*r.Lng >= -180 && *r.Lng <= 180
}

// Beacon ingests one raw fix from the driver app. Armed scopes pick it up
// through the device bridge; with nothing armed the fix is dropped, which
// is the point — raw fixes never reach the store directly.
func (h *TrackingHandler) Beacon(c *gin.Context) {
	driverID, role := middleware.CallerActor(c)
	if role != types.RoleDriver {
		writeError(c, http.StatusForbidden, "not_authorized", "only drivers can report location")
		return
	}

	var req beaconRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "lat and lng are required")
		return
	}
	if req.Denied {
		h.bridge.Deny(driverID, true)
		writeJSON(c, http.StatusOK, gin.H{"accepted": false})
		return
	}
	if !req.validCoordinates() {
		writeError(c, http.StatusBadRequest, "bad_request", "lat and lng are required and must be valid coordinates")
		return
	}
	h.bridge.Deny(driverID, false)

	sample := tracking.Sample{Lat: *req.Lat, Lng: *req.Lng}
	if req.CapturedAt != nil {
		sample.CapturedAt = req.CapturedAt.UTC()
	}
	h.bridge.Push(driverID, sample)
	writeJSON(c, http.StatusAccepted, gin.H{"accepted": true})
}
