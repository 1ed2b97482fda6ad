// README: Order lifecycle handlers — accept, advance, release, cancel, reads.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courierd/internal/ai"
	"courierd/internal/http/middleware"
	"courierd/internal/maps"
	"courierd/internal/order"
	"courierd/internal/types"
)

type OrderHandler struct {
	order     *order.Service
	cache     CachedReader
	positions PositionReader
	eta       maps.Estimator
	narrator  ai.Narrator
	log       *zap.Logger
}

// CachedReader is the offline cache's read side.
type CachedReader interface {
	Get(ctx context.Context, id types.ID) (*order.Order, bool)
}

// PositionReader resolves a driver's last reported position for an order.
type PositionReader interface {
	LastPosition(ctx context.Context, driverID, orderID types.ID) (types.Point, bool)
}

func NewOrderHandler(svc *order.Service, cache CachedReader, positions PositionReader, eta maps.Estimator, narrator ai.Narrator, log *zap.Logger) *OrderHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderHandler{order: svc, cache: cache, positions: positions, eta: eta, narrator: narrator, log: log}
}

func (h *OrderHandler) Accept(c *gin.Context) {
	id := c.Param("id")
	uid, role := middleware.CallerActor(c)
	if role != types.RoleDriver {
		writeError(c, http.StatusForbidden, "not_authorized", "driver role required")
		return
	}
	o, err := h.order.Accept(c.Request.Context(), types.ID(id), uid)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type advanceReq struct {
	Kind  string      `json:"kind"`
	Proof order.Proof `json:"proof"`
}

func (h *OrderHandler) Advance(c *gin.Context) {
	id := c.Param("id")
	uid, role := middleware.CallerActor(c)
	if role != types.RoleDriver {
		writeError(c, http.StatusForbidden, "not_authorized", "driver role required")
		return
	}
	var req advanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	kind, err := order.ParseKind(req.Kind)
	if err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "unknown transition kind")
		return
	}
	o, err := h.order.Advance(c.Request.Context(), types.ID(id), uid, kind, order.Payload{Proof: req.Proof})
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type releaseReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Release(c *gin.Context) {
	id := c.Param("id")
	uid, role := middleware.CallerActor(c)
	if role != types.RoleDriver {
		writeError(c, http.StatusForbidden, "not_authorized", "driver role required")
		return
	}
	var req releaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	o, err := h.order.Release(c.Request.Context(), types.ID(id), uid, req.Reason)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type cancelReq struct {
	Reason string `json:"reason"`
}

func (h *OrderHandler) Cancel(c *gin.Context) {
	id := c.Param("id")
	uid, role := middleware.CallerActor(c)
	var req cancelReq
	_ = c.ShouldBindJSON(&req) // reason is optional
	o, err := h.order.Cancel(c.Request.Context(), types.ID(id), order.Actor{ID: uid, Role: role}, req.Reason)
	if err != nil {
		writeOrderError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

// Get is the live read: access-checked, written through the offline cache
// by the service.
func (h *OrderHandler) Get(c *gin.Context) {
	id := c.Param("id")
	uid, role := middleware.CallerActor(c)
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if !h.order.Access().CanRead(order.Actor{ID: uid, Role: role}, o) {
		writeError(c, http.StatusForbidden, "not_authorized", "you may not view this order")
		return
	}
	writeJSON(c, http.StatusOK, o)
}

// Cached serves the last-known-good snapshot for cold starts, before the
// live subscription resolves. 204 when nothing is cached.
func (h *OrderHandler) Cached(c *gin.Context) {
	id := c.Param("id")
	uid, role := middleware.CallerActor(c)
	o, ok := h.cache.Get(c.Request.Context(), types.ID(id))
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	if !h.order.Access().CanRead(order.Actor{ID: uid, Role: role}, o) {
		writeError(c, http.StatusForbidden, "not_authorized", "you may not view this order")
		return
	}
	writeJSON(c, http.StatusOK, o)
}

// ETA decorates the order with a travel estimate from the driver's last
// reported position to the dropoff.
func (h *OrderHandler) ETA(c *gin.Context) {
	if h.eta == nil || h.positions == nil {
		writeError(c, http.StatusNotImplemented, "unavailable", "eta service not configured")
		return
	}
	id := c.Param("id")
	uid, role := middleware.CallerActor(c)
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if !h.order.Access().CanRead(order.Actor{ID: uid, Role: role}, o) {
		writeError(c, http.StatusForbidden, "not_authorized", "you may not view this order")
		return
	}
	if o.AssignedDriverID == nil {
		writeError(c, http.StatusConflict, "invalid_source_state", "order has no driver yet")
		return
	}
	origin, ok := h.positions.LastPosition(c.Request.Context(), *o.AssignedDriverID, o.ID)
	if !ok {
		writeError(c, http.StatusNotFound, "not_found", "no recent driver position")
		return
	}
	est, err := h.eta.TravelEstimate(c.Request.Context(), origin, o.Dropoff)
	if err != nil {
		h.log.Warn("eta lookup failed", zap.String("order_id", id), zap.Error(err))
		writeError(c, http.StatusServiceUnavailable, "unavailable", "eta unavailable")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"order_id":    id,
		"eta_seconds": int(est.Duration.Seconds()),
		"distance":    est.Distance,
	})
}

// Narrative returns a one-line progress blurb; falls back to the bare
// status when the generator is unavailable.
func (h *OrderHandler) Narrative(c *gin.Context) {
	id := c.Param("id")
	uid, role := middleware.CallerActor(c)
	o, err := h.order.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeOrderError(c, err)
		return
	}
	if !h.order.Access().CanRead(order.Actor{ID: uid, Role: role}, o) {
		writeError(c, http.StatusForbidden, "not_authorized", "you may not view this order")
		return
	}
	text := string(o.Status)
	if h.narrator != nil {
		if line, err := h.narrator.DeliveryNarrative(c.Request.Context(), string(o.Status), 0); err == nil && line != "" {
			text = line
		} else if err != nil {
			h.log.Warn("narrative generation failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	writeJSON(c, http.StatusOK, gin.H{"order_id": id, "narrative": text})
}
