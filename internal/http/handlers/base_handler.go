// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"courierd/internal/order"
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, kind, msg string) {
	writeJSON(c, status, errorResponse{Error: msg, Kind: kind})
}

// writeOrderError maps each rejection to a distinct status and an
// actionable message: "order already taken" reads differently from "you
// are not assigned to this order".
func writeOrderError(c *gin.Context, err error) {
	kind := order.RejectReason(err)
	switch {
	case errors.Is(err, order.ErrNotFound):
		writeError(c, http.StatusNotFound, kind, "order not found")
	case errors.Is(err, order.ErrInvalidSourceState):
		writeError(c, http.StatusConflict, kind, "order state changed — refresh and try again")
	case errors.Is(err, order.ErrNotAuthorized):
		writeError(c, http.StatusForbidden, kind, "you are not allowed to perform this action on the order")
	case errors.Is(err, order.ErrMissingProof):
		writeError(c, http.StatusBadRequest, kind, "delivery proof required: photo, signature, or safe-drop acknowledgement")
	case errors.Is(err, order.ErrMissingReason):
		writeError(c, http.StatusBadRequest, kind, "a release reason is required")
	case errors.Is(err, order.ErrUnknownStatus):
		writeError(c, http.StatusInternalServerError, kind, "order record is corrupted")
	case errors.Is(err, order.ErrUpstreamUnavailable):
		writeError(c, http.StatusServiceUnavailable, kind, "store unavailable — try again")
	default:
		writeError(c, http.StatusInternalServerError, "internal", "internal error")
	}
}
