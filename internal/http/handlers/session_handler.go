// README: Session handler — login/logout spans and remote sign-out.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courierd/internal/http/middleware"
	"courierd/internal/session"
	"courierd/internal/types"
)

// SessionHandler opens and closes login spans for the authenticated
// caller. The tracker keys its remembered session per (user, device), so
// one instance serves every caller of the process.
type SessionHandler struct {
	sessions *session.Tracker
	log      *zap.Logger
}

func NewSessionHandler(sessions *session.Tracker, log *zap.Logger) *SessionHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{sessions: sessions, log: log}
}

type sessionRequest struct {
	Device string `json:"device"`
}

// callerDevice reads the optional device descriptor from the request body.
// A missing or empty body means the tracker's default device.
func callerDevice(c *gin.Context) string {
	var req sessionRequest
	_ = c.ShouldBindJSON(&req)
	return req.Device
}

func (h *SessionHandler) Start(c *gin.Context) {
	uid := middleware.CallerUID(c)
	id, err := h.sessions.Start(c.Request.Context(), types.ID(uid), callerDevice(c))
	if err != nil {
		h.log.Warn("session start failed", zap.String("user_id", uid), zap.Error(err))
		writeError(c, http.StatusServiceUnavailable, "upstream_unavailable", "could not record session — try again")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sessionId": id})
}

func (h *SessionHandler) End(c *gin.Context) {
	uid := middleware.CallerUID(c)
	if err := h.sessions.End(c.Request.Context(), types.ID(uid), callerDevice(c)); err != nil {
		h.log.Warn("session end failed", zap.String("user_id", uid), zap.Error(err))
		writeError(c, http.StatusServiceUnavailable, "upstream_unavailable", "could not close session — try again")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ended": true})
}

// EndOthers signs the caller out everywhere else, leaving the current
// session running.
func (h *SessionHandler) EndOthers(c *gin.Context) {
	uid := middleware.CallerUID(c)
	n, err := h.sessions.EndAllOthers(c.Request.Context(), types.ID(uid), callerDevice(c))
	if err != nil {
		h.log.Warn("remote sign-out failed", zap.String("user_id", uid), zap.Error(err))
		writeError(c, http.StatusServiceUnavailable, "upstream_unavailable", "could not sign out other devices — try again")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"ended": n})
}
