// README: HTTP router registration.
package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"courierd/internal/ai"
	"courierd/internal/http/handlers"
	"courierd/internal/http/middleware"
	"courierd/internal/infra"
	"courierd/internal/maps"
	"courierd/internal/order"
	"courierd/internal/session"
	"courierd/internal/tracking"
)

type RouterDeps struct {
	Verifier  infra.TokenVerifier
	Order     *order.Service
	Cache     handlers.CachedReader
	Positions handlers.PositionReader
	ETA       maps.Estimator
	Narrator  ai.Narrator
	Tracking  *tracking.Manager
	Bridge    *tracking.DeviceBridge
	Sessions  *session.Tracker
	Log       *zap.Logger
	Debug     bool
}

func NewRouter(deps RouterDeps) *gin.Engine {
	if !deps.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) { c.String(200, "OK") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	orderHandler := handlers.NewOrderHandler(deps.Order, deps.Cache, deps.Positions, deps.ETA, deps.Narrator, deps.Log)
	api.GET("/orders/:id", orderHandler.Get)
	api.GET("/orders/:id/cached", orderHandler.Cached)
	api.GET("/orders/:id/eta", orderHandler.ETA)
	api.GET("/orders/:id/narrative", orderHandler.Narrative)
	api.POST("/orders/:id/accept", orderHandler.Accept)
	api.POST("/orders/:id/advance", orderHandler.Advance)
	api.POST("/orders/:id/release", orderHandler.Release)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)

	trackingHandler := handlers.NewTrackingHandler(deps.Tracking, deps.Bridge, deps.Log)
	api.POST("/tracking/start", trackingHandler.Start)
	api.POST("/tracking/stop", trackingHandler.Stop)
	api.POST("/tracking/beacon", trackingHandler.Beacon)

	sessionHandler := handlers.NewSessionHandler(deps.Sessions, deps.Log)
	api.POST("/sessions/start", sessionHandler.Start)
	api.POST("/sessions/end", sessionHandler.End)
	api.POST("/sessions/end-others", sessionHandler.EndOthers)

	return r
}
