// README: Entry point; loads config, wires services, starts the HTTP server.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"courierd/internal/ai"
	"courierd/internal/cache"
	"courierd/internal/config"
	"courierd/internal/docstore"
	"courierd/internal/events"
	httptransport "courierd/internal/http"
	"courierd/internal/infra"
	"courierd/internal/logger"
	"courierd/internal/maps"
	"courierd/internal/notify"
	"courierd/internal/order"
	"courierd/internal/session"
	"courierd/internal/tracking"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl := logger.New(cfg.HTTP.Debug)
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Firebase.ProjectID == "" {
		zl.Fatal("COURIERD_FIREBASE_PROJECT_ID is required")
	}
	fb, err := infra.NewFirebase(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	if err != nil {
		zl.Fatal("firebase init", zap.Error(err))
	}
	defer func() { _ = fb.Close() }()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		zl.Fatal("postgres init", zap.Error(err))
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer func() { _ = redisClient.Close() }()

	docs := docstore.NewFirestoreStore(fb.Firestore())

	var publisher events.Publisher = events.Noop{}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() { _ = kp.Close() }()
		publisher = kp
	}

	admission := order.PoolAdmission
	if !cfg.Access.OpenPool {
		admission = order.BoundedPoolAdmission
	}

	snapshots := cache.NewOffline(redisClient, zl)
	orderSvc := order.NewService(order.Deps{
		Docs:     docs,
		Access:   order.NewAccess(admission),
		Events:   publisher,
		Notifier: notify.NewFCM(fb.Messaging(), zl),
		Cache:    snapshots,
		Log:      zl,
	})

	bridge := tracking.NewDeviceBridge()
	beacons := tracking.NewBeaconStore(docs, redisClient, dbPool, zl)
	trackingMgr := tracking.NewManager(docs, bridge, beacons,
		tracking.Config{
			AppInterval:   cfg.Tracking.AppInterval,
			OrderInterval: cfg.Tracking.OrderInterval,
		}, nil, zl)
	defer trackingMgr.Close()

	sessions := session.NewTracker(docs, "server", zl)

	var eta maps.Estimator = maps.HaversineEstimator{}
	if cfg.Maps.APIKey != "" {
		eta, err = maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			zl.Fatal("maps init", zap.Error(err))
		}
	}

	var narrator ai.Narrator
	if cfg.AI.GeminiKey != "" {
		gem, err := ai.NewGeminiNarrator(ctx, cfg.AI.GeminiKey)
		if err != nil {
			zl.Fatal("gemini init", zap.Error(err))
		}
		defer gem.Close()
		narrator = gem
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Verifier:  fb,
		Order:     orderSvc,
		Cache:     snapshots,
		Positions: beacons,
		ETA:       eta,
		Narrator:  narrator,
		Tracking:  trackingMgr,
		Bridge:    bridge,
		Sessions:  sessions,
		Log:       zl,
		Debug:     cfg.HTTP.Debug,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zl.Info("listening", zap.String("addr", cfg.HTTP.Addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zl.Fatal("http server", zap.Error(err))
	}
}
