package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courierd_order_transitions_total",
		Help: "Successful order status transitions by kind.",
	}, []string{"kind"})

	OrderTransitionRejectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courierd_order_transition_rejects_total",
		Help: "Rejected order status transitions by reason.",
	}, []string{"reason"})

	LocationBeaconsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courierd_location_beacons_total",
		Help: "Location beacons emitted upstream by tracking scope.",
	}, []string{"scope"})

	LocationBeaconErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courierd_location_beacon_errors_total",
		Help: "Location beacon writes that failed and were swallowed.",
	})

	CacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courierd_offline_cache_hits_total",
		Help: "Offline order cache hits.",
	})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courierd_offline_cache_misses_total",
		Help: "Offline order cache misses.",
	})

	SessionsStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courierd_sessions_started_total",
		Help: "Login sessions opened.",
	})

	SessionsEndedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courierd_sessions_ended_total",
		Help: "Login sessions closed, including batch sign-outs.",
	})
)
