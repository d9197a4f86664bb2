package netcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storyhive",
			Subsystem: "netcache",
			Name:      "hits_total",
			Help:      "Requests answered from a durable cache.",
		},
		[]string{"cache"},
	)

	offlineFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storyhive",
			Subsystem: "netcache",
			Name:      "offline_fallbacks_total",
			Help:      "Responses synthesized because the network was unavailable.",
		},
		[]string{"kind"},
	)

	cacheWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storyhive",
			Subsystem: "netcache",
			Name:      "write_failures_total",
			Help:      "Best-effort cache writes that failed (never fatal).",
		},
		[]string{"cache"},
	)
)
