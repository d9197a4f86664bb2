package syncer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	offlineCreatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "storyhive",
			Subsystem: "syncer",
			Name:      "offline_creates_total",
			Help:      "Stories persisted locally because the client was offline.",
		},
	)

	replaysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storyhive",
			Subsystem: "syncer",
			Name:      "replays_total",
			Help:      "Replay attempts of pending records, by result.",
		},
		[]string{"result"},
	)

	pendingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storyhive",
			Subsystem: "syncer",
			Name:      "pending_records",
			Help:      "Records still awaiting upload after the last replay pass.",
		},
	)
)
