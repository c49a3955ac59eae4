package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	writesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dabubble_store_writes_total",
		Help: "Records written to the durable store, by collection.",
	}, []string{"collection"})

	readsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dabubble_store_reads_total",
		Help: "Records read from the durable store, by collection.",
	}, []string{"collection"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dabubble_store_watch_notifications_total",
		Help: "Snapshots pushed to open watches, by collection.",
	}, []string{"collection"})

	openWatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dabubble_store_open_watches",
		Help: "Currently open observation watches.",
	})
)
