package livesync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	snapshotsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dabubble_fanout_snapshots_delivered_total",
		Help: "Snapshots delivered to local subscribers.",
	})

	snapshotsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dabubble_fanout_snapshots_coalesced_total",
		Help: "Unconsumed snapshots replaced by a newer one.",
	})

	activeFeeds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dabubble_fanout_active_feeds",
		Help: "Entity ids with at least one local subscriber.",
	})

	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dabubble_fanout_subscribers",
		Help: "Currently attached local subscribers.",
	})
)
