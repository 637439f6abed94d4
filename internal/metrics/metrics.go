// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal counts resolved scans by attendance type and outcome code.
	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kiosk",
		Name:      "scans_total",
		Help:      "RFID scans resolved, by attendance type and outcome.",
	}, []string{"type", "outcome"})

	// ScanDuration observes end-to-end resolve latency.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kiosk",
		Name:      "scan_duration_seconds",
		Help:      "Time spent resolving one scan.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// SessionEvents counts kiosk session transitions and rejected lookups.
	SessionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kiosk",
		Name:      "session_events_total",
		Help:      "Kiosk session lifecycle events.",
	}, []string{"event"})

	// FeedSubscribers tracks open live-feed connections.
	FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kiosk",
		Name:      "feed_subscribers",
		Help:      "Open attendance feed subscriptions.",
	})
)
