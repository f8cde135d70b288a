package datasource

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricChangesetsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "componentkit",
		Subsystem: "datasource",
		Name:      "changesets_enqueued_total",
		Help:      "Changesets and reloads accepted into the queue.",
	})
	metricChangesetsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "componentkit",
		Subsystem: "datasource",
		Name:      "changesets_rejected_total",
		Help:      "Changesets rejected by verification.",
	})
	metricBuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "componentkit",
		Subsystem: "datasource",
		Name:      "builds_total",
		Help:      "Builds by outcome: committed, discarded or failed.",
	}, []string{"outcome"})
	metricBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "componentkit",
		Subsystem: "datasource",
		Name:      "build_duration_seconds",
		Help:      "Wall time spent building component trees and layouts for one batch.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	})
	metricItemsBuilt = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "componentkit",
		Subsystem: "datasource",
		Name:      "items_built_total",
		Help:      "Component trees built by the provider.",
	})
	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "componentkit",
		Subsystem: "datasource",
		Name:      "queue_depth",
		Help:      "Modifications waiting to be committed.",
	})
)

const (
	outcomeCommitted = "committed"
	outcomeDiscarded = "discarded"
	outcomeFailed    = "failed"
)

func recordEnqueue(depth int) {
	metricChangesetsEnqueued.Inc()
	metricQueueDepth.Set(float64(depth))
}

func recordReject() {
	metricChangesetsRejected.Inc()
}

func recordBuild(outcome string, d time.Duration, items int) {
	metricBuilds.WithLabelValues(outcome).Inc()
	metricBuildDuration.Observe(d.Seconds())
	if items > 0 {
		metricItemsBuilt.Add(float64(items))
	}
}

func recordQueueDepth(depth int) {
	metricQueueDepth.Set(float64(depth))
}
