package bvh

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	heuristicLabel = "heuristic"
	modeLabel      = "mode"

	modeFrustum = "frustum"
	modeHiZ     = "hiz"
)

var (
	bvhInserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvh_insert_total",
		Help: "The number of leaves inserted.",
	}, []string{heuristicLabel})

	bvhReInserts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bvh_reinsert_total",
		Help: "The number of leaves moved with a reinsertion.",
	})

	bvhRemovals = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bvh_remove_total",
		Help: "The number of leaves removed.",
	})

	bvhRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bvh_rotation_total",
		Help: "The number of rotations applied.",
	})

	bvhImbalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bvh_imbalance",
		Help: "The imbalance factor measured after the last optimization.",
	})

	bvhQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bvh_query_latency",
		Help:    "The time to run a culling pass.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
	}, []string{modeLabel})

	bvhQueryVisible = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bvh_query_visible",
		Help: "The number of visible leaves returned by the last culling pass.",
	}, []string{modeLabel})

	bvhQueryTruncated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bvh_query_truncated_total",
		Help: "The number of culling passes that dropped visible leaves because the output buffer was full.",
	}, []string{modeLabel})
)

// Culling passes run every frame: their label children are resolved once.
type queryMetrics struct {
	latency   prometheus.Observer
	visible   prometheus.Gauge
	truncated prometheus.Counter
}

var (
	frustumQueryMetrics = newQueryMetrics(modeFrustum)
	hizQueryMetrics     = newQueryMetrics(modeHiZ)
)

func newQueryMetrics(mode string) queryMetrics {
	labels := prometheus.Labels{modeLabel: mode}
	return queryMetrics{
		latency:   bvhQueryLatency.With(labels),
		visible:   bvhQueryVisible.With(labels),
		truncated: bvhQueryTruncated.With(labels),
	}
}

func (m queryMetrics) instrument(start time.Time, visible int, truncated bool) {
	m.latency.Observe(time.Since(start).Seconds())
	m.visible.Set(float64(visible))
	if truncated {
		m.truncated.Inc()
	}
}

func instrumentInsert(h Heuristic) {
	bvhInserts.
		With(prometheus.Labels{heuristicLabel: h.String()}).
		Inc()
}

func instrumentReInsert() {
	bvhReInserts.Inc()
}

func instrumentRemove() {
	bvhRemovals.Inc()
}

func instrumentRotation() {
	bvhRotations.Inc()
}

func instrumentImbalance(v float64) {
	bvhImbalance.Set(v)
}
