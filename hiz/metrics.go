package hiz

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hizBuildLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hiz_build_latency",
		Help:    "The time to rebuild the depth pyramid.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
	})
)

func instrumentBuild(start time.Time) {
	hizBuildLatency.Observe(time.Since(start).Seconds())
}
