package scene

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultLabel = "result"
)

var (
	sceneEntities = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scene_entities",
		Help: "The number of entities in the scene.",
	})

	sceneMoves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scene_moves_total",
		Help: "The number of entity moves, by whether the entity left its proxy box.",
	}, []string{resultLabel})

	sceneVisible = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scene_visible_entities",
		Help: "The number of entities visible at the last frame.",
	})

	sceneCullLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scene_cull_latency",
		Help:    "The time to cull the scene, every pass included.",
		Buckets: prometheus.ExponentialBuckets(0.00001, 2, 14),
	})

	sceneOptimizations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_optimizations_total",
		Help: "The number of periodic tree optimizations.",
	})

	sceneFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_frames_total",
		Help: "The number of frames run.",
	})

	sceneMovesInMargin = sceneMoves.With(prometheus.Labels{resultLabel: "in_margin"})
	sceneMovesReinsert = sceneMoves.With(prometheus.Labels{resultLabel: "reinserted"})
)

func instrumentEntityCount(n int) {
	sceneEntities.Set(float64(n))
}

func instrumentMove(reinserted bool) {
	if reinserted {
		sceneMovesReinsert.Inc()
		return
	}
	sceneMovesInMargin.Inc()
}

func instrumentCull(stats CullStats) {
	sceneVisible.Set(float64(stats.Visible))
	sceneCullLatency.Observe(stats.Duration.Seconds())
}

func instrumentOptimization() {
	sceneOptimizations.Inc()
}

func instrumentFrame() {
	sceneFrames.Inc()
}
