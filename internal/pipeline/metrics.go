package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	episodesSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "earshot",
		Subsystem: "pipeline",
		Name:      "episodes_settled_total",
		Help:      "Episodes settled by terminal outcome.",
	}, []string{"outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "earshot",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Wall time spent in each generation stage.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"stage"})

	reapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "earshot",
		Subsystem: "pipeline",
		Name:      "reaped_total",
		Help:      "Stuck episodes reaped as failed.",
	})
)
