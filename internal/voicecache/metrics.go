package voicecache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sampleHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "earshot",
		Subsystem: "voicecache",
		Name:      "hits_total",
		Help:      "Voice sample requests served from object storage",
	})

	sampleMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "earshot",
		Subsystem: "voicecache",
		Name:      "misses_total",
		Help:      "Voice sample requests that triggered a fresh generation",
	})

	normalizeFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "earshot",
		Subsystem: "voicecache",
		Name:      "normalize_fallbacks_total",
		Help:      "Samples published unnormalized because the loudnorm pass failed",
	})
)
