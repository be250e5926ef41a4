package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "earshot",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Events appended to the stream by type.",
	}, []string{"event_type"})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "earshot",
		Subsystem: "events",
		Name:      "deliveries_total",
		Help:      "Webhook delivery outcomes.",
	}, []string{"result"})
)
