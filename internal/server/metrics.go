package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "earshot",
		Subsystem: "server",
		Name:      "ratelimit_rejections_total",
		Help:      "Requests rejected because a fixed-window budget was exhausted.",
	}, []string{"surface"})

	adminActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "earshot",
		Subsystem: "server",
		Name:      "admin_actions_total",
		Help:      "Successfully applied administrative actions.",
	}, []string{"action"})
)
