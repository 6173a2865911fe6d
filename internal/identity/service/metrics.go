package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	loginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logins_total",
		Help: "Login attempts by method and outcome (success or error kind).",
	}, []string{"method", "outcome"})

	loginDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_login_duration_seconds",
		Help:    "End-to-end login latency by method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	logoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_logouts_total",
		Help: "Logouts by scope (session or all).",
	}, []string{"scope"})
)
