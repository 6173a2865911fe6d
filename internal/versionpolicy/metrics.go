package versionpolicy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "version_policy_resolutions_total",
			Help: "Version policy classifications by platform and status.",
		},
		[]string{"platform", "version_status"},
	)

	rejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "version_enforcement_rejections_total",
			Help: "Logins rejected by version enforcement.",
		},
		[]string{"platform", "version_status", "reason"},
	)

	enforcementEnabled = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "version_enforcement_enabled",
		Help: "1 when version enforcement was enabled at the last check, 0 otherwise.",
	})
)
