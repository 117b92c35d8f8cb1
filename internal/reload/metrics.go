// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reload

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleOperations counts lifecycle operations per action and status.
var LifecycleOperations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "modreload_lifecycle_operations_total",
		Help: "Total number of plugin lifecycle operations",
	},
	[]string{"action", "status"},
)

// LifecycleDuration observes how long lifecycle operations take.
var LifecycleDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "modreload_lifecycle_duration_seconds",
		Help:    "Plugin lifecycle operation duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"action"},
)

// RegisterMetrics registers lifecycle metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LifecycleOperations)
	reg.MustRegister(LifecycleDuration)
}

func recordOperation(action Action, status Status, d time.Duration) {
	LifecycleOperations.WithLabelValues(string(action), string(status)).Inc()
	LifecycleDuration.WithLabelValues(string(action)).Observe(d.Seconds())
}
