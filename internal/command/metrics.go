// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for command execution metrics.
const (
	StatusSuccess          = "success"
	StatusError            = "error"
	StatusNotFound         = "not_found"
	StatusPermissionDenied = "permission_denied"
	StatusUsage            = "usage"
)

// CommandExecutions is the counter for command executions.
var CommandExecutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "modreload_command_executions_total",
		Help: "Total number of command executions",
	},
	[]string{"command", "source", "status"},
)

// CommandDuration is the histogram for command execution duration.
var CommandDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "modreload_command_duration_seconds",
		Help:    "Command execution duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"command", "source"},
)

// RegisterMetrics registers command metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(CommandExecutions)
	reg.MustRegister(CommandDuration)
}

func recordExecution(command, source, status string, d time.Duration) {
	CommandExecutions.WithLabelValues(command, source, status).Inc()
	if d > 0 {
		CommandDuration.WithLabelValues(command, source).Observe(d.Seconds())
	}
}
