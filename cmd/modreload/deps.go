// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/holomush/modreload/internal/audit"
	"github.com/holomush/modreload/internal/observability"
	"github.com/holomush/modreload/internal/reload"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// AuditConnector opens the lifecycle audit log.
	// Default: connectAudit (PostgreSQL)
	AuditConnector func(ctx context.Context, databaseURL string) (AuditSink, error)

	// ObservabilityServerFactory creates the metrics/health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, gatherer prometheus.Gatherer, ready observability.ReadinessChecker) ObservabilityServer

	// Stdin feeds the console. Default: os.Stdin
	Stdin io.Reader

	// LogOutput receives structured logs. Default: the command's stderr
	LogOutput io.Writer
}

// AuditSink records lifecycle results and releases its connection on Close.
type AuditSink interface {
	reload.Recorder
	Close()
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
}

type auditSink struct {
	*audit.Store
	close func()
}

func (s auditSink) Close() { s.close() }

func connectAudit(ctx context.Context, databaseURL string) (AuditSink, error) {
	pool, err := audit.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return auditSink{Store: audit.NewStore(pool), close: pool.Close}, nil
}
