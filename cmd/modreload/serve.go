// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/modreload/internal/command"
	"github.com/holomush/modreload/internal/config"
	"github.com/holomush/modreload/internal/console"
	"github.com/holomush/modreload/internal/host"
	"github.com/holomush/modreload/internal/logging"
	"github.com/holomush/modreload/internal/observability"
	"github.com/holomush/modreload/internal/permission"
	"github.com/holomush/modreload/internal/plugin/goplugin"
	"github.com/holomush/modreload/internal/plugin/lua"
	"github.com/holomush/modreload/internal/reload"
	"github.com/holomush/modreload/internal/xdg"
	"github.com/holomush/modreload/pkg/errutil"
)

// consoleSender is the sender name console grants are bound to.
const consoleSender = "console"

const shutdownTimeout = 5 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the plugin host",
		Long: `Start the plugin host. Every archive in the plugins directory is loaded
and enabled, then lifecycle commands are read from stdin until "quit",
end of input or a shutdown signal.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the host with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.AuditConnector == nil {
		deps.AuditConnector = connectAudit
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, g prometheus.Gatherer, ready observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, g, ready)
		}
	}
	if deps.Stdin == nil {
		deps.Stdin = os.Stdin
	}
	if deps.LogOutput == nil {
		deps.LogOutput = cmd.ErrOrStderr()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := logging.New(logging.Options{
		Service: "modreload",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   cfg.LogLevel,
		Output:  deps.LogOutput,
	})
	if err != nil {
		return err
	}
	prevLogger := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(prevLogger)

	for _, dir := range []string{cfg.DataDir, cfg.PluginsDir} {
		if err := xdg.EnsureDir(dir); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := host.New(cfg.PluginsDir,
		host.WithRuntime(lua.NewRuntime(lua.WithLogger(logger))),
		host.WithRuntime(goplugin.NewRuntime(filepath.Join(cfg.DataDir, "work"))),
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Close(shutdownCtx); err != nil {
			errutil.LogWarn(logger, "error closing plugin host", err)
		}
	}()

	facadeOpts := []reload.FacadeOption{reload.WithFacadeLogger(logger)}
	if cfg.DatabaseURL != "" {
		sink, err := deps.AuditConnector(ctx, cfg.DatabaseURL)
		if err != nil {
			return oops.Code("AUDIT_CONNECT_FAILED").With("operation", "connect audit log").Wrap(err)
		}
		defer sink.Close()
		facadeOpts = append(facadeOpts, reload.WithRecorder(sink))
		logger.Info("lifecycle audit log enabled")
	}

	manager := reload.NewManager(srv, reload.NewServerAccessor(srv), reload.DirLocator{Dir: cfg.PluginsDir},
		reload.WithLogger(logger))
	facade := reload.NewFacade(manager, facadeOpts...)
	console.Register(ctx, srv, facade)

	var ready atomic.Bool
	if cfg.MetricsAddr != "" {
		reg := observability.NewRegistry()
		command.RegisterMetrics(reg)
		reload.RegisterMetrics(reg)
		observability.RegisterPluginGauge(reg, func() int {
			return len(srv.Snapshot(context.Background()))
		})

		obs := deps.ObservabilityServerFactory(cfg.MetricsAddr, reg, ready.Load)
		obsErr, err := obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := obs.Stop(shutdownCtx); err != nil {
				errutil.LogWarn(logger, "error stopping observability server", err)
			}
		}()
		go monitorServerErrors(ctx, stop, obsErr, logger)
	}

	if err := srv.LoadAll(ctx); err != nil {
		return oops.Code("PLUGIN_LOAD_FAILED").With("dir", cfg.PluginsDir).Wrap(err)
	}
	ready.Store(true)
	logger.Info("plugin host ready",
		"plugins_dir", cfg.PluginsDir,
		"plugins", len(srv.Snapshot(ctx)),
	)
	cmd.Println("modreload started")

	consoleDone := make(chan error, 1)
	if cfg.Console {
		grants := permission.NewGrants()
		if err := grants.Set(consoleSender, cfg.ConsoleGrants); err != nil {
			return oops.Code(config.CodeInvalid).Wrap(err)
		}
		sender := console.NewSender(consoleSender, grants, cmd.OutOrStdout())
		go func() {
			consoleDone <- console.Run(ctx, srv, sender, deps.Stdin)
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx))
	case err := <-consoleDone:
		if err != nil {
			return err
		}
		logger.Info("console closed, shutting down")
	}
	return nil
}

// monitorServerErrors stops the host when a background server fails.
func monitorServerErrors(ctx context.Context, stop context.CancelFunc, errs <-chan error, logger *slog.Logger) {
	select {
	case <-ctx.Done():
	case err, ok := <-errs:
		if ok && err != nil {
			logger.Error("observability server failed", "error", err)
			stop()
		}
	}
}
