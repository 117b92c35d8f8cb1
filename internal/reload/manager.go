// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package reload loads, unloads and reloads plugins in a running host.
//
// The host can load, enable and disable plugins but cannot unload them.
// Unloading reaches into the host's private registry and command table
// through a RegistryAccessor, strips the plugin out, and releases it before
// reporting success.
package reload

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/modreload/internal/plugin"
	"github.com/holomush/modreload/pkg/errutil"
)

var tracer = otel.Tracer("modreload/reload")

// Host is the public surface of the plugin host the manager drives.
type Host interface {
	// Sync runs fn on the host's serialized context.
	Sync(ctx context.Context, fn func(ctx context.Context) error) error
	// Plugins returns the loaded plugins in load order.
	Plugins() []*plugin.Plugin
	// LoadPlugin instantiates the artifact at path. It returns (nil, nil)
	// when the host skips the artifact.
	LoadPlugin(ctx context.Context, path string) (*plugin.Plugin, error)
	EnablePlugin(ctx context.Context, p *plugin.Plugin) error
	DisablePlugin(ctx context.Context, p *plugin.Plugin) error
}

// Locator maps a plugin name to its artifact path.
type Locator interface {
	Locate(name string) string
}

// DirLocator locates artifacts as <Dir>/<name>.zip. When no file has the
// exact name, an artifact whose name matches case-insensitively is used.
type DirLocator struct {
	Dir string
}

// Locate implements Locator.
func (l DirLocator) Locate(name string) string {
	want := name + plugin.ArchiveExt
	exact := filepath.Join(l.Dir, want)
	if _, err := os.Stat(exact); err == nil {
		return exact
	}
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		return exact
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(entry.Name(), want) {
			return filepath.Join(l.Dir, entry.Name())
		}
	}
	return exact
}

var errPathInName = errors.New("plugin name must not contain a path")

// isPlainName reports whether name can be joined into an artifact path
// without leaving the plugins directory.
func isPlainName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// State is the lifecycle state a plugin name reached during an operation.
type State int

// Lifecycle states.
const (
	StateIdle State = iota
	StateDisabling
	StateDetached
	StateLoading
	StateEnabled
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDisabling:
		return "disabling"
	case StateDetached:
		return "detached"
	case StateLoading:
		return "loading"
	case StateEnabled:
		return "enabled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Status classifies the result of one operation.
//
// StatusUnloaded means every matching plugin was disabled, detached and
// released. StatusDegraded means the plugins were disabled but the registry
// was unreachable, so they stay registered. StatusSkipped means the host
// returned no plugin for the artifact.
type Status string

// Operation statuses.
const (
	StatusUnloaded Status = "unloaded"
	StatusDegraded Status = "degraded"
	StatusLoaded   Status = "loaded"
	StatusSkipped  Status = "skipped"
	StatusReloaded Status = "reloaded"
	StatusFailed   Status = "failed"
)

// Outcome reports one operation on one plugin name.
type Outcome struct {
	Name   string
	Action Action
	Status Status
	State  State
	Err    error

	// Detached counts plugin instances removed from the registry.
	Detached int
	// RoutesRemoved counts command table entries stripped.
	RoutesRemoved int
	// PluginID identifies the instance a load produced.
	PluginID string
	// Steps holds the unload and load halves of a reload.
	Steps []Outcome
}

// OK reports whether the operation did what was asked, possibly degraded.
func (o Outcome) OK() bool { return o.Status != StatusFailed }

// Manager runs lifecycle operations against a host. It adds no locking of
// its own: every operation runs inside Host.Sync.
type Manager struct {
	host     Host
	accessor RegistryAccessor
	locator  Locator
	logger   *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager creates a lifecycle manager.
func NewManager(h Host, accessor RegistryAccessor, locator Locator, opts ...ManagerOption) *Manager {
	m := &Manager{
		host:     h,
		accessor: accessor,
		locator:  locator,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Unload disables every loaded plugin whose name matches name
// case-insensitively, removes it from the registry and the command table,
// and releases it.
//
// Without registry access the plugins are only disabled and the outcome is
// StatusDegraded. No match yields CodeModuleNotFound.
func (m *Manager) Unload(ctx context.Context, name string) Outcome {
	return m.run(ctx, ActionUnload, name, m.unload)
}

// Load locates the artifact for name, loads it through the host and
// enables it. A host that skips the artifact yields StatusSkipped.
func (m *Manager) Load(ctx context.Context, name string) Outcome {
	return m.run(ctx, ActionLoad, name, m.load)
}

// Reload unloads then loads name. The load half runs even when the unload
// half fails.
func (m *Manager) Reload(ctx context.Context, name string) Outcome {
	return m.run(ctx, ActionReload, name, func(ctx context.Context, name string) Outcome {
		u := m.unload(ctx, name)
		l := m.load(ctx, name)

		out := Outcome{
			Name:          name,
			State:         l.State,
			Err:           l.Err,
			Detached:      u.Detached,
			RoutesRemoved: u.RoutesRemoved,
			PluginID:      l.PluginID,
			Steps:         []Outcome{u, l},
		}
		switch {
		case l.Status == StatusLoaded:
			out.Status = StatusReloaded
		case u.Status == StatusDegraded && l.Status == StatusSkipped:
			// The disabled plugin is still registered, so the host declined
			// the new instance.
			out.Status = StatusDegraded
			out.State = u.State
			out.Err = u.Err
		default:
			out.Status = l.Status
		}
		return out
	})
}

func (m *Manager) run(ctx context.Context, action Action, name string,
	op func(context.Context, string) Outcome,
) Outcome {
	ctx, span := tracer.Start(ctx, "reload."+string(action),
		trace.WithAttributes(
			attribute.String("plugin.name", name),
			attribute.String("reload.action", string(action)),
		),
	)
	defer span.End()

	start := time.Now()
	var out Outcome
	_ = m.host.Sync(ctx, func(ctx context.Context) error { //nolint:errcheck // outcome carries the error
		out = op(ctx, name)
		return nil
	})
	out.Name = name
	out.Action = action
	if out.Status == "" {
		out.Status = StatusFailed
	}
	recordOperation(action, out.Status, time.Since(start))

	span.SetAttributes(
		attribute.String("reload.status", string(out.Status)),
		attribute.String("reload.state", out.State.String()),
	)
	if out.Err != nil {
		span.RecordError(out.Err)
		if out.Status == StatusFailed {
			span.SetStatus(codes.Error, out.Err.Error())
		}
	}

	attrs := []any{"plugin", name, "action", string(action), "status", string(out.Status)}
	if out.Err != nil {
		attrs = append(attrs, "error", out.Err)
	}
	if out.Status == StatusFailed {
		m.logger.WarnContext(ctx, "plugin lifecycle operation failed", attrs...)
	} else {
		m.logger.InfoContext(ctx, "plugin lifecycle operation", attrs...)
	}
	return out
}

func (m *Manager) unload(ctx context.Context, name string) Outcome {
	var matches []*plugin.Plugin
	for _, p := range m.host.Plugins() {
		if strings.EqualFold(p.Name(), name) {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return Outcome{Status: StatusFailed, State: StateFailed, Err: ErrModuleNotFound(name)}
	}

	view, accessErr := m.accessor.Acquire()
	if accessErr != nil {
		errutil.LogWarn(m.logger.With("plugin", name), "registry unavailable, unload degrades to disable", accessErr)
	}

	out := Outcome{Status: StatusUnloaded, State: StateDetached}
	for _, p := range matches {
		m.debugState(ctx, p, StateDisabling)
		if err := m.host.DisablePlugin(ctx, p); err != nil {
			// The host marks the plugin disabled even when its hook fails.
			m.logger.WarnContext(ctx, "plugin disable hook failed",
				"plugin", p.Name(), "id", p.ID().String(), "error", err)
		}

		if accessErr != nil {
			out.Status = StatusDegraded
			out.State = StateDisabling
			out.Err = accessErr
			continue
		}

		out.RoutesRemoved += detach(p, view)
		out.Detached++
		m.debugState(ctx, p, StateDetached)

		if err := p.Close(); err != nil {
			out.Status = StatusFailed
			out.State = StateFailed
			out.Err = classify(name, err)
		}
	}
	return out
}

// detach removes p from the registry view and strips its routes. The steps
// run back to back on the host's serialized context.
func detach(p *plugin.Plugin, view *RegistryView) int {
	*view.Plugins = slices.DeleteFunc(*view.Plugins, func(q *plugin.Plugin) bool { return q == p })
	for key, q := range view.Lookup {
		if q == p {
			delete(view.Lookup, key)
		}
	}
	return StripRoutesOwnedBy(p, view)
}

func (m *Manager) load(ctx context.Context, name string) Outcome {
	if !isPlainName(name) {
		return Outcome{Status: StatusFailed, State: StateFailed, Err: plugin.ErrInvalidArtifact(name, errPathInName)}
	}
	path := m.locator.Locate(name)
	m.logger.DebugContext(ctx, "plugin state", "plugin", name, "state", StateLoading.String(), "path", path)

	p, err := m.host.LoadPlugin(ctx, path)
	if err != nil {
		return Outcome{Status: StatusFailed, State: StateFailed, Err: classify(name, err)}
	}
	if p == nil {
		return Outcome{Status: StatusSkipped, State: StateIdle}
	}

	if err := m.host.EnablePlugin(ctx, p); err != nil {
		return Outcome{Status: StatusFailed, State: StateFailed, PluginID: p.ID().String(), Err: classify(name, err)}
	}
	m.debugState(ctx, p, StateEnabled)
	return Outcome{Status: StatusLoaded, State: StateEnabled, PluginID: p.ID().String()}
}

func (m *Manager) debugState(ctx context.Context, p *plugin.Plugin, s State) {
	m.logger.DebugContext(ctx, "plugin state", "plugin", p.Name(), "id", p.ID().String(), "state", s.String())
}
