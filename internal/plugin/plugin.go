// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ErrPluginDisabled is returned when a disabled plugin is asked to execute a command.
var ErrPluginDisabled = errors.New("plugin is disabled")

// Plugin is a loaded plugin: a manifest, the archive it came from, and a live
// runtime instance. Every load produces a Plugin with a new ID, so two loads
// of the same artifact are distinguishable.
type Plugin struct {
	id       ulid.ULID
	archive  *Archive
	instance Instance
	enabled  atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// New wraps an instantiated plugin. The Plugin takes ownership of both the
// archive and the instance.
func New(archive *Archive, instance Instance) *Plugin {
	return &Plugin{
		id:       ulid.Make(),
		archive:  archive,
		instance: instance,
	}
}

// ID returns the identity of this loaded instance.
func (p *Plugin) ID() ulid.ULID { return p.id }

// Name returns the declared plugin name.
func (p *Plugin) Name() string { return p.archive.Manifest().Name }

// Version returns the declared plugin version.
func (p *Plugin) Version() string { return p.archive.Manifest().Version }

// Manifest returns the plugin manifest.
func (p *Plugin) Manifest() *Manifest { return p.archive.Manifest() }

// Digest returns the artifact digest.
func (p *Plugin) Digest() string { return p.archive.Digest() }

// Path returns the artifact path.
func (p *Plugin) Path() string { return p.archive.Path() }

// IsEnabled reports whether the plugin is enabled.
func (p *Plugin) IsEnabled() bool { return p.enabled.Load() }

// Enable runs the instance's enable hook. Enabling an enabled plugin is a no-op.
func (p *Plugin) Enable(ctx context.Context) error {
	if p.enabled.Load() {
		return nil
	}
	if err := p.instance.Enable(ctx); err != nil {
		return oops.In("plugin").With("plugin", p.Name()).With("operation", "enable").Wrap(err)
	}
	p.enabled.Store(true)
	return nil
}

// Disable runs the instance's disable hook. The plugin is marked disabled
// even when the hook fails.
func (p *Plugin) Disable(ctx context.Context) error {
	if !p.enabled.Swap(false) {
		return nil
	}
	if err := p.instance.Disable(ctx); err != nil {
		return oops.In("plugin").With("plugin", p.Name()).With("operation", "disable").Wrap(err)
	}
	return nil
}

// Execute routes a command invocation to the instance.
func (p *Plugin) Execute(ctx context.Context, inv Invocation) (bool, error) {
	if !p.enabled.Load() {
		return false, oops.In("plugin").With("plugin", p.Name()).Wrap(ErrPluginDisabled)
	}
	handled, err := p.instance.Execute(ctx, inv)
	if err != nil {
		return handled, oops.In("plugin").With("plugin", p.Name()).With("command", inv.Command).Wrap(err)
	}
	return handled, nil
}

// Close releases the instance and then the archive. It blocks until both are
// released and is safe to call more than once.
func (p *Plugin) Close() error {
	p.closeOnce.Do(func() {
		p.enabled.Store(false)
		p.closeErr = errors.Join(p.instance.Close(), p.archive.Close())
	})
	return p.closeErr
}
