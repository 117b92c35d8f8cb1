// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package command provides the host's command table: routes, parsing, and
// dispatch.
package command

import (
	"context"
	"io"
	"strings"
	"weak"

	"github.com/holomush/modreload/internal/plugin"
)

// Handler executes a routed command. It reports false when the arguments
// were rejected and usage should be shown.
type Handler func(ctx context.Context, inv *Invocation) (bool, error)

// Sender is whoever issued a command.
type Sender interface {
	Name() string
	HasPermission(perm string) bool
	Output() io.Writer
}

// Invocation is one dispatched command.
type Invocation struct {
	Route  *Route
	Label  string   // label as typed, lower-cased
	Args   []string // whitespace-split arguments
	Sender Sender
}

// Route binds a command name to a handler.
//
// A plugin route refers back to its plugin through a weak pointer. The
// reference exists only so ownership can be tested by identity; it never
// keeps an unloaded plugin alive.
type Route struct {
	Name        string
	Aliases     []string
	Usage       string
	Permission  string
	Description string
	Handler     Handler

	owner    weak.Pointer[plugin.Plugin]
	owned    bool
	register *Map
}

// NewRoute creates a core route with no owning plugin.
func NewRoute(name string, h Handler) *Route {
	return &Route{Name: strings.ToLower(name), Handler: h}
}

// NewPluginRoute creates a route for a command declared in a plugin
// manifest. The handler resolves the plugin through the weak owner at
// dispatch time.
func NewPluginRoute(p *plugin.Plugin, spec plugin.CommandSpec) *Route {
	return &Route{
		Name:        strings.ToLower(spec.Name),
		Aliases:     append([]string(nil), spec.Aliases...),
		Usage:       spec.Usage,
		Permission:  spec.Permission,
		Description: spec.Description,
		Handler:     executeOnOwner,
		owner:       weak.Make(p),
		owned:       true,
	}
}

// Owner returns the plugin that declared the route, or nil for core routes
// and for routes whose plugin has been reclaimed.
func (r *Route) Owner() *plugin.Plugin {
	if !r.owned {
		return nil
	}
	return r.owner.Value()
}

// OwnedBy reports whether p declared this route. Identity, not name, decides.
func (r *Route) OwnedBy(p *plugin.Plugin) bool {
	return p != nil && r.owned && r.owner == weak.Make(p)
}

// IsRegistered reports whether the route is currently registered with a map.
func (r *Route) IsRegistered() bool { return r.register != nil }

// Unregister detaches the route from m. It returns false if the route was
// not registered with m. Table entries are left to the caller.
func (r *Route) Unregister(m *Map) bool {
	if r.register != m || m == nil {
		return false
	}
	r.register = nil
	return true
}

// Source names where the route came from, for logs and metrics.
func (r *Route) Source() string {
	if !r.owned {
		return "core"
	}
	if p := r.Owner(); p != nil {
		return p.Name()
	}
	return "unloaded"
}

func executeOnOwner(ctx context.Context, inv *Invocation) (bool, error) {
	p := inv.Route.Owner()
	if p == nil {
		return false, ErrOwnerGone(inv.Route.Name)
	}
	//nolint:wrapcheck // plugin errors already carry plugin context
	return p.Execute(ctx, plugin.Invocation{
		Command: inv.Route.Name,
		Label:   inv.Label,
		Args:    inv.Args,
		Sender:  inv.Sender.Name(),
		Output:  inv.Sender.Output(),
	})
}
