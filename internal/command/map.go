// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"log/slog"
	"sort"
	"strings"
)

// Map is the host's label-to-route table.
//
// A route is stored under its name, each alias, and "<prefix>:<name>". The
// same *Route therefore appears under several labels, and the table is
// keyed by label rather than owner.
//
// Map is not safe for concurrent use; the host serializes all access.
type Map struct {
	knownCommands map[string]*Route
}

// NewMap creates an empty command table.
func NewMap() *Map {
	return &Map{
		knownCommands: make(map[string]*Route),
	}
}

// Register adds r under "<prefix>:<name>", its name, and its aliases.
// The prefixed label always wins; a bare name or alias already taken by
// another route is kept and a warning is logged. It reports whether the
// bare name was registered.
func (m *Map) Register(prefix string, r *Route) bool {
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	r.register = m

	if prefix != "" {
		m.knownCommands[prefix+":"+r.Name] = r
	}

	registered := m.registerLabel(r.Name, r)
	for _, alias := range r.Aliases {
		m.registerLabel(strings.ToLower(alias), r)
	}
	return registered
}

func (m *Map) registerLabel(label string, r *Route) bool {
	if existing, ok := m.knownCommands[label]; ok && existing != r {
		slog.Warn("command conflict: keeping existing route",
			"label", label,
			"existing_source", existing.Source(),
			"new_source", r.Source())
		return false
	}
	m.knownCommands[label] = r
	return true
}

// Get returns the route registered under label.
func (m *Map) Get(label string) (*Route, bool) {
	r, ok := m.knownCommands[strings.ToLower(label)]
	return r, ok
}

// Labels returns every registered label, sorted.
func (m *Map) Labels() []string {
	labels := make([]string, 0, len(m.knownCommands))
	for label := range m.knownCommands {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Routes returns each distinct route once, sorted by name.
func (m *Map) Routes() []*Route {
	seen := make(map[*Route]bool, len(m.knownCommands))
	routes := make([]*Route, 0, len(m.knownCommands))
	for _, r := range m.knownCommands {
		if seen[r] {
			continue
		}
		seen[r] = true
		routes = append(routes, r)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Name < routes[j].Name })
	return routes
}

// Len returns the number of registered labels.
func (m *Map) Len() int { return len(m.knownCommands) }
