// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reload

import (
	"github.com/holomush/modreload/internal/plugin"
)

// StripRoutesOwnedBy removes every command table entry whose route p owns
// and returns the number of entries removed.
//
// The table is keyed by label, and one route is stored under its name, its
// aliases and its prefixed label, so the whole table is scanned and owners
// are compared by identity. Each matching route is unregistered through the
// command map before its entry is deleted. A view without a command table
// strips nothing.
func StripRoutesOwnedBy(p *plugin.Plugin, view *RegistryView) int {
	if p == nil || view == nil || view.Known == nil {
		return 0
	}

	removed := 0
	for label, r := range view.Known {
		if r == nil || !r.OwnedBy(p) {
			continue
		}
		r.Unregister(view.Commands)
		delete(view.Known, label)
		removed++
	}
	return removed
}
