// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package permission checks sender permissions against glob grants.
//
// Pattern matching uses gobwas/glob with '.' as the segment separator:
//   - '*' matches a single segment (does not cross '.')
//   - '**' matches zero or more segments (crosses '.')
//
// Examples:
//   - "modreload.*" matches "modreload.load" but NOT "economy.admin.pay"
//   - "economy.**" matches "economy.pay" AND "economy.admin.pay"
//   - "**" matches any permission
package permission

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// compiledGrant holds a pattern and its compiled glob for efficient matching.
type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// Grants maps senders to the permission patterns they hold.
//
// Grants is safe for concurrent use. The zero value is ready to use.
type Grants struct {
	grants map[string][]compiledGrant
	mu     sync.RWMutex
}

// NewGrants creates an empty grant table.
func NewGrants() *Grants {
	return &Grants{
		grants: make(map[string][]compiledGrant),
	}
}

// Set replaces the patterns granted to sender. Either every pattern
// compiles and the grants are replaced, or nothing changes.
func (g *Grants) Set(sender string, patterns []string) error {
	if sender == "" {
		return oops.In("permission").Errorf("sender name cannot be empty")
	}

	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return oops.In("permission").With("sender", sender).Errorf("grant %d: empty pattern", i)
		}
		gl, err := glob.Compile(pattern, '.')
		if err != nil {
			return oops.In("permission").With("sender", sender).Wrap(fmt.Errorf("grant %d (%q): %w", i, pattern, err))
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: gl}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.grants == nil {
		g.grants = make(map[string][]compiledGrant)
	}
	g.grants[sender] = compiled
	return nil
}

// Remove drops every grant held by sender.
func (g *Grants) Remove(sender string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.grants, sender)
}

// Patterns returns a sorted copy of the patterns granted to sender.
func (g *Grants) Patterns(sender string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	grants, ok := g.grants[sender]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, cg := range grants {
		patterns[i] = cg.pattern
	}
	sort.Strings(patterns)
	return patterns
}

// Has reports whether sender holds perm. An empty perm is always allowed,
// matching commands that declare no permission. Unknown senders hold nothing.
func (g *Grants) Has(sender, perm string) bool {
	if perm == "" {
		return true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, cg := range g.grants[sender] {
		if cg.glob.Match(perm) {
			return true
		}
	}
	return false
}
