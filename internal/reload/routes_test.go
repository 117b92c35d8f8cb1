// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reload_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/modreload/internal/command"
	"github.com/holomush/modreload/internal/plugin"
	"github.com/holomush/modreload/internal/plugin/plugintest"
	"github.com/holomush/modreload/internal/reload"
)

func TestStripRoutesOwnedBy(t *testing.T) {
	f := newFixture(t)
	economy := f.loadEnabled(t, "Economy", "pay", "balance")
	shop := f.loadEnabled(t, "Shop", "buy")

	view := f.view(t)
	payRoute := view.Known["pay"]
	require.NotNil(t, payRoute)

	removed := reload.StripRoutesOwnedBy(economy, view)
	assert.Equal(t, 4, removed, "name and prefixed label for two commands")
	assert.False(t, payRoute.IsRegistered())

	for label, r := range view.Known {
		assert.False(t, r.OwnedBy(economy), "label %s still routed to economy", label)
	}
	assert.Contains(t, view.Known, "buy")
	assert.Contains(t, view.Known, "shop:buy")

	assert.Zero(t, reload.StripRoutesOwnedBy(economy, view), "second pass finds nothing")
	assert.True(t, view.Known["buy"].OwnedBy(shop))
}

func TestStripRoutesOwnedBy_Aliases(t *testing.T) {
	f := newFixture(t)
	plugintest.WriteArchive(t, f.dir, "Economy", map[string]string{
		plugin.ManifestFile: "name: Economy\nversion: 1.0.0\ntype: lua\nlua-plugin:\n  entry: main.lua\n" +
			"commands:\n  - name: pay\n    aliases: [give, send]\n",
		"main.lua": "",
	})
	ctx := context.Background()
	p, err := f.srv.LoadPlugin(ctx, reload.DirLocator{Dir: f.dir}.Locate("Economy"))
	require.NoError(t, err)
	require.NoError(t, f.srv.EnablePlugin(ctx, p))

	// A core route that happens to share nothing with the plugin survives.
	f.srv.RegisterCommand(ctx, command.NewRoute("plugins", nil))

	view := f.view(t)
	assert.Equal(t, 4, reload.StripRoutesOwnedBy(p, view))
	assert.ElementsMatch(t, []string{"plugins", "modreload:plugins"}, keys(view.Known))
}

func TestStripRoutesOwnedBy_NothingToStrip(t *testing.T) {
	f := newFixture(t)
	p := f.loadEnabled(t, "Economy", "pay")

	assert.Zero(t, reload.StripRoutesOwnedBy(nil, f.view(t)))
	assert.Zero(t, reload.StripRoutesOwnedBy(p, nil))
	view := f.view(t)
	view.Known = nil
	assert.Zero(t, reload.StripRoutesOwnedBy(p, view))
}

func keys(m map[string]*command.Route) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
