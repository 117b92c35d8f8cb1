// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reload_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/modreload/internal/command"
	"github.com/holomush/modreload/internal/host"
	"github.com/holomush/modreload/internal/plugin"
	pluginlua "github.com/holomush/modreload/internal/plugin/lua"
	"github.com/holomush/modreload/internal/plugin/plugintest"
	"github.com/holomush/modreload/internal/reload"
	"github.com/holomush/modreload/pkg/errutil"
)

const economyScript = `
balance = 100

function on_command(cmd)
    if #cmd.args < 2 then
        return false
    end
    balance = balance - tonumber(cmd.args[2])
    cmd.reply(cmd.sender .. " paid " .. cmd.args[1] .. ", balance " .. balance)
    return true
end
`

func TestUnload_EconomyPay(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	srv := host.New(dir, host.WithRuntime(pluginlua.NewRuntime()))
	t.Cleanup(func() { _ = srv.Close(ctx) })
	manager := reload.NewManager(srv, reload.NewServerAccessor(srv), reload.DirLocator{Dir: dir})

	plugintest.WriteLuaPlugin(t, dir, "Economy", "1.0.0", economyScript, "pay")
	require.Equal(t, reload.StatusLoaded, manager.Load(ctx, "Economy").Status)

	s := &testSender{}
	require.NoError(t, srv.Dispatch(ctx, s, "/pay bob 10"))
	assert.Equal(t, "console paid bob, balance 90\n", s.out.String())

	out := manager.Unload(ctx, "Economy")
	require.NoError(t, out.Err)
	assert.Equal(t, reload.StatusUnloaded, out.Status)
	assert.Equal(t, reload.StateDetached, out.State)
	assert.Equal(t, 1, out.Detached)
	assert.Equal(t, 2, out.RoutesRemoved)

	assert.Nil(t, srv.Plugin("Economy"))
	assert.Empty(t, srv.Plugins())
	err := srv.Dispatch(ctx, s, "/pay bob 10")
	errutil.AssertErrorCode(t, err, command.CodeUnknownCommand)
}

func TestUnload_ReleasesPlugin(t *testing.T) {
	f := newFixture(t)
	p := f.loadEnabled(t, "Economy", "pay")
	inst := f.rt.Instances()[0]

	out := f.manager.Unload(context.Background(), "economy")
	require.NoError(t, out.Err)
	assert.False(t, p.IsEnabled())
	assert.True(t, inst.Closed(), "instance released before unload reports success")
	_, disables, _ := inst.Counts()
	assert.Equal(t, 1, disables)
	f.requireConsistent(t)
}

func TestUnload_NotLoaded(t *testing.T) {
	f := newFixture(t)
	p := f.loadEnabled(t, "Economy", "pay")
	before := f.srv.Snapshot(context.Background())

	out := f.manager.Unload(context.Background(), "Bank")
	errutil.AssertErrorCode(t, out.Err, reload.CodeModuleNotFound)
	assert.Equal(t, reload.StatusFailed, out.Status)
	assert.Equal(t, reload.StateFailed, out.State)

	assert.Equal(t, before, f.srv.Snapshot(context.Background()))
	assert.True(t, p.IsEnabled())
}

func TestUnload_Twice(t *testing.T) {
	f := newFixture(t)
	f.loadEnabled(t, "Economy", "pay")
	ctx := context.Background()

	require.NoError(t, f.manager.Unload(ctx, "Economy").Err)
	out := f.manager.Unload(ctx, "Economy")
	errutil.AssertErrorCode(t, out.Err, reload.CodeModuleNotFound)
}

func TestUnload_AllMatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.loadEnabled(t, "Economy", "pay")

	// Inject a second instance under a differently cased key, as a partial
	// earlier operation might leave behind.
	path := plugintest.WriteLuaPlugin(t, t.TempDir(), "ECONOMY", "1.0.0", "", "pay")
	archive, err := plugin.OpenArchive(path)
	require.NoError(t, err)
	inst, err := f.rt.Instantiate(ctx, archive)
	require.NoError(t, err)
	second := plugin.New(archive, inst)
	require.NoError(t, second.Enable(ctx))

	view := f.view(t)
	*view.Plugins = append(*view.Plugins, second)
	view.Lookup["ECONOMY"] = second
	view.Commands.Register(second.Name(), command.NewPluginRoute(second, second.Manifest().Commands[0]))

	out := f.manager.Unload(ctx, "economy")
	require.NoError(t, out.Err)
	assert.Equal(t, 2, out.Detached)
	assert.Empty(t, f.srv.Plugins())
	assert.Empty(t, f.view(t).Lookup)
	assert.False(t, first.IsEnabled())
	assert.False(t, second.IsEnabled())
	for _, i := range f.rt.Instances() {
		assert.True(t, i.Closed())
	}
	f.requireConsistent(t)
}

func TestUnload_AccessDeniedDegrades(t *testing.T) {
	f := newFixture(t, withAccessor(deniedAccessor()))
	p := f.loadEnabled(t, "Economy", "pay")
	ctx := context.Background()

	out := f.manager.Unload(ctx, "Economy")
	assert.Equal(t, reload.StatusDegraded, out.Status)
	assert.True(t, out.OK())
	errutil.AssertErrorCode(t, out.Err, reload.CodeAccessDenied)
	assert.Zero(t, out.Detached)

	assert.False(t, p.IsEnabled())
	assert.Same(t, p, f.srv.Plugin("Economy"), "still registry-resident")
	assert.Equal(t, []string{"economy:pay", "pay"}, f.srv.Snapshot(ctx)[0].Commands)
	assert.False(t, f.rt.Instances()[0].Closed(), "a registered plugin is not released")

	err := f.srv.Dispatch(ctx, &testSender{}, "pay")
	assert.ErrorIs(t, err, plugin.ErrPluginDisabled)
}

func TestLoad(t *testing.T) {
	f := newFixture(t)
	f.writePlugin(t, "Economy", "pay")

	out := f.manager.Load(context.Background(), "Economy")
	require.NoError(t, out.Err)
	assert.Equal(t, reload.StatusLoaded, out.Status)
	assert.Equal(t, reload.StateEnabled, out.State)

	p := f.srv.Plugin("Economy")
	require.NotNil(t, p)
	assert.True(t, p.IsEnabled())
	assert.Equal(t, p.ID().String(), out.PluginID)
}

func TestLoad_Missing(t *testing.T) {
	f := newFixture(t)
	f.loadEnabled(t, "Economy")

	out := f.manager.Load(context.Background(), "Missing")
	errutil.AssertErrorCode(t, out.Err, plugin.CodeInvalidArtifact)
	assert.Equal(t, reload.StatusFailed, out.Status)
	assert.Len(t, f.srv.Plugins(), 1)
}

func TestLoad_PassesRejectionsThrough(t *testing.T) {
	f := newFixture(t)
	plugintest.WriteArchive(t, f.dir, "Broken", map[string]string{plugin.ManifestFile: "version: [\n"})
	plugintest.WriteArchive(t, f.dir, "Shop", map[string]string{
		plugin.ManifestFile: "name: Shop\nversion: 1.0.0\ntype: lua\nlua-plugin:\n  entry: main.lua\ndepend:\n  - name: Economy\n",
		"main.lua":          "",
	})
	ctx := context.Background()

	errutil.AssertErrorCode(t, f.manager.Load(ctx, "Broken").Err, plugin.CodeInvalidManifest)
	errutil.AssertErrorCode(t, f.manager.Load(ctx, "Shop").Err, plugin.CodeMissingDependency)
	assert.Empty(t, f.srv.Plugins())
}

func TestLoad_DuplicateIsSkipped(t *testing.T) {
	f := newFixture(t)
	p := f.loadEnabled(t, "Economy")

	out := f.manager.Load(context.Background(), "Economy")
	require.NoError(t, out.Err)
	assert.Equal(t, reload.StatusSkipped, out.Status)
	assert.True(t, out.OK())
	assert.Equal(t, []*plugin.Plugin{p}, f.srv.Plugins())
}

func TestLoad_EnableFailure(t *testing.T) {
	f := newFixture(t)
	f.rt.EnableErr = assert.AnError
	f.writePlugin(t, "Economy")

	out := f.manager.Load(context.Background(), "Economy")
	errutil.AssertErrorCode(t, out.Err, reload.CodeUnexpectedFailure)
	assert.Equal(t, reload.StateFailed, out.State)
	assert.ErrorIs(t, out.Err, assert.AnError)
}

func TestReload_NewIdentity(t *testing.T) {
	f := newFixture(t)
	old := f.loadEnabled(t, "Economy", "pay")
	ctx := context.Background()

	out := f.manager.Reload(ctx, "Economy")
	require.NoError(t, out.Err)
	assert.Equal(t, reload.StatusReloaded, out.Status)
	require.Len(t, out.Steps, 2)
	assert.Equal(t, reload.StatusUnloaded, out.Steps[0].Status)
	assert.Equal(t, reload.StatusLoaded, out.Steps[1].Status)

	p := f.srv.Plugin("Economy")
	require.NotNil(t, p)
	assert.NotSame(t, old, p)
	assert.NotEqual(t, old.ID(), p.ID())
	assert.Equal(t, p.ID().String(), out.PluginID)
	assert.True(t, p.IsEnabled())

	view := f.view(t)
	assert.True(t, view.Known["pay"].OwnedBy(p))
	f.requireConsistent(t)

	s := &testSender{}
	require.NoError(t, f.srv.Dispatch(ctx, s, "pay"))
	assert.Equal(t, "Economy handled pay\n", s.out.String())
}

func TestReload_NotLoadedStillLoads(t *testing.T) {
	f := newFixture(t)
	f.writePlugin(t, "Economy", "pay")

	out := f.manager.Reload(context.Background(), "Economy")
	require.NoError(t, out.Err)
	assert.Equal(t, reload.StatusReloaded, out.Status)
	errutil.AssertErrorCode(t, out.Steps[0].Err, reload.CodeModuleNotFound)
	assert.NotNil(t, f.srv.Plugin("Economy"))
}

func TestReload_LoadFailureAfterUnload(t *testing.T) {
	f := newFixture(t)
	f.loadEnabled(t, "Economy", "pay")
	f.rt.InstantiateErr = plugin.ErrInvalidArtifact("Economy.zip", nil)

	out := f.manager.Reload(context.Background(), "Economy")
	errutil.AssertErrorCode(t, out.Err, plugin.CodeInvalidArtifact)
	assert.Equal(t, reload.StatusFailed, out.Status)
	assert.Equal(t, reload.StatusUnloaded, out.Steps[0].Status)
	assert.Nil(t, f.srv.Plugin("Economy"))
}

func TestReload_AccessDeniedDegrades(t *testing.T) {
	f := newFixture(t, withAccessor(deniedAccessor()))
	p := f.loadEnabled(t, "Economy", "pay")

	out := f.manager.Reload(context.Background(), "Economy")
	assert.Equal(t, reload.StatusDegraded, out.Status)
	assert.Equal(t, reload.StateDisabling, out.State)
	assert.True(t, out.OK())
	errutil.AssertErrorCode(t, out.Err, reload.CodeAccessDenied)

	require.Len(t, out.Steps, 2)
	assert.Equal(t, reload.StatusDegraded, out.Steps[0].Status)
	assert.Equal(t, reload.StatusSkipped, out.Steps[1].Status)

	assert.False(t, p.IsEnabled())
	assert.Same(t, p, f.srv.Plugin("Economy"))
}

func TestLoad_RejectsPathNames(t *testing.T) {
	f := newFixture(t)
	f.writePlugin(t, "Economy")

	for _, name := range []string{"../Economy", "sub/Economy", `sub\Economy`, "..", ""} {
		t.Run(name, func(t *testing.T) {
			out := f.manager.Load(context.Background(), name)
			assert.Equal(t, reload.StatusFailed, out.Status)
			errutil.AssertErrorCode(t, out.Err, plugin.CodeInvalidArtifact)
		})
	}
	assert.Empty(t, f.srv.Plugins())
}

func TestDirLocator(t *testing.T) {
	dir := t.TempDir()
	plugintest.WriteLuaPlugin(t, dir, "Economy", "1.0.0", "")
	l := reload.DirLocator{Dir: dir}

	assert.Equal(t, dir+"/Economy.zip", l.Locate("Economy"))
	assert.Equal(t, dir+"/Economy.zip", l.Locate("economy"))
	assert.Equal(t, dir+"/Missing.zip", l.Locate("Missing"))
	assert.Equal(t, "/absent/Missing.zip", reload.DirLocator{Dir: "/absent"}.Locate("Missing"))
}
