// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reload_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/holomush/modreload/internal/host"
	"github.com/holomush/modreload/internal/plugin/plugintest"
	"github.com/holomush/modreload/internal/reload"
)

func TestLifecycleProperties(t *testing.T) {
	dir := t.TempDir()
	names := []string{"Economy", "Shop", "Bank"}
	for _, name := range names {
		plugintest.WriteLuaPlugin(t, dir, name, "1.0.0", "", strings.ToLower(name), "info")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		srv := host.New(dir, host.WithRuntime(&plugintest.Runtime{}))
		defer srv.Close(ctx) //nolint:errcheck // test teardown
		manager := reload.NewManager(srv, reload.NewServerAccessor(srv), reload.DirLocator{Dir: dir},
			reload.WithLogger(logger))
		f := &fixture{srv: srv}

		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := range steps {
			action := rapid.SampledFrom(reload.Actions).Draw(rt, fmt.Sprintf("action%d", i))
			name := rapid.SampledFrom(names).Draw(rt, fmt.Sprintf("name%d", i))
			before := srv.Plugin(name)

			switch action {
			case reload.ActionUnload:
				if rapid.Bool().Draw(rt, fmt.Sprintf("upper%d", i)) {
					name = strings.ToUpper(name)
				}
				out := manager.Unload(ctx, name)
				if before == nil && reload.Code(out.Err) != reload.CodeModuleNotFound {
					rt.Fatalf("unload of absent %s: %v", name, out.Err)
				}
				if before != nil && out.Status != reload.StatusUnloaded {
					rt.Fatalf("unload of %s: status %s, err %v", name, out.Status, out.Err)
				}
				if srv.Plugin(name) != nil {
					rt.Fatalf("%s still registered after unload", name)
				}
			case reload.ActionLoad:
				out := manager.Load(ctx, name)
				want := reload.StatusLoaded
				if before != nil {
					want = reload.StatusSkipped
				}
				if out.Status != want {
					rt.Fatalf("load of %s: status %s, want %s (err %v)", name, out.Status, want, out.Err)
				}
				if after := srv.Plugin(name); after == nil || !after.IsEnabled() {
					rt.Fatalf("%s not enabled after load", name)
				}
			case reload.ActionReload:
				out := manager.Reload(ctx, name)
				after := srv.Plugin(name)
				if out.Status != reload.StatusReloaded || after == nil {
					rt.Fatalf("reload of %s: status %s, err %v", name, out.Status, out.Err)
				}
				if after == before {
					rt.Fatalf("reload of %s kept the old instance", name)
				}
			}
			f.requireConsistent(rt)
		}
	})
}
