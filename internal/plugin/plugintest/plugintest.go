// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugintest provides artifact builders and a fake runtime for tests.
package plugintest

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/holomush/modreload/internal/plugin"
)

// WriteArchive writes <dir>/<name>.zip containing files and returns its path.
func WriteArchive(t testing.TB, dir, name string, files map[string]string) string {
	t.Helper()

	path := filepath.Join(dir, name+plugin.ArchiveExt)
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}

	zw := zip.NewWriter(f)
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		w, err := zw.Create(n)
		if err != nil {
			t.Fatalf("create %s: %v", n, err)
		}
		if _, err := w.Write([]byte(files[n])); err != nil {
			t.Fatalf("write %s: %v", n, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return path
}

// LuaManifest renders a minimal lua plugin.yaml declaring the given commands.
func LuaManifest(name, version string, commands ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "name: %s\nversion: %s\ntype: lua\nlua-plugin:\n  entry: main.lua\n", name, version)
	if len(commands) > 0 {
		b.WriteString("commands:\n")
		for _, c := range commands {
			fmt.Fprintf(&b, "  - name: %s\n    usage: /%s\n", c, c)
		}
	}
	return b.String()
}

// WriteLuaPlugin writes a lua plugin archive with a main.lua script.
func WriteLuaPlugin(t testing.TB, dir, name, version, script string, commands ...string) string {
	t.Helper()
	return WriteArchive(t, dir, name, map[string]string{
		plugin.ManifestFile: LuaManifest(name, version, commands...),
		"main.lua":          script,
	})
}

// Runtime is a plugin.Runtime that records its instances instead of
// running any code. It serves TypeLua manifests.
type Runtime struct {
	mu        sync.Mutex
	instances []*Instance

	// InstantiateErr, when set, is returned by Instantiate.
	InstantiateErr error
	// EnableErr, when set, is returned by every instance's Enable.
	EnableErr error
}

// Type implements plugin.Runtime.
func (r *Runtime) Type() plugin.Type { return plugin.TypeLua }

// Instantiate implements plugin.Runtime.
func (r *Runtime) Instantiate(_ context.Context, archive *plugin.Archive) (plugin.Instance, error) {
	if r.InstantiateErr != nil {
		return nil, r.InstantiateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	inst := &Instance{Name: archive.Manifest().Name, enableErr: r.EnableErr}
	r.instances = append(r.instances, inst)
	return inst, nil
}

// Instances returns every instance created so far, in creation order.
func (r *Runtime) Instances() []*Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Instance(nil), r.instances...)
}

// Instance records lifecycle calls.
type Instance struct {
	Name string

	mu        sync.Mutex
	enables   int
	disables  int
	executes  int
	closed    bool
	enableErr error
}

// Enable implements plugin.Instance.
func (i *Instance) Enable(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.enableErr != nil {
		return i.enableErr
	}
	i.enables++
	return nil
}

// Disable implements plugin.Instance.
func (i *Instance) Disable(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.disables++
	return nil
}

// Execute implements plugin.Instance. It echoes the label to the output.
func (i *Instance) Execute(_ context.Context, inv plugin.Invocation) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.executes++
	if inv.Output != nil {
		fmt.Fprintf(inv.Output, "%s handled %s\n", i.Name, inv.Label)
	}
	return true, nil
}

// Close implements plugin.Instance.
func (i *Instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
	return nil
}

// Counts returns how often Enable, Disable and Execute ran.
func (i *Instance) Counts() (enables, disables, executes int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.enables, i.disables, i.executes
}

// Closed reports whether Close ran.
func (i *Instance) Closed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.closed
}
