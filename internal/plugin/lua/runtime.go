// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package lua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/holomush/modreload/internal/plugin"
)

// Hook names a plugin may define.
const (
	hookEnable  = "on_enable"
	hookDisable = "on_disable"
	hookCommand = "on_command"
)

// errInstanceClosed is returned when a closed instance is called.
var errInstanceClosed = errors.New("lua instance is closed")

// Compile-time interface checks.
var (
	_ plugin.Runtime  = (*Runtime)(nil)
	_ plugin.Instance = (*instance)(nil)
)

// Runtime instantiates Lua plugins. Each instance owns one persistent,
// sandboxed Lua state for its whole lifetime.
type Runtime struct {
	factory *StateFactory
	logger  *slog.Logger
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger plugins write to through modreload.log.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) {
		r.logger = l
	}
}

// NewRuntime creates a Lua runtime.
func NewRuntime(opts ...Option) *Runtime {
	r := &Runtime{
		factory: NewStateFactory(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Type implements plugin.Runtime.
func (r *Runtime) Type() plugin.Type { return plugin.TypeLua }

// Instantiate reads the entry script, runs it in a fresh state, and returns
// the resulting instance. A missing entry or a script error makes the
// artifact invalid.
func (r *Runtime) Instantiate(ctx context.Context, archive *plugin.Archive) (plugin.Instance, error) {
	m := archive.Manifest()
	if m.LuaPlugin == nil {
		return nil, plugin.ErrInvalidArtifact(archive.Path(), oops.Errorf("plugin %s is not a lua plugin", m.Name))
	}

	code, err := archive.ReadFile(m.LuaPlugin.Entry)
	if err != nil {
		return nil, plugin.ErrInvalidArtifact(archive.Path(), oops.
			With("entry", m.LuaPlugin.Entry).
			Hint("failed to read entry file").
			Wrap(err))
	}

	L, err := r.factory.NewState(ctx)
	if err != nil {
		return nil, oops.In("lua").With("plugin", m.Name).Hint("failed to create state").Wrap(err)
	}

	registerHostFunctions(L, m.Name, r.logger)

	if err := L.DoString(string(code)); err != nil {
		L.Close()
		return nil, plugin.ErrInvalidArtifact(archive.Path(), oops.
			With("entry", m.LuaPlugin.Entry).
			Hint("script error").
			Wrap(err))
	}

	return &instance{name: m.Name, state: L}, nil
}

// instance is a live Lua plugin. Calls are serialized on mu because an
// LState is not safe for concurrent use.
type instance struct {
	name  string
	mu    sync.Mutex
	state *lua.LState
}

func (i *instance) Enable(ctx context.Context) error {
	_, _, err := i.call(ctx, hookEnable)
	return err
}

func (i *instance) Disable(ctx context.Context) error {
	_, _, err := i.call(ctx, hookDisable)
	return err
}

// Execute calls on_command(cmd). A plugin without on_command cannot handle
// any command; a false return asks the host to show usage.
func (i *instance) Execute(ctx context.Context, inv plugin.Invocation) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state == nil {
		return false, errInstanceClosed
	}

	L := i.state
	cmd := L.NewTable()
	L.SetField(cmd, "name", lua.LString(inv.Command))
	L.SetField(cmd, "label", lua.LString(inv.Label))
	L.SetField(cmd, "sender", lua.LString(inv.Sender))
	args := L.NewTable()
	for _, a := range inv.Args {
		args.Append(lua.LString(a))
	}
	L.SetField(cmd, "args", args)
	L.SetField(cmd, "reply", L.NewFunction(func(L *lua.LState) int {
		if inv.Output != nil {
			_, _ = fmt.Fprintln(inv.Output, L.CheckString(1)) //nolint:errcheck // best-effort output
		}
		return 0
	}))

	ret, found, err := i.callLocked(ctx, hookCommand, cmd)
	if err != nil {
		return false, err
	}
	if !found {
		return false, oops.In("lua").With("plugin", i.name).Errorf("plugin does not define %s", hookCommand)
	}
	return ret != lua.LFalse, nil
}

// Close closes the Lua state. Subsequent calls fail with errInstanceClosed.
func (i *instance) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state != nil {
		i.state.Close()
		i.state = nil
	}
	return nil
}

func (i *instance) call(ctx context.Context, hook string, args ...lua.LValue) (lua.LValue, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.state == nil {
		return lua.LNil, false, errInstanceClosed
	}
	return i.callLocked(ctx, hook, args...)
}

// callLocked calls a global hook if it is defined. found is false when the
// plugin does not define it.
func (i *instance) callLocked(ctx context.Context, hook string, args ...lua.LValue) (ret lua.LValue, found bool, err error) {
	L := i.state
	fn := L.GetGlobal(hook)
	if fn.Type() == lua.LTNil {
		return lua.LNil, false, nil
	}

	L.SetContext(ctx)
	defer L.RemoveContext()

	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		return lua.LNil, true, oops.In("lua").With("plugin", i.name).With("hook", hook).Wrap(err)
	}

	ret = L.Get(-1)
	L.Pop(1)
	return ret, true, nil
}
