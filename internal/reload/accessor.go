// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reload

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/holomush/modreload/internal/command"
	"github.com/holomush/modreload/internal/host"
	"github.com/holomush/modreload/internal/plugin"
)

// RegistryView is a live, mutable view of a host's private plugin registry
// and command table. Mutations through the view change the host's state.
//
// Commands and Known are nil when the command table could not be reached.
type RegistryView struct {
	Plugins  *[]*plugin.Plugin
	Lookup   map[string]*plugin.Plugin
	Commands *command.Map
	Known    map[string]*command.Route
}

// RegistryAccessor obtains a RegistryView.
type RegistryAccessor interface {
	// Acquire returns a view of the host's current registry. Errors carry
	// CodeAccessDenied. Acquire has no side effects.
	Acquire() (*RegistryView, error)
}

// RegistryAccessorFunc adapts a function to RegistryAccessor.
type RegistryAccessorFunc func() (*RegistryView, error)

// Acquire implements RegistryAccessor.
func (f RegistryAccessorFunc) Acquire() (*RegistryView, error) { return f() }

// Field names of the host layout the reflective accessor expects.
const (
	FieldPlugins       = "plugins"
	FieldLookupNames   = "lookupNames"
	FieldCommandMap    = "commandMap"
	FieldKnownCommands = "knownCommands"
)

// ReflectAccessor reaches a host's unexported registry fields by name.
//
// Target must be a pointer to a struct with fields plugins
// ([]*plugin.Plugin), lookupNames (map[string]*plugin.Plugin) and, optionally,
// commandMap (*command.Map). Any other layout yields CodeAccessDenied.
type ReflectAccessor struct {
	Target any
}

// NewServerAccessor returns the accessor for the host.Server layout.
func NewServerAccessor(srv *host.Server) ReflectAccessor {
	return ReflectAccessor{Target: srv}
}

// Acquire implements RegistryAccessor.
func (a ReflectAccessor) Acquire() (view *RegistryView, err error) {
	defer func() {
		if r := recover(); r != nil {
			view = nil
			err = ErrAccessDenied(fmt.Sprintf("%T", a.Target), fmt.Sprint(r))
		}
	}()

	target, err := structOf(a.Target)
	if err != nil {
		return nil, err
	}

	plugins, err := fieldPtr[[]*plugin.Plugin](target, FieldPlugins)
	if err != nil {
		return nil, err
	}
	lookup, err := fieldPtr[map[string]*plugin.Plugin](target, FieldLookupNames)
	if err != nil {
		return nil, err
	}
	if *lookup == nil {
		return nil, ErrAccessDenied(FieldLookupNames, "index is nil")
	}
	view = &RegistryView{Plugins: plugins, Lookup: *lookup}

	cm, err := fieldPtr[*command.Map](target, FieldCommandMap)
	if err != nil || *cm == nil {
		return view, nil
	}
	cmStruct, err := structOf(*cm)
	if err != nil {
		return view, nil //nolint:nilerr // command table is optional
	}
	known, err := fieldPtr[map[string]*command.Route](cmStruct, FieldKnownCommands)
	if err != nil || *known == nil {
		return view, nil //nolint:nilerr // command table is optional
	}
	view.Commands = *cm
	view.Known = *known
	return view, nil
}

func structOf(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, ErrAccessDenied(fmt.Sprintf("%T", v), "not a pointer to a struct")
	}
	return rv.Elem(), nil
}

// fieldPtr returns a pointer to the named field of an addressable struct,
// bypassing export rules. The field's type must be exactly T.
func fieldPtr[T any](s reflect.Value, name string) (*T, error) {
	f := s.FieldByName(name)
	if !f.IsValid() {
		return nil, ErrAccessDenied(s.Type().String()+"."+name, "no such field")
	}
	if want := reflect.TypeFor[T](); f.Type() != want {
		return nil, ErrAccessDenied(s.Type().String()+"."+name,
			fmt.Sprintf("field has type %s, want %s", f.Type(), want))
	}
	if !f.CanAddr() {
		return nil, ErrAccessDenied(s.Type().String()+"."+name, "field is not addressable")
	}
	//nolint:gosec // reaching unexported host state is the accessor's purpose
	return reflect.NewAt(f.Type(), unsafe.Pointer(f.UnsafeAddr())).Interface().(*T), nil
}
