// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main implements an echo command as a binary modreload plugin.
//
// Package it as a zip archive holding the built executable and this
// plugin.yaml:
//
//	name: Echo
//	version: 1.0.0
//	type: binary
//	binary-plugin:
//	  executable: echo
//	commands:
//	  - name: echo
//	    usage: /echo <message>
package main

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/holomush/modreload/pkg/pluginsdk"
)

// Echo replies with its arguments. It counts invocations since the last
// enable so a reload visibly resets its state.
type Echo struct {
	enabled atomic.Bool
	count   atomic.Int64
}

// Enable implements pluginsdk.Handler.
func (e *Echo) Enable(context.Context) error {
	e.count.Store(0)
	e.enabled.Store(true)
	return nil
}

// Disable implements pluginsdk.Handler.
func (e *Echo) Disable(context.Context) error {
	e.enabled.Store(false)
	return nil
}

// Execute implements pluginsdk.Handler.
func (e *Echo) Execute(_ context.Context, inv pluginsdk.Invocation) (pluginsdk.Reply, error) {
	if !e.enabled.Load() || len(inv.Args) == 0 {
		return pluginsdk.Reply{Handled: false}, nil
	}
	n := e.count.Add(1)
	var b strings.Builder
	b.WriteString(strings.Join(inv.Args, " "))
	if n > 1 {
		b.WriteString(" (again)")
	}
	return pluginsdk.Reply{Handled: true, Output: b.String()}, nil
}

func main() {
	pluginsdk.Serve(&pluginsdk.ServeConfig{Handler: &Echo{}})
}
