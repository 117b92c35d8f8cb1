// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package plugin provides plugin artifacts, manifests, and the runtime
// contracts the host uses to instantiate them.
package plugin

import (
	"context"
	"io"
)

// Runtime instantiates plugins of one Type.
type Runtime interface {
	// Type returns the manifest type this runtime serves.
	Type() Type

	// Instantiate creates a fresh, disabled instance from an open archive.
	// The archive stays owned by the caller.
	Instantiate(ctx context.Context, archive *Archive) (Instance, error)
}

// Instance is a single instantiated plugin.
type Instance interface {
	// Enable runs the plugin's enable hook.
	Enable(ctx context.Context) error

	// Disable runs the plugin's disable hook.
	Disable(ctx context.Context) error

	// Execute runs a command the plugin declared. It reports false when the
	// plugin rejected the arguments and usage should be shown.
	Execute(ctx context.Context, inv Invocation) (bool, error)

	// Close releases every resource the instance holds. It must not return
	// until the resources are actually released.
	Close() error
}

// Invocation describes one command execution routed to a plugin.
type Invocation struct {
	Command string   // declared command name
	Label   string   // label the sender typed (name, alias, or prefixed form)
	Args    []string // whitespace-split arguments
	Sender  string   // sender name
	Output  io.Writer
}
