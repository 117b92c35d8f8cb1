// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package pluginsdk provides the SDK for building modreload binary plugins.
//
// Binary plugins run as child processes and talk to the host over
// HashiCorp go-plugin's net/rpc transport. A plugin implements Handler and
// calls Serve from main:
//
//	type Greeter struct{}
//
//	func (Greeter) Enable(context.Context) error  { return nil }
//	func (Greeter) Disable(context.Context) error { return nil }
//
//	func (Greeter) Execute(_ context.Context, inv pluginsdk.Invocation) (pluginsdk.Reply, error) {
//		return pluginsdk.Reply{Handled: true, Output: "hello " + inv.Sender}, nil
//	}
//
//	func main() {
//		pluginsdk.Serve(&pluginsdk.ServeConfig{Handler: Greeter{}})
//	}
package pluginsdk

import (
	"context"
	"net/rpc"

	hashiplug "github.com/hashicorp/go-plugin"
)

// PluginName is the key the handler is dispensed under.
const PluginName = "handler"

// Invocation describes one command routed to the plugin.
type Invocation struct {
	Command string
	Label   string
	Args    []string
	Sender  string
}

// Reply is the plugin's answer to an Invocation. Handled false asks the host
// to show the command's usage.
type Reply struct {
	Handled bool
	Output  string
}

// Handler is the interface that binary plugins must implement.
type Handler interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	Execute(ctx context.Context, inv Invocation) (Reply, error)
}

// HandshakeConfig is the go-plugin handshake configuration.
// Both host and plugins must use the same values.
var HandshakeConfig = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "MODRELOAD_PLUGIN",
	MagicCookieValue: "modreload-v1",
}

// PluginMap is the set of plugins the host can dispense.
var PluginMap = map[string]hashiplug.Plugin{
	PluginName: &RPCPlugin{},
}

// ServeConfig configures the plugin server.
type ServeConfig struct {
	// Handler is the plugin implementation. Required; Serve panics if nil.
	Handler Handler
}

// Serve starts the plugin server. It blocks until the host kills the plugin.
func Serve(config *ServeConfig) {
	if config == nil {
		panic("pluginsdk: config cannot be nil")
	}
	if config.Handler == nil {
		panic("pluginsdk: config.Handler cannot be nil")
	}
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: HandshakeConfig,
		Plugins: map[string]hashiplug.Plugin{
			PluginName: &RPCPlugin{Impl: config.Handler},
		},
	})
}

// RPCPlugin implements go-plugin's Plugin interface for net/rpc.
type RPCPlugin struct {
	// Impl is used by the plugin side only.
	Impl Handler
}

// Server returns the RPC server (called by the plugin process).
func (p *RPCPlugin) Server(*hashiplug.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

// Client returns the RPC client (called by the host process).
func (p *RPCPlugin) Client(_ *hashiplug.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}
