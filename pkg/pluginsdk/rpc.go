// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package pluginsdk

import (
	"context"
	"errors"
	"net/rpc"
)

// Ack is the empty RPC response. gob cannot encode field-less structs.
type Ack struct {
	OK bool
}

// RPCServer adapts a Handler to net/rpc on the plugin side.
type RPCServer struct {
	Impl Handler
}

// Enable implements the Plugin.Enable RPC.
func (s *RPCServer) Enable(_ Ack, resp *Ack) error {
	if s.Impl == nil {
		return errors.New("pluginsdk: handler is nil")
	}
	if err := s.Impl.Enable(context.Background()); err != nil {
		return err //nolint:wrapcheck // crosses the RPC boundary as a string
	}
	resp.OK = true
	return nil
}

// Disable implements the Plugin.Disable RPC.
func (s *RPCServer) Disable(_ Ack, resp *Ack) error {
	if s.Impl == nil {
		return errors.New("pluginsdk: handler is nil")
	}
	if err := s.Impl.Disable(context.Background()); err != nil {
		return err //nolint:wrapcheck // crosses the RPC boundary as a string
	}
	resp.OK = true
	return nil
}

// Execute implements the Plugin.Execute RPC.
func (s *RPCServer) Execute(inv Invocation, resp *Reply) error {
	if s.Impl == nil {
		return errors.New("pluginsdk: handler is nil")
	}
	reply, err := s.Impl.Execute(context.Background(), inv)
	if err != nil {
		return err //nolint:wrapcheck // crosses the RPC boundary as a string
	}
	*resp = reply
	return nil
}

// RPCClient is the host-side Handler backed by an RPC connection.
// Contexts do not cross the process boundary.
type RPCClient struct {
	client *rpc.Client
}

// Compile-time interface check.
var _ Handler = (*RPCClient)(nil)

// NewRPCClient wraps an existing RPC client.
func NewRPCClient(c *rpc.Client) *RPCClient {
	return &RPCClient{client: c}
}

// Enable calls the plugin's Enable.
func (c *RPCClient) Enable(context.Context) error {
	var resp Ack
	//nolint:wrapcheck // host wraps with plugin context
	return c.client.Call("Plugin.Enable", Ack{}, &resp)
}

// Disable calls the plugin's Disable.
func (c *RPCClient) Disable(context.Context) error {
	var resp Ack
	//nolint:wrapcheck // host wraps with plugin context
	return c.client.Call("Plugin.Disable", Ack{}, &resp)
}

// Execute calls the plugin's Execute.
func (c *RPCClient) Execute(_ context.Context, inv Invocation) (Reply, error) {
	var resp Reply
	if err := c.client.Call("Plugin.Execute", inv, &resp); err != nil {
		return Reply{}, err //nolint:wrapcheck // host wraps with plugin context
	}
	return resp, nil
}
