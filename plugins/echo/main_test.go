// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/modreload/pkg/pluginsdk"
)

func TestEcho(t *testing.T) {
	ctx := context.Background()
	e := &Echo{}

	reply, err := e.Execute(ctx, pluginsdk.Invocation{Command: "echo", Args: []string{"hi"}})
	require.NoError(t, err)
	assert.False(t, reply.Handled, "disabled plugins do not handle commands")

	require.NoError(t, e.Enable(ctx))

	reply, err = e.Execute(ctx, pluginsdk.Invocation{Command: "echo", Args: []string{"hello", "there"}})
	require.NoError(t, err)
	assert.Equal(t, pluginsdk.Reply{Handled: true, Output: "hello there"}, reply)

	reply, err = e.Execute(ctx, pluginsdk.Invocation{Command: "echo", Args: []string{"hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hi (again)", reply.Output)

	reply, err = e.Execute(ctx, pluginsdk.Invocation{Command: "echo"})
	require.NoError(t, err)
	assert.False(t, reply.Handled, "no arguments asks for usage")

	require.NoError(t, e.Disable(ctx))
	require.NoError(t, e.Enable(ctx))
	reply, err = e.Execute(ctx, pluginsdk.Invocation{Command: "echo", Args: []string{"hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hi", reply.Output, "enable resets the counter")
}
