// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package goplugin provides the runtime for binary plugins using
// HashiCorp's go-plugin system.
package goplugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/modreload/internal/plugin"
	"github.com/holomush/modreload/pkg/pluginsdk"
)

// Defaults for releasing an extracted executable.
const (
	DefaultRemoveAttempts = 10
	DefaultRemoveInterval = 50 * time.Millisecond
)

// Compile-time interface checks.
var (
	_ plugin.Runtime  = (*Runtime)(nil)
	_ plugin.Instance = (*instance)(nil)
)

// PluginClient wraps go-plugin client for testability.
type PluginClient interface {
	// Client returns the RPC client protocol.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process and waits for it to exit.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path.
	NewClient(execPath string) PluginClient
}

// DefaultClientFactory creates real go-plugin clients.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client speaking net/rpc.
func (f *DefaultClientFactory) NewClient(execPath string) PluginClient {
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  pluginsdk.HandshakeConfig,
		Plugins:          pluginsdk.PluginMap,
		Cmd:              exec.Command(execPath), // #nosec G204 -- extracted from a validated plugin archive
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolNetRPC},
	})
}

// Runtime runs binary plugins. The executable is extracted from the archive
// into a private directory under workDir for the lifetime of the instance.
type Runtime struct {
	workDir        string
	clientFactory  ClientFactory
	removeAttempts uint64
	removeInterval time.Duration
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithClientFactory replaces the go-plugin client factory (for testing).
func WithClientFactory(f ClientFactory) Option {
	return func(r *Runtime) {
		r.clientFactory = f
	}
}

// WithRemoveRetry sets how often removal of an extracted executable is
// retried after the process is killed.
func WithRemoveRetry(attempts uint64, interval time.Duration) Option {
	return func(r *Runtime) {
		r.removeAttempts = attempts
		r.removeInterval = interval
	}
}

// NewRuntime creates a binary runtime that extracts executables under workDir.
// Panics if workDir is empty.
func NewRuntime(workDir string, opts ...Option) *Runtime {
	if workDir == "" {
		panic("goplugin: workDir cannot be empty")
	}
	r := &Runtime{
		workDir:        workDir,
		clientFactory:  &DefaultClientFactory{},
		removeAttempts: DefaultRemoveAttempts,
		removeInterval: DefaultRemoveInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Type implements plugin.Runtime.
func (r *Runtime) Type() plugin.Type { return plugin.TypeBinary }

// Instantiate extracts the executable, starts it, and dispenses its handler.
func (r *Runtime) Instantiate(ctx context.Context, archive *plugin.Archive) (plugin.Instance, error) {
	m := archive.Manifest()
	if m.BinaryPlugin == nil {
		return nil, plugin.ErrInvalidArtifact(archive.Path(), oops.Errorf("plugin %s is not a binary plugin", m.Name))
	}

	if err := os.MkdirAll(r.workDir, 0o700); err != nil {
		return nil, oops.In("goplugin").With("dir", r.workDir).Wrap(err)
	}
	dir, err := os.MkdirTemp(r.workDir, strings.ToLower(m.Name)+"-*")
	if err != nil {
		return nil, oops.In("goplugin").With("dir", r.workDir).Wrap(err)
	}

	inst := &instance{
		name:           m.Name,
		dir:            dir,
		removeAttempts: r.removeAttempts,
		removeInterval: r.removeInterval,
	}

	execPath, err := extract(archive, m.BinaryPlugin.Executable, dir)
	if err != nil {
		_ = inst.Close() //nolint:errcheck // extraction error takes precedence
		return nil, plugin.ErrInvalidArtifact(archive.Path(), err)
	}

	client := r.clientFactory.NewClient(execPath)
	inst.client = client

	rpcClient, err := client.Client()
	if err != nil {
		_ = inst.Close() //nolint:errcheck // connect error takes precedence
		return nil, plugin.ErrInvalidArtifact(archive.Path(), oops.Hint("failed to start plugin process").Wrap(err))
	}

	raw, err := rpcClient.Dispense(pluginsdk.PluginName)
	if err != nil {
		_ = inst.Close() //nolint:errcheck // dispense error takes precedence
		return nil, plugin.ErrInvalidArtifact(archive.Path(), oops.Hint("failed to dispense plugin").Wrap(err))
	}

	handler, ok := raw.(pluginsdk.Handler)
	if !ok {
		_ = inst.Close() //nolint:errcheck // type error takes precedence
		return nil, plugin.ErrInvalidArtifact(archive.Path(), oops.Errorf("plugin %s does not implement pluginsdk.Handler", m.Name))
	}
	inst.handler = handler

	slog.DebugContext(ctx, "started binary plugin", "plugin", m.Name, "executable", execPath)
	return inst, nil
}

// extract copies the executable out of the archive into dir.
func extract(archive *plugin.Archive, name, dir string) (string, error) {
	src, err := archive.Open(name)
	if err != nil {
		return "", oops.With("executable", name).Wrap(err)
	}
	defer src.Close() //nolint:errcheck // read-only

	dst := filepath.Join(dir, filepath.Base(name))
	f, err := os.OpenFile(filepath.Clean(dst), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o700) //nolint:gosec // plugin executables must be executable
	if err != nil {
		return "", oops.With("executable", dst).Wrap(err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close() //nolint:errcheck // copy error takes precedence
		return "", oops.With("executable", dst).Wrap(err)
	}
	if err := f.Close(); err != nil {
		return "", oops.With("executable", dst).Wrap(err)
	}
	return dst, nil
}

// instance is a running binary plugin.
type instance struct {
	name           string
	dir            string
	client         PluginClient
	handler        pluginsdk.Handler
	removeAttempts uint64
	removeInterval time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (i *instance) Enable(ctx context.Context) error {
	if err := i.handler.Enable(ctx); err != nil {
		return fmt.Errorf("plugin %s Enable failed: %w", i.name, err)
	}
	return nil
}

func (i *instance) Disable(ctx context.Context) error {
	if err := i.handler.Disable(ctx); err != nil {
		return fmt.Errorf("plugin %s Disable failed: %w", i.name, err)
	}
	return nil
}

func (i *instance) Execute(ctx context.Context, inv plugin.Invocation) (bool, error) {
	reply, err := i.handler.Execute(ctx, pluginsdk.Invocation{
		Command: inv.Command,
		Label:   inv.Label,
		Args:    inv.Args,
		Sender:  inv.Sender,
	})
	if err != nil {
		return false, fmt.Errorf("plugin %s Execute failed: %w", i.name, err)
	}
	if reply.Output != "" && inv.Output != nil {
		_, _ = fmt.Fprintln(inv.Output, reply.Output) //nolint:errcheck // best-effort output
	}
	return reply.Handled, nil
}

// Close kills the plugin process, which blocks until it exits, and then
// removes the extracted executable. Removal is retried because some
// platforms keep the file locked for a short while after exit.
func (i *instance) Close() error {
	i.closeOnce.Do(func() {
		if i.client != nil {
			i.client.Kill()
		}

		b := retry.WithMaxRetries(i.removeAttempts, retry.NewConstant(i.removeInterval))
		err := retry.Do(context.Background(), b, func(_ context.Context) error {
			if err := os.RemoveAll(i.dir); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			i.closeErr = oops.In("goplugin").With("plugin", i.name).With("dir", i.dir).Wrap(err)
		}
	})
	return i.closeErr
}
