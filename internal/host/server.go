// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package host provides the long-running plugin host: its plugin registry,
// its command table, and the serialized context every command and lifecycle
// call runs on.
package host

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/holomush/modreload/internal/command"
	"github.com/holomush/modreload/internal/plugin"
	"github.com/holomush/modreload/pkg/errutil"
)

// ErrServerClosed is returned by operations on a closed server.
var ErrServerClosed = errors.New("server closed")

// Server hosts plugins.
//
// The server can load, enable and disable plugins but has no unload
// operation: once loaded, a plugin stays in plugins and lookupNames, and the
// routes its enable step registered stay in commandMap.
type Server struct {
	mu     sync.Mutex
	closed bool

	pluginsDir string
	runtimes   map[plugin.Type]plugin.Runtime

	plugins     []*plugin.Plugin
	lookupNames map[string]*plugin.Plugin
	commandMap  *command.Map
}

// Option configures a Server.
type Option func(*Server)

// WithRuntime registers the runtime for its plugin type, replacing any
// runtime already registered for that type.
func WithRuntime(rt plugin.Runtime) Option {
	return func(s *Server) {
		s.runtimes[rt.Type()] = rt
	}
}

// New creates a server that loads artifacts from pluginsDir.
func New(pluginsDir string, opts ...Option) *Server {
	s := &Server{
		pluginsDir:  pluginsDir,
		runtimes:    make(map[plugin.Type]plugin.Runtime),
		lookupNames: make(map[string]*plugin.Plugin),
		commandMap:  command.NewMap(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PluginsDir returns the directory artifacts are loaded from.
func (s *Server) PluginsDir() string { return s.pluginsDir }

type syncKey struct{}

// Sync runs fn on the server's serialized context. Calls made with the
// context fn receives are already serialized and do not block; every other
// caller waits for its turn.
func (s *Server) Sync(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, ok := ctx.Value(syncKey{}).(*Server); ok && owner == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(context.WithValue(ctx, syncKey{}, s))
}

// Plugins returns the loaded plugins in load order. The returned slice is a
// copy. Call it from within Sync for a consistent view.
func (s *Server) Plugins() []*plugin.Plugin {
	return append([]*plugin.Plugin(nil), s.plugins...)
}

// Plugin returns the loaded plugin with the given name, matched
// case-insensitively, or nil. Call it from within Sync.
func (s *Server) Plugin(name string) *plugin.Plugin {
	return s.lookupNames[strings.ToLower(name)]
}

// Discover lists the plugin artifacts in the plugins directory, sorted.
// A missing directory yields no artifacts.
func (s *Server) Discover(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, oops.In("host").With("dir", s.pluginsDir).Wrapf(err, "read plugins directory")
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), plugin.ArchiveExt) {
			continue
		}
		paths = append(paths, filepath.Join(s.pluginsDir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// LoadAll loads and enables every artifact in the plugins directory.
//
// Artifacts whose dependencies are not loaded yet are retried after the
// others, so dependency order does not have to match file order. Individual
// failures are logged and skipped.
func (s *Server) LoadAll(ctx context.Context) error {
	paths, err := s.Discover(ctx)
	if err != nil {
		return err
	}

	return s.Sync(ctx, func(ctx context.Context) error {
		var loaded []*plugin.Plugin
		pending := paths
		for len(pending) > 0 {
			var deferred []string
			lastErr := make(map[string]error)
			for _, path := range pending {
				p, err := s.LoadPlugin(ctx, path)
				switch {
				case hasCode(err, plugin.CodeMissingDependency):
					deferred = append(deferred, path)
					lastErr[path] = err
				case err != nil:
					slog.ErrorContext(ctx, "failed to load plugin", "path", path, "error", err)
				case p != nil:
					loaded = append(loaded, p)
				}
			}
			if len(deferred) == len(pending) {
				for _, path := range deferred {
					slog.ErrorContext(ctx, "failed to load plugin", "path", path, "error", lastErr[path])
				}
				break
			}
			pending = deferred
		}

		for _, p := range loaded {
			if err := s.EnablePlugin(ctx, p); err != nil {
				slog.ErrorContext(ctx, "failed to enable plugin", "plugin", p.Name(), "error", err)
			}
		}
		return nil
	})
}

// LoadPlugin loads the artifact at path and instantiates it, disabled.
//
// It returns (nil, nil) when a plugin with the same name is already loaded.
// Rejections carry plugin.CodeInvalidArtifact, plugin.CodeInvalidManifest or
// plugin.CodeMissingDependency.
func (s *Server) LoadPlugin(ctx context.Context, path string) (*plugin.Plugin, error) {
	var loaded *plugin.Plugin
	err := s.Sync(ctx, func(ctx context.Context) error {
		if s.closed {
			return ErrServerClosed
		}

		archive, err := plugin.OpenArchive(path)
		if err != nil {
			return err
		}
		m := archive.Manifest()

		if existing := s.lookupNames[strings.ToLower(m.Name)]; existing != nil {
			slog.WarnContext(ctx, "plugin already loaded, skipping",
				"plugin", m.Name,
				"path", path,
				"loaded_path", existing.Path())
			return archive.Close()
		}

		if err := s.checkDependencies(m); err != nil {
			_ = archive.Close() //nolint:errcheck // dependency error takes precedence
			return err
		}

		rt, ok := s.runtimes[m.Type]
		if !ok {
			_ = archive.Close() //nolint:errcheck // runtime error takes precedence
			return plugin.ErrInvalidArtifact(path, oops.Errorf("no runtime for plugin type %q", m.Type))
		}

		inst, err := rt.Instantiate(ctx, archive)
		if err != nil {
			_ = archive.Close() //nolint:errcheck // instantiate error takes precedence
			return err
		}

		p := plugin.New(archive, inst)
		s.plugins = append(s.plugins, p)
		s.lookupNames[strings.ToLower(p.Name())] = p
		loaded = p

		slog.InfoContext(ctx, "loaded plugin",
			"plugin", p.Name(),
			"type", m.Type,
			"version", p.Version(),
			"id", p.ID().String())
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loaded, nil
}

func (s *Server) checkDependencies(m *plugin.Manifest) error {
	for _, dep := range m.Depend {
		d := s.lookupNames[strings.ToLower(dep.Name)]
		if d == nil {
			return plugin.ErrMissingDependency(m.Name, dep.Name, dep.Version)
		}
		if dep.Version == "" {
			continue
		}
		constraint, err := semver.NewConstraint(dep.Version)
		if err != nil {
			return plugin.ErrMissingDependency(m.Name, dep.Name, dep.Version)
		}
		v, err := semver.NewVersion(d.Version())
		if err != nil || !constraint.Check(v) {
			return plugin.ErrMissingDependency(m.Name, dep.Name, dep.Version)
		}
	}
	return nil
}

// EnablePlugin enables p and registers the commands it declares under
// "<plugin>:<name>", the name, and each alias.
func (s *Server) EnablePlugin(ctx context.Context, p *plugin.Plugin) error {
	return s.Sync(ctx, func(ctx context.Context) error {
		if s.closed {
			return ErrServerClosed
		}
		if p.IsEnabled() {
			return nil
		}
		if err := p.Enable(ctx); err != nil {
			return err
		}
		for _, spec := range p.Manifest().Commands {
			s.commandMap.Register(p.Name(), command.NewPluginRoute(p, spec))
		}
		slog.InfoContext(ctx, "enabled plugin", "plugin", p.Name(), "commands", len(p.Manifest().Commands))
		return nil
	})
}

// DisablePlugin disables p. Its registry entries and command routes remain.
func (s *Server) DisablePlugin(ctx context.Context, p *plugin.Plugin) error {
	return s.Sync(ctx, func(ctx context.Context) error {
		if !p.IsEnabled() {
			return nil
		}
		err := p.Disable(ctx)
		slog.InfoContext(ctx, "disabled plugin", "plugin", p.Name())
		return err
	})
}

// RegisterCommand registers a core route under "modreload:<name>", its name,
// and its aliases.
func (s *Server) RegisterCommand(ctx context.Context, r *command.Route) bool {
	var registered bool
	_ = s.Sync(ctx, func(context.Context) error { //nolint:errcheck // fn never fails
		registered = s.commandMap.Register("modreload", r)
		return nil
	})
	return registered
}

// Dispatch runs one command line on the serialized context.
func (s *Server) Dispatch(ctx context.Context, sender command.Sender, input string) error {
	return s.Sync(ctx, func(ctx context.Context) error {
		return s.commandMap.Dispatch(ctx, sender, input)
	})
}

// PluginStatus describes one loaded plugin.
type PluginStatus struct {
	ID       string
	Name     string
	Version  string
	Enabled  bool
	Digest   string
	Commands []string // labels currently routed to the plugin
}

// Snapshot reports every loaded plugin in load order.
func (s *Server) Snapshot(ctx context.Context) []PluginStatus {
	var out []PluginStatus
	_ = s.Sync(ctx, func(context.Context) error { //nolint:errcheck // fn never fails
		out = make([]PluginStatus, 0, len(s.plugins))
		for _, p := range s.plugins {
			st := PluginStatus{
				ID:      p.ID().String(),
				Name:    p.Name(),
				Version: p.Version(),
				Enabled: p.IsEnabled(),
				Digest:  p.Digest(),
			}
			for _, label := range s.commandMap.Labels() {
				if r, ok := s.commandMap.Get(label); ok && r.OwnedBy(p) {
					st.Commands = append(st.Commands, label)
				}
			}
			out = append(out, st)
		}
		return nil
	})
	return out
}

// Close disables and releases every plugin, newest first.
func (s *Server) Close(ctx context.Context) error {
	return s.Sync(ctx, func(ctx context.Context) error {
		if s.closed {
			return nil
		}
		s.closed = true

		var errs []error
		for i := len(s.plugins) - 1; i >= 0; i-- {
			p := s.plugins[i]
			if err := p.Disable(ctx); err != nil {
				errs = append(errs, err)
			}
			if err := p.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.plugins = nil
		s.lookupNames = make(map[string]*plugin.Plugin)
		s.commandMap = command.NewMap()
		return errors.Join(errs...)
	})
}

func hasCode(err error, code string) bool {
	return errutil.Code(err) == code
}
