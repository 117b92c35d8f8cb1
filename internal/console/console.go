// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package console provides the operator command surface: the plugin and
// plugins commands and a line-oriented REPL.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/modreload/internal/command"
	"github.com/holomush/modreload/internal/host"
	"github.com/holomush/modreload/internal/permission"
	"github.com/holomush/modreload/internal/reload"
)

// PermissionPrefix prefixes the per-action permissions, e.g. "modreload.reload".
const PermissionPrefix = "modreload"

// Sender is a command sender whose permissions come from glob grants.
type Sender struct {
	name   string
	grants *permission.Grants
	out    io.Writer
}

// NewSender creates a sender writing to out.
func NewSender(name string, grants *permission.Grants, out io.Writer) *Sender {
	return &Sender{name: name, grants: grants, out: out}
}

// Name implements command.Sender.
func (s *Sender) Name() string { return s.name }

// HasPermission implements command.Sender.
func (s *Sender) HasPermission(perm string) bool { return s.grants.Has(s.name, perm) }

// Output implements command.Sender.
func (s *Sender) Output() io.Writer { return s.out }

// Register adds the plugin and plugins commands to srv.
func Register(ctx context.Context, srv *host.Server, facade *reload.Facade) {
	plugin := command.NewRoute("plugin", pluginHandler(facade))
	plugin.Aliases = []string{"pl"}
	plugin.Usage = "/plugin <load|unload|reload> <name> [name...]"
	plugin.Description = "Load, unload or reload plugins"
	srv.RegisterCommand(ctx, plugin)

	list := command.NewRoute("plugins", pluginsHandler(srv))
	list.Usage = "/plugins"
	list.Description = "List loaded plugins"
	list.Permission = PermissionPrefix + ".list"
	srv.RegisterCommand(ctx, list)
}

func pluginHandler(facade *reload.Facade) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) (bool, error) {
		if len(inv.Args) == 0 {
			return false, nil
		}
		action, err := reload.ParseAction(inv.Args[0])
		if err != nil {
			return false, err
		}
		if perm := PermissionPrefix + "." + string(action); !inv.Sender.HasPermission(perm) {
			return false, command.ErrPermissionDenied(inv.Label, perm)
		}

		results, err := facade.Execute(ctx, string(action), inv.Args[1:])
		if err != nil {
			return false, err
		}
		out := inv.Sender.Output()
		for _, r := range results {
			_, _ = fmt.Fprintln(out, FormatResult(r)) //nolint:errcheck // best-effort output
		}
		return true, nil
	}
}

func pluginsHandler(srv *host.Server) command.Handler {
	return func(ctx context.Context, inv *command.Invocation) (bool, error) {
		_, _ = fmt.Fprintln(inv.Sender.Output(), FormatPlugins(srv.Snapshot(ctx))) //nolint:errcheck // best-effort output
		return true, nil
	}
}

// Message returns the text shown to a sender for a dispatch error.
func Message(err error) string {
	switch reload.Code(err) {
	case reload.CodeNoTargetsSpecified:
		return "Name at least one plugin."
	case reload.CodeUnknownAction:
		return "Unknown action. Use load, unload or reload."
	}
	return command.SenderMessage(err)
}

// Run reads command lines from in and dispatches each one until in is
// exhausted, a line reads "quit" or "exit", or ctx is done.
func Run(ctx context.Context, srv *host.Server, sender command.Sender, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	out := sender.Output()
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "quit", "exit":
			return nil
		}

		if err := srv.Dispatch(ctx, sender, line); err != nil {
			slog.DebugContext(ctx, "console command failed", "line", line, "error", err)
			_, _ = fmt.Fprintln(out, FormatError(Message(err))) //nolint:errcheck // best-effort output
		}
	}
	if err := scanner.Err(); err != nil {
		return oops.In("console").With("operation", "read input").Wrap(err)
	}
	return nil
}
