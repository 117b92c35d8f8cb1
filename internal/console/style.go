// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/holomush/modreload/internal/host"
	"github.com/holomush/modreload/internal/reload"
)

var (
	okStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	degradedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	nameStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// FormatResult renders one lifecycle result as a single line.
func FormatResult(r reload.Result) string {
	name := nameStyle.Render(r.Name)
	switch {
	case r.Outcome.Status == reload.StatusDegraded:
		return fmt.Sprintf("%s %s %s: disabled only, %s",
			degradedStyle.Render("!"), r.Action, name, r.Message)
	case r.Err != nil:
		code := reload.Code(r.Err)
		return fmt.Sprintf("%s %s %s failed (%s): %s",
			errorStyle.Render("x"), r.Action, name, code, r.Message)
	case r.Outcome.Status == reload.StatusSkipped:
		return fmt.Sprintf("%s %s %s: already loaded",
			degradedStyle.Render("-"), r.Action, name)
	default:
		return fmt.Sprintf("%s %s %s: %s",
			okStyle.Render("+"), r.Action, name, r.Outcome.Status)
	}
}

// FormatError renders a message for an error the command surface returns.
func FormatError(msg string) string {
	return errorStyle.Render(msg)
}

// FormatPlugins renders the loaded plugin list.
func FormatPlugins(plugins []host.PluginStatus) string {
	if len(plugins) == 0 {
		return dimStyle.Render("No plugins loaded.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Plugins (%d):", len(plugins))
	for _, p := range plugins {
		state := okStyle.Render("enabled")
		if !p.Enabled {
			state = errorStyle.Render("disabled")
		}
		fmt.Fprintf(&b, "\n  %s %s %s", nameStyle.Render(p.Name), p.Version, state)
		if len(p.Commands) > 0 {
			fmt.Fprintf(&b, " %s", dimStyle.Render(strings.Join(p.Commands, ", ")))
		}
	}
	return b.String()
}
