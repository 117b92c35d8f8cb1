// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Type identifies the plugin runtime.
type Type string

// Plugin types supported by the system.
const (
	TypeLua    Type = "lua"
	TypeBinary Type = "binary"
)

// ManifestFile is the name of the manifest inside a plugin archive.
const ManifestFile = "plugin.yaml"

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name         string        `yaml:"name" json:"name"`
	Version      string        `yaml:"version" json:"version"`
	Type         Type          `yaml:"type" json:"type" jsonschema:"enum=lua,enum=binary"`
	Description  string        `yaml:"description,omitempty" json:"description,omitempty"`
	Authors      []string      `yaml:"authors,omitempty" json:"authors,omitempty"`
	Depend       []Dependency  `yaml:"depend,omitempty" json:"depend,omitempty"`
	Commands     []CommandSpec `yaml:"commands,omitempty" json:"commands,omitempty"`
	LuaPlugin    *LuaConfig    `yaml:"lua-plugin,omitempty" json:"lua-plugin,omitempty"`
	BinaryPlugin *BinaryConfig `yaml:"binary-plugin,omitempty" json:"binary-plugin,omitempty"`
}

// Dependency names another plugin that must be loaded first.
// Version is an optional semver constraint such as ">= 1.2, < 2".
type Dependency struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version,omitempty" json:"version,omitempty"`
}

// CommandSpec declares a command the plugin handles once enabled.
type CommandSpec struct {
	Name        string   `yaml:"name" json:"name"`
	Aliases     []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Usage       string   `yaml:"usage,omitempty" json:"usage,omitempty"`
	Permission  string   `yaml:"permission,omitempty" json:"permission,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
}

// LuaConfig holds Lua-specific configuration.
type LuaConfig struct {
	Entry string `yaml:"entry" json:"entry"`
}

// BinaryConfig holds binary plugin configuration.
type BinaryConfig struct {
	Executable string `yaml:"executable" json:"executable"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names. Names are matched case-insensitively
// by the host, so mixed case is allowed here.
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// commandPattern validates command labels and aliases.
var commandPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must start with a letter and contain only letters, digits, '_' and '-'", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.NewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not a semantic version: %w", m.Version, err)
	}

	switch m.Type {
	case TypeLua:
		if m.LuaPlugin == nil {
			return fmt.Errorf("lua-plugin is required when type is lua")
		}
		if m.LuaPlugin.Entry == "" {
			return fmt.Errorf("lua-plugin.entry is required")
		}
	case TypeBinary:
		if m.BinaryPlugin == nil {
			return fmt.Errorf("binary-plugin is required when type is binary")
		}
		if m.BinaryPlugin.Executable == "" {
			return fmt.Errorf("binary-plugin.executable is required")
		}
	default:
		return fmt.Errorf("type must be 'lua' or 'binary', got %q", m.Type)
	}

	for i, dep := range m.Depend {
		if dep.Name == "" {
			return fmt.Errorf("depend[%d]: name is required", i)
		}
		if strings.EqualFold(dep.Name, m.Name) {
			return fmt.Errorf("depend[%d]: plugin cannot depend on itself", i)
		}
		if dep.Version != "" {
			if _, err := semver.NewConstraint(dep.Version); err != nil {
				return fmt.Errorf("depend[%d] (%s): invalid version constraint %q: %w", i, dep.Name, dep.Version, err)
			}
		}
	}

	seen := make(map[string]bool)
	for i, cmd := range m.Commands {
		labels := append([]string{cmd.Name}, cmd.Aliases...)
		for _, label := range labels {
			if !commandPattern.MatchString(label) {
				return fmt.Errorf("commands[%d]: label %q must be lowercase and start with a letter", i, label)
			}
			if seen[label] {
				return fmt.Errorf("commands[%d]: label %q declared twice", i, label)
			}
			seen[label] = true
		}
	}

	return nil
}

// SemVer returns the parsed manifest version. Validate guarantees it parses.
func (m *Manifest) SemVer() *semver.Version {
	v, err := semver.NewVersion(m.Version)
	if err != nil {
		return nil
	}
	return v
}
