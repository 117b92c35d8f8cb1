// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package plugin

import (
	"github.com/samber/oops"
)

// Error codes reported by the plugin loader. The reload core passes these
// through unchanged.
const (
	CodeInvalidArtifact   = "INVALID_ARTIFACT"
	CodeInvalidManifest   = "INVALID_MANIFEST"
	CodeMissingDependency = "MISSING_DEPENDENCY"
)

// ErrInvalidArtifact creates an error for an artifact that cannot be opened
// or is not a plugin archive.
func ErrInvalidArtifact(path string, cause error) error {
	b := oops.Code(CodeInvalidArtifact).In("plugin").With("path", path)
	if cause != nil {
		return b.Wrapf(cause, "invalid plugin artifact %s", path)
	}
	return b.Errorf("invalid plugin artifact %s", path)
}

// ErrInvalidManifest creates an error for a plugin.yaml that fails to parse
// or validate.
func ErrInvalidManifest(path string, cause error) error {
	return oops.Code(CodeInvalidManifest).
		In("plugin").
		With("path", path).
		Wrapf(cause, "invalid plugin.yaml in %s", path)
}

// ErrMissingDependency creates an error for a dependency that is not loaded
// or whose loaded version does not satisfy the declared constraint.
func ErrMissingDependency(plugin, dependency, constraint string) error {
	b := oops.Code(CodeMissingDependency).
		In("plugin").
		With("plugin", plugin).
		With("dependency", dependency)
	if constraint != "" {
		return b.With("constraint", constraint).
			Errorf("%s requires %s %s", plugin, dependency, constraint)
	}
	return b.Errorf("%s requires %s", plugin, dependency)
}
