// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package reload

import (
	"github.com/samber/oops"

	"github.com/holomush/modreload/internal/plugin"
	"github.com/holomush/modreload/pkg/errutil"
)

// Error codes reported by the lifecycle core. Load rejections keep the
// plugin package's codes.
const (
	CodeAccessDenied       = "ACCESS_DENIED"
	CodeModuleNotFound     = "MODULE_NOT_FOUND"
	CodeNoTargetsSpecified = "NO_TARGETS_SPECIFIED"
	CodeUnknownAction      = "UNKNOWN_ACTION"
	CodeUnexpectedFailure  = "UNEXPECTED_FAILURE"
)

// ErrAccessDenied creates an error for host state the accessor cannot reach.
func ErrAccessDenied(target, reason string) error {
	return oops.Code(CodeAccessDenied).
		In("reload").
		With("target", target).
		Errorf("cannot access %s: %s", target, reason)
}

// ErrModuleNotFound creates an error for a name no loaded plugin matches.
func ErrModuleNotFound(name string) error {
	return oops.Code(CodeModuleNotFound).
		In("reload").
		With("plugin", name).
		Errorf("plugin %s is not loaded", name)
}

// ErrNoTargetsSpecified creates an error for a call without plugin names.
func ErrNoTargetsSpecified(action string) error {
	return oops.Code(CodeNoTargetsSpecified).
		In("reload").
		With("action", action).
		Errorf("no plugins specified")
}

// ErrUnknownAction creates an error for an unrecognised action keyword.
func ErrUnknownAction(action string) error {
	return oops.Code(CodeUnknownAction).
		In("reload").
		With("action", action).
		Errorf("unknown action %q", action)
}

// ErrUnexpectedFailure wraps a fault the core has no classification for.
func ErrUnexpectedFailure(name string, cause error) error {
	return oops.Code(CodeUnexpectedFailure).
		In("reload").
		With("plugin", name).
		Wrapf(cause, "unexpected failure")
}

// Code returns the error code carried by err, or "" when there is none.
func Code(err error) string {
	return errutil.Code(err)
}

// classify keeps errors that already carry a known code and wraps the rest
// as unexpected failures.
func classify(name string, err error) error {
	if err == nil {
		return nil
	}
	switch Code(err) {
	case CodeAccessDenied, CodeModuleNotFound, CodeNoTargetsSpecified, CodeUnknownAction, CodeUnexpectedFailure,
		plugin.CodeInvalidArtifact, plugin.CodeInvalidManifest, plugin.CodeMissingDependency:
		return err
	default:
		return ErrUnexpectedFailure(name, err)
	}
}
