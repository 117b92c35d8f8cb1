// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"github.com/samber/oops"
)

// Error codes for command dispatch failures.
const (
	CodeEmptyInput       = "EMPTY_INPUT"
	CodeUnknownCommand   = "UNKNOWN_COMMAND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidArgs      = "INVALID_ARGS"
	CodeOwnerGone        = "OWNER_GONE"
)

// ErrUnknownCommand creates an error for an unknown command.
func ErrUnknownCommand(label string) error {
	return oops.Code(CodeUnknownCommand).
		With("command", label).
		Errorf("unknown command: %s", label)
}

// ErrPermissionDenied creates an error for permission denial.
func ErrPermissionDenied(label, perm string) error {
	return oops.Code(CodePermissionDenied).
		With("command", label).
		With("permission", perm).
		Errorf("permission denied for command %s", label)
}

// ErrInvalidArgs creates an error for arguments the handler rejected.
func ErrInvalidArgs(label, usage string) error {
	return oops.Code(CodeInvalidArgs).
		With("command", label).
		With("usage", usage).
		Errorf("invalid arguments")
}

// ErrOwnerGone creates an error for a route whose plugin no longer exists.
func ErrOwnerGone(name string) error {
	return oops.Code(CodeOwnerGone).
		With("command", name).
		Errorf("plugin behind command %s is gone", name)
}

// SenderMessage extracts a sender-facing message from a dispatch error.
func SenderMessage(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return "Something went wrong. Check the server log."
	}

	switch oopsErr.Code() {
	case CodeEmptyInput:
		return "No command given."
	case CodeUnknownCommand:
		return "Unknown command."
	case CodePermissionDenied:
		return "You do not have the permission to do this."
	case CodeInvalidArgs:
		if usage, ok := oopsErr.Context()["usage"].(string); ok && usage != "" {
			return "Usage: " + usage
		}
		return "Invalid arguments."
	case CodeOwnerGone:
		return "That command is no longer available."
	default:
		return "Something went wrong. Check the server log."
	}
}
