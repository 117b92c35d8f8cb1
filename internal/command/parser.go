// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"strings"

	"github.com/samber/oops"
)

// ParsedCommand represents a parsed command line.
type ParsedCommand struct {
	Label string   // first token, lower-cased, leading '/' removed
	Args  []string // remaining whitespace-separated tokens
	Raw   string   // original input
}

// Parse splits raw input into a label and arguments.
func Parse(input string) (*ParsedCommand, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil, oops.Code(CodeEmptyInput).Errorf("no command provided")
	}

	label := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	if label == "" {
		return nil, oops.Code(CodeEmptyInput).Errorf("no command provided")
	}

	return &ParsedCommand{
		Label: label,
		Args:  fields[1:],
		Raw:   input,
	}, nil
}
