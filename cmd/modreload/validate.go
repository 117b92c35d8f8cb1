// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/modreload/internal/plugin"
	"github.com/holomush/modreload/internal/reload"
)

// NewValidateCmd creates the validate subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <archive.zip>...",
		Short: "Check plugin archives without loading them",
		Long: `Open each plugin archive, validate its plugin.yaml against the manifest
schema and report the result. Nothing is instantiated.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runValidate,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		archive, err := plugin.OpenArchive(path)
		if err != nil {
			failed++
			cmd.Printf("FAIL %s: %s\n", path, describeInvalid(err))
			continue
		}
		m := archive.Manifest()
		cmd.Printf("ok   %s: %s %s (%s) %s\n", path, m.Name, m.Version, m.Type, shortDigest(archive.Digest()))
		if err := archive.Close(); err != nil {
			return oops.With("path", path).Wrap(err)
		}
	}
	if failed > 0 {
		return oops.Code(plugin.CodeInvalidArtifact).
			With("failed", failed).
			Errorf("%d of %d archives invalid", failed, len(args))
	}
	return nil
}

func describeInvalid(err error) string {
	msg := reload.Diagnostic(err)
	if code := reload.Code(err); code != "" {
		return fmt.Sprintf("%s (%s)", msg, code)
	}
	return msg
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
