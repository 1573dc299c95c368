// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// transferSide is one side of a copy, either a local path or a path
// inside a named VM.
type transferSide struct {
	vm   string
	path string
}

func (s transferSide) remote() bool {
	return s.vm != ""
}

// parseTransferSide splits the NAME:path notation. A side without a
// colon is a local path. Absolute local paths keep their colons.
func parseTransferSide(arg string) transferSide {
	name, path, found := strings.Cut(arg, ":")
	if !found || name == "" || strings.ContainsAny(name, "/\\") {
		return transferSide{path: arg}
	}

	return transferSide{vm: name, path: path}
}

func newCpCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cp SRC DST",
		Short: "Copy files or directories between host and VM",
		Long: `Cp transfers files over SFTP. Exactly one side must be a
VM path in NAME:path notation; the other side is a host path.
Directories are copied recursively, existing files are overwritten.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := parseTransferSide(args[0])
			dst := parseTransferSide(args[1])

			switch {
			case src.remote() && dst.remote():
				return ErrTwoRemoteSides
			case !src.remote() && !dst.remote():
				return ErrNoRemoteSide
			}

			if err := app.load(); err != nil {
				return err
			}

			if dst.remote() {
				err := app.vm(dst.vm).CopyTo(
					cmd.Context(), src.path, dst.path,
				)
				if err != nil {
					return err
				}
			} else {
				err := app.vm(src.vm).CopyFrom(
					cmd.Context(), src.path, dst.path,
				)
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"Copied %s to %s\n", args[0], args[1])

			return nil
		},
	}
}

func newExecCommand(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec NAME CMD...",
		Short: "Run a command in a VM over SSH",
		Long: `Exec runs a command in the named VM and prints its output.
The remote exit code becomes the exit code of syzqemuctl.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return err
			}

			name := args[0]
			command := strings.Join(args[1:], " ")

			result, err := app.vm(name).Run(cmd.Context(), command)

			// Output is printed even for failing commands; crash logs
			// come in over stderr.
			_, _ = io.WriteString(cmd.OutOrStdout(), result.Stdout)
			_, _ = io.WriteString(cmd.ErrOrStderr(), result.Stderr)

			return err
		},
	}

	cmd.Flags().SetInterspersed(false)

	return cmd
}
