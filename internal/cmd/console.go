// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qgrain/syzqemuctl/internal/console"
)

func newConsoleCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "console NAME",
		Short: "Show how to attach to a VM's serial console",
		Long: `Console prints the command attaching the terminal to the
VM's screen session. The session keeps logging to vm.log while
detached; detach again with C-a d.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return err
			}

			name := args[0]

			session, err := app.vm(name).ConsoleName(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"Attach with:\n\n    %s\n\nDetach with C-a d. "+
					"Console log: %s\n",
				console.AttachCommand(session),
				app.store.LogPath(name))

			return nil
		},
	}
}
