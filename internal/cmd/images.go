// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/qgrain/syzqemuctl/internal/vm"
)

func newCreateCommand(app *app) *cobra.Command {
	var (
		script     string
		scriptArgs []string
	)

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a new VM image",
		Long: `Create builds a new VM image. By default the image is a
clone of the template, which shares its SSH key. With --script the image
is built from scratch by the given script instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return err
			}

			name := args[0]

			if script != "" {
				err := app.store.Create(
					cmd.Context(), name, script, scriptArgs,
				)
				if err != nil {
					return err
				}
			} else if err := app.store.Clone(name); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created VM %s\n", name)

			return nil
		},
	}

	cmd.Flags().StringVar(&script, "script", "",
		"build the image with this script instead of cloning the template")
	cmd.Flags().StringArrayVar(&scriptArgs, "script-arg", nil,
		"extra argument passed to the image creation script (repeatable)")

	return cmd
}

func newDeleteCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a VM image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return err
			}

			name := args[0]

			if err := app.store.Delete(name, app.sup.InUse); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted VM %s\n", name)

			return nil
		},
	}
}

func newListCommand(app *app) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all VMs and their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.load(); err != nil {
				return err
			}

			statuses, err := app.registry.List(cmd.Context(), probe)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(
				cmd.OutOrStdout(), 0, 0, 2, ' ', 0,
			)
			fmt.Fprintln(writer, "NAME\tSTATE\tPID\tPORT\tCREATED")

			for _, status := range statuses {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					status.Name,
					formatState(status),
					formatInt(status.PID),
					formatInt(status.Port),
					status.CreatedAt.Format(time.DateTime),
				)
			}

			return writer.Flush()
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false,
		"probe SSH to distinguish ready from booting VMs")

	return cmd
}

func newStatusCommand(app *app) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "status NAME",
		Short: "Show the state of a single VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return err
			}

			status, err := app.registry.Status(
				cmd.Context(), args[0], probe,
			)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Name:    %s\n", status.Name)
			fmt.Fprintf(out, "Path:    %s\n", status.Path)
			fmt.Fprintf(out, "Created: %s\n",
				status.CreatedAt.Format(time.DateTime))
			fmt.Fprintf(out, "State:   %s\n", formatState(status))

			if status.PID != 0 {
				fmt.Fprintf(out, "PID:     %d\n", status.PID)
				fmt.Fprintf(out, "Port:    %d\n", status.Port)
				fmt.Fprintf(out, "Started: %s\n",
					status.StartedAt.Format(time.DateTime))
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false,
		"probe SSH to distinguish ready from booting VMs")

	return cmd
}

// formatState renders the state column. The template is never a
// process, so it shows its build readiness instead.
func formatState(status vm.Status) string {
	if status.IsTemplate {
		if status.TemplateReady {
			return "template"
		}

		return "template (building)"
	}

	return status.State.String()
}

func formatInt(value int) string {
	if value == 0 {
		return "-"
	}

	return fmt.Sprintf("%d", value)
}
