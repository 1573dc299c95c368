// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qgrain/syzqemuctl/internal/vm"
)

const (
	defaultWaitTimeout = 10 * time.Minute
	defaultWaitPoll    = 2 * time.Second
)

func newRunCommand(app *app) *cobra.Command {
	var (
		kernel string
		port   int
		memory uint64
		smp    uint64
		wait   bool
	)

	cmd := &cobra.Command{
		Use:   "run NAME",
		Short: "Boot a VM",
		Long: `Run boots the named VM detached inside a screen session.
Flags that are not set fall back to the VM's last run configuration and
then to the global defaults; an unset port is allocated automatically.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return err
			}

			name := args[0]

			cfg := vm.StartConfig{
				Kernel: kernel,
				Port:   port,
				Memory: memory,
				SMP:    smp,
			}

			// Reuse the previous run's settings for anything not given
			// on the command line.
			last, ok, err := app.store.LastRunConfig(name)
			if err != nil {
				return err
			}

			if ok {
				if !cmd.Flags().Changed("kernel") {
					cfg.Kernel = last.Kernel
				}

				if !cmd.Flags().Changed("port") {
					cfg.Port = last.Port
				}

				if !cmd.Flags().Changed("memory") {
					cfg.Memory = last.Memory
				}

				if !cmd.Flags().Changed("smp") {
					cfg.SMP = last.SMP
				}
			}

			if cfg.Memory == 0 {
				cfg.Memory = app.cfg.MemoryMiB
			}

			if cfg.SMP == 0 {
				cfg.SMP = app.cfg.SMP
			}

			machine := app.vm(name)

			if err := machine.Start(cmd.Context(), cfg); err != nil {
				return err
			}

			status, _ := app.sup.Status(cmd.Context(), name)

			fmt.Fprintf(cmd.OutOrStdout(),
				"Started VM %s (pid %d, ssh port %d)\n",
				name, status.PID, status.Port)

			if !wait {
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Waiting for SSH...")

			err = machine.WaitReady(
				cmd.Context(), defaultWaitTimeout, defaultWaitPoll,
			)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "VM %s is ready\n", name)

			return nil
		},
	}

	cmd.Flags().StringVar(&kernel, "kernel", "",
		"kernel image to boot instead of the disk's boot loader")
	cmd.Flags().IntVar(&port, "port", 0,
		"host TCP port forwarded to the guest's SSH port")
	cmd.Flags().Uint64Var(&memory, "memory", 0, "guest memory in MiB")
	cmd.Flags().Uint64Var(&smp, "smp", 0, "number of guest CPUs")
	cmd.Flags().BoolVar(&wait, "wait", false,
		"block until the VM answers SSH")

	return cmd
}

func newStopCommand(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop NAME",
		Short: "Stop a running VM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return err
			}

			name := args[0]

			if err := app.vm(name).Stop(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Stopped VM %s\n", name)

			return nil
		},
	}
}

func newWaitCommand(app *app) *cobra.Command {
	var (
		timeout time.Duration
		poll    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait NAME",
		Short: "Wait until a VM answers SSH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(); err != nil {
				return err
			}

			name := args[0]

			err := app.vm(name).WaitReady(cmd.Context(), timeout, poll)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "VM %s is ready\n", name)

			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", defaultWaitTimeout,
		"readiness budget")
	cmd.Flags().DurationVar(&poll, "poll", defaultWaitPoll,
		"spacing between probe attempts")

	return cmd
}
