// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package cmd implements the syzqemuctl command line interface.
package cmd

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/qgrain/syzqemuctl/internal/config"
	"github.com/qgrain/syzqemuctl/internal/image"
	"github.com/qgrain/syzqemuctl/internal/remote"
	"github.com/qgrain/syzqemuctl/internal/supervisor"
	"github.com/qgrain/syzqemuctl/internal/vm"
)

// IO provides input and output details for the command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// app carries the wired components behind the subcommands. Everything
// except init requires a loaded configuration, so the wiring happens
// lazily in [app.load].
type app struct {
	io IO

	cfg      config.Config
	store    *image.Store
	sup      *supervisor.Supervisor
	registry *vm.Registry
}

// load reads the configuration and wires store, supervisor and
// registry.
func (a *app) load() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.store = image.NewStore(cfg.ImagesHome)
	a.sup = supervisor.New(a.store)
	a.registry = vm.NewRegistry(a.store, a.sup)

	return nil
}

// vm returns the orchestrator for the named VM.
func (a *app) vm(name string) *vm.VM {
	machine := vm.New(a.store, a.sup, name)
	machine.User = a.cfg.SSHUser

	return machine
}

func newRootCommand(app *app) *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "syzqemuctl",
		Short: "Manage QEMU VMs for kernel fuzzing and testing",
		Long: `syzqemuctl manages a pool of QEMU VMs built from a shared
image template. VMs run detached inside screen sessions and are reached
over SSH port forwards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), debug)
		},
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug logging")

	root.SetIn(app.io.Stdin)
	root.SetOut(app.io.Stdout)
	root.SetErr(app.io.Stderr)

	root.AddCommand(
		newInitCommand(app),
		newCreateCommand(app),
		newDeleteCommand(app),
		newListCommand(app),
		newStatusCommand(app),
		newRunCommand(app),
		newStopCommand(app),
		newWaitCommand(app),
		newCpCommand(app),
		newExecCommand(app),
		newConsoleCommand(app),
	)

	return root
}

// Run is the main entry point for the CLI command.
func Run(ctx context.Context, args []string, cfg IO) int {
	app := &app{io: cfg}

	root := newRootCommand(app)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	// A failing remote command is a successful transport; propagate the
	// guest's exit code silently instead of our own.
	var exitErr *remote.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode != 0 {
		return exitErr.ExitCode
	}

	slog.Error(err.Error())

	return 1
}
