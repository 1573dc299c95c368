// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package vm ties the image store, the process supervisor and the remote
// session layer together into a VM lifecycle. A [VM] value is a cheap,
// stateless view on one name; all state lives in the collaborators and
// is derived fresh on every query.
package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/qgrain/syzqemuctl/internal/image"
	"github.com/qgrain/syzqemuctl/internal/qemu"
	"github.com/qgrain/syzqemuctl/internal/remote"
	"github.com/qgrain/syzqemuctl/internal/supervisor"
)

const (
	// Guests are reached through a local port forward.
	sshHost = "127.0.0.1"

	defaultUser         = "root"
	defaultReadyTimeout = 10 * time.Minute
	defaultPoll         = 2 * time.Second
)

// ProcessSupervisor is the process lifecycle surface the orchestrator
// needs. [supervisor.Supervisor] implements it.
type ProcessSupervisor interface {
	Start(ctx context.Context, cfg supervisor.Config) (*supervisor.Handle, error)
	Stop(ctx context.Context, name string) error
	Status(ctx context.Context, name string) (supervisor.Handle, bool)
	Console(ctx context.Context, name string) (string, error)
	FreePort() (int, error)
}

// StartConfig describes how to boot a VM. Zero values select defaults:
// an unset port is auto-allocated from the scan range.
type StartConfig struct {
	Kernel    string
	Memory    uint64
	SMP       uint64
	Port      int
	ExtraArgs []qemu.Argument
}

// VM orchestrates the lifecycle of a single named VM.
type VM struct {
	name  string
	store *image.Store
	sup   ProcessSupervisor

	// User to authenticate remote sessions as.
	User string
	// ReadyTimeout bounds [VM.WaitReady] and the boot phase of
	// [VM.RunScoped]. It also serves as the grace window separating
	// [StateStarting] from [StateUnresponsive]. Zero selects a default.
	ReadyTimeout time.Duration
	// PollInterval spaces readiness probe attempts. Zero selects a
	// default.
	PollInterval time.Duration

	// Remote operations, replaceable for tests.
	Probe    func(ctx context.Context, host string, port int, timeout, poll time.Duration) error
	Exec     func(ctx context.Context, ep remote.Endpoint, command string) (remote.Result, error)
	Upload   func(ctx context.Context, ep remote.Endpoint, localPath, remotePath string) error
	Download func(ctx context.Context, ep remote.Endpoint, remotePath, localPath string) error
}

// New returns a [VM] for the named image.
func New(store *image.Store, sup ProcessSupervisor, name string) *VM {
	return &VM{
		name:     name,
		store:    store,
		sup:      sup,
		User:     defaultUser,
		Probe:    remote.WaitReady,
		Exec:     remote.Execute,
		Upload:   remote.CopyTo,
		Download: remote.CopyFrom,
	}
}

// Name returns the VM name.
func (v *VM) Name() string {
	return v.name
}

func (v *VM) readyTimeout() time.Duration {
	if v.ReadyTimeout == 0 {
		return defaultReadyTimeout
	}

	return v.ReadyTimeout
}

func (v *VM) pollInterval() time.Duration {
	if v.PollInterval == 0 {
		return defaultPoll
	}

	return v.PollInterval
}

// Start boots the VM. It is rejected while a live process exists, so
// only stopped or crashed VMs can be started. The effective config is
// persisted next to the image so later runs and adopting supervisors
// can fall back to it.
func (v *VM) Start(ctx context.Context, cfg StartConfig) error {
	if v.name == image.TemplateName {
		return fmt.Errorf("vm %s: %w", v.name, ErrIsTemplate)
	}

	if !v.store.Exists(v.name) {
		return fmt.Errorf("vm %s: %w", v.name, image.ErrNotFound)
	}

	if cfg.Port == 0 {
		port, err := v.sup.FreePort()
		if err != nil {
			return fmt.Errorf("vm %s: %w", v.name, err)
		}

		cfg.Port = port
	}

	_, err := v.sup.Start(ctx, supervisor.Config{
		Name:      v.name,
		Kernel:    cfg.Kernel,
		Memory:    cfg.Memory,
		SMP:       cfg.SMP,
		Port:      cfg.Port,
		ExtraArgs: cfg.ExtraArgs,
	})
	if err != nil {
		return err
	}

	// Persisted only after a successful launch: a rejected or failed
	// start must not clobber the effective config of the VM that is
	// actually running, which adopting supervisors read the SSH port
	// from.
	err = v.store.SaveRunConfig(v.name, image.RunConfig{
		Kernel: cfg.Kernel,
		Port:   cfg.Port,
		Memory: cfg.Memory,
		SMP:    cfg.SMP,
	})
	if err != nil {
		slog.Warn("failed to persist run config",
			slog.String("name", v.name),
			slog.Any("error", err))
	}

	return nil
}

// Stop terminates the VM. Stopping an already stopped or crashed VM
// clears the remaining handle and succeeds.
func (v *VM) Stop(ctx context.Context) error {
	return v.sup.Stop(ctx, v.name)
}

// WaitReady blocks until the VM answers SSH or the timeout budget is
// exhausted. The VM must have a live process.
func (v *VM) WaitReady(ctx context.Context, timeout, poll time.Duration) error {
	handle, ok := v.sup.Status(ctx, v.name)
	if !ok || handle.State != supervisor.StateRunning {
		return fmt.Errorf("vm %s: %w", v.name, supervisor.ErrNotRunning)
	}

	return v.Probe(ctx, sshHost, handle.Port, timeout, poll)
}

// State derives the current lifecycle state. A live process whose SSH
// endpoint does not answer counts as starting within the boot grace
// window and as unresponsive after it.
func (v *VM) State(ctx context.Context) State {
	handle, ok := v.sup.Status(ctx, v.name)
	if !ok || handle.State == supervisor.StateStopped {
		return StateStopped
	}

	if handle.State == supervisor.StateCrashed {
		return StateCrashed
	}

	// Single probe attempt, zero timeout.
	if err := v.Probe(ctx, sshHost, handle.Port, 0, v.pollInterval()); err == nil {
		return StateReady
	}

	if time.Since(handle.StartedAt) < v.readyTimeout() {
		return StateStarting
	}

	return StateUnresponsive
}

// ConsoleName returns the console session name for interactive
// reattachment.
func (v *VM) ConsoleName(ctx context.Context) (string, error) {
	return v.sup.Console(ctx, v.name)
}

// readyEndpoint returns the SSH endpoint of the VM, verifying it
// currently answers. Remote operations never start a VM implicitly.
func (v *VM) readyEndpoint(ctx context.Context) (remote.Endpoint, error) {
	handle, ok := v.sup.Status(ctx, v.name)
	if !ok || handle.State != supervisor.StateRunning {
		return remote.Endpoint{}, fmt.Errorf("vm %s: %w", v.name, ErrNotReady)
	}

	err := v.Probe(ctx, sshHost, handle.Port, 0, v.pollInterval())
	if err != nil {
		return remote.Endpoint{}, fmt.Errorf("vm %s: %w", v.name, ErrNotReady)
	}

	return remote.Endpoint{
		Host:    sshHost,
		Port:    handle.Port,
		User:    v.User,
		KeyPath: v.store.KeyPath(v.name),
	}, nil
}

// Run executes a command in the VM and captures its output.
func (v *VM) Run(ctx context.Context, command string) (remote.Result, error) {
	ep, err := v.readyEndpoint(ctx)
	if err != nil {
		return remote.Result{}, err
	}

	return v.Exec(ctx, ep, command)
}

// CopyTo transfers a local file or directory into the VM.
func (v *VM) CopyTo(ctx context.Context, localPath, remotePath string) error {
	ep, err := v.readyEndpoint(ctx)
	if err != nil {
		return err
	}

	return v.Upload(ctx, ep, localPath, remotePath)
}

// CopyFrom transfers a file or directory out of the VM.
func (v *VM) CopyFrom(ctx context.Context, remotePath, localPath string) error {
	ep, err := v.readyEndpoint(ctx)
	if err != nil {
		return err
	}

	return v.Download(ctx, ep, remotePath, localPath)
}

// RunScoped boots the VM, waits until it answers SSH, runs fn and stops
// the VM again. The stop runs on every exit path, including fn errors
// and panics, with a context that survives cancellation of ctx.
func (v *VM) RunScoped(
	ctx context.Context,
	cfg StartConfig,
	fn func(ctx context.Context) error,
) (err error) {
	if err := v.Start(ctx, cfg); err != nil {
		return err
	}

	defer func() {
		stopErr := v.Stop(context.WithoutCancel(ctx))
		if stopErr != nil && !errors.Is(stopErr, supervisor.ErrNotRunning) {
			slog.Warn("scoped run stop failed",
				slog.String("name", v.name),
				slog.Any("error", stopErr))

			err = errors.Join(err, stopErr)
		}
	}()

	if err := v.WaitReady(ctx, v.readyTimeout(), v.pollInterval()); err != nil {
		return err
	}

	return fn(ctx)
}
