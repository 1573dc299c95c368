// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package supervisor launches, tracks and terminates QEMU processes and
// the console sessions wrapping them.
//
// The supervisor owns the only shared mutable structure of the system,
// the VM-name to process-handle map. All mutations hold a per-name lock,
// so concurrent operations on the same VM are serialized while distinct
// VMs proceed in parallel. Handle state is reconciled lazily against the
// OS on every query; there is no background polling.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/qgrain/syzqemuctl/internal/console"
	"github.com/qgrain/syzqemuctl/internal/image"
	"github.com/qgrain/syzqemuctl/internal/qemu"
)

const (
	defaultPidFileTimeout = 5 * time.Second
	defaultStopGrace      = 5 * time.Second
	pollInterval          = 100 * time.Millisecond
)

// Config describes a single VM launch.
type Config struct {
	// Name of the VM. Also the image directory name.
	Name string
	// Kernel is an optional kernel image path to boot instead of the
	// disk's boot loader.
	Kernel string
	// Memory for the guest in MiB. Zero selects the default.
	Memory uint64
	// SMP is the number of guest CPUs. Zero selects the default.
	SMP uint64
	// Port is the host TCP port forwarded to the guest's SSH port.
	Port int
	// ExtraArgs are additional QEMU arguments.
	ExtraArgs []qemu.Argument
}

// Supervisor owns the map from VM name to live process handles.
type Supervisor struct {
	store    *image.Store
	consoles *console.Manager

	// QemuBin overrides the qemu-system binary. Empty selects the
	// default for the host.
	QemuBin string
	// PidFileTimeout bounds the wait for QEMU's pid file after launch.
	PidFileTimeout time.Duration
	// StopGrace bounds the wait after SIGTERM before SIGKILL.
	StopGrace time.Duration

	// Listeners enumerates host TCP ports with a listening socket.
	// Replaceable for tests.
	Listeners func() (map[int]struct{}, error)

	mu      sync.Mutex
	handles map[string]*Handle
	locks   map[string]*sync.Mutex
}

// New returns a [Supervisor] operating on images of the given store.
func New(store *image.Store) *Supervisor {
	return &Supervisor{
		store:          store,
		consoles:       console.NewManager(),
		PidFileTimeout: defaultPidFileTimeout,
		StopGrace:      defaultStopGrace,
		Listeners:      listeningTCPPorts,
		handles:        make(map[string]*Handle),
		locks:          make(map[string]*sync.Mutex),
	}
}

// nameLock returns the mutex serializing operations on a single VM name.
func (s *Supervisor) nameLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, exists := s.locks[name]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}

	return lock
}

func (s *Supervisor) getHandle(name string) *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.handles[name]
}

func (s *Supervisor) setHandle(name string, handle *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handles[name] = handle
}

// Start launches the QEMU process for the given config inside a new
// console session and records a process handle for it.
//
// On any launch failure the session is torn down again before the error
// is returned, so no partial state is retained.
func (s *Supervisor) Start(ctx context.Context, cfg Config) (*Handle, error) {
	lock := s.nameLock(cfg.Name)
	lock.Lock()
	defer lock.Unlock()

	if handle := s.reconcileLocked(ctx, cfg.Name); handle != nil &&
		handle.State == StateRunning {
		return nil, fmt.Errorf("vm %s: %w", cfg.Name, ErrAlreadyRunning)
	}

	if err := s.checkPortFree(cfg.Port); err != nil {
		return nil, &LaunchError{Name: cfg.Name, Err: err}
	}

	spec := qemu.CommandSpec{
		Executable: s.QemuBin,
		Disk:       s.store.DiskPath(cfg.Name),
		Kernel:     cfg.Kernel,
		Memory:     cfg.Memory,
		SMP:        cfg.SMP,
		Port:       cfg.Port,
		PidFile:    s.store.PidFilePath(cfg.Name),
		ExtraArgs:  cfg.ExtraArgs,
	}
	spec.AddDefaults()

	if err := spec.Validate(); err != nil {
		return nil, &LaunchError{Name: cfg.Name, Err: err}
	}

	args, err := spec.Args()
	if err != nil {
		return nil, &LaunchError{Name: cfg.Name, Err: err}
	}

	// A stale pid file would make the launch wait below report the
	// previous run's pid.
	_ = os.Remove(spec.PidFile)

	session := console.SessionName(cfg.Name)

	// Clear a leftover session from an earlier crashed run so the
	// session/handle lifetimes stay 1:1.
	_ = s.consoles.Kill(ctx, session)

	argv := append([]string{spec.Executable}, args...)

	err = s.consoles.Start(ctx, session, s.store.LogPath(cfg.Name), argv)
	if err != nil {
		return nil, &LaunchError{Name: cfg.Name, Err: err}
	}

	pid, err := s.awaitPidFile(ctx, spec.PidFile)
	if err != nil {
		_ = s.consoles.Kill(ctx, session)
		_ = os.Remove(spec.PidFile)

		return nil, &LaunchError{
			Name:   cfg.Name,
			Output: s.logTail(cfg.Name),
			Err:    err,
		}
	}

	handle := &Handle{
		Name:      cfg.Name,
		PID:       pid,
		Port:      cfg.Port,
		Session:   session,
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
		State:     StateRunning,
	}
	s.setHandle(cfg.Name, handle)

	slog.Debug("started vm",
		slog.String("name", cfg.Name),
		slog.Int("pid", pid),
		slog.Int("port", cfg.Port),
		slog.String("run_id", handle.RunID))

	return handle.clone(), nil
}

// Stop terminates the QEMU process for the named VM and destroys its
// console session.
//
// Termination is graceful first: SIGTERM, a bounded grace period, then
// SIGKILL. The handle is always cleared, even if force was required.
// Stopping a VM whose process is already gone succeeds; only names the
// supervisor has never seen running return [ErrNotRunning].
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	lock := s.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	handle := s.reconcileLocked(ctx, name)
	if handle == nil {
		return fmt.Errorf("vm %s: %w", name, ErrNotRunning)
	}

	if handle.State == StateStopped {
		return nil
	}

	if handle.State == StateRunning {
		if err := s.terminate(ctx, handle.PID); err != nil {
			return fmt.Errorf("stop vm %s: %w", name, err)
		}
	}

	if err := s.consoles.Kill(ctx, handle.Session); err != nil {
		slog.Warn("failed to kill console session",
			slog.String("session", handle.Session),
			slog.Any("error", err))
	}

	_ = os.Remove(s.store.PidFilePath(name))

	handle.State = StateStopped
	s.setHandle(name, handle)

	slog.Debug("stopped vm",
		slog.String("name", name),
		slog.Int("pid", handle.PID))

	return nil
}

// terminate sends SIGTERM, waits up to the grace period and escalates to
// SIGKILL if the process is still alive.
func (s *Supervisor) terminate(ctx context.Context, pid int) error {
	err := unix.Kill(pid, unix.SIGTERM)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(s.StopGrace)
	for time.Now().Before(deadline) {
		if !pidAlive(pid) {
			return nil
		}

		select {
		case <-ctx.Done():
			break
		case <-time.After(pollInterval):
		}

		if ctx.Err() != nil {
			break
		}
	}

	slog.Warn("graceful stop timed out, killing", slog.Int("pid", pid))

	err = unix.Kill(pid, unix.SIGKILL)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill pid %d: %w", pid, err)
	}

	// SIGKILL cannot be ignored. Give the kernel a moment to reap.
	for range 10 {
		if !pidAlive(pid) {
			return nil
		}

		time.Sleep(pollInterval)
	}

	return nil
}

// Alive reports whether the named VM has a live QEMU process. The
// in-memory handle is reconciled against the OS, so a crashed process is
// detected here.
func (s *Supervisor) Alive(ctx context.Context, name string) bool {
	lock := s.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	handle := s.reconcileLocked(ctx, name)

	return handle != nil && handle.State == StateRunning
}

// Status returns a copy of the reconciled handle for the named VM. The
// second return value is false if the supervisor knows nothing about the
// name.
func (s *Supervisor) Status(ctx context.Context, name string) (Handle, bool) {
	lock := s.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	handle := s.reconcileLocked(ctx, name)
	if handle == nil {
		return Handle{}, false
	}

	return *handle.clone(), true
}

// Console returns the console session name of the named VM for
// interactive reattachment.
func (s *Supervisor) Console(ctx context.Context, name string) (string, error) {
	lock := s.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	handle := s.reconcileLocked(ctx, name)
	if handle == nil || handle.State != StateRunning {
		return "", fmt.Errorf("vm %s: %w", name, ErrNotRunning)
	}

	return handle.Session, nil
}

// reconcileLocked aligns the in-memory handle for name with the actual
// OS state and returns it. The caller must hold the name lock.
//
// A handle whose process disappeared is marked crashed and its console
// session is destroyed, keeping the session/handle lifetimes 1:1. If no
// handle is known, a pid file left by an earlier supervisor process is
// adopted.
func (s *Supervisor) reconcileLocked(ctx context.Context, name string) *Handle {
	handle := s.getHandle(name)

	if handle == nil {
		handle = s.adopt(name)
		if handle == nil {
			return nil
		}

		s.setHandle(name, handle)
	}

	if handle.State == StateRunning && !pidAlive(handle.PID) {
		slog.Warn("vm process disappeared",
			slog.String("name", name),
			slog.Int("pid", handle.PID))

		handle.State = StateCrashed
		_ = s.consoles.Kill(ctx, handle.Session)
		s.setHandle(name, handle)
	}

	return handle
}

// adopt reconstructs a handle from a pid file on disk. CLI invocations
// come and go, so OS and filesystem state are authoritative over the
// in-memory map.
func (s *Supervisor) adopt(name string) *Handle {
	pidPath := s.store.PidFilePath(name)

	data, err := os.ReadFile(pidPath)
	if err != nil {
		return nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return nil
	}

	handle := &Handle{
		Name:    name,
		PID:     pid,
		Session: console.SessionName(name),
		RunID:   uuid.NewString(),
		State:   StateRunning,
	}

	if stat, err := os.Stat(pidPath); err == nil {
		handle.StartedAt = stat.ModTime()
	}

	if cfg, ok, err := s.store.LastRunConfig(name); err == nil && ok {
		handle.Port = cfg.Port
	}

	if !pidAlive(pid) {
		handle.State = StateCrashed
	}

	slog.Debug("adopted vm process",
		slog.String("name", name),
		slog.Int("pid", pid),
		slog.String("state", handle.State.String()))

	return handle
}

// awaitPidFile waits for QEMU to write its pid file and verifies the
// process is alive.
func (s *Supervisor) awaitPidFile(
	ctx context.Context,
	path string,
) (int, error) {
	deadline := time.Now().Add(s.PidFileTimeout)

	for {
		data, err := os.ReadFile(path)
		if err == nil {
			pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
			if err == nil && pid > 0 {
				if !pidAlive(pid) {
					return 0, ErrProcessGone
				}

				return pid, nil
			}
		}

		if time.Now().After(deadline) {
			return 0, ErrNoPidFile
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// checkPortFree rejects a launch if the SSH forward port is already
// bound by any process, including another VM's forward rule.
func (s *Supervisor) checkPortFree(port int) error {
	used, err := s.Listeners()
	if err != nil {
		// The diag query requires a Linux kernel with sock_diag. Treat
		// failure as unknown and let QEMU report the collision instead.
		slog.Debug("socket diag failed", slog.Any("error", err))
		return nil
	}

	if _, taken := used[port]; taken {
		return fmt.Errorf("port %d: %w", port, ErrPortInUse)
	}

	return nil
}

// FreePort returns a port from the scan range that no host socket
// listens on and no live VM handle claims.
func (s *Supervisor) FreePort() (int, error) {
	const portStart, portEnd = 20000, 30000

	used, err := s.Listeners()
	if err != nil {
		return 0, fmt.Errorf("enumerate listeners: %w", err)
	}

	s.mu.Lock()
	for _, handle := range s.handles {
		if handle.State == StateRunning {
			used[handle.Port] = struct{}{}
		}
	}
	s.mu.Unlock()

	for port := portStart; port < portEnd; port++ {
		if _, taken := used[port]; !taken {
			return port, nil
		}
	}

	return 0, ErrNoFreePort
}

// InUse implements [image.InUseFunc].
func (s *Supervisor) InUse(name string) bool {
	return s.Alive(context.Background(), name)
}

func pidAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	// EPERM means the process exists but belongs to someone else.
	return err == nil || errors.Is(err, unix.EPERM)
}

// logTail returns the end of the console log for launch diagnostics.
func (s *Supervisor) logTail(name string) string {
	const tailSize = 2048

	data, err := os.ReadFile(s.store.LogPath(name))
	if err != nil {
		return ""
	}

	if len(data) > tailSize {
		data = data[len(data)-tailSize:]
	}

	return strings.TrimSpace(string(data))
}
