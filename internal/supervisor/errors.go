// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package supervisor

import "errors"

var (
	// ErrAlreadyRunning is returned if a VM with a live process handle is
	// started again.
	ErrAlreadyRunning = errors.New("vm already running")

	// ErrNotRunning is returned if an operation requires a process handle
	// for a VM that has none.
	ErrNotRunning = errors.New("vm not running")

	// ErrPortInUse is returned if the SSH forward port is already bound
	// on the host.
	ErrPortInUse = errors.New("ssh forward port already in use")

	// ErrNoFreePort is returned if no port in the scan range is free.
	ErrNoFreePort = errors.New("no free ssh forward port")

	// ErrNoPidFile is returned if QEMU did not write its pid file within
	// the launch timeout.
	ErrNoPidFile = errors.New("qemu did not write pid file")

	// ErrProcessGone is returned if the QEMU process died right after
	// writing its pid file.
	ErrProcessGone = errors.New("qemu process gone after launch")
)

// LaunchError wraps any error that prevented a VM launch, together with
// captured diagnostic output if any external command produced some.
type LaunchError struct {
	Name   string
	Output string
	Err    error
}

// Error implements the [error] interface.
func (e *LaunchError) Error() string {
	msg := "launch " + e.Name + ": " + e.Err.Error()
	if e.Output != "" {
		msg += ": " + e.Output
	}

	return msg
}

// Is implements the [errors.Is] interface.
func (*LaunchError) Is(other error) bool {
	_, ok := other.(*LaunchError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *LaunchError) Unwrap() error {
	return e.Err
}
