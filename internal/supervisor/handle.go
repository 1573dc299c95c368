// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package supervisor

import "time"

// HandleState is the lifecycle state of a process handle.
type HandleState int

const (
	// StateRunning means the QEMU process is alive.
	StateRunning HandleState = iota
	// StateStopped means the process was terminated by an explicit stop.
	StateStopped
	// StateCrashed means the process disappeared without an explicit
	// stop.
	StateCrashed
)

// String implements [fmt.Stringer].
func (s HandleState) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Handle describes a supervised QEMU process and its console session.
type Handle struct {
	// Name of the VM the process belongs to.
	Name string
	// PID of the QEMU process.
	PID int
	// Host TCP port forwarded to the guest's SSH port.
	Port int
	// Session is the console session name wrapping the process.
	Session string
	// RunID uniquely identifies this run of the VM.
	RunID string
	// StartedAt is the launch time of the process.
	StartedAt time.Time
	// State of the handle.
	State HandleState
}

func (h *Handle) clone() *Handle {
	c := *h
	return &c
}
