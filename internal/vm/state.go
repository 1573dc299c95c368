// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package vm

// State is the observable lifecycle state of a VM. It is derived live
// from the process supervisor and an SSH probe, never cached.
type State int

const (
	// StateStopped means no process exists for the VM.
	StateStopped State = iota
	// StateStarting means the process is alive but SSH does not answer
	// yet and the boot grace period has not elapsed.
	StateStarting
	// StateReady means the process is alive and SSH answers.
	StateReady
	// StateUnresponsive means the process is alive but SSH stopped
	// answering after the boot grace period.
	StateUnresponsive
	// StateCrashed means the process disappeared without a stop request.
	StateCrashed
)

// String implements the [fmt.Stringer] interface.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateUnresponsive:
		return "unresponsive"
	case StateCrashed:
		return "crashed"
	default:
		return "invalid"
	}
}
