// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotSSH is returned if the probed endpoint accepted the connection
// but did not present an SSH protocol banner.
var ErrNotSSH = errors.New("endpoint did not present an SSH banner")

// ConnectError indicates the endpoint was unreachable or the transport
// failed. It is strictly distinct from [ExitError], which is a
// successful transport carrying a failing remote exit code.
type ConnectError struct {
	Addr string
	Err  error
}

// Error implements the [error] interface.
func (e *ConnectError) Error() string {
	return "connect " + e.Addr + ": " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*ConnectError) Is(other error) bool {
	_, ok := other.(*ConnectError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ExitError indicates the remote command ran and returned a non-zero
// exit code.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

// Error implements the [error] interface.
func (e *ExitError) Error() string {
	return fmt.Sprintf("remote command %q: exit code %d",
		e.Command, e.ExitCode)
}

// Is implements the [errors.Is] interface.
func (*ExitError) Is(other error) bool {
	_, ok := other.(*ExitError)
	return ok
}

// TransferError indicates a failed file transfer.
type TransferError struct {
	// Direction is "upload" or "download".
	Direction string
	Path      string
	Err       error
}

// Error implements the [error] interface.
func (e *TransferError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Direction, e.Path, e.Err)
}

// Is implements the [errors.Is] interface.
func (*TransferError) Is(other error) bool {
	_, ok := other.(*TransferError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// ReadyTimeoutError indicates the readiness probe budget was exhausted
// before the endpoint accepted an SSH handshake.
type ReadyTimeoutError struct {
	Addr    string
	Elapsed time.Duration
	Err     error
}

// Error implements the [error] interface.
func (e *ReadyTimeoutError) Error() string {
	return fmt.Sprintf("endpoint %s not ready after %s: %v",
		e.Addr, e.Elapsed.Round(time.Millisecond), e.Err)
}

// Is implements the [errors.Is] interface.
func (*ReadyTimeoutError) Is(other error) bool {
	_, ok := other.(*ReadyTimeoutError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ReadyTimeoutError) Unwrap() error {
	return e.Err
}
