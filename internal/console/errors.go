// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package console

import "errors"

// ErrEmptyCommand is returned if a session is started without a command.
var ErrEmptyCommand = errors.New("empty session command")

// SessionError wraps any error from a screen invocation together with
// the session name and the captured screen output.
type SessionError struct {
	Name   string
	Output string
	Err    error
}

// Error implements the [error] interface.
func (e *SessionError) Error() string {
	msg := "session " + e.Name + ": " + e.Err.Error()
	if e.Output != "" {
		msg += ": " + e.Output
	}

	return msg
}

// Is implements the [errors.Is] interface.
func (*SessionError) Is(other error) bool {
	_, ok := other.(*SessionError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *SessionError) Unwrap() error {
	return e.Err
}
