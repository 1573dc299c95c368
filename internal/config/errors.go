// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package config

import "errors"

// ErrNotInitialized is returned if no configuration file exists yet.
// Running "syzqemuctl init" creates one.
var ErrNotInitialized = errors.New("not initialized, run init first")

// Error indicates a failed configuration file operation.
type Error struct {
	Op   string
	Path string
	Err  error
}

// Error implements the [error] interface.
func (e *Error) Error() string {
	if e.Path == "" {
		return "config: " + e.Op + ": " + e.Err.Error()
	}

	return "config: " + e.Op + " " + e.Path + ": " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*Error) Is(other error) bool {
	_, ok := other.(*Error)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *Error) Unwrap() error {
	return e.Err
}
