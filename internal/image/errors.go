// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package image

import (
	"errors"
	"fmt"
)

var (
	// ErrExists is returned if an image directory already exists.
	ErrExists = errors.New("image already exists")

	// ErrNotFound is returned if an image directory does not exist.
	ErrNotFound = errors.New("image not found")

	// ErrInUse is returned if an image is used by a live VM process.
	ErrInUse = errors.New("image in use by running VM")

	// ErrNameInvalid is returned if an image name is empty or contains
	// path separators.
	ErrNameInvalid = errors.New("invalid image name")

	// ErrNameReserved is returned if an operation targets the template
	// directory with a name reserved for internal use.
	ErrNameReserved = errors.New("image name is reserved")

	// ErrTemplateNotReady is returned if an image clone is requested
	// before the template image has been created.
	ErrTemplateNotReady = errors.New("template image not ready")

	// ErrNoDiskImage is returned if the creation script exited
	// successfully but did not leave a disk image behind.
	ErrNoDiskImage = errors.New("creation script left no disk image")

	// ErrNotDirectory is returned if the images-home path exists but is
	// not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrNotWritable is returned if the images-home directory is not
	// writable.
	ErrNotWritable = errors.New("not writable")
)

// ConfigError indicates an unusable images-home path.
type ConfigError struct {
	Path string
	Err  error
}

// Error implements the [error] interface.
func (e *ConfigError) Error() string {
	return "images home " + e.Path + ": " + e.Err.Error()
}

// Is implements the [errors.Is] interface.
func (*ConfigError) Is(other error) bool {
	_, ok := other.(*ConfigError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// CreateError wraps a failed image creation script run together with the
// captured script output.
type CreateError struct {
	Name     string
	Output   string
	ExitCode int
	Err      error
}

// Error implements the [error] interface.
func (e *CreateError) Error() string {
	return fmt.Sprintf("create image %s: %v", e.Name, e.Err)
}

// Is implements the [errors.Is] interface.
func (*CreateError) Is(other error) bool {
	_, ok := other.(*CreateError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *CreateError) Unwrap() error {
	return e.Err
}
