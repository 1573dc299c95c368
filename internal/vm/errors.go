// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package vm

import "errors"

var (
	// ErrNotReady is returned for remote operations on a VM that is not
	// in [StateReady]. Remote operations never start a VM implicitly.
	ErrNotReady = errors.New("vm is not ready")

	// ErrIsTemplate is returned for lifecycle operations on the image
	// template, which only serves as a clone source.
	ErrIsTemplate = errors.New("operation not supported on the template")
)
