// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import "errors"

var (
	// ErrNoRemoteSide is returned if a copy has no VM-qualified side.
	ErrNoRemoteSide = errors.New(
		"one side must name a VM as NAME:path")

	// ErrTwoRemoteSides is returned if both copy sides name a VM.
	ErrTwoRemoteSides = errors.New(
		"copying between two VMs is not supported")
)
