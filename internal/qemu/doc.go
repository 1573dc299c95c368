// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package qemu provides a structured argument builder for QEMU
// invocations.
//
// Arguments are modeled as a validated list instead of a shell string, so
// callers can pass extra arguments without risking quoting issues or
// collisions with the essential arguments derived from a [CommandSpec].
package qemu
