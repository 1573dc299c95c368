// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package qemu

import (
	"fmt"
)

const (
	defaultExecutable = "qemu-system-x86_64"
	defaultMemory     = 4096
	defaultSMP        = 2

	// Kernel cmdline used when booting a custom kernel against the
	// template disk image. The guest root filesystem lives on the first
	// disk and the console is wired to the first serial port, which the
	// console session captures.
	kernelCmdline = "console=ttyS0 root=/dev/sda"

	guestSSHPort = 22
)

// CommandSpec defines the parameters for a single QEMU invocation.
type CommandSpec struct {
	// Path to the qemu-system binary.
	Executable string

	// Path to the disk image to boot.
	Disk string

	// Path to the kernel to boot. If empty, the disk image's own boot
	// loader is used.
	Kernel string

	// Memory for the machine in MiB.
	Memory uint64

	// Number of CPUs for the guest.
	SMP uint64

	// Host TCP port forwarded to the guest's SSH port.
	Port int

	// Disable KVM support.
	NoKVM bool

	// File the QEMU process writes its PID to.
	PidFile string

	// ExtraArgs are extra arguments that are passed to the QEMU command.
	// They must not interfere with the essential arguments set by the
	// spec itself or an error will be returned by [CommandSpec.Args].
	ExtraArgs []Argument
}

// AddDefaults fills unset fields with default values. KVM is enabled if
// the host supports it.
func (s *CommandSpec) AddDefaults() {
	if s.Executable == "" {
		s.Executable = defaultExecutable
	}

	if s.Memory == 0 {
		s.Memory = defaultMemory
	}

	if s.SMP == 0 {
		s.SMP = defaultSMP
	}

	if !s.NoKVM {
		s.NoKVM = !KVMAvailable()
	}
}

// Validate checks the spec for missing or invalid fields.
func (s *CommandSpec) Validate() error {
	if s.Disk == "" {
		return &ArgumentError{"disk image path must not be empty"}
	}

	if s.PidFile == "" {
		return &ArgumentError{"pid file path must not be empty"}
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrPortInvalid, s.Port)
	}

	return nil
}

// Args compiles the complete QEMU argument string slice for the spec.
//
// Extra arguments are validated against the essential ones, so a
// colliding extra argument fails the build instead of silently
// overriding launch critical flags.
func (s *CommandSpec) Args() ([]string, error) {
	a := Arguments{
		ArgDrive("file="+s.Disk, "format=raw", "index=0", "media=disk"),
		ArgNetdev(
			"user",
			"id=net0",
			fmt.Sprintf("hostfwd=tcp::%d-:%d", s.Port, guestSSHPort),
		),
		ArgDevice("virtio-net-pci", "netdev=net0"),
		ArgMemory(int(s.Memory)),
		ArgSMP(int(s.SMP)),
		ArgPidFile(s.PidFile),
		UniqueArg("nographic"),
	}

	if s.Kernel != "" {
		a.Add(
			ArgKernel(s.Kernel),
			ArgAppend(kernelCmdline),
		)
	}

	if !s.NoKVM {
		a.Add(UniqueArg("enable-kvm"))
	}

	a.Add(s.ExtraArgs...)

	return a.Build()
}
