// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package qemu

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Argument is a QEMU argument with or without value.
//
// Its name might be marked to be unique in a list of [Arguments].
type Argument struct {
	name          string
	value         string
	nonUniqueName bool
}

// Name returns the name of the [Argument].
func (a Argument) Name() string {
	return a.name
}

// Value returns the value of the [Argument].
func (a Argument) Value() string {
	return a.value
}

// String implements [fmt.Stringer].
func (a Argument) String() string {
	s := "-" + a.name
	if a.value != "" {
		s += " " + a.value
	}

	return s
}

// Equal compares the [Argument]s.
//
// If the name is marked unique, only names are compared. Otherwise name
// and value are compared.
func (a Argument) Equal(b Argument) bool {
	if a.name != b.name {
		return false
	}

	if a.nonUniqueName {
		return a.value == b.value
	}

	return true
}

// WithValue returns a constructor function that takes a single value and
// returns a new [Argument] with the name of the receiver argument and the
// value passed to the constructor function.
func (a Argument) WithValue() func(string) Argument {
	return func(s string) Argument {
		a := a
		a.value = s

		return a
	}
}

// WithMultiValue is like [Argument.WithValue] but takes multiple values.
func (a Argument) WithMultiValue(separator string) func(...string) Argument {
	return func(s ...string) Argument {
		return a.WithValue()(strings.Join(s, separator))
	}
}

// WithIntValue is like [Argument.WithValue] but takes an integer value
// instead of a string.
func (a Argument) WithIntValue() func(int) Argument {
	return func(i int) Argument {
		return a.WithValue()(strconv.Itoa(i))
	}
}

// UniqueArg returns a new [Argument] with the given name that is marked
// as unique and so can be used in [Arguments] only once.
func UniqueArg(name string) Argument {
	return Argument{
		name: name,
	}
}

// RepeatableArg returns a new [Argument] with the given name that is not
// unique and so can be used in [Arguments] multiple times.
func RepeatableArg(name string) Argument {
	return Argument{
		name:          name,
		nonUniqueName: true,
	}
}

var (
	// Path to the kernel file.
	ArgKernel = UniqueArg("kernel").WithValue()
	// Kernel cmdline that is passed to the kernel.
	ArgAppend = RepeatableArg("append").WithMultiValue(" ")
	// Block device backend.
	ArgDrive = RepeatableArg("drive").WithMultiValue(",")
	// Network backend.
	ArgNetdev = RepeatableArg("netdev").WithMultiValue(",")
	// Arbitrary device according to QEMUs supported devices.
	ArgDevice = RepeatableArg("device").WithMultiValue(",")
	// Guest memory in MiB.
	ArgMemory = UniqueArg("m").WithIntValue()
	// Number of guest CPUs.
	ArgSMP = UniqueArg("smp").WithIntValue()
	// File the QEMU process writes its PID to once it is up.
	ArgPidFile = UniqueArg("pidfile").WithValue()
)

// Arguments is a list of [Argument]s.
//
// Once all [Argument]s are added, call [Arguments.Build] to compile the
// complete QEMU arguments string slice.
type Arguments []Argument

// Add adds the given [Argument]s to the list.
func (a *Arguments) Add(e ...Argument) {
	*a = append(*a, e...)
}

// Build compiles the [Argument]s into a slice of strings which can be
// used with [os/exec.Command].
//
// It returns an error if any name uniqueness constraint of any
// [Argument] is violated.
func (a Arguments) Build() ([]string, error) {
	s := make([]string, 0, len(a))

	for idx, e := range a {
		if slices.ContainsFunc(a[idx+1:], e.Equal) {
			return nil, fmt.Errorf("%w: %s", ErrArgumentCollision, e.name)
		}

		s = append(s, "-"+e.name)

		if e.value != "" {
			s = append(s, e.value)
		}
	}

	return s, nil
}
