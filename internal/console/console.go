// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package console manages named GNU screen sessions wrapping VM
// consoles.
//
// Each VM gets exactly one detached session with a name derived from the
// VM name, so an operator can reattach to the serial console of a
// running VM at any time. All screen invocations are structured argument
// lists, never shell strings.
package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

const (
	executable    = "screen"
	sessionPrefix = "syzqemuctl-"
)

// SessionName returns the deterministic screen session name for a VM.
func SessionName(vmName string) string {
	return sessionPrefix + vmName
}

// Manager starts, queries and kills screen sessions.
//
// The zero value is not usable, use [NewManager].
type Manager struct {
	executable string
}

// NewManager returns a [Manager] using the screen binary found in PATH.
func NewManager() *Manager {
	return &Manager{executable: executable}
}

// Start creates a new detached session with the given name running argv.
// The session's output is appended to logPath.
//
// Screen daemonizes the session and returns immediately, so a nil error
// only means the session was created, not that argv is still running.
func (m *Manager) Start(
	ctx context.Context,
	name string,
	logPath string,
	argv []string,
) error {
	if len(argv) == 0 {
		return &SessionError{Name: name, Err: ErrEmptyCommand}
	}

	args := []string{
		"-dmS", name,
		"-L", "-Logfile", logPath,
	}
	args = append(args, argv...)

	cmd := exec.CommandContext(ctx, m.executable, args...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return &SessionError{
			Name:   name,
			Output: output.String(),
			Err:    err,
		}
	}

	return nil
}

// Kill terminates the session with the given name. Killing a session
// that does not exist is not an error.
func (m *Manager) Kill(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, m.executable, "-S", name, "-X", "quit")

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err == nil {
		return nil
	}

	// screen exits non-zero if there is no session to quit.
	exists, existsErr := m.Exists(ctx, name)
	if existsErr == nil && !exists {
		return nil
	}

	return &SessionError{
		Name:   name,
		Output: output.String(),
		Err:    err,
	}
}

// Exists reports whether a session with the given name exists.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, m.executable, "-ls")

	output, err := cmd.Output()
	// screen -ls exits non-zero when no sessions exist at all, so the
	// exit code alone is not an error signal.
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return false, &SessionError{Name: name, Err: err}
	}

	for _, line := range strings.Split(string(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		// Lines look like "12345.syzqemuctl-vm1 (Detached)".
		if _, session, found := strings.Cut(fields[0], "."); found {
			if session == name {
				return true, nil
			}
		}
	}

	return false, nil
}

// AttachArgs returns the argument vector a caller can exec to reattach
// interactively to the session.
func (m *Manager) AttachArgs(name string) []string {
	return []string{m.executable, "-r", name}
}

// AttachCommand returns the human readable reattach command for display.
func AttachCommand(name string) string {
	return fmt.Sprintf("%s -r %s", executable, name)
}
