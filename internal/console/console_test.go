// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package console_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qgrain/syzqemuctl/internal/console"
)

// stubScreen installs a fake screen binary into a fresh PATH entry. The
// stub logs its argument vector to a file and plays back a canned
// session list for "-ls".
func stubScreen(t *testing.T, quitExitCode int) string {
	t.Helper()

	dir := t.TempDir()
	logFile := filepath.Join(dir, "calls.log")

	script := `#!/bin/sh
echo "$@" >> "` + logFile + `"
case "$1" in
-ls)
	printf 'There is a screen on:\n'
	printf '\t12345.syzqemuctl-vm1\t(Detached)\n'
	printf '1 Socket in /run/screen.\n'
	exit 0
	;;
-S)
	exit ` + itoa(quitExitCode) + `
	;;
esac
exit 0
`

	err := os.WriteFile(filepath.Join(dir, "screen"), []byte(script), 0o755)
	require.NoError(t, err)

	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))

	return logFile
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}

	return "1"
}

func readCalls(t *testing.T, logFile string) string {
	t.Helper()

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)

	return string(content)
}

func TestSessionName(t *testing.T) {
	assert.Equal(t, "syzqemuctl-vm1", console.SessionName("vm1"))
}

func TestManagerStart(t *testing.T) {
	t.Run("builds detached session", func(t *testing.T) {
		logFile := stubScreen(t, 0)

		mgr := console.NewManager()
		err := mgr.Start(
			context.Background(),
			"syzqemuctl-vm1",
			"/images/vm1/vm.log",
			[]string{"qemu-system-x86_64", "-nographic"},
		)
		require.NoError(t, err)

		calls := readCalls(t, logFile)
		assert.Contains(t, calls, "-dmS syzqemuctl-vm1")
		assert.Contains(t, calls, "-Logfile /images/vm1/vm.log")
		assert.Contains(t, calls, "qemu-system-x86_64 -nographic")
	})

	t.Run("empty command", func(t *testing.T) {
		stubScreen(t, 0)

		mgr := console.NewManager()
		err := mgr.Start(context.Background(), "syzqemuctl-vm1", "log", nil)
		require.ErrorIs(t, err, console.ErrEmptyCommand)
	})
}

func TestManagerExists(t *testing.T) {
	stubScreen(t, 0)

	mgr := console.NewManager()

	exists, err := mgr.Exists(context.Background(), "syzqemuctl-vm1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = mgr.Exists(context.Background(), "syzqemuctl-vm2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestManagerKill(t *testing.T) {
	t.Run("live session", func(t *testing.T) {
		logFile := stubScreen(t, 0)

		mgr := console.NewManager()
		err := mgr.Kill(context.Background(), "syzqemuctl-vm1")
		require.NoError(t, err)

		assert.Contains(t, readCalls(t, logFile),
			"-S syzqemuctl-vm1 -X quit")
	})

	t.Run("gone session is not an error", func(t *testing.T) {
		stubScreen(t, 1)

		mgr := console.NewManager()
		err := mgr.Kill(context.Background(), "syzqemuctl-vm2")
		require.NoError(t, err)
	})

	t.Run("quit failure with live session", func(t *testing.T) {
		stubScreen(t, 1)

		mgr := console.NewManager()
		err := mgr.Kill(context.Background(), "syzqemuctl-vm1")
		require.ErrorIs(t, err, &console.SessionError{})
	})
}

func TestAttachArgs(t *testing.T) {
	mgr := console.NewManager()
	assert.Equal(t,
		[]string{"screen", "-r", "syzqemuctl-vm1"},
		mgr.AttachArgs("syzqemuctl-vm1"),
	)
}
