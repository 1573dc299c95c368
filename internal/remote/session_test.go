// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package remote_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qgrain/syzqemuctl/internal/remote"
)

func endpoint(server *testServer) remote.Endpoint {
	return remote.Endpoint{
		Host:        server.Host,
		Port:        server.Port,
		User:        "root",
		KeyPath:     server.KeyPath,
		DialTimeout: 5 * time.Second,
	}
}

func TestExecute(t *testing.T) {
	server := startTestServer(t)

	t.Run("exit zero", func(t *testing.T) {
		result, err := remote.Execute(
			context.Background(), endpoint(server), "true",
		)
		require.NoError(t, err)
		assert.Equal(t, 0, result.ExitCode)
	})

	t.Run("stdout captured", func(t *testing.T) {
		result, err := remote.Execute(
			context.Background(), endpoint(server), "echo hello",
		)
		require.NoError(t, err)
		assert.Equal(t, "hello\n", result.Stdout)
	})

	t.Run("remote failure is not a transport error", func(t *testing.T) {
		result, err := remote.Execute(
			context.Background(), endpoint(server), "false",
		)

		var exitErr *remote.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 1, exitErr.ExitCode)
		assert.Equal(t, 1, result.ExitCode)
		assert.NotErrorIs(t, err, &remote.ConnectError{})
	})

	t.Run("stderr captured on failure", func(t *testing.T) {
		result, err := remote.Execute(
			context.Background(), endpoint(server), "fail2",
		)

		var exitErr *remote.ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.ExitCode)
		assert.Equal(t, "it went wrong\n", result.Stderr)
		assert.Equal(t, "it went wrong\n", exitErr.Stderr)
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		ep := endpoint(server)
		ep.Port = unusedPort(t)
		ep.DialTimeout = time.Second

		_, err := remote.Execute(context.Background(), ep, "true")
		require.ErrorIs(t, err, &remote.ConnectError{})
	})

	t.Run("missing key file", func(t *testing.T) {
		ep := endpoint(server)
		ep.KeyPath = "/nonexistent/id_rsa"

		_, err := remote.Execute(context.Background(), ep, "true")
		require.ErrorIs(t, err, &remote.ConnectError{})
	})
}

func TestCopyRoundTrip(t *testing.T) {
	server := startTestServer(t)
	ep := endpoint(server)

	content := []byte("boot log contents\x00with binary\xffbytes\n")

	local := filepath.Join(t.TempDir(), "source.bin")
	require.NoError(t, os.WriteFile(local, content, 0o644))

	// The test server serves SFTP against the local filesystem, so the
	// "remote" side is just another temp directory.
	remoteDir := t.TempDir()
	remotePath := filepath.Join(remoteDir, "uploaded.bin")

	require.NoError(t,
		remote.CopyTo(context.Background(), ep, local, remotePath))

	back := filepath.Join(t.TempDir(), "back.bin")
	require.NoError(t,
		remote.CopyFrom(context.Background(), ep, remotePath, back))

	got, err := os.ReadFile(back)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestCopyToOverwrites(t *testing.T) {
	server := startTestServer(t)
	ep := endpoint(server)

	local := filepath.Join(t.TempDir(), "source")
	require.NoError(t, os.WriteFile(local, []byte("new"), 0o644))

	remotePath := filepath.Join(t.TempDir(), "target")
	require.NoError(t, os.WriteFile(remotePath, []byte("old content"), 0o644))

	require.NoError(t,
		remote.CopyTo(context.Background(), ep, local, remotePath))

	got, err := os.ReadFile(remotePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestCopyRecursive(t *testing.T) {
	server := startTestServer(t)
	ep := endpoint(server)

	srcDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(srcDir, "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.WriteFile(
		filepath.Join(srcDir, "sub", "nested.txt"), []byte("nested"), 0o644))

	remoteDir := filepath.Join(t.TempDir(), "copy")
	require.NoError(t,
		remote.CopyTo(context.Background(), ep, srcDir, remoteDir))

	backDir := filepath.Join(t.TempDir(), "back")
	require.NoError(t,
		remote.CopyFrom(context.Background(), ep, remoteDir, backDir))

	top, err := os.ReadFile(filepath.Join(backDir, "top.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("top"), top)

	nested, err := os.ReadFile(filepath.Join(backDir, "sub", "nested.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("nested"), nested)
}

func TestCopyMissingSource(t *testing.T) {
	server := startTestServer(t)
	ep := endpoint(server)

	t.Run("upload", func(t *testing.T) {
		err := remote.CopyTo(
			context.Background(), ep,
			filepath.Join(t.TempDir(), "missing"),
			filepath.Join(t.TempDir(), "target"),
		)
		require.ErrorIs(t, err, &remote.TransferError{})
	})

	t.Run("download", func(t *testing.T) {
		err := remote.CopyFrom(
			context.Background(), ep,
			filepath.Join(t.TempDir(), "missing"),
			filepath.Join(t.TempDir(), "target"),
		)
		require.ErrorIs(t, err, &remote.TransferError{})
	})
}
