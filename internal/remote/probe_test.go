// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package remote_test

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qgrain/syzqemuctl/internal/remote"
)

// unusedPort returns a port nothing listens on.
func unusedPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	return port
}

// countingListener accepts connections, counts them and answers with a
// non-SSH banner.
func countingListener(t *testing.T) (int, *atomic.Int32) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	t.Cleanup(func() { listener.Close() })

	var count atomic.Int32

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			count.Add(1)

			// Drain the probe's banner before answering, the probe
			// writes first.
			_, _ = bufio.NewReader(conn).ReadString('\n')
			_, _ = conn.Write([]byte("IMAP4rev1 ready\r\n"))
			conn.Close()
		}
	}()

	return listener.Addr().(*net.TCPAddr).Port, &count
}

func TestWaitReady(t *testing.T) {
	t.Run("ready endpoint succeeds immediately", func(t *testing.T) {
		server := startTestServer(t)

		start := time.Now()
		err := remote.WaitReady(
			context.Background(),
			server.Host, server.Port,
			5*time.Second, time.Second,
		)
		require.NoError(t, err)

		// No fixed minimum wait before the first attempt.
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("zero timeout makes exactly one attempt", func(t *testing.T) {
		port, count := countingListener(t)

		err := remote.WaitReady(
			context.Background(),
			"127.0.0.1", port,
			0, 10*time.Millisecond,
		)
		require.ErrorIs(t, err, &remote.ReadyTimeoutError{})
		require.ErrorIs(t, err, remote.ErrNotSSH)
		assert.EqualValues(t, 1, count.Load())
	})

	t.Run("unreachable endpoint times out", func(t *testing.T) {
		err := remote.WaitReady(
			context.Background(),
			"127.0.0.1", unusedPort(t),
			200*time.Millisecond, 50*time.Millisecond,
		)

		var timeoutErr *remote.ReadyTimeoutError
		require.ErrorAs(t, err, &timeoutErr)
		assert.GreaterOrEqual(t,
			timeoutErr.Elapsed, 200*time.Millisecond)
	})

	t.Run("cancellation", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(
			context.Background(), 100*time.Millisecond,
		)
		defer cancel()

		err := remote.WaitReady(
			ctx,
			"127.0.0.1", unusedPort(t),
			time.Minute, 50*time.Millisecond,
		)
		require.ErrorIs(t, err, &remote.ReadyTimeoutError{})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}
