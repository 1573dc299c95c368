// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

// Package remote provides SSH readiness probing, command execution and
// file transfer for running VMs.
//
// Readiness bridges the gap between "QEMU process exists" and "guest OS
// accepts SSH". Booting is the dominant source of latency in the VM
// lifecycle, so the probe retries with a bounded budget instead of
// performing a single blocking connect.
package remote

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// Bound for a single connect plus banner exchange. The overall probe
	// budget is the caller's timeout.
	attemptTimeout = 3 * time.Second

	clientBanner = "SSH-2.0-syzqemuctl_probe\r\n"
)

// WaitReady polls SSH connectivity on host:port until a minimal
// handshake succeeds or the timeout budget is exhausted.
//
// Each attempt completes a TCP connect and an SSH version banner
// exchange, without authenticating. Attempts are spaced by poll. The
// first successful attempt returns immediately. Once the cumulative
// elapsed time exceeds timeout, a [ReadyTimeoutError] wrapping the last
// attempt failure is returned; a zero timeout means exactly one attempt.
func WaitReady(
	ctx context.Context,
	host string,
	port int,
	timeout time.Duration,
	poll time.Duration,
) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	start := time.Now()

	for attempt := 1; ; attempt++ {
		err := probeBanner(ctx, addr)
		if err == nil {
			slog.Debug("endpoint ready",
				slog.String("addr", addr),
				slog.Int("attempts", attempt))

			return nil
		}

		slog.Debug("readiness probe failed",
			slog.String("addr", addr),
			slog.Int("attempt", attempt),
			slog.Any("error", err))

		if time.Since(start) >= timeout {
			return &ReadyTimeoutError{
				Addr:    addr,
				Elapsed: time.Since(start),
				Err:     err,
			}
		}

		select {
		case <-ctx.Done():
			return &ReadyTimeoutError{
				Addr:    addr,
				Elapsed: time.Since(start),
				Err:     ctx.Err(),
			}
		case <-time.After(poll):
		}
	}
}

// probeBanner performs a single connect and SSH version banner exchange.
func probeBanner(ctx context.Context, addr string) error {
	dialer := net.Dialer{Timeout: attemptTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(attemptTimeout)); err != nil {
		return err
	}

	if _, err := conn.Write([]byte(clientBanner)); err != nil {
		return err
	}

	banner, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return err
	}

	if !strings.HasPrefix(banner, "SSH-") {
		return fmt.Errorf("%w: %q", ErrNotSSH, strings.TrimSpace(banner))
	}

	return nil
}
