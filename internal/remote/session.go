// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

const defaultDialTimeout = 10 * time.Second

// Endpoint describes a reachable SSH endpoint of a running VM.
type Endpoint struct {
	Host string
	Port int
	// User to authenticate as.
	User string
	// KeyPath is the private key file, usually the key the image
	// creation script left inside the image directory.
	KeyPath string
	// DialTimeout bounds connection establishment. Zero selects a
	// default.
	DialTimeout time.Duration
}

// Addr returns the host:port address of the endpoint.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) dialTimeout() time.Duration {
	if e.DialTimeout == 0 {
		return defaultDialTimeout
	}

	return e.DialTimeout
}

// Result carries the captured output of a remote command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// dial opens an authenticated SSH connection to the endpoint. Any
// failure, including context cancellation during dialing, is reported
// as a [ConnectError].
func dial(ctx context.Context, ep Endpoint) (*ssh.Client, error) {
	key, err := os.ReadFile(ep.KeyPath)
	if err != nil {
		return nil, &ConnectError{Addr: ep.Addr(), Err: err}
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, &ConnectError{
			Addr: ep.Addr(),
			Err:  fmt.Errorf("parse private key: %w", err),
		}
	}

	config := &ssh.ClientConfig{
		User: ep.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		// Guests are freshly created local VMs, there is no prior host
		// key to verify against.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         ep.dialTimeout(),
	}

	dialer := net.Dialer{Timeout: ep.dialTimeout()}

	conn, err := dialer.DialContext(ctx, "tcp", ep.Addr())
	if err != nil {
		return nil, &ConnectError{Addr: ep.Addr(), Err: err}
	}

	// Bound the handshake as well, not just the TCP connect.
	_ = conn.SetDeadline(time.Now().Add(ep.dialTimeout()))

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, ep.Addr(), config)
	if err != nil {
		conn.Close()
		return nil, &ConnectError{Addr: ep.Addr(), Err: err}
	}

	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// Execute runs command non-interactively on the endpoint and captures
// its output and exit code.
//
// A non-zero remote exit code is reported as an [ExitError] together
// with the captured [Result], not as a transport failure.
func Execute(
	ctx context.Context,
	ep Endpoint,
	command string,
) (Result, error) {
	client, err := dial(ctx, ep)
	if err != nil {
		return Result{}, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, &ConnectError{Addr: ep.Addr(), Err: err}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runErr := make(chan error, 1)

	go func() {
		runErr <- session.Run(command)
	}()

	select {
	case err = <-runErr:
	case <-ctx.Done():
		// Closing the client unblocks Run.
		client.Close()
		<-runErr

		return Result{}, &ConnectError{Addr: ep.Addr(), Err: ctx.Err()}
	}

	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitStatus()

		return result, &ExitError{
			Command:  command,
			ExitCode: result.ExitCode,
			Stderr:   result.Stderr,
		}
	}

	if err != nil {
		return result, &ConnectError{Addr: ep.Addr(), Err: err}
	}

	return result, nil
}
