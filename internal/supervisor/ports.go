// SPDX-FileCopyrightText: 2025 The syzqemuctl Authors
//
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// tcpListen is the TCP_LISTEN state from the kernel's TCP state machine
// as reported by inet_diag.
const tcpListen = 10

// listeningTCPPorts enumerates all host TCP ports with a listening
// socket, over both IPv4 and IPv6, using the kernel's socket diag
// interface.
func listeningTCPPorts() (map[int]struct{}, error) {
	ports := make(map[int]struct{})

	for _, family := range []uint8{unix.AF_INET, unix.AF_INET6} {
		sockets, err := netlink.SocketDiagTCP(family)
		if err != nil {
			return nil, fmt.Errorf("tcp socket diag: %w", err)
		}

		for _, socket := range sockets {
			if socket.State != tcpListen {
				continue
			}

			ports[int(socket.ID.SourcePort)] = struct{}{}
		}
	}

	return ports, nil
}
