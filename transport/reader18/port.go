// go-reeltag
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-reeltag.
//
// go-reeltag is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-reeltag is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-reeltag; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package reader18

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"

	"go.bug.st/serial"
)

// DefaultTCPPort is the port network readers of this family listen on
const DefaultTCPPort = "6000"

// Port is the byte stream to the reader. Close must unblock a pending Read.
type Port interface {
	io.ReadWriteCloser
}

// Dialer opens a Port for an address
type Dialer func(ctx context.Context, address string, opts PortOptions) (Port, error)

// ParseAddress splits an address into network ("tcp" or "serial") and
// target. "tcp://host:port" and "host:port" are network readers, a bare IP
// gets DefaultTCPPort, and anything else is a serial device.
func ParseAddress(address string) (network, target string) {
	address = strings.TrimSpace(address)
	switch {
	case strings.HasPrefix(address, "tcp://"):
		return "tcp", withDefaultPort(strings.TrimPrefix(address, "tcp://"))
	case strings.HasPrefix(address, "serial://"):
		return "serial", strings.TrimPrefix(address, "serial://")
	}
	if ip := net.ParseIP(address); ip != nil {
		return "tcp", net.JoinHostPort(address, DefaultTCPPort)
	}
	if host, port, err := net.SplitHostPort(address); err == nil && host != "" && port != "" {
		return "tcp", address
	}
	return "serial", address
}

func withDefaultPort(hostport string) string {
	if _, _, err := net.SplitHostPort(hostport); err == nil {
		return hostport
	}
	return net.JoinHostPort(hostport, DefaultTCPPort)
}

// Dial opens a TCP connection or a serial port depending on address
func Dial(ctx context.Context, address string, opts PortOptions) (Port, error) {
	network, target := ParseAddress(address)
	if target == "" {
		return nil, fmt.Errorf("empty reader address %q", address)
	}
	if network == "tcp" {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", target, err)
		}
		return conn, nil
	}

	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(target, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", target, err)
	}
	return port, nil
}
