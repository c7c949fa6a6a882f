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

// Package detection finds readers attached over USB serial or announced on
// the local network.
package detection

import (
	"fmt"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// SerialPort is one USB serial port that may have a reader behind it
type SerialPort struct {
	Path    string
	VIDPID  string
	Product string
	Serial  string
}

// SerialOptions filters port enumeration
type SerialOptions struct {
	// Blocklist holds VID:PID pairs to skip; nil means DefaultBlocklist
	Blocklist []string
	// IgnorePaths holds device paths to skip
	IgnorePaths []string
	// IncludeNonUSB keeps built-in UARTs
	IncludeNonUSB bool
}

// listPorts is replaced in tests
var listPorts = enumerator.GetDetailedPortsList

// SerialPorts lists candidate reader ports sorted by path
func SerialPorts(opts SerialOptions) ([]SerialPort, error) {
	details, err := listPorts()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	blocklist := opts.Blocklist
	if blocklist == nil {
		blocklist = DefaultBlocklist()
	}

	var ports []SerialPort
	for _, d := range details {
		if d == nil || (!d.IsUSB && !opts.IncludeNonUSB) {
			continue
		}
		if IsPathIgnored(d.Name, opts.IgnorePaths) {
			continue
		}
		vidpid := ""
		if d.VID != "" && d.PID != "" {
			vidpid = strings.ToUpper(d.VID + ":" + d.PID)
		}
		if vidpid != "" && IsBlocked(vidpid, blocklist) {
			continue
		}
		ports = append(ports, SerialPort{
			Path:    d.Name,
			VIDPID:  vidpid,
			Product: d.Product,
			Serial:  d.SerialNumber,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}
