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

package detection

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// DefaultService is the DNS-SD service type fixed readers announce
const DefaultService = "_llrp._tcp"

// DefaultDomain is the mDNS domain browsed
const DefaultDomain = "local."

// Endpoint is a reader announced over mDNS
type Endpoint struct {
	Instance  string
	Host      string
	Addresses []string
	Port      int
}

// Address returns a dialable reader address, preferring IPv4
func (e Endpoint) Address() string {
	host := e.Host
	if len(e.Addresses) > 0 {
		host = e.Addresses[0]
	}
	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(e.Port))
}

// browse is replaced in tests
var browse = zeroconf.Browse

// BrowseReaders collects endpoints announcing service until wait elapses or
// ctx ends. Entries for the same instance seen on several interfaces are
// merged.
func BrowseReaders(ctx context.Context, service string, wait time.Duration) ([]Endpoint, error) {
	if service == "" {
		service = DefaultService
	}
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	browseErr := make(chan error, 1)
	go func() {
		browseErr <- browse(ctx, service, DefaultDomain, entries, removed)
	}()

	found := make(map[string]*Endpoint)
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			merge(found, entry)
		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			delete(found, entry.Instance)
		case err := <-browseErr:
			if err != nil && ctx.Err() == nil {
				return nil, fmt.Errorf("browse %s: %w", service, err)
			}
			// results keep arriving until the wait is over
			browseErr = nil
		case <-ctx.Done():
			return collect(found), nil
		}
	}
}

func merge(found map[string]*Endpoint, entry *zeroconf.ServiceEntry) {
	if entry == nil {
		return
	}
	ep, ok := found[entry.Instance]
	if !ok {
		ep = &Endpoint{Instance: entry.Instance, Host: entry.HostName, Port: entry.Port}
		found[entry.Instance] = ep
	}
	seen := make(map[string]bool, len(ep.Addresses))
	for _, a := range ep.Addresses {
		seen[a] = true
	}
	for _, ip := range entry.AddrIPv4 {
		if s := ip.String(); !seen[s] {
			ep.Addresses = append(ep.Addresses, s)
			seen[s] = true
		}
	}
	for _, ip := range entry.AddrIPv6 {
		if s := ip.String(); !seen[s] {
			ep.Addresses = append(ep.Addresses, s)
			seen[s] = true
		}
	}
}

func collect(found map[string]*Endpoint) []Endpoint {
	out := make([]Endpoint, 0, len(found))
	for _, ep := range found {
		out = append(out, *ep)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
	return out
}
