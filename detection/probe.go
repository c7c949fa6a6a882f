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
	"errors"
	"fmt"
	"time"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/transport/reader18"
)

// ErrNoReader is returned when no candidate answered a probe
var ErrNoReader = errors.New("no reader found")

// Probe connects to address, asks the reader to identify itself and
// disconnects
func Probe(ctx context.Context, address string, opts ...reader18.Option) (reader18.ReaderInfo, error) {
	session := reader18.New(opts...)
	defer func() { _ = session.Close() }()
	if err := session.Connect(ctx, address); err != nil {
		return reader18.ReaderInfo{}, err
	}
	return session.Info(), nil
}

// FindOptions controls FindReader
type FindOptions struct {
	Serial       SerialOptions
	Service      string
	Reader       []reader18.Option
	BrowseWait   time.Duration
	ProbeTimeout time.Duration
	SkipNetwork  bool
}

// FindReader returns the address of the first reader that answers a probe.
// Network readers announced over mDNS are tried before serial ports.
func FindReader(ctx context.Context, opts FindOptions) (string, error) {
	if opts.BrowseWait <= 0 {
		opts.BrowseWait = 2 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = time.Second
	}

	var candidates []string
	if !opts.SkipNetwork {
		endpoints, err := BrowseReaders(ctx, opts.Service, opts.BrowseWait)
		if err != nil {
			reeltag.Logger().Debug("mDNS browse failed", "error", err)
		}
		for _, ep := range endpoints {
			candidates = append(candidates, ep.Address())
		}
	}
	ports, err := SerialPorts(opts.Serial)
	if err != nil {
		reeltag.Logger().Debug("serial enumeration failed", "error", err)
	}
	for _, p := range ports {
		candidates = append(candidates, p.Path)
	}

	for _, address := range candidates {
		probeCtx, cancel := context.WithTimeout(ctx, opts.ProbeTimeout)
		info, err := Probe(probeCtx, address, opts.Reader...)
		cancel()
		if err != nil {
			reeltag.Logger().Debug("probe failed", "address", address, "error", err)
			continue
		}
		reeltag.Logger().Info("reader found", "address", address,
			"version", fmt.Sprintf("%04X", info.Version), "antennas", info.Antennas())
		return address, nil
	}
	return "", fmt.Errorf("%w among %d candidates", ErrNoReader, len(candidates))
}
