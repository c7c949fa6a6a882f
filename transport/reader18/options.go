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
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-reeltag/internal/frame"
)

// PortOptions describes the serial line used for serial addresses
type PortOptions struct {
	Parity   string `yaml:"parity" json:"parity"`
	BaudRate int    `yaml:"baud_rate" json:"baud_rate"`
	DataBits int    `yaml:"data_bits" json:"data_bits"`
	StopBits int    `yaml:"stop_bits" json:"stop_bits"`
}

// Normalize validates the options and applies 57600 8N1 defaults
func (o PortOptions) Normalize() (PortOptions, error) {
	opts := o
	if opts.BaudRate <= 0 {
		opts.BaudRate = 57600
	}
	if opts.DataBits == 0 {
		opts.DataBits = 8
	}
	if opts.DataBits < 5 || opts.DataBits > 8 {
		return opts, fmt.Errorf("invalid data bits %d: must be between 5 and 8", opts.DataBits)
	}
	if opts.StopBits == 0 {
		opts.StopBits = 1
	}
	if opts.StopBits != 1 && opts.StopBits != 2 {
		return opts, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", opts.StopBits)
	}

	parity := strings.TrimSpace(strings.ToUpper(opts.Parity))
	switch parity {
	case "", "N", "NONE":
		parity = "N"
	case "E", "EVEN":
		parity = "E"
	case "O", "ODD":
		parity = "O"
	default:
		return opts, fmt.Errorf("unsupported parity %q: expected N, E, or O", opts.Parity)
	}
	opts.Parity = parity
	return opts, nil
}

// SerialMode converts the options for go.bug.st/serial
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	mode := &serial.Mode{BaudRate: opts.BaudRate, DataBits: opts.DataBits}
	switch opts.StopBits {
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	switch opts.Parity {
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	return mode, nil
}

// Options configures a Session
type Options struct {
	Port PortOptions
	// CommandTimeout bounds the wait for each response
	CommandTimeout time.Duration
	// InventoryInterval is the pause between inventory rounds
	InventoryInterval time.Duration
	// GPIPollInterval is how often inputs are sampled
	GPIPollInterval time.Duration
	// CommandRetries is how often a command is resent after a timeout or a
	// reader CRC complaint
	CommandRetries int
	// TIDWords is how much of the TID bank is read for each new tag
	TIDWords int
	// ScanTime is the inventory duration in units of 100 ms
	ScanTime byte
	// Q is the initial Gen2 Q value
	Q byte
	// Address is the reader's bus address
	Address byte
	// Antennas is the number of antenna ports the reader has
	Antennas int
	// Inputs is the number of digital inputs the reader has
	Inputs int
}

// DefaultOptions returns options that suit a single-antenna desktop reader
func DefaultOptions() Options {
	return Options{
		Address:           frame.DefaultAddress,
		CommandTimeout:    500 * time.Millisecond,
		InventoryInterval: 20 * time.Millisecond,
		GPIPollInterval:   10 * time.Millisecond,
		CommandRetries:    2,
		TIDWords:          6,
		ScanTime:          3,
		Q:                 4,
		Antennas:          4,
		Inputs:            2,
	}
}
