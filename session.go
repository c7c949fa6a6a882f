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

package reeltag

import "context"

// Digital I/O assignments of the line handshake
const (
	// TriggerPin is the input wired to the part-present sensor
	TriggerPin = 1
	// BusyPin is high while a part cycle is in flight
	BusyPin = 1
	// PassFailPin is held high for the lifetime of the process
	PassFailPin = 2
)

// SingulationStatus is the reader's inventory state
type SingulationStatus struct {
	Running bool
}

// Session is the single connection to the reader. Implementations deliver
// events on the channel returned by Events, one consumer only, and close it
// when the session closes.
type Session interface {
	// Connect opens the connection to the reader at address
	Connect(ctx context.Context, address string) error

	// QueryDefaultSettings returns the reader's factory settings
	QueryDefaultSettings(ctx context.Context) (*Settings, error)

	// ApplySettings validates and applies settings
	ApplySettings(ctx context.Context, settings *Settings) error

	// StartSingulation starts the inventory loop
	StartSingulation(ctx context.Context) error

	// StopSingulation stops the inventory loop
	StopSingulation(ctx context.Context) error

	// QuerySingulationStatus reports whether the inventory loop is running
	QuerySingulationStatus(ctx context.Context) (SingulationStatus, error)

	// SubmitOperationSequence queues seq. It returns once the reader has
	// accepted it; results arrive later as an OperationComplete event.
	SubmitOperationSequence(ctx context.Context, seq OperationSequence) error

	// CancelOperationSequence withdraws a queued sequence that has not run.
	// Nothing queued is not an error.
	CancelOperationSequence(ctx context.Context) error

	// SetDigitalOutput drives an output pin
	SetDigitalOutput(ctx context.Context, pin int, level bool) error

	// Events returns the event channel
	Events() <-chan Event

	// Close stops everything and disconnects
	Close() error
}

// DigitalOutput drives a single output level. It lets the busy flag live on
// a pin that is not the reader's.
type DigitalOutput interface {
	SetDigitalOutput(ctx context.Context, pin int, level bool) error
}

// TriggerSource delivers trigger edges from outside the reader session
type TriggerSource interface {
	Edges() <-chan TriggerEdge
}
