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

import (
	"context"
	"sync"
)

// OutputChange is one SetDigitalOutput call seen by MockSession
type OutputChange struct {
	Pin   int
	Level bool
}

// MockSession is an in-memory Session for tests. It records every call and
// delivers events pushed with Emit. Errors can be injected per operation.
type MockSession struct {
	ConnectErr error
	ApplyErr   error
	StartErr   error
	StopErr    error
	SubmitErr  error
	OutputErr  error
	Defaults   *Settings
	events     chan Event
	applied    []*Settings
	submitted  []OperationSequence
	outputs    []OutputChange
	levels     map[int]bool
	address    string
	mu         sync.Mutex
	starts     int
	stops      int
	cancels    int
	running    bool
	connected  bool
	closed     bool
}

// NewMockSession creates a mock with a buffered event channel
func NewMockSession() *MockSession {
	return &MockSession{
		Defaults: DefaultSettings(4, 2),
		events:   make(chan Event, 64),
		levels:   make(map[int]bool),
	}
}

// Connect records the address
func (m *MockSession) Connect(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	if m.closed {
		return ErrSessionClosed
	}
	m.address = address
	m.connected = true
	return nil
}

// QueryDefaultSettings returns a copy of Defaults
func (m *MockSession) QueryDefaultSettings(_ context.Context) (*Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return nil, ErrNotConnected
	}
	return m.Defaults.Clone(), nil
}

// ApplySettings records settings
func (m *MockSession) ApplySettings(_ context.Context, settings *Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	if m.ApplyErr != nil {
		return m.ApplyErr
	}
	m.applied = append(m.applied, settings.Clone())
	return nil
}

// StartSingulation marks singulation as running
func (m *MockSession) StartSingulation(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	m.starts++
	m.running = true
	return nil
}

// StopSingulation marks singulation as stopped
func (m *MockSession) StopSingulation(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StopErr != nil {
		return m.StopErr
	}
	m.stops++
	m.running = false
	return nil
}

// QuerySingulationStatus reports the running flag
func (m *MockSession) QuerySingulationStatus(_ context.Context) (SingulationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return SingulationStatus{Running: m.running}, nil
}

// SubmitOperationSequence records a copy of seq
func (m *MockSession) SubmitOperationSequence(_ context.Context, seq OperationSequence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return m.SubmitErr
	}
	m.submitted = append(m.submitted, seq.Clone())
	return nil
}

// CancelOperationSequence counts the withdrawal
func (m *MockSession) CancelOperationSequence(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	return nil
}

// Cancels returns how many times a queued sequence was withdrawn
func (m *MockSession) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}

// SetDigitalOutput records the change and the pin's new level
func (m *MockSession) SetDigitalOutput(_ context.Context, pin int, level bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OutputErr != nil {
		return m.OutputErr
	}
	m.outputs = append(m.outputs, OutputChange{Pin: pin, Level: level})
	m.levels[pin] = level
	return nil
}

// Events returns the event channel
func (m *MockSession) Events() <-chan Event {
	return m.events
}

// Emit queues an event for delivery. It is dropped once the session is
// closed.
func (m *MockSession) Emit(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.events <- ev
}

// Close closes the event channel
func (m *MockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.connected = false
		close(m.events)
	}
	return nil
}

// Submitted returns copies of the submitted sequences in order
func (m *MockSession) Submitted() []OperationSequence {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OperationSequence, len(m.submitted))
	for i, seq := range m.submitted {
		out[i] = seq.Clone()
	}
	return out
}

// Applied returns the settings passed to ApplySettings
func (m *MockSession) Applied() []*Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Settings(nil), m.applied...)
}

// Outputs returns every output change in order
func (m *MockSession) Outputs() []OutputChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OutputChange(nil), m.outputs...)
}

// Level returns the last level driven on pin
func (m *MockSession) Level(pin int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.levels[pin]
}

// Counts returns how often singulation was started and stopped
func (m *MockSession) Counts() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

// Address returns the address of the last successful Connect
func (m *MockSession) Address() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.address
}
