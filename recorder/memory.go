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

package recorder

import (
	"errors"
	"sync"

	reeltag "github.com/ZaparooProject/go-reeltag"
)

// MemorySink keeps records in memory
type MemorySink struct {
	records []ResultRecord
	mu      sync.Mutex
	flushes int
	closed  bool
}

// NewMemorySink creates an empty memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append stores rec
func (m *MemorySink) Append(rec ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.records = append(m.records, rec)
	return nil
}

// Flush counts the call
func (m *MemorySink) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Close marks the sink closed
func (m *MemorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Records returns a copy of the stored records
func (m *MemorySink) Records() []ResultRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ResultRecord(nil), m.records...)
}

// Flushes returns how often Flush was called
func (m *MemorySink) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// MultiSink fans records out to several sinks. Every sink sees every call;
// errors are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Append appends to every sink
func (m *MultiSink) Append(rec ResultRecord) error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Append(rec))
	}
	return errors.Join(errs...)
}

// Flush flushes every sink
func (m *MultiSink) Flush() error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Flush())
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func nullableHex(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseHex(s string) (reeltag.TagData, error) {
	return reeltag.ParseTagData(s)
}

var (
	_ Sink = (*MemorySink)(nil)
	_ Sink = (*MultiSink)(nil)
)
