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

// Package recorder keeps the append-only log of completed part cycles.
package recorder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	reeltag "github.com/ZaparooProject/go-reeltag"
)

// ErrClosed is returned when recording into a closed recorder or sink
var ErrClosed = errors.New("recorder closed")

// ResultRecord is one completed part cycle. Field order is the column order
// of every sink.
type ResultRecord struct {
	Start   time.Time       `cbor:"2,keyasint"`
	TID     reeltag.TagData `cbor:"4,keyasint,omitempty"`
	EPC     reeltag.TagData `cbor:"5,keyasint,omitempty"`
	Message string          `cbor:"6,keyasint"`
	Seq     uint64          `cbor:"1,keyasint"`
	Elapsed time.Duration   `cbor:"3,keyasint"`
}

// Columns are the field names written as a header by tabular sinks
var Columns = []string{"count", "start", "elapsed", "tid", "epc", "message"}

// StartLayout formats the start time in tabular sinks
const StartLayout = "2006-01-02 15:04:05.000"

// Fields renders the record as text in column order
func (r ResultRecord) Fields() []string {
	return []string{
		fmt.Sprintf("%d", r.Seq),
		r.Start.Format(StartLayout),
		fmt.Sprintf("%d", r.Elapsed.Milliseconds()),
		r.TID.Hex(),
		r.EPC.Hex(),
		r.Message,
	}
}

// Sink stores records. Append may buffer; Flush makes every appended record
// durable.
type Sink interface {
	Append(rec ResultRecord) error
	Flush() error
	Close() error
}

// Recorder serializes records into a sink and flushes after each one
type Recorder struct {
	sink   Sink
	mu     sync.Mutex
	count  uint64
	closed bool
}

// New creates a recorder writing to sink
func New(sink Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record appends rec and flushes it
func (r *Recorder) Record(rec ResultRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if err := r.sink.Append(rec); err != nil {
		return fmt.Errorf("append record %d: %w", rec.Seq, err)
	}
	if err := r.sink.Flush(); err != nil {
		return fmt.Errorf("flush record %d: %w", rec.Seq, err)
	}
	r.count++
	reeltag.Logger().Debug("recorded cycle", "seq", rec.Seq, "elapsed", rec.Elapsed, "message", rec.Message)
	return nil
}

// Count returns the number of records written
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Close closes the sink. It is safe to call more than once.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.sink.Close()
}
