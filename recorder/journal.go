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
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

var (
	journalEncMode cbor.EncMode
	journalDecMode cbor.DecMode
)

func init() {
	var err error
	journalEncMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create journal CBOR encoder mode: %v", err))
	}
	journalDecMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyQuiet,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create journal CBOR decoder mode: %v", err))
	}
}

// JournalEntry is one item of the CBOR journal
type JournalEntry struct {
	RunID  string       `cbor:"1,keyasint"`
	Record ResultRecord `cbor:"2,keyasint"`
}

// JournalSink appends records to a file as a stream of CBOR items
type JournalSink struct {
	file    *os.File
	encoder *cbor.Encoder
	runID   uuid.UUID
	mu      sync.Mutex
	closed  bool
}

// OpenJournal opens or creates the journal at path for appending
func OpenJournal(path string, runID uuid.UUID) (*JournalSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &JournalSink{
		file:    f,
		encoder: journalEncMode.NewEncoder(f),
		runID:   runID,
	}, nil
}

// Append encodes rec. The encoder writes straight to the file.
func (j *JournalSink) Append(rec ResultRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if err := j.encoder.Encode(JournalEntry{RunID: j.runID.String(), Record: rec}); err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	return nil
}

// Flush syncs the file
func (j *JournalSink) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	return j.file.Sync()
}

// Close closes the file. It is safe to call more than once.
func (j *JournalSink) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.file.Close()
}

// ReadJournal decodes every entry of the journal at path
func ReadJournal(path string) ([]JournalEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := journalDecMode.NewDecoder(f)
	var entries []JournalEntry
	for {
		var entry JournalEntry
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return entries, fmt.Errorf("decode journal entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
}

var _ Sink = (*JournalSink)(nil)
