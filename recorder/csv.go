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
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// CSVSink appends records to a CSV file. The header row is written only when
// the file is new or empty, so reopening a log continues it.
type CSVSink struct {
	file   *os.File
	buf    *bufio.Writer
	writer *csv.Writer
	mu     sync.Mutex
	closed bool
}

// OpenCSV opens or creates the CSV log at path and takes an exclusive
// advisory lock on it.
func OpenCSV(path string) (*CSVSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open result log: %w", err)
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock result log %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat result log: %w", err)
	}

	buf := bufio.NewWriter(f)
	s := &CSVSink{file: f, buf: buf, writer: csv.NewWriter(buf)}
	if info.Size() == 0 {
		if err := s.writer.Write(Columns); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		if err := s.flushLocked(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return s, nil
}

// Append buffers one row
func (s *CSVSink) Append(rec ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.writer.Write(rec.Fields())
}

// Flush writes buffered rows and syncs the file
func (s *CSVSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.flushLocked()
}

func (s *CSVSink) flushLocked() error {
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync csv: %w", err)
	}
	return nil
}

// Close flushes, unlocks and closes the file
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.flushLocked()
	_ = unlockFile(s.file)
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close csv: %w", err)
	}
	return flushErr
}

var _ Sink = (*CSVSink)(nil)
