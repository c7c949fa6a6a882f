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
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteSink stores records in the cycle_results table, tagged with the run
// that produced them.
type SQLiteSink struct {
	db     *sql.DB
	insert *sql.Stmt
	runID  uuid.UUID
	mu     sync.Mutex
	closed bool
}

// OpenSQLite opens or creates the database at path. Use ":memory:" for a
// throwaway database.
func OpenSQLite(path string, runID uuid.UUID) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open result database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create result schema: %w", err)
	}
	insert, err := db.Prepare(`
		INSERT INTO cycle_results (run_id, seq, start_unix_nano, start_text, elapsed_ms, tid, epc, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare result insert: %w", err)
	}
	return &SQLiteSink{db: db, insert: insert, runID: runID}, nil
}

// Append inserts one row. Each insert commits on its own.
func (s *SQLiteSink) Append(rec ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.insert.Exec(
		s.runID.String(),
		int64(rec.Seq),
		rec.Start.UnixNano(),
		rec.Start.Format(StartLayout),
		rec.Elapsed.Milliseconds(),
		nullableHex(rec.TID.Hex()),
		nullableHex(rec.EPC.Hex()),
		rec.Message,
	)
	if err != nil {
		return fmt.Errorf("insert cycle result: %w", err)
	}
	return nil
}

// Flush is a no-op; every Append is already committed
func (*SQLiteSink) Flush() error { return nil }

// Close closes the database
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.insert.Close()
	return s.db.Close()
}

// Count returns the number of rows stored for this run
func (s *SQLiteSink) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM cycle_results WHERE run_id = ?`, s.runID.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cycle results: %w", err)
	}
	return n, nil
}

// Records returns this run's records in sequence order
func (s *SQLiteSink) Records() ([]ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	rows, err := s.db.Query(`
		SELECT seq, start_unix_nano, elapsed_ms, COALESCE(tid, ''), COALESCE(epc, ''), message
		FROM cycle_results WHERE run_id = ? ORDER BY seq
	`, s.runID.String())
	if err != nil {
		return nil, fmt.Errorf("query cycle results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ResultRecord
	for rows.Next() {
		var (
			rec       ResultRecord
			seq       int64
			startNano int64
			elapsedMs int64
			tid, epc  string
		)
		if err := rows.Scan(&seq, &startNano, &elapsedMs, &tid, &epc, &rec.Message); err != nil {
			return nil, fmt.Errorf("scan cycle result: %w", err)
		}
		rec.Seq = uint64(seq)
		rec.Start = time.Unix(0, startNano)
		rec.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		if rec.TID, err = parseHex(tid); err != nil {
			return nil, err
		}
		if rec.EPC, err = parseHex(epc); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ Sink = (*SQLiteSink)(nil)
