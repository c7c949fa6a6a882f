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
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteSink(t *testing.T) {
	t.Parallel()

	sink, err := OpenSQLite(":memory:", uuid.New())
	require.NoError(t, err)
	rec := New(sink)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, rec.Record(testRecord(i)))
	}
	n, err := sink.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	records, err := sink.Records()
	require.NoError(t, err)
	require.Len(t, records, 3)
	want := testRecord(2)
	assert.Equal(t, want.Seq, records[1].Seq)
	assert.True(t, want.Start.Equal(records[1].Start))
	assert.Equal(t, want.Elapsed, records[1].Elapsed)
	assert.Equal(t, want.TID, records[1].TID)
	assert.Equal(t, want.EPC, records[1].EPC)
	assert.Equal(t, want.Message, records[1].Message)

	require.NoError(t, rec.Close())
	_, err = sink.Count()
	require.ErrorIs(t, err, ErrClosed)
}

func TestSQLiteSinkSeparatesRuns(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.db")

	first, err := OpenSQLite(path, uuid.New())
	require.NoError(t, err)
	require.NoError(t, first.Append(testRecord(1)))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path, uuid.New())
	require.NoError(t, err)
	defer func() { _ = second.Close() }()
	require.NoError(t, second.Append(ResultRecord{Seq: 1, Message: "SubmitFailed "}))
	require.NoError(t, second.Append(ResultRecord{Seq: 2, Message: "RecoveryForced "}))

	n, err := second.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	records, err := second.Records()
	require.NoError(t, err)
	assert.Nil(t, records[0].TID, "missing TID reads back as nil")
}
