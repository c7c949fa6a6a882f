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

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/config"
	"github.com/ZaparooProject/go-reeltag/recorder"
)

func TestParseFlagsFileThenFlags(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "station.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: inventory-read\ncompletion_timeout: 2s\nreader:\n  address: COM7\n"), 0o600))

	cfg, err := parseFlags([]string{"-reader", "sim", "-config", path})
	require.NoError(t, err)
	assert.Equal(t, config.SimAddress, cfg.Reader.Address)
	assert.Equal(t, reeltag.ModeInventoryRead, cfg.Mode())
	assert.Equal(t, 2*time.Second, cfg.CompletionTimeout)
}

func TestParseFlagsErrors(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"-menu", "2"})
	require.ErrorIs(t, err, reeltag.ErrInvalidPassword, "set password needs a new password")

	_, err = parseFlags(nil)
	require.ErrorIs(t, err, reeltag.ErrInvalidMode)

	_, err = parseFlags([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func TestOpenSinks(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logs := config.LogConfig{
		CSV:     filepath.Join(dir, "out.csv"),
		SQLite:  filepath.Join(dir, "out.db"),
		Journal: filepath.Join(dir, "out.cbor"),
	}
	sink, err := openSinks(logs, uuid.New())
	require.NoError(t, err)
	_, multi := sink.(*recorder.MultiSink)
	assert.True(t, multi)

	rec := recorder.New(sink)
	require.NoError(t, rec.Record(recorder.ResultRecord{Seq: 1, Start: time.Now(), Message: "ReadResultStatus=Success "}))
	require.NoError(t, rec.Close())

	entries, err := recorder.ReadJournal(logs.Journal)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	single, err := openSinks(config.LogConfig{CSV: filepath.Join(dir, "only.csv")}, uuid.New())
	require.NoError(t, err)
	_, isCSV := single.(*recorder.CSVSink)
	assert.True(t, isCSV)
	require.NoError(t, single.Close())
}
