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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input   string
		want    OperationMode
		wantErr bool
	}{
		{input: "inventory-read", want: ModeInventoryRead},
		{input: "Inventory_Read_Hidden", want: ModeInventoryReadHidden},
		{input: " set password ", want: ModeSetPassword},
		{input: "SET-PASSWORD-DIRECT", want: ModeSetPasswordDirect},
		{input: "protect-tags", want: ModeProtectTags},
		{input: "protect_tags_direct", want: ModeProtectTagsDirect},
		{input: "unlock-tags", want: ModeUnlockTags},
		{input: "format", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidMode)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOperationModeProperties(t *testing.T) {
	t.Parallel()

	for mode := range modeNames {
		assert.True(t, mode.Valid(), mode.String())
		parsed, err := ParseMode(mode.String())
		require.NoError(t, err)
		assert.Equal(t, mode, parsed)
	}

	assert.False(t, OperationMode(42).Valid())
	assert.Equal(t, "mode(42)", OperationMode(42).String())

	assert.False(t, ModeSetPasswordDirect.IsDiscovery())
	assert.False(t, ModeProtectTagsDirect.IsDiscovery())
	assert.True(t, ModeUnlockTags.IsDiscovery())
	assert.True(t, ModeInventoryReadHidden.IsDiscovery())

	assert.True(t, ModeProtectTags.WritesPassword())
	assert.False(t, ModeProtectTagsDirect.WritesPassword())
	assert.False(t, ModeInventoryRead.WritesPassword())
}

func TestOperationModeText(t *testing.T) {
	t.Parallel()

	text, err := ModeUnlockTags.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "unlock-tags", string(text))

	var mode OperationMode
	require.NoError(t, mode.UnmarshalText([]byte("protect-tags")))
	assert.Equal(t, ModeProtectTags, mode)

	_, err = OperationMode(-1).MarshalText()
	require.ErrorIs(t, err, ErrInvalidMode)
}

func TestParseMenu(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n      int
		mode   OperationMode
		enable bool
	}{
		{n: 0, mode: ModeInventoryRead},
		{n: 1, mode: ModeInventoryReadHidden},
		{n: 2, mode: ModeSetPassword},
		{n: 3, mode: ModeUnlockTags},
		{n: 4, mode: ModeProtectTags, enable: true},
		{n: 5, mode: ModeProtectTags, enable: false},
		{n: 6, mode: ModeSetPasswordDirect},
		{n: 7, mode: ModeProtectTagsDirect, enable: true},
	}
	for _, tt := range tests {
		entry, err := ParseMenu(tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.mode, entry.Mode, "menu %d", tt.n)
		assert.Equal(t, tt.enable, entry.Enable, "menu %d", tt.n)
		assert.NotEmpty(t, entry.Description)
	}

	_, err := ParseMenu(8)
	require.ErrorIs(t, err, ErrInvalidMode)
	_, err = ParseMenu(-1)
	require.ErrorIs(t, err, ErrInvalidMode)
}
