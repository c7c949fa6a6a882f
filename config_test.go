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

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		wantErr error
		cfg     Config
		name    string
		mode    OperationMode
	}{
		{
			name: "inventory defaults",
			mode: ModeInventoryRead,
			cfg:  Config{TagPassword: DefaultTagPassword},
		},
		{
			name: "inventory without password",
			mode: ModeInventoryRead,
			cfg:  Config{},
		},
		{
			name:    "hidden needs password",
			mode:    ModeInventoryReadHidden,
			cfg:     Config{},
			wantErr: ErrInvalidPassword,
		},
		{
			name:    "set password needs new password",
			mode:    ModeSetPassword,
			cfg:     Config{TagPassword: "00000000"},
			wantErr: ErrInvalidPassword,
		},
		{
			name: "set password direct",
			mode: ModeSetPasswordDirect,
			cfg:  Config{NewTagPassword: "11223344"},
		},
		{
			name:    "short password",
			mode:    ModeInventoryRead,
			cfg:     Config{TagPassword: "1122"},
			wantErr: ErrInvalidPassword,
		},
		{
			name:    "non hex password",
			mode:    ModeInventoryRead,
			cfg:     Config{TagPassword: "1122334G"},
			wantErr: ErrInvalidPassword,
		},
		{
			name:    "negative antenna",
			mode:    ModeInventoryRead,
			cfg:     Config{Antenna: -1},
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "negative power",
			mode:    ModeInventoryRead,
			cfg:     Config{TxPowerDbm: -3},
			wantErr: ErrInvalidParameter,
		},
		{
			name:    "unknown mode",
			mode:    OperationMode(99),
			wantErr: ErrInvalidMode,
		},
		{
			name:    "unprotect needs password",
			mode:    ModeProtectTags,
			cfg:     Config{NewTagPassword: "11223344", Enable: false},
			wantErr: ErrInvalidPassword,
		},
		{
			name: "protect without current password",
			mode: ModeProtectTags,
			cfg:  Config{NewTagPassword: "11223344", Enable: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate(tt.mode)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigPasswords(t *testing.T) {
	t.Parallel()

	cfg := Config{TagPassword: "aabbccdd", NewTagPassword: "AABBCCDD"}
	assert.False(t, cfg.PasswordChanges(), "comparison ignores case")

	cfg.NewTagPassword = "11223344"
	assert.True(t, cfg.PasswordChanges())

	pw, err := cfg.Password()
	require.NoError(t, err)
	assert.Equal(t, TagData{0xAA, 0xBB, 0xCC, 0xDD}, pw)

	empty := Config{}
	pw, err = empty.Password()
	require.NoError(t, err)
	assert.Nil(t, pw)
}

func TestConfigIsolatesAntenna(t *testing.T) {
	t.Parallel()

	assert.True(t, (&Config{Antenna: 1, TxPowerDbm: 20}).IsolatesAntenna())
	assert.False(t, (&Config{Antenna: 1}).IsolatesAntenna())
	assert.False(t, (&Config{TxPowerDbm: 20}).IsolatesAntenna())
	assert.False(t, (&Config{}).IsolatesAntenna())
}
