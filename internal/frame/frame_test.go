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

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload []byte
		want    []byte
		address byte
		command byte
	}{
		{
			name:    "inventory",
			address: 0x00,
			command: CmdInventory,
			want:    []byte{0x04, 0x00, 0x01, 0xDB, 0x4B},
		},
		{
			name:    "reader info",
			address: 0x00,
			command: CmdGetReaderInfo,
			want:    []byte{0x04, 0x00, 0x21, 0xD9, 0x6A},
		},
		{
			name:    "broadcast inventory",
			address: BroadcastAddress,
			command: CmdInventory,
			want:    []byte{0x04, 0xFF, 0x01, 0x1B, 0xB4},
		},
		{
			name:    "inventory with tid window",
			address: 0x00,
			command: CmdInventory,
			payload: []byte{0x00, 0x01},
			want:    []byte{0x06, 0x00, 0x01, 0x00, 0x01, 0x45, 0x40},
		},
		{
			name:    "inventory with session and antenna",
			address: 0x00,
			command: CmdInventory,
			payload: []byte{0x04, 0x01, 0x00, 0x80, 0x0A},
			want:    []byte{0x09, 0x00, 0x01, 0x04, 0x01, 0x00, 0x80, 0x0A, 0x99, 0xC6},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := BuildCommand(tt.address, tt.command, tt.payload)
			assert.Equal(t, tt.want, got)
			assert.True(t, VerifyPacket(got))
		})
	}
}

func TestCRC16(t *testing.T) {
	t.Parallel()

	// CRC-16/MCRF4XX check value
	assert.Equal(t, uint16(0x6F91), CRC16([]byte("123456789")))
	assert.Equal(t, uint16(0xFFFF), CRC16(nil))
}

func TestVerifyPacket(t *testing.T) {
	t.Parallel()

	good := BuildCommand(0x00, CmdSetOutputPower, []byte{0x1E})
	assert.True(t, VerifyPacket(good))

	corrupted := append([]byte(nil), good...)
	corrupted[3] ^= 0x01
	assert.False(t, VerifyPacket(corrupted))

	assert.False(t, VerifyPacket(good[:len(good)-1]), "length byte mismatch")
	assert.False(t, VerifyPacket([]byte{0x03, 0x00, 0x01}))
}

func TestParseResponse(t *testing.T) {
	t.Parallel()

	packet := BuildResponse(0x00, CmdReadData, StatusSuccess, []byte{0x12, 0x34, 0x56, 0x78})
	f, err := ParseResponse(packet)
	require.NoError(t, err)
	assert.Equal(t, CmdReadData, f.Command)
	assert.Equal(t, StatusSuccess, f.Status)
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, f.Data)
	assert.Equal(t, packet, f.Raw)
	assert.Contains(t, f.String(), "cmd=0x02")

	packet[4] ^= 0xFF
	_, err = ParseResponse(packet)
	require.ErrorIs(t, err, ErrBadChecksum)

	_, err = ParseResponse([]byte{0x04, 0x00})
	require.ErrorIs(t, err, ErrShortFrame)
}

func TestParseFrames(t *testing.T) {
	t.Parallel()

	frame1 := BuildResponse(0x00, CmdInventory, StatusInventoryDone, []byte{0x01, 0x01, 0x02, 0xAA, 0xBB, 0x40})
	frame2 := BuildResponse(0x00, CmdGetGPIO, StatusSuccess, []byte{0x01})
	partial := BuildResponse(0x00, CmdGetReaderInfo, StatusSuccess, []byte{0x10, 0x20})

	var stream []byte
	stream = append(stream, 0x00, 0x13) // line noise
	stream = append(stream, frame1...)
	stream = append(stream, frame2...)
	stream = append(stream, partial[:4]...)

	frames, remaining := ParseFrames(stream)
	require.Len(t, frames, 2)
	assert.Equal(t, CmdInventory, frames[0].Command)
	assert.Equal(t, CmdGetGPIO, frames[1].Command)
	assert.Equal(t, partial[:4], remaining)

	frames, remaining = ParseFrames(append(remaining, partial[4:]...))
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{0x10, 0x20}, frames[0].Data)
	assert.Empty(t, remaining)

	frames, remaining = ParseFrames(nil)
	assert.Empty(t, frames)
	assert.Empty(t, remaining)
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	addr, cmd, payload, err := ParseCommand(BuildCommand(0x03, CmdSetGPIO, []byte{0x02}))
	require.NoError(t, err)
	assert.Equal(t, byte(0x03), addr)
	assert.Equal(t, CmdSetGPIO, cmd)
	assert.Equal(t, []byte{0x02}, payload)

	addr, cmd, payload, err = ParseCommand(BuildCommand(0x00, CmdInventory, nil))
	require.NoError(t, err)
	assert.Equal(t, byte(0x00), addr)
	assert.Equal(t, CmdInventory, cmd)
	assert.Empty(t, payload)

	_, _, _, err = ParseCommand([]byte{0x04, 0x00, 0x01, 0x00, 0x00})
	require.ErrorIs(t, err, ErrBadChecksum)
}
