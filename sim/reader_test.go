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

package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/internal/frame"
	"github.com/ZaparooProject/go-reeltag/transport/reader18"
)

const (
	epcA = "300833B2DDD9014000000001"
	tidA = "E2801105200074C5A1B2"
	epcB = "300833B2DDD9014000000002"
	tidB = "E2801105200074C5A1B3"
)

func call(t *testing.T, r *Reader, cmd byte, payload []byte) []frame.Frame {
	t.Helper()
	var out []frame.Frame
	for _, packet := range r.handle(frame.DefaultAddress, cmd, payload) {
		f, err := frame.ParseResponse(packet)
		require.NoError(t, err)
		out = append(out, f)
	}
	return out
}

func inventoryEPCs(t *testing.T, r *Reader) []string {
	t.Helper()
	req := reader18.InventoryRequest{Q: 4, Antenna: 1, ScanTime: 3}
	var epcs []string
	for _, f := range call(t, r, frame.CmdInventory, req.Encode()) {
		if f.Status == frame.StatusNoTagOrTimeout {
			continue
		}
		tags, err := reader18.DecodeInventoryTags(f.Data)
		require.NoError(t, err)
		for _, tag := range tags {
			epcs = append(epcs, tag.EPC.Hex())
		}
	}
	return epcs
}

func applySelects(t *testing.T, r *Reader, filters []reeltag.TagSelectFilter) {
	t.Helper()
	call(t, r, frame.CmdSelect, reader18.SelectRequest{Action: reader18.ClearSelects}.Encode())
	for _, f := range filters {
		req, err := reader18.NewSelectRequest(f, 1)
		require.NoError(t, err)
		resp := call(t, r, frame.CmdSelect, req.Encode())
		require.Equal(t, frame.StatusSuccess, resp[0].Status)
	}
}

func write(t *testing.T, r *Reader, req reader18.WriteRequest) reeltag.ResultStatus {
	t.Helper()
	payload, err := req.Encode()
	require.NoError(t, err)
	return reader18.ResultStatus(call(t, r, frame.CmdWriteData, payload)[0])
}

func TestInventoryChunksLargePopulations(t *testing.T) {
	t.Parallel()
	r := NewReader(1)
	for i := range 6 {
		r.AddTag(NewTag("30083300000000000000000"+string(rune('0'+i)), tidA))
	}
	frames := call(t, r, frame.CmdInventory, reader18.InventoryRequest{Antenna: 1}.Encode())
	require.Len(t, frames, 2)
	assert.Equal(t, frame.StatusInventoryMore, frames[0].Status)
	assert.Equal(t, frame.StatusInventoryDone, frames[1].Status)
	assert.Len(t, inventoryEPCs(t, r), 6)
}

func TestInventoryAntennaFilter(t *testing.T) {
	t.Parallel()
	r := NewReader(2)
	a := NewTag(epcA, tidA)
	a.Antenna = 2
	r.AddTag(a)
	assert.Empty(t, inventoryEPCs(t, r), "tag sits on antenna 2")

	resp := call(t, r, frame.CmdInventory, reader18.InventoryRequest{Antenna: 3}.Encode())
	assert.Equal(t, frame.StatusAntennaError, resp[0].Status)
}

func TestProtectedTagsNeedPasswordSelect(t *testing.T) {
	t.Parallel()
	r := NewReader(1)
	hidden := NewTag(epcA, tidA)
	hidden.SetAccessPassword(reeltag.MustParseTagData("1234ABCD"))
	copy(hidden.Reserved[protectOffset:], reeltag.ProtectEnabledCode)
	r.AddTag(hidden)
	r.AddTag(NewTag(epcB, tidB))

	assert.Equal(t, []string{epcB}, inventoryEPCs(t, r), "protected tag is silent without selects")

	applySelects(t, r, reeltag.HiddenTagFilters("1234ABCD"))
	assert.Equal(t, []string{epcA}, inventoryEPCs(t, r), "password select reveals it and deselects the rest")

	applySelects(t, r, reeltag.HiddenTagFilters("00001111"))
	assert.Empty(t, inventoryEPCs(t, r), "wrong password")
}

func TestUnprotectThroughHiddenChain(t *testing.T) {
	t.Parallel()
	r := NewReader(1)
	pwd := reeltag.MustParseTagData("1234ABCD")
	tag := NewTag(epcA, tidA)
	tag.SetAccessPassword(pwd)
	copy(tag.Reserved[protectOffset:], reeltag.ProtectEnabledCode)
	r.AddTag(tag)
	applySelects(t, r, reeltag.HiddenTagFilters("1234ABCD"))

	status := write(t, r, reader18.WriteRequest{
		EPC: tag.EPC, Password: pwd, Bank: reeltag.MemoryBankReserved,
		WordPointer: reeltag.WordPointerProtectConfig, Data: reeltag.ProtectDisabledCode,
	})
	require.Equal(t, reeltag.StatusSuccess, status)

	got, ok := r.Tag(tag.TID)
	require.True(t, ok)
	assert.False(t, got.Protected())

	applySelects(t, r, nil)
	assert.Equal(t, []string{epcA}, inventoryEPCs(t, r))
}

func TestWriteRules(t *testing.T) {
	t.Parallel()
	pwd := reeltag.MustParseTagData("CAFEBABE")
	tests := []struct {
		name     string
		setup    func(*Tag)
		req      reader18.WriteRequest
		want     reeltag.ResultStatus
		password string
	}{
		{
			name: "open tag accepts new password",
			req:  reader18.WriteRequest{Bank: reeltag.MemoryBankReserved, WordPointer: 2, Data: pwd},
			want: reeltag.StatusSuccess, password: "CAFEBABE",
		},
		{
			name:  "wrong password",
			setup: func(t *Tag) { t.SetAccessPassword(pwd) },
			req: reader18.WriteRequest{Bank: reeltag.MemoryBankUser, Data: reeltag.TagData{1, 2},
				Password: reeltag.MustParseTagData("00000001")},
			want: reeltag.StatusIncorrectPasswordError, password: "CAFEBABE",
		},
		{
			name: "locked area without password",
			setup: func(t *Tag) {
				t.SetAccessPassword(pwd)
				t.Locks[reeltag.LockAreaAccessPassword] = reeltag.LockLock
			},
			req:  reader18.WriteRequest{Bank: reeltag.MemoryBankReserved, WordPointer: 2, Data: reeltag.TagData{0, 0, 0, 0}},
			want: reeltag.StatusTagMemoryLockedError, password: "CAFEBABE",
		},
		{
			name: "locked area with password",
			setup: func(t *Tag) {
				t.SetAccessPassword(pwd)
				t.Locks[reeltag.LockAreaAccessPassword] = reeltag.LockLock
			},
			req: reader18.WriteRequest{Bank: reeltag.MemoryBankReserved, WordPointer: 2,
				Data: reeltag.TagData{0, 0, 0, 0}, Password: pwd},
			want: reeltag.StatusSuccess, password: "00000000",
		},
		{
			name: "permalocked area",
			setup: func(t *Tag) {
				t.Locks[reeltag.LockAreaAccessPassword] = reeltag.LockPermalock
			},
			req:  reader18.WriteRequest{Bank: reeltag.MemoryBankReserved, WordPointer: 2, Data: pwd},
			want: reeltag.StatusTagMemoryLockedError, password: "00000000",
		},
		{
			name: "protect word needs the secured state",
			setup: func(t *Tag) {
				t.SetAccessPassword(pwd)
			},
			req: reader18.WriteRequest{Bank: reeltag.MemoryBankReserved,
				WordPointer: reeltag.WordPointerProtectConfig, Data: reeltag.ProtectEnabledCode},
			want: reeltag.StatusTagMemoryLockedError, password: "CAFEBABE",
		},
		{
			name: "past the end",
			req:  reader18.WriteRequest{Bank: reeltag.MemoryBankReserved, WordPointer: 5, Data: pwd},
			want: reeltag.StatusTagMemoryOverrunError, password: "00000000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewReader(1)
			tag := NewTag(epcA, tidA)
			if tt.setup != nil {
				tt.setup(tag)
			}
			r.AddTag(tag)
			tt.req.EPC = tag.EPC
			assert.Equal(t, tt.want, write(t, r, tt.req))
			got, _ := r.Tag(tag.TID)
			assert.Equal(t, tt.password, got.AccessPassword().Hex())
		})
	}
}

func TestReadReservedBank(t *testing.T) {
	t.Parallel()
	r := NewReader(1)
	pwd := reeltag.MustParseTagData("CAFEBABE")
	tag := NewTag(epcA, tidA)
	tag.SetAccessPassword(pwd)
	tag.Locks[reeltag.LockAreaAccessPassword] = reeltag.LockLock
	r.AddTag(tag)

	read := func(password reeltag.TagData) frame.Frame {
		payload, err := reader18.ReadRequest{
			EPC: tag.EPC, Password: password, Bank: reeltag.MemoryBankReserved,
			WordPointer: reeltag.WordPointerAccessPassword, WordCount: 2,
		}.Encode()
		require.NoError(t, err)
		return call(t, r, frame.CmdReadData, payload)[0]
	}

	assert.Equal(t, reeltag.StatusTagMemoryLockedError, reader18.ResultStatus(read(nil)))
	f := read(pwd)
	require.Equal(t, reeltag.StatusSuccess, reader18.ResultStatus(f))
	assert.Equal(t, []byte(pwd), f.Data)
}

func TestLockRules(t *testing.T) {
	t.Parallel()
	r := NewReader(1)
	tag := NewTag(epcA, tidA)
	tag.SetAccessPassword(reeltag.MustParseTagData("CAFEBABE"))
	r.AddTag(tag)

	lock := func(state reeltag.LockState, password string) reeltag.ResultStatus {
		payload, err := reader18.LockRequest{
			EPC: tag.EPC, Password: reeltag.MustParseTagData(password),
			Area: reeltag.LockAreaEPC, State: state,
		}.Encode()
		require.NoError(t, err)
		return reader18.ResultStatus(call(t, r, frame.CmdLock, payload)[0])
	}

	assert.Equal(t, reeltag.StatusNonspecificTagError, lock(reeltag.LockLock, "00000000"), "open state cannot lock")
	assert.Equal(t, reeltag.StatusIncorrectPasswordError, lock(reeltag.LockLock, "00000001"))
	assert.Equal(t, reeltag.StatusSuccess, lock(reeltag.LockPermalock, "CAFEBABE"))
	assert.Equal(t, reeltag.StatusTagMemoryLockedError, lock(reeltag.LockUnlock, "CAFEBABE"), "permalock is final")
}

func TestInjectedFailure(t *testing.T) {
	t.Parallel()
	r := NewReader(1)
	tag := NewTag(epcA, tidA)
	r.AddTag(tag)
	r.FailNext(frame.CmdWriteData, reeltag.StatusInsufficientPower)

	req := reader18.WriteRequest{EPC: tag.EPC, Bank: reeltag.MemoryBankUser, Data: reeltag.TagData{1, 2}}
	assert.Equal(t, reeltag.StatusInsufficientPower, write(t, r, req))
	assert.Equal(t, reeltag.StatusSuccess, write(t, r, req), "failure is consumed")
	assert.Equal(t, 2, r.CommandCount(frame.CmdWriteData))
}

func TestMissingTag(t *testing.T) {
	t.Parallel()
	r := NewReader(1)
	req := reader18.WriteRequest{
		EPC: reeltag.MustParseTagData(epcA), Bank: reeltag.MemoryBankUser, Data: reeltag.TagData{1, 2},
	}
	assert.Equal(t, reeltag.StatusNoResponseFromTag, write(t, r, req))
}
