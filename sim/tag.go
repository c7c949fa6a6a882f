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
	"bytes"

	reeltag "github.com/ZaparooProject/go-reeltag"
)

// reserved memory layout in bytes
const (
	reservedSize     = 12
	accessPassOffset = 4
	protectOffset    = 8
)

// epcHeader is the CRC and PC words in front of the EPC in the EPC bank
const epcHeader = 4

// Tag is a virtual Gen2 tag. Antenna 0 makes it visible on every port.
type Tag struct {
	Reserved reeltag.TagData
	EPC      reeltag.TagData
	TID      reeltag.TagData
	User     reeltag.TagData
	Locks    [5]reeltag.LockState
	Antenna  int
	RSSI     byte
}

// NewTag creates an unlocked tag with zero passwords and 64 bytes of user
// memory
func NewTag(epc, tid string) *Tag {
	return &Tag{
		Reserved: make(reeltag.TagData, reservedSize),
		EPC:      reeltag.MustParseTagData(epc),
		TID:      reeltag.MustParseTagData(tid),
		User:     make(reeltag.TagData, 64),
		RSSI:     0x50,
	}
}

// AccessPassword returns the current access password
func (t *Tag) AccessPassword() reeltag.TagData {
	return t.Reserved[accessPassOffset : accessPassOffset+4]
}

// SetAccessPassword overwrites the access password
func (t *Tag) SetAccessPassword(p reeltag.TagData) {
	copy(t.Reserved[accessPassOffset:accessPassOffset+4], p)
}

// Protected reports whether the protect configuration word enables
// protect mode
func (t *Tag) Protected() bool {
	return bytes.Equal(t.Reserved[protectOffset:protectOffset+2], reeltag.ProtectEnabledCode)
}

// Clone returns a deep copy
func (t *Tag) Clone() *Tag {
	c := *t
	c.Reserved = append(reeltag.TagData(nil), t.Reserved...)
	c.EPC = append(reeltag.TagData(nil), t.EPC...)
	c.TID = append(reeltag.TagData(nil), t.TID...)
	c.User = append(reeltag.TagData(nil), t.User...)
	return &c
}

// memory returns a copy of bank as addressed by reads and writes
func (t *Tag) memory(bank reeltag.MemoryBank) reeltag.TagData {
	switch bank {
	case reeltag.MemoryBankReserved:
		return t.Reserved
	case reeltag.MemoryBankEPC:
		pc := byte(len(t.EPC)/2) << 3
		mem := reeltag.TagData{0, 0, pc, 0}
		return append(mem, t.EPC...)
	case reeltag.MemoryBankTID:
		return t.TID
	default:
		return t.User
	}
}

// store writes data into bank at byte offset. The caller has bounds checked.
func (t *Tag) store(bank reeltag.MemoryBank, offset int, data []byte) {
	switch bank {
	case reeltag.MemoryBankReserved:
		copy(t.Reserved[offset:], data)
	case reeltag.MemoryBankEPC:
		mem := t.memory(reeltag.MemoryBankEPC)
		copy(mem[offset:], data)
		t.EPC = append(reeltag.TagData(nil), mem[epcHeader:]...)
	case reeltag.MemoryBankTID:
		copy(t.TID[offset:], data)
	default:
		copy(t.User[offset:], data)
	}
}

// lockArea returns the lock area guarding a write, false when the words
// are not covered by any area
func lockArea(bank reeltag.MemoryBank, wordPointer uint16) (reeltag.LockArea, bool) {
	switch bank {
	case reeltag.MemoryBankReserved:
		switch {
		case wordPointer < reeltag.WordPointerAccessPassword:
			return reeltag.LockAreaKillPassword, true
		case wordPointer < reeltag.WordPointerProtectConfig:
			return reeltag.LockAreaAccessPassword, true
		default:
			return 0, false
		}
	case reeltag.MemoryBankEPC:
		return reeltag.LockAreaEPC, true
	case reeltag.MemoryBankTID:
		return reeltag.LockAreaTID, true
	default:
		return reeltag.LockAreaUser, true
	}
}
