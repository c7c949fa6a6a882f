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

import "fmt"

// MemoryBank identifies one of the four Gen2 tag memory banks
type MemoryBank int

const (
	MemoryBankReserved MemoryBank = iota
	MemoryBankEPC
	MemoryBankTID
	MemoryBankUser
)

// String returns the bank name
func (b MemoryBank) String() string {
	switch b {
	case MemoryBankReserved:
		return "Reserved"
	case MemoryBankEPC:
		return "Epc"
	case MemoryBankTID:
		return "Tid"
	case MemoryBankUser:
		return "User"
	default:
		return fmt.Sprintf("MemoryBank(%d)", int(b))
	}
}

// Word pointers into the reserved and EPC banks
const (
	WordPointerKillPassword   = 0
	WordPointerAccessPassword = 2
	// WordPointerProtectConfig holds the protected-mode flag on tags that
	// support it
	WordPointerProtectConfig = 4
	// BitPointerEPC is where the EPC starts in the EPC bank, after CRC and PC
	BitPointerEPC = 32
)

// Protected-mode codes written to WordPointerProtectConfig
var (
	ProtectEnabledCode  = MustParseTagData("0002")
	ProtectDisabledCode = MustParseTagData("0000")
)

// OpKind distinguishes tag operations
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
	OpLock
)

// String returns the kind name
func (k OpKind) String() string {
	switch k {
	case OpRead:
		return "Read"
	case OpWrite:
		return "Write"
	case OpLock:
		return "Lock"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// TagOp is one operation of a sequence. The concrete types are ReadOp,
// WriteOp and LockOp.
type TagOp interface {
	Kind() OpKind
	ID() uint16
}

// ReadOp reads WordCount words from Bank starting at WordPointer
type ReadOp struct {
	AccessPassword TagData
	OpID           uint16
	Bank           MemoryBank
	WordPointer    uint16
	WordCount      uint16
}

// Kind implements TagOp
func (ReadOp) Kind() OpKind { return OpRead }

// ID implements TagOp
func (o ReadOp) ID() uint16 { return o.OpID }

// WriteOp writes Data into Bank starting at WordPointer
type WriteOp struct {
	AccessPassword TagData
	Data           TagData
	OpID           uint16
	Bank           MemoryBank
	WordPointer    uint16
}

// Kind implements TagOp
func (WriteOp) Kind() OpKind { return OpWrite }

// ID implements TagOp
func (o WriteOp) ID() uint16 { return o.OpID }

// LockState is the lock action applied to one memory area
type LockState int

const (
	// LockNone leaves the area's lock bits untouched
	LockNone LockState = iota
	// LockUnlock makes the area writable without a password
	LockUnlock
	// LockLock makes the area writable only in the secured state
	LockLock
	// LockPermalock permanently blocks writes
	LockPermalock
	// LockPermaunlock permanently allows writes
	LockPermaunlock
)

// String returns the lock state name
func (s LockState) String() string {
	switch s {
	case LockNone:
		return "None"
	case LockUnlock:
		return "Unlock"
	case LockLock:
		return "Lock"
	case LockPermalock:
		return "Permalock"
	case LockPermaunlock:
		return "Permaunlock"
	default:
		return fmt.Sprintf("LockState(%d)", int(s))
	}
}

// LockOp changes the lock state of one or more memory areas
type LockOp struct {
	AccessPassword     TagData
	OpID               uint16
	KillPasswordLock   LockState
	AccessPasswordLock LockState
	EPCLock            LockState
	TIDLock            LockState
	UserLock           LockState
}

// Kind implements TagOp
func (LockOp) Kind() OpKind { return OpLock }

// ID implements TagOp
func (o LockOp) ID() uint16 { return o.OpID }

// LockArea names a lockable memory area
type LockArea int

const (
	LockAreaKillPassword LockArea = iota
	LockAreaAccessPassword
	LockAreaEPC
	LockAreaTID
	LockAreaUser
)

// LockAction is one area change of a LockOp
type LockAction struct {
	Area  LockArea
	State LockState
}

// Actions returns the areas the op changes, in area order
func (o LockOp) Actions() []LockAction {
	all := []LockAction{
		{Area: LockAreaKillPassword, State: o.KillPasswordLock},
		{Area: LockAreaAccessPassword, State: o.AccessPasswordLock},
		{Area: LockAreaEPC, State: o.EPCLock},
		{Area: LockAreaTID, State: o.TIDLock},
		{Area: LockAreaUser, State: o.UserLock},
	}
	actions := all[:0]
	for _, a := range all {
		if a.State != LockNone {
			actions = append(actions, a)
		}
	}
	return actions
}

// TargetTag selects which tag a sequence runs against. A nil Data matches the
// next tag the reader singulates.
type TargetTag struct {
	Data       TagData
	Bank       MemoryBank
	BitPointer uint16
}

// Matches reports whether a tag with the given EPC and TID is targeted
func (t TargetTag) Matches(epc, tid TagData) bool {
	if len(t.Data) == 0 {
		return true
	}
	var memory TagData
	offset := int(t.BitPointer / 8)
	switch t.Bank {
	case MemoryBankTID:
		memory = tid
	case MemoryBankEPC:
		// reports carry the EPC without its CRC and PC words
		memory = epc
		offset -= BitPointerEPC / 8
	default:
		return false
	}
	if offset < 0 || offset+len(t.Data) > len(memory) {
		return false
	}
	return memory[offset : offset+len(t.Data)].Equal(t.Data)
}

// OperationSequence is the ordered set of operations submitted to the reader
// for one part cycle. It is not modified after submission.
type OperationSequence struct {
	Target TargetTag
	Ops    []TagOp
	ID     uint32
}

// Clone returns a deep copy of the sequence
func (s OperationSequence) Clone() OperationSequence {
	out := OperationSequence{
		ID: s.ID,
		Target: TargetTag{
			Bank:       s.Target.Bank,
			BitPointer: s.Target.BitPointer,
			Data:       s.Target.Data.Clone(),
		},
		Ops: make([]TagOp, 0, len(s.Ops)),
	}
	for _, op := range s.Ops {
		switch o := op.(type) {
		case ReadOp:
			o.AccessPassword = o.AccessPassword.Clone()
			out.Ops = append(out.Ops, o)
		case WriteOp:
			o.AccessPassword = o.AccessPassword.Clone()
			o.Data = o.Data.Clone()
			out.Ops = append(out.Ops, o)
		case LockOp:
			o.AccessPassword = o.AccessPassword.Clone()
			out.Ops = append(out.Ops, o)
		default:
			out.Ops = append(out.Ops, op)
		}
	}
	return out
}
