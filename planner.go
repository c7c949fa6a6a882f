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

// Reserved-bank word range read by the inventory modes: the access password
const (
	inventoryReadPointer = WordPointerAccessPassword
	inventoryReadWords   = 2
)

// PlanOperations builds the operation sequence for one part cycle. tid is the
// discovered tag's TID for discovery modes and is ignored by direct modes.
// The sequence ID is left zero for the caller to assign. The result depends
// only on the arguments.
func PlanOperations(mode OperationMode, tid TagIdentity, cfg *Config) (OperationSequence, error) {
	if !mode.Valid() {
		return OperationSequence{}, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if mode.IsDiscovery() && len(tid) == 0 {
		return OperationSequence{}, fmt.Errorf("%w: %s needs a discovered TID", ErrInvalidParameter, mode)
	}
	password, err := cfg.Password()
	if err != nil {
		return OperationSequence{}, err
	}
	newPassword, err := cfg.NewPassword()
	if err != nil {
		return OperationSequence{}, err
	}

	p := &plan{}
	if mode.IsDiscovery() {
		p.seq.Target = TargetTag{Bank: MemoryBankTID, BitPointer: 0, Data: tid.Clone()}
	} else {
		p.seq.Target = TargetTag{Bank: MemoryBankEPC, BitPointer: BitPointerEPC}
	}

	switch mode {
	case ModeInventoryRead, ModeInventoryReadHidden:
		p.add(ReadOp{
			Bank:           MemoryBankReserved,
			WordPointer:    inventoryReadPointer,
			WordCount:      inventoryReadWords,
			AccessPassword: password.Clone(),
		})

	case ModeSetPassword:
		if newPassword == nil {
			return OperationSequence{}, fmt.Errorf("%w: %s needs a new tag password", ErrInvalidPassword, mode)
		}
		var access TagData
		if !password.IsZero() {
			access = password.Clone()
		}
		if cfg.PasswordChanges() {
			p.add(writePassword(newPassword, access))
		}
		p.add(lockPassword(newPassword.Clone()))

	case ModeSetPasswordDirect:
		if newPassword == nil {
			return OperationSequence{}, fmt.Errorf("%w: %s needs a new tag password", ErrInvalidPassword, mode)
		}
		p.add(writePassword(newPassword, nil))
		p.add(lockPassword(nil))

	case ModeProtectTags:
		if newPassword == nil {
			return OperationSequence{}, fmt.Errorf("%w: %s needs a new tag password", ErrInvalidPassword, mode)
		}
		if cfg.PasswordChanges() {
			p.add(writePassword(newPassword, password.Clone()))
		}
		p.add(writeProtect(cfg.Enable, newPassword.Clone()))

	case ModeProtectTagsDirect:
		p.add(writeProtect(cfg.Enable, password.Clone()))

	case ModeUnlockTags:
		p.add(writeProtect(false, password.Clone()))
	}
	return p.seq, nil
}

type plan struct {
	seq OperationSequence
}

// add assigns the next op ID, starting at 1
func (p *plan) add(op TagOp) {
	id := uint16(len(p.seq.Ops) + 1)
	switch o := op.(type) {
	case ReadOp:
		o.OpID = id
		op = o
	case WriteOp:
		o.OpID = id
		op = o
	case LockOp:
		o.OpID = id
		op = o
	}
	p.seq.Ops = append(p.seq.Ops, op)
}

func writePassword(newPassword, access TagData) WriteOp {
	return WriteOp{
		Bank:           MemoryBankReserved,
		WordPointer:    WordPointerAccessPassword,
		Data:           newPassword.Clone(),
		AccessPassword: access,
	}
}

func lockPassword(access TagData) LockOp {
	return LockOp{
		AccessPassword:     access,
		AccessPasswordLock: LockLock,
		EPCLock:            LockLock,
	}
}

func writeProtect(enable bool, access TagData) WriteOp {
	code := ProtectDisabledCode
	if enable {
		code = ProtectEnabledCode
	}
	return WriteOp{
		Bank:           MemoryBankReserved,
		WordPointer:    WordPointerProtectConfig,
		Data:           code.Clone(),
		AccessPassword: access,
	}
}
