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

// Package frame provides framing and protocol constants for UHFReader18
// family readers.
//
// A host command is Len(1) Adr(1) Cmd(1) Data(n) CRC(2) and a reader
// response is Len(1) Adr(1) Cmd(1) Status(1) Data(n) CRC(2). Len counts the
// bytes after itself. The CRC is CRC-16/MCRF4XX sent low byte first.
package frame

// Command codes
const (
	CmdInventory       byte = 0x01
	CmdReadData        byte = 0x02
	CmdWriteData       byte = 0x03
	CmdLock            byte = 0x06
	CmdGetReaderInfo   byte = 0x21
	CmdSetOutputPower  byte = 0x2F
	CmdSetAntennaMux   byte = 0x3F
	CmdSetGPIO         byte = 0x46
	CmdGetGPIO         byte = 0x47
	CmdSelect          byte = 0x9A
)

// Response status codes
const (
	StatusSuccess        byte = 0x00
	StatusInventoryDone  byte = 0x01
	StatusInventoryTime  byte = 0x02
	StatusInventoryMore  byte = 0x03
	StatusPasswordError  byte = 0x05
	StatusAntennaError   byte = 0xF8
	StatusExecuteError   byte = 0xF9
	StatusNoTagOrTimeout byte = 0xFB
	StatusTagError       byte = 0xFC
	StatusCmdLength      byte = 0xFD
	StatusCmdError       byte = 0xFE
	StatusCRCError       byte = 0xFF
)

// Tag error codes carried in the first data byte of StatusTagError
const (
	TagErrorOther             byte = 0x00
	TagErrorMemoryOverrun     byte = 0x03
	TagErrorMemoryLocked      byte = 0x04
	TagErrorInsufficientPower byte = 0x0B
	TagErrorNonspecific       byte = 0x0F
)

// Reader addresses
const (
	DefaultAddress   byte = 0x00
	BroadcastAddress byte = 0xFF
)

// Frame size limits
const (
	MinCommandLength  = 5
	MinResponseLength = 6
	MaxFrameLength    = 256
)
