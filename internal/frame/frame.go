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
	"errors"
	"fmt"
)

// ErrShortFrame is returned when a response is too short to hold a header
var ErrShortFrame = errors.New("frame too short")

// ErrBadChecksum is returned when a frame's CRC does not match
var ErrBadChecksum = errors.New("frame checksum mismatch")

// Frame is one decoded response frame
type Frame struct {
	Data    []byte
	Raw     []byte
	Length  byte
	Address byte
	Command byte
	Status  byte
}

// String returns a short description for logs
func (f Frame) String() string {
	return fmt.Sprintf("cmd=0x%02X status=0x%02X len=%d", f.Command, f.Status, len(f.Data))
}

// BuildCommand builds one host command packet
func BuildCommand(address, command byte, payload []byte) []byte {
	length := byte(len(payload) + 4)
	packet := make([]byte, 0, int(length)+1)
	packet = append(packet, length, address, command)
	packet = append(packet, payload...)
	return AppendCRC(packet)
}

// BuildResponse builds one reader response packet. Readers never need this;
// simulators and tests do.
func BuildResponse(address, command, status byte, data []byte) []byte {
	length := byte(len(data) + 5)
	packet := make([]byte, 0, int(length)+1)
	packet = append(packet, length, address, command, status)
	packet = append(packet, data...)
	return AppendCRC(packet)
}

// AppendCRC appends the CRC of packet, low byte first
func AppendCRC(packet []byte) []byte {
	crc := CRC16(packet)
	return append(packet, byte(crc&0xFF), byte(crc>>8))
}

// VerifyPacket checks the length byte and CRC of a complete packet
func VerifyPacket(packet []byte) bool {
	if len(packet) < MinCommandLength {
		return false
	}
	if int(packet[0])+1 != len(packet) {
		return false
	}
	crc := CRC16(packet[:len(packet)-2])
	return byte(crc&0xFF) == packet[len(packet)-2] && byte(crc>>8) == packet[len(packet)-1]
}

// ParseResponse decodes exactly one response packet
func ParseResponse(packet []byte) (Frame, error) {
	if len(packet) < MinResponseLength {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(packet))
	}
	if !VerifyPacket(packet) {
		return Frame{}, fmt.Errorf("%w: % X", ErrBadChecksum, packet)
	}
	total := len(packet)
	data := make([]byte, total-6)
	copy(data, packet[4:total-2])
	raw := make([]byte, total)
	copy(raw, packet)
	return Frame{
		Length:  packet[0],
		Address: packet[1],
		Command: packet[2],
		Status:  packet[3],
		Data:    data,
		Raw:     raw,
	}, nil
}

// ParseFrames decodes as many valid responses as possible from stream data.
// Garbage is skipped a byte at a time; an incomplete trailing frame is
// returned as remaining.
func ParseFrames(stream []byte) (frames []Frame, remaining []byte) {
	buf := stream
	for len(buf) >= MinResponseLength {
		total := int(buf[0]) + 1
		if total < MinResponseLength {
			buf = buf[1:]
			continue
		}
		if total > len(buf) {
			break
		}
		f, err := ParseResponse(buf[:total])
		if err != nil {
			buf = buf[1:]
			continue
		}
		frames = append(frames, f)
		buf = buf[total:]
	}
	remaining = make([]byte, len(buf))
	copy(remaining, buf)
	return frames, remaining
}

// ParseCommand decodes one host command packet, returning address, command
// and payload. Simulated readers use it to serve requests.
func ParseCommand(packet []byte) (address, command byte, payload []byte, err error) {
	if len(packet) < MinCommandLength {
		return 0, 0, nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(packet))
	}
	if !VerifyPacket(packet) {
		return 0, 0, nil, fmt.Errorf("%w: % X", ErrBadChecksum, packet)
	}
	payload = make([]byte, len(packet)-5)
	copy(payload, packet[3:len(packet)-2])
	return packet[1], packet[2], payload, nil
}
