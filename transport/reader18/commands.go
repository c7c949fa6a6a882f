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

package reader18

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/internal/frame"
)

// ErrMalformedPayload is returned when a command or response payload does
// not have the expected layout
var ErrMalformedPayload = errors.New("malformed payload")

// MaxPowerDbm is the highest output power the reader accepts
const MaxPowerDbm = 30

// Inventory targets
const (
	TargetA byte = 0x00
	TargetB byte = 0x01
)

// antennaSelector converts a 1-based antenna port to the inventory antenna
// byte. The high bit tells the reader to use exactly that port.
func antennaSelector(port int) byte {
	return 0x80 | byte(port-1)
}

func antennaFromSelector(b byte) int {
	return int(b&0x7F) + 1
}

// InventoryRequest is the payload of CmdInventory
type InventoryRequest struct {
	Q        byte
	Session  byte
	Target   byte
	Antenna  int
	ScanTime byte
}

// Encode returns the wire payload
func (r InventoryRequest) Encode() []byte {
	return []byte{r.Q, r.Session, r.Target, antennaSelector(r.Antenna), r.ScanTime}
}

// DecodeInventoryRequest parses an inventory payload
func DecodeInventoryRequest(p []byte) (InventoryRequest, error) {
	if len(p) != 5 {
		return InventoryRequest{}, fmt.Errorf("%w: inventory request of %d bytes", ErrMalformedPayload, len(p))
	}
	return InventoryRequest{
		Q:        p[0],
		Session:  p[1],
		Target:   p[2],
		Antenna:  antennaFromSelector(p[3]),
		ScanTime: p[4],
	}, nil
}

// InventoryTag is one tag reported by an inventory round
type InventoryTag struct {
	EPC     reeltag.TagData
	Antenna int
	RSSI    byte
}

// EncodeInventoryTags builds an inventory response payload:
// AntMask(1) TagNum(1) then EpcLen(1) EPC(n) RSSI(1) per tag.
func EncodeInventoryTags(antenna int, tags []InventoryTag) []byte {
	out := []byte{1 << (antenna - 1), byte(len(tags))}
	for _, tag := range tags {
		out = append(out, byte(len(tag.EPC)))
		out = append(out, tag.EPC...)
		out = append(out, tag.RSSI)
	}
	return out
}

// DecodeInventoryTags parses an inventory response payload
func DecodeInventoryTags(data []byte) ([]InventoryTag, error) {
	if len(data) < 2 {
		return nil, nil
	}
	count := int(data[1])
	antenna := antennaFromMask(data[0])
	cursor := 2
	tags := make([]InventoryTag, 0, count)
	for i := range count {
		if cursor >= len(data) {
			return nil, fmt.Errorf("%w: inventory truncated at tag %d", ErrMalformedPayload, i)
		}
		epcLen := int(data[cursor])
		cursor++
		if epcLen == 0 || cursor+epcLen >= len(data) {
			return nil, fmt.Errorf("%w: bad EPC length %d at tag %d", ErrMalformedPayload, epcLen, i)
		}
		epc := make(reeltag.TagData, epcLen)
		copy(epc, data[cursor:cursor+epcLen])
		cursor += epcLen
		tags = append(tags, InventoryTag{EPC: epc, Antenna: antenna, RSSI: data[cursor]})
		cursor++
	}
	return tags, nil
}

func antennaFromMask(mask byte) int {
	for i := range 8 {
		if mask == 1<<i {
			return i + 1
		}
	}
	return int(mask) + 1
}

// password returns the 4 byte access password, zero when none is given
func password(p reeltag.TagData) ([]byte, error) {
	switch len(p) {
	case 0:
		return make([]byte, 4), nil
	case 4:
		return p, nil
	default:
		return nil, fmt.Errorf("%w: access password must be 4 bytes, got %d", reeltag.ErrInvalidPassword, len(p))
	}
}

func appendEPC(out []byte, epc reeltag.TagData) ([]byte, error) {
	if len(epc)%2 != 0 || len(epc) > 62 {
		return nil, fmt.Errorf("%w: EPC of %d bytes", ErrMalformedPayload, len(epc))
	}
	out = append(out, byte(len(epc)/2))
	return append(out, epc...), nil
}

func takeEPC(p []byte) (epc reeltag.TagData, rest []byte, err error) {
	if len(p) < 1 {
		return nil, nil, fmt.Errorf("%w: missing EPC length", ErrMalformedPayload)
	}
	n := int(p[0]) * 2
	if len(p) < 1+n {
		return nil, nil, fmt.Errorf("%w: EPC truncated", ErrMalformedPayload)
	}
	epc = make(reeltag.TagData, n)
	copy(epc, p[1:1+n])
	return epc, p[1+n:], nil
}

// ReadRequest is the payload of CmdReadData
type ReadRequest struct {
	EPC         reeltag.TagData
	Password    reeltag.TagData
	Bank        reeltag.MemoryBank
	WordPointer uint16
	WordCount   uint16
}

// Encode returns the wire payload: ENum EPC Mem WordPtr Num Pwd(4)
func (r ReadRequest) Encode() ([]byte, error) {
	if r.WordPointer > 0xFF || r.WordCount == 0 || r.WordCount > 0x78 {
		return nil, fmt.Errorf("%w: read of %d words at %d", reeltag.ErrInvalidParameter, r.WordCount, r.WordPointer)
	}
	pwd, err := password(r.Password)
	if err != nil {
		return nil, err
	}
	out, err := appendEPC(nil, r.EPC)
	if err != nil {
		return nil, err
	}
	out = append(out, byte(r.Bank), byte(r.WordPointer), byte(r.WordCount))
	return append(out, pwd...), nil
}

// DecodeReadRequest parses a read payload
func DecodeReadRequest(p []byte) (ReadRequest, error) {
	epc, rest, err := takeEPC(p)
	if err != nil {
		return ReadRequest{}, err
	}
	if len(rest) != 7 {
		return ReadRequest{}, fmt.Errorf("%w: read request tail of %d bytes", ErrMalformedPayload, len(rest))
	}
	return ReadRequest{
		EPC:         epc,
		Bank:        reeltag.MemoryBank(rest[0]),
		WordPointer: uint16(rest[1]),
		WordCount:   uint16(rest[2]),
		Password:    reeltag.TagData(rest[3:7]),
	}, nil
}

// WriteRequest is the payload of CmdWriteData
type WriteRequest struct {
	EPC         reeltag.TagData
	Password    reeltag.TagData
	Data        reeltag.TagData
	Bank        reeltag.MemoryBank
	WordPointer uint16
}

// Encode returns the wire payload: WNum ENum EPC Mem WordPtr Data Pwd(4)
func (r WriteRequest) Encode() ([]byte, error) {
	if len(r.Data) == 0 || len(r.Data)%2 != 0 || r.WordPointer > 0xFF {
		return nil, fmt.Errorf("%w: write of %d bytes at %d", reeltag.ErrInvalidParameter, len(r.Data), r.WordPointer)
	}
	pwd, err := password(r.Password)
	if err != nil {
		return nil, err
	}
	out, err := appendEPC([]byte{byte(len(r.Data) / 2)}, r.EPC)
	if err != nil {
		return nil, err
	}
	out = append(out, byte(r.Bank), byte(r.WordPointer))
	out = append(out, r.Data...)
	return append(out, pwd...), nil
}

// DecodeWriteRequest parses a write payload
func DecodeWriteRequest(p []byte) (WriteRequest, error) {
	if len(p) < 1 {
		return WriteRequest{}, fmt.Errorf("%w: empty write request", ErrMalformedPayload)
	}
	words := int(p[0])
	epc, rest, err := takeEPC(p[1:])
	if err != nil {
		return WriteRequest{}, err
	}
	if len(rest) != 2+words*2+4 {
		return WriteRequest{}, fmt.Errorf("%w: write request tail of %d bytes", ErrMalformedPayload, len(rest))
	}
	data := make(reeltag.TagData, words*2)
	copy(data, rest[2:2+words*2])
	return WriteRequest{
		EPC:         epc,
		Bank:        reeltag.MemoryBank(rest[0]),
		WordPointer: uint16(rest[1]),
		Data:        data,
		Password:    reeltag.TagData(rest[2+words*2:]),
	}, nil
}

// Lock protect codes
const (
	ProtectUnlock      byte = 0x00
	ProtectPermaunlock byte = 0x01
	ProtectLock        byte = 0x02
	ProtectPermalock   byte = 0x03
)

// LockRequest is the payload of CmdLock. One request changes one area.
type LockRequest struct {
	EPC      reeltag.TagData
	Password reeltag.TagData
	Area     reeltag.LockArea
	State    reeltag.LockState
}

func protectCode(s reeltag.LockState) (byte, error) {
	switch s {
	case reeltag.LockUnlock:
		return ProtectUnlock, nil
	case reeltag.LockPermaunlock:
		return ProtectPermaunlock, nil
	case reeltag.LockLock:
		return ProtectLock, nil
	case reeltag.LockPermalock:
		return ProtectPermalock, nil
	default:
		return 0, fmt.Errorf("%w: lock state %s", reeltag.ErrInvalidParameter, s)
	}
}

func lockStateFromCode(b byte) (reeltag.LockState, error) {
	switch b {
	case ProtectUnlock:
		return reeltag.LockUnlock, nil
	case ProtectPermaunlock:
		return reeltag.LockPermaunlock, nil
	case ProtectLock:
		return reeltag.LockLock, nil
	case ProtectPermalock:
		return reeltag.LockPermalock, nil
	default:
		return reeltag.LockNone, fmt.Errorf("%w: protect code 0x%02X", ErrMalformedPayload, b)
	}
}

// Encode returns the wire payload: ENum EPC Select SetProtect Pwd(4)
func (r LockRequest) Encode() ([]byte, error) {
	code, err := protectCode(r.State)
	if err != nil {
		return nil, err
	}
	pwd, err := password(r.Password)
	if err != nil {
		return nil, err
	}
	out, err := appendEPC(nil, r.EPC)
	if err != nil {
		return nil, err
	}
	out = append(out, byte(r.Area), code)
	return append(out, pwd...), nil
}

// DecodeLockRequest parses a lock payload
func DecodeLockRequest(p []byte) (LockRequest, error) {
	epc, rest, err := takeEPC(p)
	if err != nil {
		return LockRequest{}, err
	}
	if len(rest) != 6 {
		return LockRequest{}, fmt.Errorf("%w: lock request tail of %d bytes", ErrMalformedPayload, len(rest))
	}
	state, err := lockStateFromCode(rest[1])
	if err != nil {
		return LockRequest{}, err
	}
	return LockRequest{
		EPC:      epc,
		Area:     reeltag.LockArea(rest[0]),
		State:    state,
		Password: reeltag.TagData(rest[2:6]),
	}, nil
}

// SelectRequest is the payload of CmdSelect. The reader keeps the selects
// it receives and applies them in order before every inventory round.
type SelectRequest struct {
	Mask       []byte
	Bank       reeltag.MemoryBank
	BitPointer uint16
	BitCount   byte
	Action     byte
	Session    byte
}

// ClearSelects is the action byte that drops every stored select
const ClearSelects byte = 0xFF

// Encode returns the wire payload: Session Action Mem Ptr(2, big endian)
// BitLen Mask
func (r SelectRequest) Encode() []byte {
	out := []byte{r.Session, r.Action, byte(r.Bank), byte(r.BitPointer >> 8), byte(r.BitPointer), r.BitCount}
	return append(out, r.Mask...)
}

// DecodeSelectRequest parses a select payload
func DecodeSelectRequest(p []byte) (SelectRequest, error) {
	if len(p) < 6 {
		return SelectRequest{}, fmt.Errorf("%w: select request of %d bytes", ErrMalformedPayload, len(p))
	}
	r := SelectRequest{
		Session:    p[0],
		Action:     p[1],
		Bank:       reeltag.MemoryBank(p[2]),
		BitPointer: uint16(p[3])<<8 | uint16(p[4]),
		BitCount:   p[5],
	}
	if want := (int(r.BitCount) + 7) / 8; len(p)-6 != want {
		return SelectRequest{}, fmt.Errorf("%w: mask of %d bytes for %d bits", ErrMalformedPayload, len(p)-6, r.BitCount)
	}
	r.Mask = append([]byte(nil), p[6:]...)
	return r, nil
}

// SelectAction returns the Gen2 select action for a match/no-match pair
func SelectAction(match, noMatch reeltag.FilterAction) (byte, error) {
	type pair struct{ m, n reeltag.FilterAction }
	actions := map[pair]byte{
		{reeltag.FilterSelect, reeltag.FilterUnselect}:    0,
		{reeltag.FilterSelect, reeltag.FilterDoNothing}:   1,
		{reeltag.FilterDoNothing, reeltag.FilterUnselect}: 2,
		{reeltag.FilterUnselect, reeltag.FilterSelect}:    4,
		{reeltag.FilterUnselect, reeltag.FilterDoNothing}: 5,
		{reeltag.FilterDoNothing, reeltag.FilterSelect}:   6,
	}
	a, ok := actions[pair{match, noMatch}]
	if !ok {
		return 0, fmt.Errorf("%w: match=%s no-match=%s", reeltag.ErrUnsupportedFilter, match, noMatch)
	}
	return a, nil
}

// ApplySelectAction applies action to the select flag of one tag
func ApplySelectAction(action byte, matched, flag bool) bool {
	if matched {
		switch action {
		case 0, 1:
			return true
		case 4, 5:
			return false
		}
		return flag
	}
	switch action {
	case 0, 2:
		return false
	case 4, 6:
		return true
	}
	return flag
}

// NewSelectRequest converts a tag select filter
func NewSelectRequest(f reeltag.TagSelectFilter, session int) (SelectRequest, error) {
	action, err := SelectAction(f.MatchAction, f.NoMatch)
	if err != nil {
		return SelectRequest{}, err
	}
	if f.BitCount == 0 || f.BitCount > 0xFF {
		return SelectRequest{}, fmt.Errorf("%w: bit count %d", reeltag.ErrUnsupportedFilter, f.BitCount)
	}
	maskHex := strings.ReplaceAll(strings.TrimSpace(f.Mask), " ", "")
	if len(maskHex)%2 != 0 {
		maskHex += "0"
	}
	mask, err := hex.DecodeString(maskHex)
	if err != nil {
		return SelectRequest{}, fmt.Errorf("%w: mask %q: %w", reeltag.ErrUnsupportedFilter, f.Mask, err)
	}
	if len(mask) != (int(f.BitCount)+7)/8 {
		return SelectRequest{}, fmt.Errorf("%w: mask %q does not cover %d bits", reeltag.ErrUnsupportedFilter, f.Mask, f.BitCount)
	}
	return SelectRequest{
		Session:    byte(session),
		Action:     action,
		Bank:       f.Bank,
		BitPointer: f.BitPointer,
		BitCount:   byte(f.BitCount),
		Mask:       mask,
	}, nil
}

// MaskMatches reports whether the first bits of memory starting at pointer
// equal mask
func MaskMatches(memory []byte, pointer uint16, bits byte, mask []byte) bool {
	for i := range int(bits) {
		pos := int(pointer) + i
		if pos/8 >= len(memory) || i/8 >= len(mask) {
			return false
		}
		got := memory[pos/8] >> (7 - pos%8) & 1
		want := mask[i/8] >> (7 - i%8) & 1
		if got != want {
			return false
		}
	}
	return true
}

// ResultStatus maps a tag access response to a result status
func ResultStatus(f frame.Frame) reeltag.ResultStatus {
	switch f.Status {
	case frame.StatusSuccess:
		return reeltag.StatusSuccess
	case frame.StatusPasswordError:
		return reeltag.StatusIncorrectPasswordError
	case frame.StatusNoTagOrTimeout:
		return reeltag.StatusNoResponseFromTag
	case frame.StatusTagError:
		if len(f.Data) == 0 {
			return reeltag.StatusNonspecificTagError
		}
		switch f.Data[0] {
		case frame.TagErrorMemoryOverrun:
			return reeltag.StatusTagMemoryOverrunError
		case frame.TagErrorMemoryLocked:
			return reeltag.StatusTagMemoryLockedError
		case frame.TagErrorInsufficientPower:
			return reeltag.StatusInsufficientPower
		default:
			return reeltag.StatusNonspecificTagError
		}
	default:
		return reeltag.StatusNonspecificReaderError
	}
}

// StatusFrame is the inverse of ResultStatus: the status byte and data a
// reader answers with for s
func StatusFrame(s reeltag.ResultStatus) (status byte, data []byte) {
	switch s {
	case reeltag.StatusSuccess:
		return frame.StatusSuccess, nil
	case reeltag.StatusIncorrectPasswordError:
		return frame.StatusPasswordError, nil
	case reeltag.StatusNoResponseFromTag:
		return frame.StatusNoTagOrTimeout, nil
	case reeltag.StatusTagMemoryOverrunError:
		return frame.StatusTagError, []byte{frame.TagErrorMemoryOverrun}
	case reeltag.StatusTagMemoryLockedError:
		return frame.StatusTagError, []byte{frame.TagErrorMemoryLocked}
	case reeltag.StatusInsufficientPower:
		return frame.StatusTagError, []byte{frame.TagErrorInsufficientPower}
	case reeltag.StatusNonspecificTagError:
		return frame.StatusTagError, []byte{frame.TagErrorNonspecific}
	default:
		return frame.StatusExecuteError, nil
	}
}

// ReaderInfo is the decoded CmdGetReaderInfo response
type ReaderInfo struct {
	Version     uint16
	Type        byte
	Protocols   byte
	MaxFreq     byte
	MinFreq     byte
	PowerDbm    byte
	ScanTime    byte
	AntennaMask byte
}

// Encode returns the response payload
func (i ReaderInfo) Encode() []byte {
	return []byte{
		byte(i.Version >> 8), byte(i.Version), i.Type, i.Protocols,
		i.MaxFreq, i.MinFreq, i.PowerDbm, i.ScanTime, i.AntennaMask,
	}
}

// Antennas returns the number of antenna ports in the mask, at least one
func (i ReaderInfo) Antennas() int {
	n := 0
	for m := i.AntennaMask; m != 0; m >>= 1 {
		n++
	}
	return max(n, 1)
}

// DecodeReaderInfo parses a reader info response payload. Firmware that
// omits the antenna mask reports a single antenna.
func DecodeReaderInfo(data []byte) (ReaderInfo, error) {
	if len(data) < 8 {
		return ReaderInfo{}, fmt.Errorf("%w: reader info of %d bytes", ErrMalformedPayload, len(data))
	}
	info := ReaderInfo{
		Version:   uint16(data[0])<<8 | uint16(data[1]),
		Type:      data[2],
		Protocols: data[3],
		MaxFreq:   data[4],
		MinFreq:   data[5],
		PowerDbm:  data[6],
		ScanTime:  data[7],
	}
	if len(data) > 8 {
		info.AntennaMask = data[8]
	} else {
		info.AntennaMask = 0x01
	}
	return info, nil
}

// EncodePower returns the CmdSetOutputPower payload, one byte per antenna
// port in port order. Disabled ports get zero.
func EncodePower(settings *reeltag.Settings, ports int) []byte {
	out := make([]byte, ports)
	for _, a := range settings.Antennas {
		if a.Port < 1 || a.Port > ports || !a.Enabled {
			continue
		}
		if a.MaxPower {
			out[a.Port-1] = MaxPowerDbm
			continue
		}
		out[a.Port-1] = byte(min(max(a.TxPowerDbm, 0), MaxPowerDbm))
	}
	return out
}

// AntennaMask returns the CmdSetAntennaMux payload byte
func AntennaMask(ports []int) byte {
	var mask byte
	for _, p := range ports {
		if p >= 1 && p <= 8 {
			mask |= 1 << (p - 1)
		}
	}
	return mask
}

// pinBit is the bit for a 1-based GPIO pin in the CmdSetGPIO and
// CmdGetGPIO masks
func pinBit(pin int) byte {
	if pin < 1 || pin > 8 {
		return 0
	}
	return 1 << (pin - 1)
}
