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

// Package sim provides a virtual reader for tests and dry runs. It speaks
// the reader18 frame protocol over an in-memory pipe and keeps a set of
// virtual tags whose memory, passwords, locks and protect mode behave like
// Gen2 tags.
package sim

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/internal/frame"
	"github.com/ZaparooProject/go-reeltag/transport/reader18"
)

// framesPerChunk is how many tags go into one inventory response frame
const framesPerChunk = 4

// Reader is a virtual reader. It can serve any number of connections, all
// sharing the same tags and I/O state.
type Reader struct {
	failures map[byte][]reeltag.ResultStatus
	stalls   map[byte]*stall
	commands map[byte]int
	tags     []*Tag
	selects  []reader18.SelectRequest
	power    []byte
	info     reader18.ReaderInfo
	mu       sync.Mutex
	inputs   byte
	outputs  byte
	antennas byte
}

// NewReader creates a reader with the given number of antenna ports
func NewReader(antennas int) *Reader {
	antennas = min(max(antennas, 1), 8)
	return &Reader{
		failures: make(map[byte][]reeltag.ResultStatus),
		stalls:   make(map[byte]*stall),
		commands: make(map[byte]int),
		antennas: byte(1<<antennas - 1),
		info: reader18.ReaderInfo{
			Version:     0x0301,
			Type:        0x09,
			Protocols:   0x02,
			MaxFreq:     0x31,
			MinFreq:     0x80,
			PowerDbm:    reader18.MaxPowerDbm,
			ScanTime:    0x0A,
			AntennaMask: byte(1<<antennas - 1),
		},
	}
}

// Dialer returns a dialer that connects sessions to this reader
func (r *Reader) Dialer() reader18.Dialer {
	return func(_ context.Context, _ string, _ reader18.PortOptions) (reader18.Port, error) {
		client, server := net.Pipe()
		go r.serve(server)
		return client, nil
	}
}

// Factory returns a session factory whose sessions talk to this reader
func (r *Reader) Factory(opts ...reader18.Option) reeltag.SessionFactory {
	return reader18.Factory(append(opts, reader18.WithDialer(r.Dialer()))...)
}

// AddTag places a tag in the field
func (r *Reader) AddTag(t *Tag) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, t)
}

// RemoveTag takes the tag with epc out of the field
func (r *Reader) RemoveTag(epc reeltag.TagData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tags[:0]
	for _, t := range r.tags {
		if !t.EPC.Equal(epc) {
			kept = append(kept, t)
		}
	}
	r.tags = kept
}

// ClearTags empties the field
func (r *Reader) ClearTags() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = nil
}

// Tag returns a copy of the tag whose TID is tid
func (r *Reader) Tag(tid reeltag.TagData) (*Tag, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tags {
		if t.TID.Equal(tid) {
			return t.Clone(), true
		}
	}
	return nil, false
}

// SetInput drives a digital input as seen by the reader
func (r *Reader) SetInput(pin int, level bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bit := byte(1) << (pin - 1)
	if level {
		r.inputs |= bit
	} else {
		r.inputs &^= bit
	}
}

// Output returns the level of an output pin
func (r *Reader) Output(pin int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outputs&(1<<(pin-1)) != 0
}

// Power returns the per-port output power last set
func (r *Reader) Power() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.power...)
}

// Selects returns the stored select chain
func (r *Reader) Selects() []reader18.SelectRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reader18.SelectRequest(nil), r.selects...)
}

// CommandCount returns how often cmd was received
func (r *Reader) CommandCount(cmd byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commands[cmd]
}

// FailNext makes the next tag access of cmd answer with status
func (r *Reader) FailNext(cmd byte, status reeltag.ResultStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[cmd] = append(r.failures[cmd], status)
}

// stall holds one command until released
type stall struct {
	reached chan struct{}
	release chan struct{}
	skip    int
}

// StallAfter lets skip more cmd commands through and then holds the next
// one, with no answer on that connection, until release is called. reached
// is closed when the held command arrives.
func (r *Reader) StallAfter(cmd byte, skip int) (reached <-chan struct{}, release func()) {
	st := &stall{reached: make(chan struct{}), release: make(chan struct{}), skip: skip}
	r.mu.Lock()
	r.stalls[cmd] = st
	r.mu.Unlock()
	return st.reached, sync.OnceFunc(func() { close(st.release) })
}

// hold blocks while cmd is stalled
func (r *Reader) hold(cmd byte) {
	r.mu.Lock()
	st := r.stalls[cmd]
	if st == nil {
		r.mu.Unlock()
		return
	}
	if st.skip > 0 {
		st.skip--
		r.mu.Unlock()
		return
	}
	delete(r.stalls, cmd)
	r.mu.Unlock()
	close(st.reached)
	<-st.release
}

func (r *Reader) serve(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	buf := make([]byte, 512)
	var pending []byte
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				reeltag.Logger().Debug("sim connection ended", "error", err)
			}
			return
		}
		pending = append(pending, buf[:n]...)
		for len(pending) > 0 {
			total := int(pending[0]) + 1
			if total < frame.MinCommandLength {
				pending = pending[1:]
				continue
			}
			if total > len(pending) {
				break
			}
			addr, cmd, payload, err := frame.ParseCommand(pending[:total])
			if err != nil {
				pending = pending[1:]
				continue
			}
			pending = pending[total:]
			r.hold(cmd)
			for _, resp := range r.handle(addr, cmd, payload) {
				if _, err := conn.Write(resp); err != nil {
					return
				}
			}
		}
	}
}

func (r *Reader) handle(addr, cmd byte, payload []byte) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd]++

	reply := func(status byte, data []byte) [][]byte {
		return [][]byte{frame.BuildResponse(addr, cmd, status, data)}
	}
	switch cmd {
	case frame.CmdGetReaderInfo:
		return reply(frame.StatusSuccess, r.info.Encode())
	case frame.CmdSetOutputPower:
		r.power = append([]byte(nil), payload...)
		return reply(frame.StatusSuccess, nil)
	case frame.CmdSetAntennaMux:
		if len(payload) != 1 || payload[0]&^r.antennas != 0 {
			return reply(frame.StatusCmdError, nil)
		}
		return reply(frame.StatusSuccess, nil)
	case frame.CmdSelect:
		req, err := reader18.DecodeSelectRequest(payload)
		if err != nil {
			return reply(frame.StatusCmdLength, nil)
		}
		if req.Action == reader18.ClearSelects {
			r.selects = nil
		} else {
			r.selects = append(r.selects, req)
		}
		return reply(frame.StatusSuccess, nil)
	case frame.CmdSetGPIO:
		if len(payload) != 1 {
			return reply(frame.StatusCmdLength, nil)
		}
		r.outputs = payload[0]
		return reply(frame.StatusSuccess, nil)
	case frame.CmdGetGPIO:
		return reply(frame.StatusSuccess, []byte{r.inputs, r.outputs})
	case frame.CmdInventory:
		return r.inventory(addr, payload)
	case frame.CmdReadData:
		status, data := r.read(payload)
		return reply(status, data)
	case frame.CmdWriteData:
		return reply(r.write(payload))
	case frame.CmdLock:
		return reply(r.lock(payload))
	default:
		return reply(frame.StatusCmdError, nil)
	}
}

func (r *Reader) inventory(addr byte, payload []byte) [][]byte {
	req, err := reader18.DecodeInventoryRequest(payload)
	if err != nil {
		return [][]byte{frame.BuildResponse(addr, frame.CmdInventory, frame.StatusCmdLength, nil)}
	}
	if r.antennas&(1<<(req.Antenna-1)) == 0 {
		return [][]byte{frame.BuildResponse(addr, frame.CmdInventory, frame.StatusAntennaError, nil)}
	}

	var found []reader18.InventoryTag
	for _, t := range r.tags {
		if t.Antenna != 0 && t.Antenna != req.Antenna {
			continue
		}
		if !r.selected(t) {
			continue
		}
		found = append(found, reader18.InventoryTag{EPC: t.EPC, Antenna: req.Antenna, RSSI: t.RSSI})
	}
	if len(found) == 0 {
		return [][]byte{frame.BuildResponse(addr, frame.CmdInventory, frame.StatusNoTagOrTimeout, nil)}
	}

	var out [][]byte
	for start := 0; start < len(found); start += framesPerChunk {
		end := min(start+framesPerChunk, len(found))
		status := frame.StatusInventoryMore
		if end == len(found) {
			status = frame.StatusInventoryDone
		}
		data := reader18.EncodeInventoryTags(req.Antenna, found[start:end])
		out = append(out, frame.BuildResponse(addr, frame.CmdInventory, status, data))
	}
	return out
}

// selected runs the select chain against t. Without selects every
// unprotected tag answers. A protected tag only answers when a select on
// the first 32 bits of user memory carries its access password, and it
// answers that select as if matched.
func (r *Reader) selected(t *Tag) bool {
	if len(r.selects) == 0 {
		return !t.Protected()
	}
	flag := false
	unlocked := false
	for _, s := range r.selects {
		matched := reader18.MaskMatches(t.memory(s.Bank), s.BitPointer, s.BitCount, s.Mask)
		if t.Protected() && isPasswordSelect(s) {
			matched = !t.AccessPassword().IsZero() && bytes.Equal(s.Mask, t.AccessPassword())
			unlocked = unlocked || matched
		}
		flag = reader18.ApplySelectAction(s.Action, matched, flag)
	}
	if t.Protected() && !unlocked {
		return false
	}
	return flag
}

func isPasswordSelect(s reader18.SelectRequest) bool {
	return s.Bank == reeltag.MemoryBankUser && s.BitPointer == 0 && s.BitCount == 32
}

// find returns the visible tag with epc
func (r *Reader) find(epc reeltag.TagData) *Tag {
	for _, t := range r.tags {
		if t.EPC.Equal(epc) && r.selected(t) {
			return t
		}
	}
	return nil
}

func (r *Reader) injected(cmd byte) (reeltag.ResultStatus, bool) {
	queue := r.failures[cmd]
	if len(queue) == 0 {
		return reeltag.StatusSuccess, false
	}
	r.failures[cmd] = queue[1:]
	return queue[0], true
}

// authorize checks a supplied access password. secured is true when the
// tag is in the Gen2 secured state afterwards.
func authorize(t *Tag, pwd reeltag.TagData) (secured bool, status reeltag.ResultStatus) {
	if t.AccessPassword().IsZero() {
		return true, reeltag.StatusSuccess
	}
	if pwd.IsZero() {
		return false, reeltag.StatusSuccess
	}
	if !pwd.Equal(t.AccessPassword()) {
		return false, reeltag.StatusIncorrectPasswordError
	}
	return true, reeltag.StatusSuccess
}

func statusFrame(s reeltag.ResultStatus) (byte, []byte) {
	return reader18.StatusFrame(s)
}

func (r *Reader) read(payload []byte) (byte, []byte) {
	req, err := reader18.DecodeReadRequest(payload)
	if err != nil {
		return frame.StatusCmdLength, nil
	}
	if s, ok := r.injected(frame.CmdReadData); ok {
		return statusFrame(s)
	}
	t := r.find(req.EPC)
	if t == nil {
		return statusFrame(reeltag.StatusNoResponseFromTag)
	}
	secured, status := authorize(t, req.Password)
	if !status.OK() {
		return statusFrame(status)
	}
	if req.Bank == reeltag.MemoryBankReserved && !secured {
		if area, ok := lockArea(req.Bank, req.WordPointer); ok && t.Locks[area] != reeltag.LockNone &&
			t.Locks[area] != reeltag.LockUnlock && t.Locks[area] != reeltag.LockPermaunlock {
			return statusFrame(reeltag.StatusTagMemoryLockedError)
		}
	}
	mem := t.memory(req.Bank)
	start, end := int(req.WordPointer)*2, int(req.WordPointer+req.WordCount)*2
	if end > len(mem) {
		return statusFrame(reeltag.StatusTagMemoryOverrunError)
	}
	return frame.StatusSuccess, append([]byte(nil), mem[start:end]...)
}

func (r *Reader) write(payload []byte) (byte, []byte) {
	req, err := reader18.DecodeWriteRequest(payload)
	if err != nil {
		return frame.StatusCmdLength, nil
	}
	if s, ok := r.injected(frame.CmdWriteData); ok {
		return statusFrame(s)
	}
	t := r.find(req.EPC)
	if t == nil {
		return statusFrame(reeltag.StatusNoResponseFromTag)
	}
	secured, status := authorize(t, req.Password)
	if !status.OK() {
		return statusFrame(status)
	}
	if area, ok := lockArea(req.Bank, req.WordPointer); ok {
		switch t.Locks[area] {
		case reeltag.LockPermalock:
			return statusFrame(reeltag.StatusTagMemoryLockedError)
		case reeltag.LockLock:
			if !secured {
				return statusFrame(reeltag.StatusTagMemoryLockedError)
			}
		}
	} else if !secured {
		return statusFrame(reeltag.StatusTagMemoryLockedError)
	}
	start := int(req.WordPointer) * 2
	if start+len(req.Data) > len(t.memory(req.Bank)) {
		return statusFrame(reeltag.StatusTagMemoryOverrunError)
	}
	t.store(req.Bank, start, req.Data)
	return frame.StatusSuccess, nil
}

func (r *Reader) lock(payload []byte) (byte, []byte) {
	req, err := reader18.DecodeLockRequest(payload)
	if err != nil {
		return frame.StatusCmdLength, nil
	}
	if s, ok := r.injected(frame.CmdLock); ok {
		return statusFrame(s)
	}
	t := r.find(req.EPC)
	if t == nil || int(req.Area) >= len(t.Locks) {
		return statusFrame(reeltag.StatusNoResponseFromTag)
	}
	secured, status := authorize(t, req.Password)
	if !status.OK() {
		return statusFrame(status)
	}
	if !secured {
		return statusFrame(reeltag.StatusNonspecificTagError)
	}
	switch t.Locks[req.Area] {
	case reeltag.LockPermalock, reeltag.LockPermaunlock:
		if t.Locks[req.Area] != req.State {
			return statusFrame(reeltag.StatusTagMemoryLockedError)
		}
	}
	t.Locks[req.Area] = req.State
	return frame.StatusSuccess, nil
}
