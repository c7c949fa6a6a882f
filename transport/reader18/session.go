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
	"context"
	"fmt"
	"math/bits"
	"sync"
	"time"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/internal/frame"
)

// Option configures a Session
type Option func(*Session)

// WithOptions replaces the session options
func WithOptions(opts Options) Option {
	return func(s *Session) {
		s.opts = opts
	}
}

// WithDialer replaces how the port is opened. Simulators use it to hand
// out in-memory ports.
func WithDialer(dial Dialer) Option {
	return func(s *Session) {
		if dial != nil {
			s.dial = dial
		}
	}
}

// WithClock sets the clock used to timestamp events
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// Factory returns a session factory for ConnectSession
func Factory(opts ...Option) reeltag.SessionFactory {
	return func(string) (reeltag.Session, error) {
		return New(opts...), nil
	}
}

// Session drives a reader speaking the reader18 frame protocol. Inventory
// and input polling run on their own goroutines once started; tag access
// for a submitted sequence happens inside the inventory loop when a
// matching tag shows up.
type Session struct {
	now       func() time.Time
	dial      Dialer
	link      *link
	settings  *reeltag.Settings
	pending   *reeltag.OperationSequence
	events    chan reeltag.Event
	closed    chan struct{}
	cancel    context.CancelFunc
	gpiDone   chan struct{}
	singStop  context.CancelFunc
	singDone  chan struct{}
	address   string
	opts      Options
	info      ReaderInfo
	mu        sync.Mutex
	closeOnce sync.Once
	outputs   byte
}

var _ reeltag.Session = (*Session)(nil)

// New creates an unconnected session
func New(opts ...Option) *Session {
	s := &Session{
		opts:   DefaultOptions(),
		dial:   Dial,
		now:    time.Now,
		events: make(chan reeltag.Event, 64),
		closed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Info returns what the reader reported about itself on connect
func (s *Session) Info() ReaderInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Connect opens the port and probes the reader
func (s *Session) Connect(ctx context.Context, address string) error {
	s.mu.Lock()
	switch {
	case s.isClosed():
		s.mu.Unlock()
		return reeltag.ErrSessionClosed
	case s.link != nil:
		s.mu.Unlock()
		return reeltag.ErrAlreadyConnected
	}
	s.mu.Unlock()

	port, err := s.dial(ctx, address, s.opts.Port)
	if err != nil {
		return fmt.Errorf("%w: %w", reeltag.ErrNotConnected, err)
	}
	l := newLink(port, s.opts.Address, s.opts.CommandTimeout, s.opts.CommandRetries)
	f, err := l.exchange(ctx, frame.CmdGetReaderInfo, nil)
	if err == nil && f.Status != frame.StatusSuccess {
		err = fmt.Errorf("%w: reader info status 0x%02X", reeltag.ErrCommandFailed, f.Status)
	}
	var info ReaderInfo
	if err == nil {
		info, err = DecodeReaderInfo(f.Data)
	}
	if err != nil {
		_ = l.close()
		return fmt.Errorf("probe reader at %s: %w", address, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		_ = l.close()
		return reeltag.ErrSessionClosed
	}
	s.link = l
	s.info = info
	s.address = address
	var lifetime context.Context
	lifetime, s.cancel = context.WithCancel(context.Background())
	s.gpiDone = make(chan struct{})
	go s.pollInputs(lifetime, s.gpiDone)

	reeltag.Logger().Info("reader connected", "address", address,
		"version", fmt.Sprintf("%04X", info.Version), "antennas", info.Antennas())
	return nil
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Session) connectedLink() (*link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isClosed() {
		return nil, reeltag.ErrSessionClosed
	}
	if s.link == nil {
		return nil, reeltag.ErrNotConnected
	}
	return s.link, nil
}

// command runs a configuration command that must answer StatusSuccess
func (s *Session) command(ctx context.Context, cmd byte, payload []byte) (frame.Frame, error) {
	l, err := s.connectedLink()
	if err != nil {
		return frame.Frame{}, err
	}
	f, err := l.exchange(ctx, cmd, payload)
	if err != nil {
		return f, err
	}
	if f.Status != frame.StatusSuccess {
		return f, fmt.Errorf("%w: command 0x%02X status 0x%02X", reeltag.ErrCommandFailed, cmd, f.Status)
	}
	return f, nil
}

// QueryDefaultSettings returns defaults sized to the connected reader
func (s *Session) QueryDefaultSettings(context.Context) (*reeltag.Settings, error) {
	if _, err := s.connectedLink(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return reeltag.DefaultSettings(s.info.Antennas(), s.opts.Inputs), nil
}

// ApplySettings sends power, antenna and select configuration. Everything
// else is kept on the host side and used by the inventory loop.
func (s *Session) ApplySettings(ctx context.Context, settings *reeltag.Settings) error {
	if settings == nil {
		return fmt.Errorf("%w: nil settings", reeltag.ErrInvalidParameter)
	}
	if _, err := s.connectedLink(); err != nil {
		return err
	}
	ports := s.Info().Antennas()
	enabled := settings.EnabledAntennas()
	if len(enabled) == 0 {
		return fmt.Errorf("%w: no antenna enabled", reeltag.ErrSettingsRejected)
	}
	for _, p := range enabled {
		if p < 1 || p > ports {
			return fmt.Errorf("%w: antenna %d out of range 1-%d", reeltag.ErrSettingsRejected, p, ports)
		}
	}

	var selects []SelectRequest
	if settings.Filters.Mode == reeltag.FilterChain {
		for _, f := range settings.Filters.TagSelectFilters {
			req, err := NewSelectRequest(f, settings.Session)
			if err != nil {
				return err
			}
			selects = append(selects, req)
		}
	}

	if _, err := s.command(ctx, frame.CmdSetOutputPower, EncodePower(settings, ports)); err != nil {
		return fmt.Errorf("set output power: %w", err)
	}
	if _, err := s.command(ctx, frame.CmdSetAntennaMux, []byte{AntennaMask(enabled)}); err != nil {
		return fmt.Errorf("set antenna mux: %w", err)
	}
	if _, err := s.command(ctx, frame.CmdSelect, SelectRequest{Action: ClearSelects}.Encode()); err != nil {
		return fmt.Errorf("clear selects: %w", err)
	}
	for i, req := range selects {
		if _, err := s.command(ctx, frame.CmdSelect, req.Encode()); err != nil {
			return fmt.Errorf("select filter %d: %w", i+1, err)
		}
	}

	s.mu.Lock()
	s.settings = settings.Clone()
	s.mu.Unlock()
	reeltag.Logger().Debug("settings applied", "antennas", enabled,
		"search", settings.Search.String(), "session", settings.Session, "selects", len(selects))
	return nil
}

// StartSingulation starts the inventory loop. Starting a running loop is a
// no-op.
func (s *Session) StartSingulation(context.Context) error {
	if _, err := s.connectedLink(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.singDone != nil {
		return nil
	}
	if s.settings == nil {
		s.settings = reeltag.DefaultSettings(s.info.Antennas(), s.opts.Inputs)
	}
	var ctx context.Context
	ctx, s.singStop = context.WithCancel(context.Background())
	s.singDone = make(chan struct{})
	go s.singulate(ctx, s.settings.Clone(), s.singDone)
	return nil
}

// StopSingulation stops the inventory loop and waits for it to exit
func (s *Session) StopSingulation(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.singStop, s.singDone
	s.singStop, s.singDone = nil, nil
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	stop()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QuerySingulationStatus reports whether the inventory loop is running
func (s *Session) QuerySingulationStatus(context.Context) (reeltag.SingulationStatus, error) {
	if _, err := s.connectedLink(); err != nil {
		return reeltag.SingulationStatus{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return reeltag.SingulationStatus{Running: s.singDone != nil}, nil
}

// SubmitOperationSequence queues seq for the next tag matching its target.
// Only one sequence can be pending at a time. It stays queued across
// singulation restarts until it runs or is withdrawn.
func (s *Session) SubmitOperationSequence(_ context.Context, seq reeltag.OperationSequence) error {
	if _, err := s.connectedLink(); err != nil {
		return err
	}
	if len(seq.Ops) == 0 {
		return fmt.Errorf("%w: empty operation sequence", reeltag.ErrInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		return reeltag.ErrSequencePending
	}
	c := seq.Clone()
	s.pending = &c
	return nil
}

// CancelOperationSequence drops the queued sequence if it has not run yet
func (s *Session) CancelOperationSequence(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != nil {
		reeltag.Logger().Debug("operation sequence withdrawn", "sequence_id", s.pending.ID)
		s.pending = nil
	}
	return nil
}

// SetDigitalOutput drives one output pin
func (s *Session) SetDigitalOutput(ctx context.Context, pin int, level bool) error {
	bit := pinBit(pin)
	if bit == 0 {
		return fmt.Errorf("%w: output pin %d", reeltag.ErrInvalidParameter, pin)
	}
	s.mu.Lock()
	mask := s.outputs &^ bit
	if level {
		mask |= bit
	}
	s.mu.Unlock()

	if _, err := s.command(ctx, frame.CmdSetGPIO, []byte{mask}); err != nil {
		return fmt.Errorf("set output %d: %w", pin, err)
	}
	s.mu.Lock()
	s.outputs = s.outputs&^bit | mask&bit
	s.mu.Unlock()
	return nil
}

// Events returns the event channel. It is closed by Close.
func (s *Session) Events() <-chan reeltag.Event {
	return s.events
}

// Close stops both loops, closes the port and then the event channel
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.mu.Lock()
		singDone := s.singDone
		s.mu.Unlock()
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*s.opts.CommandTimeout+time.Second)
		defer cancel()
		if stopErr := s.StopSingulation(stopCtx); stopErr != nil {
			reeltag.Logger().Debug("inventory loop did not stop", "error", stopErr)
		}

		s.mu.Lock()
		l, gpiDone, cancelLifetime := s.link, s.gpiDone, s.cancel
		s.mu.Unlock()
		if cancelLifetime != nil {
			cancelLifetime()
		}
		if l != nil {
			err = l.close()
		}
		// both loops must be gone before the event channel closes
		if gpiDone != nil {
			<-gpiDone
		}
		if singDone != nil {
			<-singDone
		}
		close(s.events)
	})
	return err
}

func (s *Session) emit(ctx context.Context, ev reeltag.Event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	case <-s.closed:
	}
}

// emitLate delivers ev after the inventory loop was cancelled
func (s *Session) emitLate(ev reeltag.Event) {
	select {
	case s.events <- ev:
	case <-s.closed:
	}
}

// seenTag caches what was learned about a tag during one singulation run
type seenTag struct {
	tid reeltag.TagData
}

func (s *Session) singulate(ctx context.Context, settings *reeltag.Settings, done chan struct{}) {
	defer close(done)
	seen := make(map[string]seenTag)
	target := TargetA
	for {
		for _, port := range settings.EnabledAntennas() {
			if ctx.Err() != nil {
				return
			}
			tags, err := s.inventory(ctx, settings, port, target)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				reeltag.Logger().Warn("inventory round failed", "antenna", port, "error", err)
				continue
			}
			for _, tag := range tags {
				s.handleTag(ctx, tag, seen)
			}
		}
		if settings.Search == reeltag.SearchDualTarget {
			target ^= TargetB
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.opts.InventoryInterval):
		}
	}
}

// qValue picks the initial Q from the expected tag population
func (s *Session) qValue(population int) byte {
	if population <= 0 {
		return s.opts.Q
	}
	return byte(min(bits.Len(uint(population-1)), 15))
}

func (s *Session) inventory(ctx context.Context, settings *reeltag.Settings, port int, target byte) ([]InventoryTag, error) {
	l, err := s.connectedLink()
	if err != nil {
		return nil, err
	}
	req := InventoryRequest{
		Q:        s.qValue(settings.TagPopulation),
		Session:  byte(settings.Session),
		Target:   target,
		Antenna:  port,
		ScanTime: s.opts.ScanTime,
	}
	frames, err := l.exchangeAll(ctx, frame.CmdInventory, req.Encode())
	if err != nil {
		return nil, err
	}
	var tags []InventoryTag
	for _, f := range frames {
		switch f.Status {
		case frame.StatusSuccess, frame.StatusInventoryDone, frame.StatusInventoryTime, frame.StatusInventoryMore:
		case frame.StatusNoTagOrTimeout:
			continue
		case frame.StatusAntennaError:
			return nil, fmt.Errorf("%w: antenna %d not connected", reeltag.ErrCommandFailed, port)
		default:
			return nil, fmt.Errorf("%w: inventory status 0x%02X", reeltag.ErrCommandFailed, f.Status)
		}
		decoded, err := DecodeInventoryTags(f.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", reeltag.ErrFrameCorrupted, err)
		}
		tags = append(tags, decoded...)
	}
	return tags, nil
}

func (s *Session) handleTag(ctx context.Context, tag InventoryTag, seen map[string]seenTag) {
	key := tag.EPC.Hex()
	known, ok := seen[key]
	if !ok {
		known = seenTag{tid: s.readTID(ctx, tag.EPC)}
		seen[key] = known
		report := s.report(tag, known.tid)
		reeltag.Logger().Debug("tag seen", "epc", key, "tid", known.tid.Hex(), "antenna", tag.Antenna)
		s.emit(ctx, reeltag.TagSeen{Tag: report})
	}

	s.mu.Lock()
	seq := s.pending
	s.mu.Unlock()
	if seq == nil || !seq.Target.Matches(tag.EPC, known.tid) {
		return
	}

	results := s.execute(ctx, *seq, tag, s.report(tag, known.tid))
	if ctx.Err() != nil && !modifiedTag(results) {
		// cut short before anything reached the tag; the next run retries
		reeltag.Logger().Debug("operation sequence interrupted", "sequence_id", seq.ID, "epc", key)
		return
	}
	s.mu.Lock()
	if s.pending == seq {
		s.pending = nil
	}
	s.mu.Unlock()
	ev := reeltag.OperationComplete{Report: reeltag.OpReport{SequenceID: seq.ID, Results: results}}
	if ctx.Err() != nil {
		s.emitLate(ev)
		return
	}
	s.emit(ctx, ev)
}

// modifiedTag reports whether any write or lock in results succeeded
func modifiedTag(results []reeltag.OpResult) bool {
	for _, r := range results {
		if r.Kind != reeltag.OpRead && r.Status.OK() {
			return true
		}
	}
	return false
}

func (s *Session) report(tag InventoryTag, tid reeltag.TagData) reeltag.TagReport {
	return reeltag.TagReport{
		SeenAt:  s.now(),
		EPC:     tag.EPC,
		TID:     tid,
		Antenna: tag.Antenna,
		RSSI:    float64(tag.RSSI),
	}
}

func (s *Session) readTID(ctx context.Context, epc reeltag.TagData) reeltag.TagData {
	req := ReadRequest{EPC: epc, Bank: reeltag.MemoryBankTID, WordCount: uint16(s.opts.TIDWords)}
	status, data := s.access(ctx, frame.CmdReadData, req.Encode)
	if !status.OK() {
		reeltag.Logger().Debug("TID read failed", "epc", epc.Hex(), "status", status.String())
		return nil
	}
	return data
}

// access runs one tag access command and maps the response
func (s *Session) access(ctx context.Context, cmd byte, encode func() ([]byte, error)) (reeltag.ResultStatus, reeltag.TagData) {
	payload, err := encode()
	if err != nil {
		reeltag.Logger().Warn("cannot encode tag access", "cmd", cmd, "error", err)
		return reeltag.StatusNonspecificReaderError, nil
	}
	l, err := s.connectedLink()
	if err != nil {
		return reeltag.StatusNonspecificReaderError, nil
	}
	f, err := l.exchange(ctx, cmd, payload)
	if err != nil {
		reeltag.Logger().Debug("tag access failed", "cmd", cmd, "error", err)
		return reeltag.StatusNonspecificReaderError, nil
	}
	status := ResultStatus(f)
	if !status.OK() {
		return status, nil
	}
	return status, reeltag.TagData(f.Data)
}

// execute runs the sequence against one tag, stopping at the first failed
// operation
func (s *Session) execute(ctx context.Context, seq reeltag.OperationSequence, tag InventoryTag, report reeltag.TagReport) []reeltag.OpResult {
	results := make([]reeltag.OpResult, 0, len(seq.Ops))
	for _, op := range seq.Ops {
		result := reeltag.OpResult{Tag: report, OpID: op.ID(), Kind: op.Kind()}
		switch o := op.(type) {
		case reeltag.ReadOp:
			req := ReadRequest{
				EPC: tag.EPC, Password: o.AccessPassword, Bank: o.Bank,
				WordPointer: o.WordPointer, WordCount: o.WordCount,
			}
			result.Status, result.Data = s.access(ctx, frame.CmdReadData, req.Encode)
		case reeltag.WriteOp:
			req := WriteRequest{
				EPC: tag.EPC, Password: o.AccessPassword, Bank: o.Bank,
				WordPointer: o.WordPointer, Data: o.Data,
			}
			result.Status, _ = s.access(ctx, frame.CmdWriteData, req.Encode)
		case reeltag.LockOp:
			result.Status = reeltag.StatusSuccess
			for _, action := range o.Actions() {
				req := LockRequest{EPC: tag.EPC, Password: o.AccessPassword, Area: action.Area, State: action.State}
				if result.Status, _ = s.access(ctx, frame.CmdLock, req.Encode); !result.Status.OK() {
					break
				}
			}
		default:
			result.Status = reeltag.StatusNonspecificReaderError
		}
		results = append(results, result)
		if !result.Status.OK() {
			break
		}
	}
	return results
}

// inputState debounces one input pin
type inputState struct {
	since     time.Time
	stable    bool
	candidate bool
}

func (s *Session) pollInputs(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.opts.GPIPollInterval)
	defer ticker.Stop()
	states := make(map[int]*inputState)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		var inputs []reeltag.GPIConfig
		if s.settings != nil {
			for _, g := range s.settings.GPIs {
				if g.Enabled {
					inputs = append(inputs, g)
				}
			}
		}
		l := s.link
		s.mu.Unlock()
		if len(inputs) == 0 || l == nil {
			continue
		}

		f, err := l.exchange(ctx, frame.CmdGetGPIO, nil)
		if err != nil || f.Status != frame.StatusSuccess || len(f.Data) == 0 {
			if ctx.Err() == nil {
				reeltag.Logger().Debug("input poll failed", "error", err)
			}
			continue
		}
		now := s.now()
		for _, g := range inputs {
			st, ok := states[g.Port]
			if !ok {
				// inputs start low so a level already high is delivered as an edge
				st = &inputState{since: now}
				states[g.Port] = st
			}
			level := f.Data[0]&pinBit(g.Port) != 0
			if edge, changed := st.sample(level, now, g.Debounce); changed {
				s.emit(ctx, reeltag.TriggerEdge{At: now, Pin: g.Port, Level: edge})
			}
		}
	}
}

// sample feeds one reading and reports a new stable level once it held for
// debounce
func (st *inputState) sample(level bool, now time.Time, debounce time.Duration) (bool, bool) {
	if level != st.candidate {
		st.candidate = level
		st.since = now
	}
	if st.candidate == st.stable || now.Sub(st.since) < debounce {
		return st.stable, false
	}
	st.stable = st.candidate
	return st.stable, true
}
