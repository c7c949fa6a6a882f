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

// Package cycle runs the trigger-driven part-cycle state machine.
//
// A Controller owns the current PartCycle. Every event reaches it through
// one of its On methods, which run under a single mutex, so the machine sees
// one event fully handled before the next begins. A Runner is the usual
// source of those calls.
package cycle

import (
	"context"
	"errors"
	"sync"
	"time"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/recorder"
)

// Outcome messages for cycles that end without a completion report
const (
	MessageRecoveryForced = "RecoveryForced "
	MessageSubmitFailed   = "SubmitFailed "
	MessageStartFailed    = "StartSingulationFailed "
	MessagePlanFailed     = "PlanFailed "
)

// ResultRecorder receives one record per finished cycle
type ResultRecorder interface {
	Record(rec recorder.ResultRecord) error
}

// Snapshot is a consistent view of the controller's counters
type Snapshot struct {
	State           State
	Seq             uint64
	Recorded        uint64
	IgnoredTriggers uint64
	StaleEvents     uint64
	Forced          uint64
}

// Option configures a Controller
type Option func(*Controller)

// WithBusyOutput drives the busy flag through out instead of the session
func WithBusyOutput(out reeltag.DigitalOutput) Option {
	return func(c *Controller) {
		c.busy = out
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithCompletionTimeout enables the watchdog that forces a cycle back to
// Idle when no completion arrives within timeout. Zero disables it.
func WithCompletionTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		c.completionTimeout = timeout
	}
}

// Controller is the part-cycle state machine for one mode
type Controller struct {
	session           reeltag.Session
	busy              reeltag.DigitalOutput
	rec               ResultRecorder
	cfg               *reeltag.Config
	now               func() time.Time
	expired           func(seq uint64)
	cycle             PartCycle
	completionTimeout time.Duration
	mode              reeltag.OperationMode
	mu                sync.Mutex
	nextSeq           uint64
	nextSequenceID    uint32
	recorded          uint64
	ignoredTriggers   uint64
	staleEvents       uint64
	forced            uint64
}

// NewController creates an idle controller. cfg must already be validated
// for mode.
func NewController(
	session reeltag.Session,
	mode reeltag.OperationMode,
	cfg *reeltag.Config,
	rec ResultRecorder,
	opts ...Option,
) *Controller {
	c := &Controller{
		session: session,
		busy:    session,
		rec:     rec,
		cfg:     cfg,
		mode:    mode,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.expired = func(seq uint64) {
		c.OnWatchdog(context.Background(), seq)
	}
	return c
}

// Mode returns the controller's operation mode
func (c *Controller) Mode() reeltag.OperationMode {
	return c.mode
}

// setExpiryHandler routes watchdog expiry through fn instead of calling
// OnWatchdog from the timer goroutine.
func (c *Controller) setExpiryHandler(fn func(seq uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expired = fn
}

// OnTrigger handles a rising edge of the trigger input. The caller has
// already raised the busy output.
func (c *Controller) OnTrigger(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cycle.Active() {
		c.ignoredTriggers++
		reeltag.Logger().Info("trigger ignored, cycle in flight",
			"seq", c.cycle.Seq, "state", c.cycle.State.String())
		c.restartSingulationLocked(ctx)
		return
	}

	c.nextSeq++
	c.cycle.Reset(c.nextSeq, c.now())
	seq := c.cycle.Seq
	expired := c.expired
	c.cycle.ArmWatchdog(c.completionTimeout, func() { expired(seq) })
	reeltag.Logger().Debug("cycle started", "seq", seq, "mode", c.mode.String())

	if c.mode.IsDiscovery() {
		c.startDiscoveryLocked(ctx)
		return
	}
	c.submitLocked(ctx, nil)
	if c.cycle.State == StateOperationInFlight {
		if err := c.session.StartSingulation(ctx); err != nil {
			reeltag.Logger().Error("start singulation failed", "seq", seq, "error", err)
			c.completeLocked(ctx, MessageStartFailed, false)
		}
	}
}

func (c *Controller) startDiscoveryLocked(ctx context.Context) {
	if status, err := c.session.QuerySingulationStatus(ctx); err == nil && status.Running {
		if err := c.session.StopSingulation(ctx); err != nil {
			reeltag.Logger().Warn("stop singulation failed", "seq", c.cycle.Seq, "error", err)
		}
	}
	c.cycle.TransitionToDiscovering()
	if err := c.session.StartSingulation(ctx); err != nil {
		reeltag.Logger().Error("start singulation failed", "seq", c.cycle.Seq, "error", err)
		c.completeLocked(ctx, MessageStartFailed, false)
	}
}

// restartSingulationLocked is the manual recovery path for a stuck cycle:
// a fresh trigger restarts the reader without opening a second cycle.
func (c *Controller) restartSingulationLocked(ctx context.Context) {
	if err := c.session.StopSingulation(ctx); err != nil {
		reeltag.Logger().Warn("stop singulation failed", "seq", c.cycle.Seq, "error", err)
	}
	if err := c.session.StartSingulation(ctx); err != nil {
		reeltag.Logger().Warn("restart singulation failed", "seq", c.cycle.Seq, "error", err)
	}
}

// OnTagSeen handles a tag report. Only the first report of a new identity
// during discovery starts an operation.
func (c *Controller) OnTagSeen(ctx context.Context, tag reeltag.TagReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cycle.State != StateDiscovering {
		c.staleEvents++
		reeltag.Logger().Debug("tag report outside discovery", "epc", tag.EPC.Hex(), "state", c.cycle.State.String())
		return
	}
	identity := tag.Identity()
	if len(identity) == 0 || identity.Equal(c.cycle.LastSeen) {
		return
	}

	c.cycle.LastSeen = identity.Clone()
	c.cycle.TID = tag.TID.Clone()
	c.cycle.EPC = tag.EPC.Clone()
	reeltag.Logger().Debug("tag discovered", "seq", c.cycle.Seq, "tid", tag.TID.Hex(), "epc", tag.EPC.Hex())
	c.submitLocked(ctx, identity)
}

// submitLocked plans and submits the cycle's sequence. Failures close the
// cycle so the line does not stay busy.
func (c *Controller) submitLocked(ctx context.Context, tid reeltag.TagIdentity) {
	seq, err := reeltag.PlanOperations(c.mode, tid, c.cfg)
	if err != nil {
		reeltag.Logger().Error("planning operations failed", "seq", c.cycle.Seq, "error", err)
		c.completeLocked(ctx, MessagePlanFailed, false)
		return
	}
	c.nextSequenceID++
	if c.nextSequenceID == 0 {
		c.nextSequenceID = 1
	}
	seq.ID = c.nextSequenceID
	c.cycle.TransitionToInFlight(seq.ID)

	if err := c.session.SubmitOperationSequence(ctx, seq); err != nil {
		reeltag.Logger().Error("submit operation sequence failed",
			"seq", c.cycle.Seq, "sequence_id", seq.ID, "error", err)
		c.completeLocked(ctx, MessageSubmitFailed, false)
	}
}

// OnOperationComplete finishes the cycle that owns report
func (c *Controller) OnOperationComplete(ctx context.Context, report reeltag.OpReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cycle.State != StateOperationInFlight || report.SequenceID != c.cycle.SequenceID {
		c.staleEvents++
		reeltag.Logger().Debug("stale completion ignored",
			"sequence_id", report.SequenceID, "outstanding", c.cycle.SequenceID, "state", c.cycle.State.String())
		return
	}
	if tag, ok := report.Tag(); ok {
		if len(tag.TID) > 0 {
			c.cycle.TID = tag.TID.Clone()
		}
		if len(tag.EPC) > 0 {
			c.cycle.EPC = tag.EPC.Clone()
		}
	}
	c.completeLocked(ctx, report.Message(), false)
}

// OnWatchdog forces cycle seq back to Idle if it is still in flight
func (c *Controller) OnWatchdog(ctx context.Context, seq uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.cycle.Active() || c.cycle.Seq != seq {
		return
	}
	reeltag.Logger().Warn("no completion before timeout, forcing cycle to idle",
		"seq", seq, "state", c.cycle.State.String(), "timeout", c.completionTimeout)
	c.forced++
	c.completeLocked(ctx, MessageRecoveryForced, true)
}

// completeLocked is the single exit of a cycle: stop the clock and the
// reader, withdraw any queued sequence, record, return to Idle and drop busy.
func (c *Controller) completeLocked(ctx context.Context, message string, forced bool) {
	c.cycle.Finish(c.now(), message, forced)

	if err := c.session.StopSingulation(ctx); err != nil && !errors.Is(err, reeltag.ErrSessionClosed) {
		reeltag.Logger().Warn("stop singulation failed", "seq", c.cycle.Seq, "error", err)
	}
	if err := c.session.CancelOperationSequence(ctx); err != nil && !errors.Is(err, reeltag.ErrSessionClosed) {
		reeltag.Logger().Warn("withdraw operation sequence failed", "seq", c.cycle.Seq, "error", err)
	}

	rec := recorder.ResultRecord{
		Seq:     c.cycle.Seq,
		Start:   c.cycle.StartedAt,
		Elapsed: c.cycle.Elapsed,
		TID:     c.cycle.TID.Clone(),
		EPC:     c.cycle.EPC.Clone(),
		Message: c.cycle.Message,
	}
	if err := c.rec.Record(rec); err != nil {
		reeltag.Logger().Error("recording cycle failed", "seq", rec.Seq, "error", err)
	} else {
		c.recorded++
	}
	reeltag.Logger().Info("cycle complete",
		"seq", rec.Seq, "elapsed", rec.Elapsed, "tid", rec.TID.Hex(), "epc", rec.EPC.Hex(), "message", rec.Message)

	c.cycle.TransitionToIdle()
	if err := c.busy.SetDigitalOutput(ctx, reeltag.BusyPin, false); err != nil {
		reeltag.Logger().Error("clear busy output failed", "seq", rec.Seq, "error", err)
	}
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycle.State
}

// Snapshot returns the controller's counters
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:           c.cycle.State,
		Seq:             c.cycle.Seq,
		Recorded:        c.recorded,
		IgnoredTriggers: c.ignoredTriggers,
		StaleEvents:     c.staleEvents,
		Forced:          c.forced,
	}
}
