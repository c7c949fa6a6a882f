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

package cycle

import (
	"fmt"
	"time"

	reeltag "github.com/ZaparooProject/go-reeltag"
)

// State is the part-cycle state machine position
type State int

const (
	// StateIdle waits for a trigger
	StateIdle State = iota
	// StateDiscovering runs singulation waiting for the part's tag
	StateDiscovering
	// StateOperationInFlight waits for the submitted sequence to complete
	StateOperationInFlight
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateDiscovering:
		return "Discovering"
	case StateOperationInFlight:
		return "OperationInFlight"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// PartCycle tracks one physical part from trigger to completion
type PartCycle struct {
	StartedAt time.Time
	Watchdog  *time.Timer
	LastSeen  reeltag.TagIdentity
	TID       reeltag.TagData
	EPC       reeltag.TagData
	Message   string
	Elapsed   time.Duration
	Seq       uint64
	// SequenceID is the outstanding operation sequence, zero when none
	SequenceID uint32
	State      State
	Forced     bool
}

// safeTimerStop stops a timer and drains its channel if it already fired
func safeTimerStop(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() && timer.C != nil {
		select {
		case <-timer.C:
		default:
		}
	}
}

// Reset starts a new cycle numbered seq. The last-seen identity does not
// survive into the new cycle.
func (pc *PartCycle) Reset(seq uint64, now time.Time) {
	safeTimerStop(pc.Watchdog)
	*pc = PartCycle{Seq: seq, StartedAt: now}
}

// TransitionToDiscovering moves to discovery
func (pc *PartCycle) TransitionToDiscovering() {
	pc.State = StateDiscovering
}

// TransitionToInFlight records the outstanding sequence
func (pc *PartCycle) TransitionToInFlight(sequenceID uint32) {
	pc.State = StateOperationInFlight
	pc.SequenceID = sequenceID
}

// ArmWatchdog starts the completion watchdog. A zero timeout leaves it off.
func (pc *PartCycle) ArmWatchdog(timeout time.Duration, callback func()) {
	safeTimerStop(pc.Watchdog)
	pc.Watchdog = nil
	if timeout > 0 {
		pc.Watchdog = time.AfterFunc(timeout, callback)
	}
}

// Finish stops the clock and the watchdog and sets the outcome
func (pc *PartCycle) Finish(now time.Time, message string, forced bool) {
	safeTimerStop(pc.Watchdog)
	pc.Watchdog = nil
	pc.Elapsed = now.Sub(pc.StartedAt)
	pc.Message = message
	pc.Forced = forced
}

// TransitionToIdle clears the in-flight markers. Seq is kept so snapshots
// still show the last cycle.
func (pc *PartCycle) TransitionToIdle() {
	safeTimerStop(pc.Watchdog)
	pc.Watchdog = nil
	pc.State = StateIdle
	pc.SequenceID = 0
	pc.LastSeen = nil
}

// Active reports whether a cycle is in flight
func (pc *PartCycle) Active() bool {
	return pc.State != StateIdle
}
