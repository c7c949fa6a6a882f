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

import (
	"fmt"
	"strings"
	"time"
)

// Event is anything the reader session delivers asynchronously. The concrete
// types are TriggerEdge, TagSeen and OperationComplete.
type Event interface {
	event()
}

// TriggerEdge is a debounced level change on a digital input
type TriggerEdge struct {
	At    time.Time
	Pin   int
	Level bool
}

// Rising reports whether the edge is low to high
func (e TriggerEdge) Rising() bool { return e.Level }

// TagSeen is one singulated tag report
type TagSeen struct {
	Tag TagReport
}

// OperationComplete reports the results of one submitted sequence
type OperationComplete struct {
	Report OpReport
}

func (TriggerEdge) event()       {}
func (TagSeen) event()           {}
func (OperationComplete) event() {}

// TagReport is what the reader knows about a singulated tag
type TagReport struct {
	SeenAt  time.Time
	EPC     TagData
	TID     TagData
	Antenna int
	RSSI    float64
}

// Identity returns the correlation key of the report: the TID, or the EPC for
// readers that could not fetch one.
func (r TagReport) Identity() TagIdentity {
	if len(r.TID) > 0 {
		return r.TID
	}
	return r.EPC
}

// ResultStatus is the outcome of a single tag operation
type ResultStatus int

const (
	StatusSuccess ResultStatus = iota
	StatusNoResponseFromTag
	StatusInsufficientPower
	StatusNonspecificTagError
	StatusNonspecificReaderError
	StatusIncorrectPasswordError
	StatusTagMemoryOverrunError
	StatusTagMemoryLockedError
)

var statusNames = [...]string{
	StatusSuccess:                "Success",
	StatusNoResponseFromTag:      "NoResponseFromTag",
	StatusInsufficientPower:      "InsufficientPower",
	StatusNonspecificTagError:    "NonspecificTagError",
	StatusNonspecificReaderError: "NonspecificReaderError",
	StatusIncorrectPasswordError: "IncorrectPasswordError",
	StatusTagMemoryOverrunError:  "TagMemoryOverrunError",
	StatusTagMemoryLockedError:   "TagMemoryLockedError",
}

// String returns the status name as it appears in result messages
func (s ResultStatus) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("ResultStatus(%d)", int(s))
}

// OK reports whether the operation succeeded
func (s ResultStatus) OK() bool { return s == StatusSuccess }

// OpResult is the outcome of one operation of a sequence
type OpResult struct {
	Tag    TagReport
	Data   TagData
	OpID   uint16
	Kind   OpKind
	Status ResultStatus
}

// OpReport groups the results of one sequence, in op order
type OpReport struct {
	Results    []OpResult
	SequenceID uint32
}

// Message renders the results in the result-log format, one status fragment
// per operation, each followed by a space.
func (r OpReport) Message() string {
	var sb strings.Builder
	for _, res := range r.Results {
		switch res.Kind {
		case OpRead:
			_, _ = fmt.Fprintf(&sb, "ReadResultStatus=%s Data=%s ", res.Status, res.Data.HexWords())
		case OpWrite:
			_, _ = fmt.Fprintf(&sb, "WriteResultStatus=%s ", res.Status)
		case OpLock:
			_, _ = fmt.Fprintf(&sb, "LockResultStatus=%s ", res.Status)
		}
	}
	return sb.String()
}

// Succeeded reports whether every operation succeeded
func (r OpReport) Succeeded() bool {
	for _, res := range r.Results {
		if !res.Status.OK() {
			return false
		}
	}
	return true
}

// Tag returns the tag of the first result that carries one
func (r OpReport) Tag() (TagReport, bool) {
	for _, res := range r.Results {
		if len(res.Tag.EPC) > 0 || len(res.Tag.TID) > 0 {
			return res.Tag, true
		}
	}
	return TagReport{}, false
}
