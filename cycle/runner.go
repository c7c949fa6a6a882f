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
	"context"
	"sync"
	"sync/atomic"

	reeltag "github.com/ZaparooProject/go-reeltag"
)

// RunnerMetrics counts what the runner delivered
type RunnerMetrics struct {
	Events      int64
	Triggers    int64
	Tags        int64
	Completions int64
	Expiries    int64
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithTriggerSource adds a trigger input that is not the reader's, such as a
// host GPIO pin.
func WithTriggerSource(src reeltag.TriggerSource) RunnerOption {
	return func(r *Runner) {
		r.triggers = src.Edges()
	}
}

// WithTriggerPin changes which input pin counts as the trigger
func WithTriggerPin(pin int) RunnerOption {
	return func(r *Runner) {
		r.triggerPin = pin
	}
}

// Runner is the single consumer of reader events. It serializes them, along
// with external triggers and watchdog expiry, into the controller.
type Runner struct {
	ctrl       *Controller
	events     <-chan reeltag.Event
	triggers   <-chan reeltag.TriggerEdge
	expiryWake chan struct{}
	expiries   []uint64
	expiryMu   sync.Mutex
	triggerPin int
	// Atomic counters for metrics
	eventCount      int64
	triggerCount    int64
	tagCount        int64
	completionCount int64
	expiryCount     int64
}

// NewRunner creates a runner feeding ctrl from session's events
func NewRunner(ctrl *Controller, session reeltag.Session, opts ...RunnerOption) *Runner {
	r := &Runner{
		ctrl:       ctrl,
		events:     session.Events(),
		expiryWake: make(chan struct{}, 1),
		triggerPin: reeltag.TriggerPin,
	}
	for _, opt := range opts {
		opt(r)
	}
	ctrl.setExpiryHandler(r.queueExpiry)
	return r
}

// queueExpiry is called from timer goroutines. Expiries are kept until the
// loop takes them; only the wake-up is coalesced.
func (r *Runner) queueExpiry(seq uint64) {
	r.expiryMu.Lock()
	r.expiries = append(r.expiries, seq)
	r.expiryMu.Unlock()
	select {
	case r.expiryWake <- struct{}{}:
	default:
	}
}

func (r *Runner) takeExpiries() []uint64 {
	r.expiryMu.Lock()
	defer r.expiryMu.Unlock()
	out := r.expiries
	r.expiries = nil
	return out
}

// Run delivers events until ctx ends or the session's event channel closes.
// It returns ctx.Err() when the context ended and nil otherwise.
func (r *Runner) Run(ctx context.Context) error {
	events := r.events
	triggers := r.triggers
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				reeltag.Logger().Info("reader event stream closed")
				return nil
			}
			atomic.AddInt64(&r.eventCount, 1)
			r.dispatch(ctx, ev)

		case edge, ok := <-triggers:
			if !ok {
				triggers = nil
				continue
			}
			atomic.AddInt64(&r.eventCount, 1)
			r.handleEdge(ctx, edge)

		case <-r.expiryWake:
			for _, seq := range r.takeExpiries() {
				atomic.AddInt64(&r.expiryCount, 1)
				r.ctrl.OnWatchdog(ctx, seq)
			}
		}
	}
}

func (r *Runner) dispatch(ctx context.Context, ev reeltag.Event) {
	switch e := ev.(type) {
	case reeltag.TriggerEdge:
		r.handleEdge(ctx, e)
	case reeltag.TagSeen:
		atomic.AddInt64(&r.tagCount, 1)
		r.ctrl.OnTagSeen(ctx, e.Tag)
	case reeltag.OperationComplete:
		atomic.AddInt64(&r.completionCount, 1)
		r.ctrl.OnOperationComplete(ctx, e.Report)
	default:
		reeltag.Logger().Debug("unknown event ignored", "event", ev)
	}
}

// handleEdge raises busy before the controller sees the trigger
func (r *Runner) handleEdge(ctx context.Context, edge reeltag.TriggerEdge) {
	if edge.Pin != r.triggerPin || !edge.Rising() {
		return
	}
	atomic.AddInt64(&r.triggerCount, 1)
	if err := r.ctrl.busy.SetDigitalOutput(ctx, reeltag.BusyPin, true); err != nil {
		reeltag.Logger().Error("raise busy output failed", "error", err)
	}
	r.ctrl.OnTrigger(ctx)
}

// Metrics returns the current counters
func (r *Runner) Metrics() RunnerMetrics {
	return RunnerMetrics{
		Events:      atomic.LoadInt64(&r.eventCount),
		Triggers:    atomic.LoadInt64(&r.triggerCount),
		Tags:        atomic.LoadInt64(&r.tagCount),
		Completions: atomic.LoadInt64(&r.completionCount),
		Expiries:    atomic.LoadInt64(&r.expiryCount),
	}
}
