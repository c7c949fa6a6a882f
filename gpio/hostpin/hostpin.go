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

// Package hostpin provides the line handshake on GPIO pins of the host
// computer, for installations that wire the part sensor and the busy lamp
// to the controller PC instead of the reader.
package hostpin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	reeltag "github.com/ZaparooProject/go-reeltag"
)

// waitSlice bounds each edge wait so Run notices cancellation
const waitSlice = 100 * time.Millisecond

func openPin(name string) (gpio.PinIO, error) {
	// Initialize host drivers once per process; periph makes this idempotent
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: no GPIO pin named %q", reeltag.ErrInvalidParameter, name)
	}
	return pin, nil
}

// Trigger turns edges of a host input pin into trigger edges. It
// implements reeltag.TriggerSource.
type Trigger struct {
	pin      gpio.PinIn
	edges    chan reeltag.TriggerEdge
	now      func() time.Time
	debounce time.Duration
	level    gpio.Level
}

// OpenTrigger opens the named pin, e.g. "GPIO17", as the trigger input
func OpenTrigger(name string, debounce time.Duration) (*Trigger, error) {
	pin, err := openPin(name)
	if err != nil {
		return nil, err
	}
	return NewTrigger(pin, debounce)
}

// NewTrigger configures pin as a pulled-down input reporting both edges
func NewTrigger(pin gpio.PinIn, debounce time.Duration) (*Trigger, error) {
	if err := pin.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return nil, fmt.Errorf("configure trigger pin %s: %w", pin, err)
	}
	return &Trigger{
		pin:      pin,
		edges:    make(chan reeltag.TriggerEdge, 8),
		now:      time.Now,
		debounce: debounce,
		level:    pin.Read(),
	}, nil
}

// Edges returns the debounced edges. The channel is closed when Run returns.
func (t *Trigger) Edges() <-chan reeltag.TriggerEdge {
	return t.edges
}

// Run waits for edges until ctx ends. An edge counts once the pin still
// reads the new level after the debounce interval.
func (t *Trigger) Run(ctx context.Context) {
	defer close(t.edges)
	for ctx.Err() == nil {
		if !t.pin.WaitForEdge(waitSlice) {
			continue
		}
		if t.debounce > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.debounce):
			}
		}
		level := t.pin.Read()
		if level == t.level {
			continue
		}
		t.level = level
		edge := reeltag.TriggerEdge{At: t.now(), Pin: reeltag.TriggerPin, Level: bool(level)}
		select {
		case t.edges <- edge:
		case <-ctx.Done():
			return
		}
	}
}

// Outputs drives host output pins by handshake pin number. It implements
// reeltag.DigitalOutput.
type Outputs struct {
	pins map[int]gpio.PinOut
	mu   sync.Mutex
}

// OpenOutputs opens named pins keyed by handshake pin number, e.g.
// {reeltag.BusyPin: "GPIO27"}. Every pin starts low.
func OpenOutputs(names map[int]string) (*Outputs, error) {
	pins := make(map[int]gpio.PinOut, len(names))
	for num, name := range names {
		pin, err := openPin(name)
		if err != nil {
			return nil, err
		}
		pins[num] = pin
	}
	return NewOutputs(pins)
}

// NewOutputs drives every pin low and returns the set
func NewOutputs(pins map[int]gpio.PinOut) (*Outputs, error) {
	for num, pin := range pins {
		if err := pin.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("configure output %d on %s: %w", num, pin, err)
		}
	}
	return &Outputs{pins: pins}, nil
}

// SetDigitalOutput drives pin. Pins not in the set are rejected.
func (o *Outputs) SetDigitalOutput(_ context.Context, pin int, level bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	out, ok := o.pins[pin]
	if !ok {
		return fmt.Errorf("%w: no host output for pin %d", reeltag.ErrInvalidParameter, pin)
	}
	if err := out.Out(gpio.Level(level)); err != nil {
		return fmt.Errorf("drive output %d: %w", pin, err)
	}
	return nil
}
