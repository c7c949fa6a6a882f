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
	"errors"
	"fmt"
	"sync"
	"time"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/internal/frame"
	"github.com/ZaparooProject/go-reeltag/internal/transport"
)

// link serializes command/response exchanges over a Port. A reader
// goroutine decodes frames as they arrive.
type link struct {
	port    Port
	frames  chan frame.Frame
	done    chan struct{}
	readErr error
	mu      sync.Mutex // one exchange at a time
	errMu   sync.Mutex
	timeout time.Duration
	retries int
	address byte
}

func newLink(port Port, address byte, timeout time.Duration, retries int) *link {
	l := &link{
		port:    port,
		frames:  make(chan frame.Frame, 16),
		done:    make(chan struct{}),
		timeout: timeout,
		retries: retries,
		address: address,
	}
	go l.readLoop()
	return l
}

func (l *link) readLoop() {
	defer close(l.done)
	buf := make([]byte, 512)
	var pending []byte
	for {
		n, err := l.port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var frames []frame.Frame
			frames, pending = frame.ParseFrames(pending)
			for _, f := range frames {
				select {
				case l.frames <- f:
				default:
					reeltag.Logger().Debug("dropping unsolicited frame", "frame", f.String())
				}
			}
			if len(pending) > frame.MaxFrameLength {
				pending = pending[len(pending)-frame.MaxFrameLength:]
			}
		}
		if err != nil {
			l.errMu.Lock()
			l.readErr = err
			l.errMu.Unlock()
			return
		}
	}
}

func (l *link) err() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	return l.readErr
}

// exchange sends one command and waits for its response. Timeouts and
// reader-side CRC complaints are retried.
func (l *link) exchange(ctx context.Context, cmd byte, payload []byte) (frame.Frame, error) {
	frames, err := l.exchangeAll(ctx, cmd, payload)
	if err != nil {
		return frame.Frame{}, err
	}
	return frames[len(frames)-1], nil
}

// exchangeAll is exchange for commands whose response spans several
// frames. Frames flagged StatusInventoryMore are followed by another.
func (l *link) exchangeAll(ctx context.Context, cmd byte, payload []byte) ([]frame.Frame, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	packet := frame.BuildCommand(l.address, cmd, payload)
	cfg := transport.RetryConfig{
		Description: fmt.Sprintf("command 0x%02X", cmd),
		MaxRetries:  l.retries,
		RetryDelay:  5 * time.Millisecond,
	}
	return transport.WithRetry(ctx, cfg, func() ([]frame.Frame, bool, error) {
		frames, err := l.once(ctx, cmd, packet)
		switch {
		case err == nil && frames[len(frames)-1].Status == frame.StatusCRCError:
			reeltag.Logger().Debug("reader reported CRC error, resending", "cmd", cmd)
			return nil, true, nil
		case errors.Is(err, reeltag.ErrTransportTimeout):
			return nil, true, err
		default:
			return frames, false, err
		}
	})
}

func (l *link) once(ctx context.Context, cmd byte, packet []byte) ([]frame.Frame, error) {
	l.drain()
	if _, err := l.port.Write(packet); err != nil {
		return nil, fmt.Errorf("%w: %w", reeltag.ErrTransportWrite, err)
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	var frames []frame.Frame
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.done:
			return nil, fmt.Errorf("%w: %w", reeltag.ErrTransportRead, l.err())
		case <-timer.C:
			return nil, fmt.Errorf("%w: command 0x%02X", reeltag.ErrTransportTimeout, cmd)
		case f := <-l.frames:
			if f.Command != cmd {
				reeltag.Logger().Debug("ignoring frame for another command", "want", cmd, "frame", f.String())
				continue
			}
			frames = append(frames, f)
			if f.Status != frame.StatusInventoryMore {
				return frames, nil
			}
		}
	}
}

// drain discards responses left over from timed out exchanges
func (l *link) drain() {
	for {
		select {
		case <-l.frames:
		default:
			return
		}
	}
}

func (l *link) close() error {
	err := l.port.Close()
	<-l.done
	return err
}
