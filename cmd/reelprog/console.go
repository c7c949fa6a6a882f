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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/sim"
)

// pulseWidth is how long a simulated part holds the trigger high
const pulseWidth = 80 * time.Millisecond

type console struct {
	rl *readline.Instance
	st *station
}

func (c *console) out() io.Writer {
	return c.rl.Stdout()
}

func (c *console) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			return
		}

		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		if !c.exec(ctx, strings.ToLower(parts[0]), parts[1:]) {
			_, _ = fmt.Fprintln(c.out(), "Exiting...")
			return
		}
	}
}

// exec runs one command and reports whether the console should continue
func (c *console) exec(ctx context.Context, cmd string, args []string) bool {
	switch cmd {
	case "help", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "menu":
		for i, entry := range reeltag.Menu {
			_, _ = fmt.Fprintf(c.out(), "  %d  %s\n", i, entry.Description)
		}
	case "trigger", "t":
		c.cmdTrigger(ctx)
	case "tag":
		c.cmdTag(args)
	case "quit", "exit", "q":
		return false
	default:
		_, _ = fmt.Fprintf(c.out(), "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (c *console) printHelp() {
	_, _ = fmt.Fprintln(c.out(), `Commands:
  status, s                 Show the part-cycle state and counters
  menu                      List the operator menu
  trigger, t                Simulate a part arriving (sim reader only)
  tag add <epc> <tid>       Place a tag in the simulated field
  tag rm <epc>              Remove a tag from the simulated field
  tag show <tid>            Show a simulated tag's password and locks
  quit, q                   Stop the line and exit`)
}

func (c *console) printStatus() {
	snap := c.st.ctrl.Snapshot()
	metrics := c.st.runner.Metrics()
	_, _ = fmt.Fprintf(c.out(), "Mode:      %s\n", c.st.cfg.Mode())
	_, _ = fmt.Fprintf(c.out(), "Reader:    %s\n", c.st.address)
	_, _ = fmt.Fprintf(c.out(), "Search:    %s, %d filter(s)\n",
		c.st.settings.Search, len(c.st.settings.Filters.TagSelectFilters))
	_, _ = fmt.Fprintf(c.out(), "State:     %s (cycle %d)\n", snap.State, snap.Seq)
	_, _ = fmt.Fprintf(c.out(), "Recorded:  %d (forced %d)\n", snap.Recorded, snap.Forced)
	_, _ = fmt.Fprintf(c.out(), "Ignored:   %d triggers, %d stale events\n", snap.IgnoredTriggers, snap.StaleEvents)
	_, _ = fmt.Fprintf(c.out(), "Events:    %d (%d triggers, %d tags, %d completions)\n",
		metrics.Events, metrics.Triggers, metrics.Tags, metrics.Completions)
}

func (c *console) simulated() (*sim.Reader, bool) {
	if c.st.simRead == nil {
		_, _ = fmt.Fprintln(c.out(), "Only available with -reader sim")
		return nil, false
	}
	return c.st.simRead, true
}

func (c *console) cmdTrigger(ctx context.Context) {
	reader, ok := c.simulated()
	if !ok {
		return
	}
	reader.SetInput(reeltag.TriggerPin, true)
	select {
	case <-ctx.Done():
	case <-time.After(pulseWidth):
	}
	reader.SetInput(reeltag.TriggerPin, false)
}

func (c *console) cmdTag(args []string) {
	reader, ok := c.simulated()
	if !ok {
		return
	}
	if len(args) == 0 {
		_, _ = fmt.Fprintln(c.out(), "Usage: tag add <epc> <tid> | tag rm <epc> | tag show <tid>")
		return
	}
	switch args[0] {
	case "add":
		if len(args) != 3 {
			_, _ = fmt.Fprintln(c.out(), "Usage: tag add <epc> <tid>")
			return
		}
		epc, err := reeltag.ParseTagData(args[1])
		if err != nil {
			_, _ = fmt.Fprintf(c.out(), "Invalid EPC: %v\n", err)
			return
		}
		tid, err := reeltag.ParseTagData(args[2])
		if err != nil {
			_, _ = fmt.Fprintf(c.out(), "Invalid TID: %v\n", err)
			return
		}
		reader.AddTag(sim.NewTag(epc.Hex(), tid.Hex()))
		_, _ = fmt.Fprintln(c.out(), "OK")
	case "rm":
		if len(args) != 2 {
			_, _ = fmt.Fprintln(c.out(), "Usage: tag rm <epc>")
			return
		}
		epc, err := reeltag.ParseTagData(args[1])
		if err != nil {
			_, _ = fmt.Fprintf(c.out(), "Invalid EPC: %v\n", err)
			return
		}
		reader.RemoveTag(epc)
		_, _ = fmt.Fprintln(c.out(), "OK")
	case "show":
		if len(args) != 2 {
			_, _ = fmt.Fprintln(c.out(), "Usage: tag show <tid>")
			return
		}
		tid, err := reeltag.ParseTagData(args[1])
		if err != nil {
			_, _ = fmt.Fprintf(c.out(), "Invalid TID: %v\n", err)
			return
		}
		tag, found := reader.Tag(tid)
		if !found {
			_, _ = fmt.Fprintln(c.out(), "No such tag")
			return
		}
		_, _ = fmt.Fprintf(c.out(), "EPC:       %s\n", tag.EPC.Hex())
		_, _ = fmt.Fprintf(c.out(), "Password:  %s\n", tag.AccessPassword().Hex())
		_, _ = fmt.Fprintf(c.out(), "Protected: %t\n", tag.Protected())
		_, _ = fmt.Fprintf(c.out(), "Locks:     %v\n", tag.Locks)
	default:
		_, _ = fmt.Fprintf(c.out(), "Unknown tag command: %s\n", args[0])
	}
}
