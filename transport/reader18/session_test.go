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

package reader18_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/internal/frame"
	"github.com/ZaparooProject/go-reeltag/sim"
	"github.com/ZaparooProject/go-reeltag/transport/reader18"
)

const (
	testEPC = "E2000017221101441890ABCD"
	testTID = "E2801105200074C5A1B2"
)

func fastOptions() reader18.Options {
	opts := reader18.DefaultOptions()
	opts.CommandTimeout = 200 * time.Millisecond
	opts.InventoryInterval = time.Millisecond
	opts.GPIPollInterval = time.Millisecond
	opts.TIDWords = 5
	return opts
}

func connect(t *testing.T, reader *sim.Reader) *reader18.Session {
	t.Helper()
	s := reader18.New(reader18.WithOptions(fastOptions()), reader18.WithDialer(reader.Dialer()))
	require.NoError(t, s.Connect(context.Background(), "sim"))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func nextEvent[T reeltag.Event](t *testing.T, s *reader18.Session) T {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			require.True(t, ok, "event channel closed")
			if typed, match := ev.(T); match {
				return typed
			}
		case <-timeout:
			var zero T
			t.Fatalf("no %T event", zero)
			return zero
		}
	}
}

func TestSessionConnect(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(2)
	s := connect(t, reader)

	assert.Equal(t, 2, s.Info().Antennas())
	assert.Equal(t, 1, reader.CommandCount(frame.CmdGetReaderInfo))
	require.ErrorIs(t, s.Connect(context.Background(), "sim"), reeltag.ErrAlreadyConnected)

	defaults, err := s.QueryDefaultSettings(context.Background())
	require.NoError(t, err)
	assert.Len(t, defaults.Antennas, 2)
}

func TestSessionNotConnected(t *testing.T) {
	t.Parallel()
	s := reader18.New()
	ctx := context.Background()

	_, err := s.QueryDefaultSettings(ctx)
	require.ErrorIs(t, err, reeltag.ErrNotConnected)
	require.ErrorIs(t, s.StartSingulation(ctx), reeltag.ErrNotConnected)
	require.ErrorIs(t, s.SetDigitalOutput(ctx, 1, true), reeltag.ErrNotConnected)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")
	_, open := <-s.Events()
	assert.False(t, open)
	require.ErrorIs(t, s.Connect(ctx, "sim"), reeltag.ErrSessionClosed)
}

func TestSessionConnectTimeout(t *testing.T) {
	t.Parallel()
	opts := fastOptions()
	opts.CommandTimeout = 10 * time.Millisecond
	opts.CommandRetries = 1
	silent := func(context.Context, string, reader18.PortOptions) (reader18.Port, error) {
		client, server := netPipe()
		go drain(server)
		return client, nil
	}
	s := reader18.New(reader18.WithOptions(opts), reader18.WithDialer(silent))
	defer func() { _ = s.Close() }()

	err := s.Connect(context.Background(), "sim")
	require.ErrorIs(t, err, reeltag.ErrCommandFailed)
	require.ErrorIs(t, err, reeltag.ErrTransportTimeout)
	_, err = s.QueryDefaultSettings(context.Background())
	require.ErrorIs(t, err, reeltag.ErrNotConnected, "failed probe leaves the session unconnected")
}

func TestSessionApplySettings(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(4)
	s := connect(t, reader)
	ctx := context.Background()

	defaults, err := s.QueryDefaultSettings(ctx)
	require.NoError(t, err)
	cfg := &reeltag.Config{TagPassword: "1234ABCD", Antenna: 2, TxPowerDbm: 20}
	settings, err := reeltag.ConfigureSettings(reeltag.ModeInventoryReadHidden, cfg, defaults)
	require.NoError(t, err)
	require.NoError(t, s.ApplySettings(ctx, settings))

	assert.Equal(t, []byte{0, 20, 0, 0}, reader.Power())
	selects := reader.Selects()
	require.Len(t, selects, reeltag.HiddenFilterFillers+1)
	assert.Equal(t, []byte{0x12, 0x34, 0xAB, 0xCD}, selects[len(selects)-1].Mask)

	// a second apply replaces the chain rather than extending it
	plain, err := reeltag.ConfigureSettings(reeltag.ModeInventoryRead, &reeltag.Config{}, defaults)
	require.NoError(t, err)
	require.NoError(t, s.ApplySettings(ctx, plain))
	assert.Empty(t, reader.Selects())

	t.Run("antenna out of range", func(t *testing.T) {
		t.Parallel()
		bad := plain.Clone()
		bad.Antennas = []reeltag.AntennaConfig{{Port: 7, Enabled: true}}
		require.ErrorIs(t, s.ApplySettings(ctx, bad), reeltag.ErrSettingsRejected)
	})

	t.Run("unsupported filter", func(t *testing.T) {
		t.Parallel()
		bad := plain.Clone()
		bad.Filters = reeltag.FilterSettings{Mode: reeltag.FilterChain, TagSelectFilters: []reeltag.TagSelectFilter{
			{Mask: "FF", BitCount: 8, MatchAction: reeltag.FilterDoNothing, NoMatch: reeltag.FilterDoNothing},
		}}
		require.ErrorIs(t, s.ApplySettings(ctx, bad), reeltag.ErrUnsupportedFilter)
	})
}

func TestSessionSingulationReportsTagOnce(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(1)
	reader.AddTag(sim.NewTag(testEPC, testTID))
	s := connect(t, reader)
	ctx := context.Background()

	require.NoError(t, s.StartSingulation(ctx))
	require.NoError(t, s.StartSingulation(ctx), "starting twice is a no-op")
	status, err := s.QuerySingulationStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Running)

	seen := nextEvent[reeltag.TagSeen](t, s)
	assert.Equal(t, testEPC, seen.Tag.EPC.Hex())
	assert.Equal(t, testTID, seen.Tag.TID.Hex())
	assert.Equal(t, 1, seen.Tag.Antenna)

	require.Eventually(t, func() bool { return reader.CommandCount(frame.CmdInventory) > 5 },
		time.Second, time.Millisecond)
	require.NoError(t, s.StopSingulation(ctx))
	status, err = s.QuerySingulationStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)

	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %T after the first report", ev)
	default:
	}
}

func TestSessionExecutesSequence(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(1)
	reader.AddTag(sim.NewTag(testEPC, testTID))
	s := connect(t, reader)
	ctx := context.Background()

	cfg := &reeltag.Config{TagPassword: "00000000", NewTagPassword: "CAFEBABE"}
	tid := reeltag.MustParseTagData(testTID)
	seq, err := reeltag.PlanOperations(reeltag.ModeSetPassword, tid, cfg)
	require.NoError(t, err)
	seq.ID = 7

	require.NoError(t, s.SubmitOperationSequence(ctx, seq))
	require.ErrorIs(t, s.SubmitOperationSequence(ctx, seq), reeltag.ErrSequencePending)
	require.NoError(t, s.StartSingulation(ctx))

	done := nextEvent[reeltag.OperationComplete](t, s)
	assert.Equal(t, uint32(7), done.Report.SequenceID)
	assert.True(t, done.Report.Succeeded())
	assert.Equal(t, "WriteResultStatus=Success LockResultStatus=Success ", done.Report.Message())

	tag, ok := reader.Tag(tid)
	require.True(t, ok)
	assert.Equal(t, "CAFEBABE", tag.AccessPassword().Hex())
	assert.Equal(t, reeltag.LockLock, tag.Locks[reeltag.LockAreaAccessPassword])

	require.NoError(t, s.SubmitOperationSequence(ctx, seq), "pending slot is free again")
}

func TestSessionReportsTagErrors(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(1)
	tag := sim.NewTag(testEPC, testTID)
	tag.SetAccessPassword(reeltag.MustParseTagData("11112222"))
	reader.AddTag(tag)
	s := connect(t, reader)
	ctx := context.Background()

	cfg := &reeltag.Config{TagPassword: "33334444", NewTagPassword: "CAFEBABE"}
	tid := reeltag.MustParseTagData(testTID)
	seq, err := reeltag.PlanOperations(reeltag.ModeSetPassword, tid, cfg)
	require.NoError(t, err)
	seq.ID = 1

	require.NoError(t, s.SubmitOperationSequence(ctx, seq))
	require.NoError(t, s.StartSingulation(ctx))

	done := nextEvent[reeltag.OperationComplete](t, s)
	require.Len(t, done.Report.Results, 1, "sequence stops at the first failure")
	assert.Equal(t, reeltag.StatusIncorrectPasswordError, done.Report.Results[0].Status)
	assert.Equal(t, "WriteResultStatus=IncorrectPasswordError ", done.Report.Message())
}

func TestSessionDigitalIO(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(1)
	s := connect(t, reader)
	ctx := context.Background()

	require.NoError(t, s.SetDigitalOutput(ctx, reeltag.PassFailPin, true))
	require.NoError(t, s.SetDigitalOutput(ctx, reeltag.BusyPin, true))
	assert.True(t, reader.Output(reeltag.PassFailPin))
	assert.True(t, reader.Output(reeltag.BusyPin))
	require.NoError(t, s.SetDigitalOutput(ctx, reeltag.BusyPin, false))
	assert.False(t, reader.Output(reeltag.BusyPin))
	assert.True(t, reader.Output(reeltag.PassFailPin), "other outputs keep their level")
	require.ErrorIs(t, s.SetDigitalOutput(ctx, 0, true), reeltag.ErrInvalidParameter)

	defaults, err := s.QueryDefaultSettings(ctx)
	require.NoError(t, err)
	settings, err := reeltag.ConfigureSettings(reeltag.ModeInventoryRead, &reeltag.Config{}, defaults)
	require.NoError(t, err)
	settings.GPIs[0].Debounce = 5 * time.Millisecond
	require.NoError(t, s.ApplySettings(ctx, settings))

	time.Sleep(20 * time.Millisecond)
	reader.SetInput(reeltag.TriggerPin, true)
	edge := nextEvent[reeltag.TriggerEdge](t, s)
	assert.Equal(t, reeltag.TriggerPin, edge.Pin)
	assert.True(t, edge.Rising())

	reader.SetInput(reeltag.TriggerPin, false)
	edge = nextEvent[reeltag.TriggerEdge](t, s)
	assert.False(t, edge.Rising())
}

func TestSessionCloseStopsEverything(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(1)
	reader.AddTag(sim.NewTag(testEPC, testTID))
	s := connect(t, reader)
	require.NoError(t, s.StartSingulation(context.Background()))

	require.NoError(t, s.Close())
	for range s.Events() {
	}
	_, err := s.QuerySingulationStatus(context.Background())
	require.ErrorIs(t, err, reeltag.ErrSessionClosed)
}

func TestSessionCancelOperationSequence(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(1)
	s := connect(t, reader)
	ctx := context.Background()

	cfg := &reeltag.Config{TagPassword: "00000000"}
	seq, err := reeltag.PlanOperations(reeltag.ModeInventoryRead, reeltag.MustParseTagData(testTID), cfg)
	require.NoError(t, err)
	seq.ID = 1
	require.NoError(t, s.CancelOperationSequence(ctx), "nothing queued")
	require.NoError(t, s.SubmitOperationSequence(ctx, seq))

	// stopping the loop keeps the sequence; only a withdrawal drops it
	require.NoError(t, s.StartSingulation(ctx))
	require.NoError(t, s.StopSingulation(ctx))
	require.ErrorIs(t, s.SubmitOperationSequence(ctx, seq), reeltag.ErrSequencePending)

	require.NoError(t, s.CancelOperationSequence(ctx))
	seq.ID = 2
	require.NoError(t, s.SubmitOperationSequence(ctx, seq))
}

func TestSessionInterruptedReadStaysQueued(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(1)
	reader.AddTag(sim.NewTag(testEPC, testTID))
	s := connect(t, reader)
	ctx := context.Background()

	require.NoError(t, s.StartSingulation(ctx))
	nextEvent[reeltag.TagSeen](t, s)

	reached, release := reader.StallAfter(frame.CmdReadData, 0)
	t.Cleanup(release)
	cfg := &reeltag.Config{TagPassword: "00000000"}
	seq, err := reeltag.PlanOperations(reeltag.ModeInventoryRead, reeltag.MustParseTagData(testTID), cfg)
	require.NoError(t, err)
	seq.ID = 3
	require.NoError(t, s.SubmitOperationSequence(ctx, seq))

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("sequence never reached the reader")
	}
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.StopSingulation(stopCtx))
	release()

	require.ErrorIs(t, s.SubmitOperationSequence(ctx, seq), reeltag.ErrSequencePending,
		"a read cut short leaves the sequence queued")
	require.NoError(t, s.StartSingulation(ctx))
	done := nextEvent[reeltag.OperationComplete](t, s)
	assert.Equal(t, uint32(3), done.Report.SequenceID)
	assert.True(t, done.Report.Succeeded())
}

func TestSessionInterruptedAfterWriteReports(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(1)
	reader.AddTag(sim.NewTag(testEPC, testTID))
	s := connect(t, reader)
	ctx := context.Background()

	reached, release := reader.StallAfter(frame.CmdLock, 0)
	t.Cleanup(release)
	cfg := &reeltag.Config{TagPassword: "00000000", NewTagPassword: "CAFEBABE"}
	tid := reeltag.MustParseTagData(testTID)
	seq, err := reeltag.PlanOperations(reeltag.ModeSetPassword, tid, cfg)
	require.NoError(t, err)
	seq.ID = 4
	require.NoError(t, s.SubmitOperationSequence(ctx, seq))
	require.NoError(t, s.StartSingulation(ctx))

	select {
	case <-reached:
	case <-time.After(2 * time.Second):
		t.Fatal("lock never reached the reader")
	}
	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.StopSingulation(stopCtx))
	release()

	done := nextEvent[reeltag.OperationComplete](t, s)
	assert.Equal(t, uint32(4), done.Report.SequenceID)
	require.Len(t, done.Report.Results, 2)
	assert.Equal(t, reeltag.StatusSuccess, done.Report.Results[0].Status)
	assert.NotEqual(t, reeltag.StatusSuccess, done.Report.Results[1].Status)
	require.NoError(t, s.SubmitOperationSequence(ctx, seq), "a reported sequence frees the slot")
}

func TestSessionInputHighWhenArmed(t *testing.T) {
	t.Parallel()
	reader := sim.NewReader(1)
	reader.SetInput(reeltag.TriggerPin, true)
	s := connect(t, reader)
	ctx := context.Background()

	defaults, err := s.QueryDefaultSettings(ctx)
	require.NoError(t, err)
	settings, err := reeltag.ConfigureSettings(reeltag.ModeInventoryRead, &reeltag.Config{}, defaults)
	require.NoError(t, err)
	settings.GPIs[0].Debounce = 5 * time.Millisecond
	require.NoError(t, s.ApplySettings(ctx, settings))

	edge := nextEvent[reeltag.TriggerEdge](t, s)
	assert.Equal(t, reeltag.TriggerPin, edge.Pin)
	assert.True(t, edge.Rising(), "a part already present counts as a trigger")
}
