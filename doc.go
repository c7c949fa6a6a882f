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

/*
Package reeltag drives trigger-based UHF RFID tag programming on a
production line.

A fixed reader is wired to a part-present sensor. On each rising edge of the
trigger input the line raises a busy output, reads or writes the tag on the
part, records the result and drops busy again. This package holds the domain
types shared by the rest of the module:

  - OperationMode and Config select what happens to each tag
  - ConfigureSettings maps a mode to reader settings
  - PlanOperations maps a mode and a discovered TID to an OperationSequence
  - Session is the contract a reader connection implements

The part-cycle state machine lives in the cycle package and the result log in
the recorder package. Reader implementations live under transport/ and sim.

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-reeltag"
	    "github.com/ZaparooProject/go-reeltag/cycle"
	    "github.com/ZaparooProject/go-reeltag/recorder"
	    "github.com/ZaparooProject/go-reeltag/transport/reader18"
	)

	session, err := reeltag.ConnectSession(ctx, "192.168.1.190:6000",
	    reeltag.WithSessionFactory(reader18.Factory()),
	)
	if err != nil {
	    log.Fatal(err)
	}
	defer reeltag.Shutdown(context.Background(), session)

	cfg := &reeltag.Config{TagPassword: "00000000", Antenna: 1, TxPowerDbm: 20}
	if _, err := reeltag.ArmReader(ctx, session, reeltag.ModeInventoryRead, cfg); err != nil {
	    log.Fatal(err)
	}

	sink, err := recorder.OpenCSV("results.csv")
	if err != nil {
	    log.Fatal(err)
	}
	defer sink.Close()

	ctrl := cycle.NewController(session, reeltag.ModeInventoryRead, cfg, recorder.New(sink))
	runner := cycle.NewRunner(ctrl, session)
	_ = runner.Run(ctx)
*/
package reeltag
