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
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/config"
	"github.com/ZaparooProject/go-reeltag/cycle"
	"github.com/ZaparooProject/go-reeltag/detection"
	"github.com/ZaparooProject/go-reeltag/gpio/hostpin"
	"github.com/ZaparooProject/go-reeltag/recorder"
	"github.com/ZaparooProject/go-reeltag/sim"
	"github.com/ZaparooProject/go-reeltag/transport/reader18"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func newFlagSet(cfg *config.Config, path *string) *flag.FlagSet {
	fs := flag.NewFlagSet("reelprog", flag.ContinueOnError)
	fs.StringVar(path, "config", *path, "YAML station configuration file")
	cfg.BindFlags(fs)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(fs.Output(), "Usage: reelprog [flags]")
		_, _ = fmt.Fprintln(fs.Output(), "\nOperator menu:")
		for i, entry := range reeltag.Menu {
			_, _ = fmt.Fprintf(fs.Output(), "  %d  %s\n", i, entry.Description)
		}
		_, _ = fmt.Fprintln(fs.Output())
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags reads the command line. When -config names a file the
// arguments are parsed a second time over the loaded file, so flags win.
func parseFlags(args []string) (*config.Config, error) {
	var path string
	cfg := config.Default()
	if err := newFlagSet(cfg, &path).Parse(args); err != nil {
		return nil, err
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		if err := newFlagSet(cfg, &path).Parse(args); err != nil {
			return nil, err
		}
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Log.Debug {
		reeltag.SetDebugEnabled(true)
	}
	return cfg, nil
}

func run(args []string) int {
	cfg, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := newStation(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer st.close()

	return st.serve(ctx, cancel)
}

// station is one running programming line
type station struct {
	cfg      *config.Config
	session  reeltag.Session
	rec      *recorder.Recorder
	ctrl     *cycle.Controller
	runner   *cycle.Runner
	simRead  *sim.Reader
	trigger  *hostpin.Trigger
	runID    uuid.UUID
	address  string
	settings *reeltag.Settings
}

func newStation(ctx context.Context, cfg *config.Config) (*station, error) {
	st := &station{cfg: cfg, runID: uuid.New(), address: cfg.Reader.Address}

	factory, err := st.sessionFactory(ctx)
	if err != nil {
		return nil, err
	}

	_, _ = fmt.Printf("Connecting to reader at %s\n", st.address)
	session, err := reeltag.ConnectSession(ctx, st.address,
		reeltag.WithSessionFactory(factory),
		reeltag.WithConnectRetry(cfg.RetryConfig()),
		reeltag.WithConnectTimeout(cfg.Reader.ConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	st.session = session

	settings, err := reeltag.ArmReader(ctx, session, cfg.Mode(), &cfg.Tag)
	if err != nil {
		reeltag.Shutdown(ctx, session)
		return nil, fmt.Errorf("arm reader: %w", err)
	}
	st.settings = settings

	sink, err := openSinks(cfg.Log, st.runID)
	if err != nil {
		reeltag.Shutdown(ctx, session)
		return nil, err
	}
	st.rec = recorder.New(sink)

	var ctrlOpts []cycle.Option
	if cfg.CompletionTimeout > 0 {
		ctrlOpts = append(ctrlOpts, cycle.WithCompletionTimeout(cfg.CompletionTimeout))
	}
	var runnerOpts []cycle.RunnerOption
	if cfg.GPIO.Busy != "" {
		out, err := hostpin.OpenOutputs(map[int]string{reeltag.BusyPin: cfg.GPIO.Busy})
		if err != nil {
			st.close()
			return nil, err
		}
		ctrlOpts = append(ctrlOpts, cycle.WithBusyOutput(out))
	}
	if cfg.GPIO.Trigger != "" {
		trig, err := hostpin.OpenTrigger(cfg.GPIO.Trigger, reeltag.TriggerDebounce)
		if err != nil {
			st.close()
			return nil, err
		}
		st.trigger = trig
		runnerOpts = append(runnerOpts, cycle.WithTriggerSource(trig))
	}

	st.ctrl = cycle.NewController(session, cfg.Mode(), &cfg.Tag, st.rec, ctrlOpts...)
	st.runner = cycle.NewRunner(st.ctrl, session, runnerOpts...)
	return st, nil
}

func (st *station) sessionFactory(ctx context.Context) (reeltag.SessionFactory, error) {
	opts := []reader18.Option{reader18.WithOptions(st.cfg.ReaderOptions())}

	switch st.address {
	case config.SimAddress:
		st.simRead = sim.NewReader(4)
		st.simRead.AddTag(sim.NewTag("E20000172211010118905449", "E2801105200074C1A9D80000"))
		return st.simRead.Factory(opts...), nil
	case "":
		_, _ = fmt.Println("Searching for a reader...")
		address, err := detection.FindReader(ctx, detection.FindOptions{
			Serial:  detection.SerialOptions{IgnorePaths: st.cfg.Reader.IgnorePaths},
			Service: st.cfg.Reader.Service,
			Reader:  opts,
		})
		if err != nil {
			return nil, fmt.Errorf("auto-detect reader: %w", err)
		}
		st.address = address
	}
	return reader18.Factory(opts...), nil
}

func openSinks(logs config.LogConfig, runID uuid.UUID) (recorder.Sink, error) {
	var sinks []recorder.Sink
	fail := func(err error) (recorder.Sink, error) {
		for _, s := range sinks {
			_ = s.Close()
		}
		return nil, err
	}
	if logs.CSV != "" {
		s, err := recorder.OpenCSV(logs.CSV)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if logs.SQLite != "" {
		s, err := recorder.OpenSQLite(logs.SQLite, runID)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if logs.Journal != "" {
		s, err := recorder.OpenJournal(logs.Journal, runID)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return recorder.NewMultiSink(sinks...), nil
}

// serve runs the event loop and the operator console until either ends
func (st *station) serve(ctx context.Context, cancel context.CancelFunc) int {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "reelprog> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: failed to create readline: %v\n", err)
		return 1
	}
	reeltag.SetLogger(slog.New(slog.NewTextHandler(rl.Stderr(), &slog.HandlerOptions{Level: reeltag.LogLevel()})))
	defer reeltag.SetLogger(nil)

	if st.trigger != nil {
		go st.trigger.Run(ctx)
	}
	runErr := make(chan error, 1)
	go func() { runErr <- st.runner.Run(ctx) }()

	con := &console{rl: rl, st: st}
	go func() {
		con.run(ctx)
		cancel()
	}()

	_, _ = fmt.Fprintf(rl.Stdout(), "Mode %s armed on %s, run %s. Waiting for parts.\n",
		st.cfg.Mode(), st.address, st.runID)

	var code int
	select {
	case <-ctx.Done():
	case err := <-runErr:
		switch {
		case errors.Is(err, context.Canceled):
		case err != nil:
			_, _ = fmt.Fprintf(rl.Stderr(), "Error: %v\n", err)
			code = 1
		default:
			_, _ = fmt.Fprintln(rl.Stderr(), "Reader event stream closed")
			code = 1
		}
	}
	_ = rl.Close()
	return code
}

func (st *station) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if st.session != nil {
		reeltag.Shutdown(shutdownCtx, st.session)
	}
	if st.rec != nil {
		if err := st.rec.Close(); err != nil {
			reeltag.Logger().Error("close result log", "error", err)
		}
	}
}
