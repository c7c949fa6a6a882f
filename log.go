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
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	logLevel      = new(slog.LevelVar)
	packageLogger atomic.Pointer[slog.Logger]
)

func init() {
	logLevel.Set(slog.LevelInfo)
	packageLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// SetLogger replaces the logger used by this module. Passing nil restores the
// default stderr text logger.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	}
	packageLogger.Store(l)
}

// Logger returns the logger used by this module and its subpackages
func Logger() *slog.Logger {
	return packageLogger.Load()
}

// SetDebugEnabled switches debug output of the default logger on or off
func SetDebugEnabled(enabled bool) {
	if enabled {
		logLevel.Set(slog.LevelDebug)
		return
	}
	logLevel.Set(slog.LevelInfo)
}

// LogLevel exposes the level of the default logger so callers building their
// own handler can share the debug switch.
func LogLevel() *slog.LevelVar {
	return logLevel
}

func logger() *slog.Logger {
	return packageLogger.Load()
}
