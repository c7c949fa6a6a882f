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
	"context"
	"errors"
	"fmt"
	"time"
)

// SessionFactory creates an unconnected session for address
type SessionFactory func(address string) (Session, error)

// ConnectOption configures ConnectSession
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	factory        SessionFactory
	retryConfig    *RetryConfig
	connectTimeout time.Duration
}

// WithSessionFactory sets how the session is created
func WithSessionFactory(factory SessionFactory) ConnectOption {
	return func(c *connectConfig) error {
		if factory == nil {
			return errors.New("session factory must not be nil")
		}
		c.factory = factory
		return nil
	}
}

// WithConnectRetry sets the retry behavior of the connect step
func WithConnectRetry(config *RetryConfig) ConnectOption {
	return func(c *connectConfig) error {
		c.retryConfig = config
		return nil
	}
}

// WithConnectTimeout bounds each connection attempt
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		if timeout < 0 {
			return fmt.Errorf("%w: connect timeout %v", ErrInvalidParameter, timeout)
		}
		c.connectTimeout = timeout
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		retryConfig:    DefaultRetryConfig(),
		connectTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	if config.factory == nil {
		return nil, errors.New("session factory not provided")
	}
	return config, nil
}

// ConnectSession creates a session for address and connects it, retrying
// transient failures. A failure is returned as a connection SessionError.
func ConnectSession(ctx context.Context, address string, opts ...ConnectOption) (Session, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply connect options: %w", err)
	}

	session, err := config.factory(address)
	if err != nil {
		return nil, NewConnectionError("create session", address, err)
	}

	err = RetryWithConfig(ctx, config.retryConfig, func() error {
		attemptCtx := ctx
		if config.connectTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, config.connectTimeout)
			defer cancel()
		}
		if err := session.Connect(attemptCtx, address); err != nil {
			if errors.Is(err, ErrAlreadyConnected) {
				return nil
			}
			return NewConnectionError("connect", address, err)
		}
		return nil
	})
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	logger().Info("connected to reader", "address", address)
	return session, nil
}

// ArmReader applies the settings for mode and cfg to a connected session and
// puts the outputs into their idle state: pass/fail high, busy low. The
// applied settings are returned.
func ArmReader(ctx context.Context, session Session, mode OperationMode, cfg *Config) (*Settings, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	defaults, err := session.QueryDefaultSettings(ctx)
	if err != nil {
		return nil, NewSettingsError("query default settings", "", err)
	}
	settings, err := ConfigureSettings(mode, cfg, defaults)
	if err != nil {
		return nil, err
	}
	if err := session.ApplySettings(ctx, settings); err != nil {
		logger().Error("reader rejected settings",
			"mode", mode.String(),
			"rf_mode", settings.RFMode,
			"search", settings.Search.String(),
			"session", settings.Session,
			"filters", len(settings.Filters.TagSelectFilters),
			"error", err)
		return nil, NewSettingsError("apply settings", "", err)
	}

	if err := session.SetDigitalOutput(ctx, PassFailPin, true); err != nil {
		return nil, NewSessionError("set pass/fail output", "", err, ErrorTypePermanent)
	}
	if err := session.SetDigitalOutput(ctx, BusyPin, false); err != nil {
		return nil, NewSessionError("set busy output", "", err, ErrorTypePermanent)
	}
	return settings, nil
}

// Shutdown stops singulation, drives busy low and closes the session. It is
// best effort and never fails.
func Shutdown(ctx context.Context, session Session) {
	if session == nil {
		return
	}
	if err := session.StopSingulation(ctx); err != nil {
		logger().Debug("stop singulation on shutdown", "error", err)
	}
	if err := session.SetDigitalOutput(ctx, BusyPin, false); err != nil {
		logger().Debug("clear busy on shutdown", "error", err)
	}
	if err := session.Close(); err != nil {
		logger().Debug("close session on shutdown", "error", err)
	}
}
