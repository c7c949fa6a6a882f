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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Microsecond,
		MaxBackoff:        10 * time.Microsecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      time.Second,
	}
}

func TestRetryWithConfig(t *testing.T) {
	t.Parallel()

	t.Run("SucceedsAfterTransientErrors", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := RetryWithConfig(context.Background(), fastRetryConfig(3), func() error {
			calls++
			if calls < 3 {
				return ErrTransportTimeout
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("StopsOnPermanentError", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := RetryWithConfig(context.Background(), fastRetryConfig(5), func() error {
			calls++
			return ErrInvalidPassword
		})
		require.ErrorIs(t, err, ErrInvalidPassword)
		assert.Equal(t, 1, calls)
	})

	t.Run("ReturnsLastErrorWhenExhausted", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := RetryWithConfig(context.Background(), fastRetryConfig(2), func() error {
			calls++
			return ErrTransportRead
		})
		require.ErrorIs(t, err, ErrTransportRead)
		assert.Equal(t, 2, calls)
	})

	t.Run("ZeroAttemptsRunsOnce", func(t *testing.T) {
		t.Parallel()
		calls := 0
		_ = RetryWithConfig(context.Background(), &RetryConfig{MaxAttempts: -1}, func() error {
			calls++
			return ErrTransportRead
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("HonoursContext", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		cfg := fastRetryConfig(10)
		cfg.InitialBackoff = time.Hour
		calls := 0
		err := RetryWithConfig(ctx, cfg, func() error {
			calls++
			return ErrTransportTimeout
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestNextBackoff(t *testing.T) {
	t.Parallel()

	cfg := &RetryConfig{BackoffMultiplier: 2, MaxBackoff: 300 * time.Millisecond}
	assert.Equal(t, 200*time.Millisecond, nextBackoff(100*time.Millisecond, cfg))
	assert.Equal(t, 300*time.Millisecond, nextBackoff(200*time.Millisecond, cfg))
	assert.Equal(t, 100*time.Millisecond, nextBackoff(100*time.Millisecond, &RetryConfig{BackoffMultiplier: -1}))
	assert.Equal(t, time.Second, addJitter(time.Second, 0))
	assert.GreaterOrEqual(t, addJitter(time.Second, 0.5), time.Second)
}
