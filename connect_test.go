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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mockFactory(m *MockSession) SessionFactory {
	return func(string) (Session, error) { return m, nil }
}

func TestConnectSession(t *testing.T) {
	t.Parallel()

	t.Run("Connects", func(t *testing.T) {
		t.Parallel()
		m := NewMockSession()
		s, err := ConnectSession(context.Background(), "reader:6000", WithSessionFactory(mockFactory(m)))
		require.NoError(t, err)
		assert.Same(t, m, s)
		assert.Equal(t, "reader:6000", m.Address())
	})

	t.Run("RequiresFactory", func(t *testing.T) {
		t.Parallel()
		_, err := ConnectSession(context.Background(), "reader:6000")
		require.Error(t, err)
	})

	t.Run("ConnectionErrorIsFatal", func(t *testing.T) {
		t.Parallel()
		m := NewMockSession()
		m.ConnectErr = errors.New("connection refused")
		_, err := ConnectSession(context.Background(), "reader:6000",
			WithSessionFactory(mockFactory(m)),
			WithConnectRetry(fastRetryConfig(2)),
			WithConnectTimeout(time.Second))
		require.Error(t, err)
		assert.True(t, IsConnectionError(err))
		_, ok := <-m.Events()
		assert.False(t, ok, "session is closed after a failed connect")
	})

	t.Run("FactoryError", func(t *testing.T) {
		t.Parallel()
		_, err := ConnectSession(context.Background(), "bad",
			WithSessionFactory(func(string) (Session, error) { return nil, errors.New("no such port") }))
		require.Error(t, err)
		assert.True(t, IsConnectionError(err))
	})

	t.Run("RejectsNegativeTimeout", func(t *testing.T) {
		t.Parallel()
		_, err := ConnectSession(context.Background(), "x",
			WithSessionFactory(mockFactory(NewMockSession())), WithConnectTimeout(-time.Second))
		require.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestArmReader(t *testing.T) {
	t.Parallel()

	t.Run("AppliesProfileAndIdlesOutputs", func(t *testing.T) {
		t.Parallel()
		m := NewMockSession()
		require.NoError(t, m.Connect(context.Background(), "sim"))

		cfg := &Config{TagPassword: "00000000", Antenna: 1, TxPowerDbm: 20}
		settings, err := ArmReader(context.Background(), m, ModeInventoryRead, cfg)
		require.NoError(t, err)
		assert.Equal(t, 2, settings.RFMode)

		applied := m.Applied()
		require.Len(t, applied, 1)
		assert.Equal(t, []int{1}, applied[0].EnabledAntennas())
		assert.Equal(t, []OutputChange{
			{Pin: PassFailPin, Level: true},
			{Pin: BusyPin, Level: false},
		}, m.Outputs())
	})

	t.Run("SettingsRejected", func(t *testing.T) {
		t.Parallel()
		m := NewMockSession()
		require.NoError(t, m.Connect(context.Background(), "sim"))
		m.ApplyErr = errors.New("rf mode not supported")

		_, err := ArmReader(context.Background(), m, ModeInventoryRead, &Config{})
		require.ErrorIs(t, err, ErrSettingsRejected)
		assert.Equal(t, ErrorTypeSettings, GetErrorType(err))
		assert.Empty(t, m.Outputs(), "outputs stay untouched when settings fail")
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		t.Parallel()
		m := NewMockSession()
		require.NoError(t, m.Connect(context.Background(), "sim"))
		_, err := ArmReader(context.Background(), m, ModeSetPassword, &Config{})
		require.ErrorIs(t, err, ErrInvalidPassword)
	})
}

func TestShutdownSwallowsErrors(t *testing.T) {
	t.Parallel()

	m := NewMockSession()
	require.NoError(t, m.Connect(context.Background(), "sim"))
	m.StopErr = errors.New("already stopped")
	m.OutputErr = errors.New("gpio fault")

	assert.NotPanics(t, func() { Shutdown(context.Background(), m) })
	_, ok := <-m.Events()
	assert.False(t, ok)

	assert.NotPanics(t, func() { Shutdown(context.Background(), nil) })
}
