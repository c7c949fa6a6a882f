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
	"fmt"
	"strings"
)

// PasswordHexLength is the length of a Gen2 access password in hex digits
const PasswordHexLength = 8

// DefaultTagPassword is the factory access password of a Gen2 tag
const DefaultTagPassword = "00000000"

// Config holds the per-process tag programming parameters. It is resolved
// before the controller is built and never changes afterwards.
type Config struct {
	// TagPassword is the tag's current access password as hex; empty means none
	TagPassword string `yaml:"tag_password" json:"tag_password"`

	// NewTagPassword is the password to program, for modes that write one
	NewTagPassword string `yaml:"new_tag_password" json:"new_tag_password"`

	// Antenna is the antenna port to isolate; 0 keeps the reader default
	Antenna int `yaml:"antenna" json:"antenna"`

	// TxPowerDbm is the transmit power for Antenna; 0 keeps the reader default
	TxPowerDbm float64 `yaml:"tx_power_dbm" json:"tx_power_dbm"`

	// Enable selects protect (true) or unprotect (false)
	Enable bool `yaml:"enable" json:"enable"`
}

// IsolatesAntenna reports whether both antenna and power were given, which
// is what switches the profile to a single antenna.
func (c *Config) IsolatesAntenna() bool {
	return c.Antenna > 0 && c.TxPowerDbm > 0
}

// Password returns the current access password, nil when none is set
func (c *Config) Password() (TagData, error) {
	return parsePassword("tag password", c.TagPassword)
}

// NewPassword returns the password to program, nil when none is set
func (c *Config) NewPassword() (TagData, error) {
	return parsePassword("new tag password", c.NewTagPassword)
}

// PasswordChanges reports whether the configured new password differs from
// the current one. Comparison is on the decoded bytes so case is irrelevant.
func (c *Config) PasswordChanges() bool {
	current, err := c.Password()
	if err != nil {
		return true
	}
	next, err := c.NewPassword()
	if err != nil {
		return true
	}
	return !current.Equal(next)
}

// Validate checks the configuration against what mode needs
func (c *Config) Validate(mode OperationMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	if c.Antenna < 0 {
		return fmt.Errorf("%w: antenna port %d", ErrInvalidParameter, c.Antenna)
	}
	if c.TxPowerDbm < 0 {
		return fmt.Errorf("%w: transmit power %.2f dBm", ErrInvalidParameter, c.TxPowerDbm)
	}
	if _, err := c.Password(); err != nil {
		return err
	}
	newPassword, err := c.NewPassword()
	if err != nil {
		return err
	}
	if mode.WritesPassword() && newPassword == nil {
		return fmt.Errorf("%w: %s needs a new tag password", ErrInvalidPassword, mode)
	}
	if needsHiddenFilters(mode, c) {
		if strings.TrimSpace(c.TagPassword) == "" {
			return fmt.Errorf("%w: %s filters on the tag password, which is empty", ErrInvalidPassword, mode)
		}
	}
	return nil
}

func parsePassword(what, value string) (TagData, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if len(value) != PasswordHexLength {
		return nil, fmt.Errorf("%w: %s must be %d hex digits, got %q", ErrInvalidPassword, what, PasswordHexLength, value)
	}
	data, err := ParseTagData(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPassword, what, err)
	}
	return data, nil
}
