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

// OperationMode selects what the line does with each part's tag. It drives
// both the radio profile and the tag operation plan and is fixed for the
// lifetime of a controller.
type OperationMode int

const (
	// ModeInventoryRead reads the access password of each discovered tag.
	ModeInventoryRead OperationMode = iota
	// ModeInventoryReadHidden is ModeInventoryRead behind a tag-select filter
	// chain, for tags that only answer when selected by their password.
	ModeInventoryReadHidden
	// ModeSetPassword writes a new access password into a discovered tag and
	// locks it.
	ModeSetPassword
	// ModeSetPasswordDirect writes and locks the password on whatever tag the
	// reader singulates next, without a discovery step.
	ModeSetPasswordDirect
	// ModeProtectTags toggles the protected-mode flag of a discovered tag,
	// optionally rewriting its password first.
	ModeProtectTags
	// ModeProtectTagsDirect toggles the protected-mode flag on the next
	// singulated tag.
	ModeProtectTagsDirect
	// ModeUnlockTags clears the protected-mode flag of a discovered tag.
	ModeUnlockTags
)

var modeNames = map[OperationMode]string{
	ModeInventoryRead:       "inventory-read",
	ModeInventoryReadHidden: "inventory-read-hidden",
	ModeSetPassword:         "set-password",
	ModeSetPasswordDirect:   "set-password-direct",
	ModeProtectTags:         "protect-tags",
	ModeProtectTagsDirect:   "protect-tags-direct",
	ModeUnlockTags:          "unlock-tags",
}

// String returns the canonical mode name
func (m OperationMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Valid reports whether m is one of the defined modes
func (m OperationMode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// IsDiscovery reports whether the mode singulates first and plans operations
// against the discovered tag's TID.
func (m OperationMode) IsDiscovery() bool {
	switch m {
	case ModeSetPasswordDirect, ModeProtectTagsDirect:
		return false
	default:
		return true
	}
}

// WritesPassword reports whether the mode may write a new access password
func (m OperationMode) WritesPassword() bool {
	switch m {
	case ModeSetPassword, ModeSetPasswordDirect, ModeProtectTags:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler
func (m OperationMode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *OperationMode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ParseMode parses a mode name. Matching ignores case and treats '_' and ' '
// like '-'.
func ParseMode(name string) (OperationMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.NewReplacer("_", "-", " ", "-").Replace(normalized)
	for mode, modeName := range modeNames {
		if modeName == normalized {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, name)
}

// MenuEntry is one numbered choice of the operator menu
type MenuEntry struct {
	Description string
	Mode        OperationMode
	Enable      bool
}

// Menu lists the operator menu in number order. Entries 4 and 5 share a mode
// and differ only in the enable flag.
var Menu = []MenuEntry{
	{Mode: ModeInventoryRead, Description: "Inventory Tag (reader)"},
	{Mode: ModeInventoryReadHidden, Description: "Inventory Hidden Tag (reader)"},
	{Mode: ModeSetPassword, Description: "Set Tag Password (reader, tagpassword, newtagpassword)"},
	{Mode: ModeUnlockTags, Description: "Unlock Tag (reader, tagpassword)"},
	{Mode: ModeProtectTags, Enable: true, Description: "Protect Tag - Keep Password (reader, tagpassword, newtagpassword)"},
	{Mode: ModeProtectTags, Enable: false, Description: "Unprotect Tag (reader, tagpassword)"},
	{Mode: ModeSetPasswordDirect, Description: "Set Tag Password, no discovery (reader, newtagpassword)"},
	{Mode: ModeProtectTagsDirect, Enable: true, Description: "Protect Tag, no discovery (reader, tagpassword)"},
}

// ParseMenu resolves an operator menu number
func ParseMenu(n int) (MenuEntry, error) {
	if n < 0 || n >= len(Menu) {
		return MenuEntry{}, fmt.Errorf("%w: menu option %d does not exist", ErrInvalidMode, n)
	}
	return Menu[n], nil
}
