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
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// TagData is a run of bytes read from or written to tag memory. Tag memory is
// word addressed, so well formed data has an even length.
type TagData []byte

// TagIdentity is the content of a tag's TID bank, used to correlate events
// within one part cycle.
type TagIdentity = TagData

// ParseTagData decodes a hex string. Spaces are ignored so word-grouped
// strings such as "0000 0002" are accepted.
func ParseTagData(s string) (TagData, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	if cleaned == "" {
		return nil, nil
	}
	if len(cleaned)%4 != 0 {
		return nil, fmt.Errorf("%w: %q is not a whole number of 16-bit words", ErrInvalidTagData, s)
	}
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTagData, err)
	}
	return data, nil
}

// MustParseTagData is ParseTagData for constants. It panics on bad input.
func MustParseTagData(s string) TagData {
	data, err := ParseTagData(s)
	if err != nil {
		panic(err)
	}
	return data
}

// Hex returns the data as uppercase hex without separators
func (d TagData) Hex() string {
	return strings.ToUpper(hex.EncodeToString(d))
}

// HexWords returns the data as space separated 16-bit words
func (d TagData) HexWords() string {
	if len(d) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := 0; i < len(d); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		end := min(i+2, len(d))
		sb.WriteString(strings.ToUpper(hex.EncodeToString(d[i:end])))
	}
	return sb.String()
}

// String implements fmt.Stringer
func (d TagData) String() string {
	return d.Hex()
}

// Equal reports whether d and other hold the same bytes
func (d TagData) Equal(other TagData) bool {
	return bytes.Equal(d, other)
}

// IsZero reports whether the data is empty or all zero bytes
func (d TagData) IsZero() bool {
	for _, b := range d {
		if b != 0 {
			return false
		}
	}
	return true
}

// Words returns the number of 16-bit words in d
func (d TagData) Words() int {
	return len(d) / 2
}

// Clone returns a copy of d
func (d TagData) Clone() TagData {
	if d == nil {
		return nil
	}
	return append(TagData(nil), d...)
}
