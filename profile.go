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
	"time"
)

// TriggerDebounce is the debounce applied to the trigger input
const TriggerDebounce = 50 * time.Millisecond

// HiddenFilterFillers is the number of no-op filters placed before the real
// filter in the hidden-tag chain.
const HiddenFilterFillers = 4

type radioParams struct {
	rfMode     int
	search     SearchMode
	session    int
	population int
	fastID     bool
}

var (
	discoveryRadio = radioParams{rfMode: 2, search: SearchDualTarget, session: 1, population: 1, fastID: true}

	directRadio = map[OperationMode]radioParams{
		ModeSetPasswordDirect: {rfMode: 4, search: SearchSingleTarget, session: 0, population: 1},
		ModeProtectTagsDirect: {rfMode: 4, search: SearchTagFocus, session: 1, population: 1},
	}
)

// ConfigureSettings derives the reader settings for mode and cfg from the
// reader's defaults. defaults is not modified.
func ConfigureSettings(mode OperationMode, cfg *Config, defaults *Settings) (*Settings, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
	s := defaults.Clone()
	if s == nil {
		s = &Settings{}
	}

	radio := discoveryRadio
	if !mode.IsDiscovery() {
		radio = directRadio[mode]
	}
	s.Report = ReportIndividual
	s.IncludePCBits = false
	s.IncludeFastID = radio.fastID
	s.IncludeAntenna = true
	s.IncludePeakRSSI = true
	s.RFMode = radio.rfMode
	s.Search = radio.search
	s.Session = radio.session
	s.TagPopulation = radio.population

	if cfg.IsolatesAntenna() {
		isolateAntenna(s, cfg.Antenna, cfg.TxPowerDbm)
	}

	enableTrigger(s)

	if needsHiddenFilters(mode, cfg) {
		s.Filters = FilterSettings{
			Mode:             FilterChain,
			TagSelectFilters: HiddenTagFilters(cfg.TagPassword),
		}
	} else {
		s.Filters = FilterSettings{Mode: FilterNone}
	}
	return s, nil
}

func isolateAntenna(s *Settings, port int, power float64) {
	found := false
	for i := range s.Antennas {
		s.Antennas[i].Enabled = false
		if s.Antennas[i].Port == port {
			s.Antennas[i].Enabled = true
			s.Antennas[i].MaxPower = false
			s.Antennas[i].TxPowerDbm = power
			found = true
		}
	}
	if !found {
		s.Antennas = append(s.Antennas, AntennaConfig{Port: port, Enabled: true, TxPowerDbm: power})
	}
}

func enableTrigger(s *Settings) {
	for i := range s.GPIs {
		if s.GPIs[i].Port == TriggerPin {
			s.GPIs[i].Enabled = true
			s.GPIs[i].Debounce = TriggerDebounce
			return
		}
	}
	s.GPIs = append(s.GPIs, GPIConfig{Port: TriggerPin, Enabled: true, Debounce: TriggerDebounce})
}

// HiddenTagFilters builds the select chain that only lets tags carrying
// password at the start of user memory through. The fillers match one TID
// byte and never deselect anything; the real filter must stay last since the
// reader applies the chain in order.
func HiddenTagFilters(password string) []TagSelectFilter {
	mask := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(password), " ", ""))
	filters := make([]TagSelectFilter, 0, HiddenFilterFillers+1)
	for range HiddenFilterFillers {
		filters = append(filters, TagSelectFilter{
			Bank:        MemoryBankTID,
			BitPointer:  0,
			BitCount:    8,
			Mask:        "FF",
			MatchAction: FilterSelect,
			NoMatch:     FilterDoNothing,
		})
	}
	filters = append(filters, TagSelectFilter{
		Bank:        MemoryBankUser,
		BitPointer:  0,
		BitCount:    uint16(len(mask) * 4),
		Mask:        mask,
		MatchAction: FilterSelect,
		NoMatch:     FilterUnselect,
	})
	return filters
}

// needsHiddenFilters reports whether mode runs behind the hidden-tag chain.
// Unprotecting needs it as well since protected tags only answer when
// selected by their password.
func needsHiddenFilters(mode OperationMode, cfg *Config) bool {
	switch mode {
	case ModeInventoryReadHidden, ModeUnlockTags:
		return true
	case ModeProtectTags:
		return !cfg.Enable
	default:
		return false
	}
}
