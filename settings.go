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
	"time"
)

// ReportMode selects how the reader batches tag reports
type ReportMode int

const (
	// ReportIndividual reports every tag as it is singulated
	ReportIndividual ReportMode = iota
	// ReportBatchOnStop reports all tags when singulation stops
	ReportBatchOnStop
)

// SearchMode is the Gen2 inventory search strategy
type SearchMode int

const (
	SearchReaderSelected SearchMode = iota
	SearchSingleTarget
	SearchDualTarget
	SearchTagFocus
)

// String returns the search mode name
func (m SearchMode) String() string {
	switch m {
	case SearchReaderSelected:
		return "ReaderSelected"
	case SearchSingleTarget:
		return "SingleTarget"
	case SearchDualTarget:
		return "DualTarget"
	case SearchTagFocus:
		return "TagFocus"
	default:
		return fmt.Sprintf("SearchMode(%d)", int(m))
	}
}

// FilterMode says how the reader combines tag-select filters
type FilterMode int

const (
	// FilterNone disables filtering
	FilterNone FilterMode = iota
	// FilterChain applies every filter in order, the last one deciding
	FilterChain
)

// FilterAction is what a select filter does to a tag's SL flag
type FilterAction int

const (
	FilterDoNothing FilterAction = iota
	FilterSelect
	FilterUnselect
)

// String returns the action name
func (a FilterAction) String() string {
	switch a {
	case FilterDoNothing:
		return "DoNothing"
	case FilterSelect:
		return "Select"
	case FilterUnselect:
		return "Unselect"
	default:
		return fmt.Sprintf("FilterAction(%d)", int(a))
	}
}

// TagSelectFilter is one Gen2 Select command the reader issues before an
// inventory round.
type TagSelectFilter struct {
	Mask        string
	Bank        MemoryBank
	BitPointer  uint16
	BitCount    uint16
	MatchAction FilterAction
	NoMatch     FilterAction
}

// FilterSettings groups the select filters of a profile
type FilterSettings struct {
	TagSelectFilters []TagSelectFilter
	Mode             FilterMode
}

// AntennaConfig is the per-port antenna setting
type AntennaConfig struct {
	Port       int
	TxPowerDbm float64
	Enabled    bool
	// MaxPower uses the reader's maximum power and ignores TxPowerDbm
	MaxPower bool
}

// GPIConfig is the per-port digital input setting
type GPIConfig struct {
	Port     int
	Debounce time.Duration
	Enabled  bool
}

// Settings is the complete reader configuration applied before singulation
type Settings struct {
	Antennas         []AntennaConfig
	GPIs             []GPIConfig
	Filters          FilterSettings
	Report           ReportMode
	RFMode           int
	Search           SearchMode
	Session          int
	TagPopulation    int
	IncludePCBits    bool
	IncludeFastID    bool
	IncludeAntenna   bool
	IncludePeakRSSI  bool
	IncludeFirstSeen bool
}

// Clone returns a deep copy of s
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	out := *s
	out.Antennas = append([]AntennaConfig(nil), s.Antennas...)
	out.GPIs = append([]GPIConfig(nil), s.GPIs...)
	out.Filters.TagSelectFilters = append([]TagSelectFilter(nil), s.Filters.TagSelectFilters...)
	return &out
}

// Antenna returns the configuration of port, if present
func (s *Settings) Antenna(port int) (AntennaConfig, bool) {
	for _, a := range s.Antennas {
		if a.Port == port {
			return a, true
		}
	}
	return AntennaConfig{}, false
}

// EnabledAntennas returns the enabled ports in order
func (s *Settings) EnabledAntennas() []int {
	var ports []int
	for _, a := range s.Antennas {
		if a.Enabled {
			ports = append(ports, a.Port)
		}
	}
	return ports
}

// GPI returns the configuration of input port, if present
func (s *Settings) GPI(port int) (GPIConfig, bool) {
	for _, g := range s.GPIs {
		if g.Port == port {
			return g, true
		}
	}
	return GPIConfig{}, false
}

// DefaultSettings returns a plausible factory configuration with the given
// number of antenna ports and GPIs, all enabled at maximum power.
func DefaultSettings(antennas, gpis int) *Settings {
	s := &Settings{
		Report:        ReportBatchOnStop,
		RFMode:        0,
		Search:        SearchDualTarget,
		Session:       2,
		TagPopulation: 32,
	}
	for port := 1; port <= antennas; port++ {
		s.Antennas = append(s.Antennas, AntennaConfig{Port: port, Enabled: true, MaxPower: true})
	}
	for port := 1; port <= gpis; port++ {
		s.GPIs = append(s.GPIs, GPIConfig{Port: port})
	}
	return s
}
