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

// Package config loads the station configuration: which reader to use,
// which programming mode to run, where to log results and which pins carry
// the line handshake.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	reeltag "github.com/ZaparooProject/go-reeltag"
	"github.com/ZaparooProject/go-reeltag/transport/reader18"
)

// SimAddress selects the built-in simulated reader
const SimAddress = "sim"

// ReaderConfig describes how to reach the reader
type ReaderConfig struct {
	// Address is tcp://host:port, host:port, a serial device or "sim".
	// Empty means auto-detect.
	Address        string               `yaml:"address"`
	Service        string               `yaml:"mdns_service"`
	IgnorePaths    []string             `yaml:"ignore_paths"`
	Serial         reader18.PortOptions `yaml:"serial"`
	CommandTimeout time.Duration        `yaml:"command_timeout"`
	ConnectTimeout time.Duration        `yaml:"connect_timeout"`
	ConnectRetries int                  `yaml:"connect_retries"`
}

// LogConfig lists the result sinks. Empty paths are disabled.
type LogConfig struct {
	CSV     string `yaml:"csv"`
	SQLite  string `yaml:"sqlite"`
	Journal string `yaml:"journal"`
	Debug   bool   `yaml:"debug"`
}

// GPIOConfig names host pins for the handshake. When empty the reader's
// own I/O is used.
type GPIOConfig struct {
	Trigger string `yaml:"trigger"`
	Busy    string `yaml:"busy"`
}

// Config is the whole station configuration
type Config struct {
	Reader            ReaderConfig   `yaml:"reader"`
	Log               LogConfig      `yaml:"log"`
	GPIO              GPIOConfig     `yaml:"gpio"`
	Tag               reeltag.Config `yaml:"tag"`
	ModeName          string         `yaml:"mode"`
	CompletionTimeout time.Duration  `yaml:"completion_timeout"`
	// Menu is the operator menu number; -1 means use ModeName
	Menu int `yaml:"menu"`

	mode reeltag.OperationMode
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{
			Service:        "_llrp._tcp",
			CommandTimeout: 500 * time.Millisecond,
			ConnectTimeout: 5 * time.Second,
			ConnectRetries: 3,
		},
		Log:               LogConfig{CSV: "results.csv"},
		Tag:               reeltag.Config{TagPassword: reeltag.DefaultTagPassword},
		CompletionTimeout: 10 * time.Second,
		Menu:              -1,
	}
}

// Load reads a YAML file over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := cfg.UnmarshalYAMLBytes(data); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// UnmarshalYAMLBytes decodes data over c
func (c *Config) UnmarshalYAMLBytes(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// an empty document decodes to io.EOF and leaves the defaults alone
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// BindFlags registers command line overrides on fs. Values given on the
// command line win over the file.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Reader.Address, "reader", c.Reader.Address,
		"Reader address: tcp://host:port, a serial device, or \"sim\". Leave empty for auto-detection.")
	fs.StringVar(&c.ModeName, "mode", c.ModeName, "Operation mode name, e.g. set-password")
	fs.IntVar(&c.Menu, "menu", c.Menu, "Operator menu number (0-7), overrides -mode")
	fs.StringVar(&c.Tag.TagPassword, "tagpassword", c.Tag.TagPassword, "Current tag access password (8 hex digits)")
	fs.StringVar(&c.Tag.NewTagPassword, "newtagpassword", c.Tag.NewTagPassword, "New tag access password (8 hex digits)")
	fs.IntVar(&c.Tag.Antenna, "antenna", c.Tag.Antenna, "Antenna port to isolate (needs -power)")
	fs.Float64Var(&c.Tag.TxPowerDbm, "power", c.Tag.TxPowerDbm, "Transmit power in dBm for -antenna")
	fs.StringVar(&c.Log.CSV, "csv", c.Log.CSV, "CSV result log path")
	fs.StringVar(&c.Log.SQLite, "sqlite", c.Log.SQLite, "SQLite result database path")
	fs.StringVar(&c.Log.Journal, "journal", c.Log.Journal, "CBOR result journal path")
	fs.BoolVar(&c.Log.Debug, "debug", c.Log.Debug, "Enable debug output")
	fs.DurationVar(&c.CompletionTimeout, "completion-timeout", c.CompletionTimeout,
		"Force a stuck part cycle to finish after this long (0 disables)")
	fs.StringVar(&c.GPIO.Trigger, "trigger-pin", c.GPIO.Trigger, "Host GPIO pin for the trigger, e.g. GPIO17")
	fs.StringVar(&c.GPIO.Busy, "busy-pin", c.GPIO.Busy, "Host GPIO pin for the busy output, e.g. GPIO27")
}

// Normalize resolves the menu entry or mode name and tidies values. It
// must run before Mode.
func (c *Config) Normalize() error {
	c.Reader.Address = strings.TrimSpace(c.Reader.Address)
	c.Tag.TagPassword = strings.ToUpper(strings.TrimSpace(c.Tag.TagPassword))
	c.Tag.NewTagPassword = strings.ToUpper(strings.TrimSpace(c.Tag.NewTagPassword))
	if c.Reader.Service == "" {
		c.Reader.Service = "_llrp._tcp"
	}
	serial, err := c.Reader.Serial.Normalize()
	if err != nil {
		return err
	}
	c.Reader.Serial = serial

	switch {
	case c.Menu >= 0:
		entry, err := reeltag.ParseMenu(c.Menu)
		if err != nil {
			return err
		}
		c.mode = entry.Mode
		c.Tag.Enable = entry.Enable
		c.ModeName = entry.Mode.String()
	case c.ModeName != "":
		mode, err := reeltag.ParseMode(c.ModeName)
		if err != nil {
			return err
		}
		c.mode = mode
		c.ModeName = mode.String()
	default:
		return fmt.Errorf("%w: no mode or menu number given", reeltag.ErrInvalidMode)
	}
	return nil
}

// Mode returns the resolved operation mode
func (c *Config) Mode() reeltag.OperationMode {
	return c.mode
}

// Validate checks the normalized configuration
func (c *Config) Validate() error {
	if err := c.Tag.Validate(c.mode); err != nil {
		return err
	}
	if c.CompletionTimeout < 0 {
		return fmt.Errorf("%w: completion timeout %v", reeltag.ErrInvalidParameter, c.CompletionTimeout)
	}
	if c.Reader.CommandTimeout <= 0 {
		return fmt.Errorf("%w: command timeout %v", reeltag.ErrInvalidParameter, c.Reader.CommandTimeout)
	}
	if c.Reader.ConnectRetries < 1 {
		return fmt.Errorf("%w: connect retries %d", reeltag.ErrInvalidParameter, c.Reader.ConnectRetries)
	}
	if c.Log.CSV == "" && c.Log.SQLite == "" && c.Log.Journal == "" {
		return fmt.Errorf("%w: no result log configured", reeltag.ErrInvalidParameter)
	}
	return nil
}

// ReaderOptions returns session options for the configured reader
func (c *Config) ReaderOptions() reader18.Options {
	opts := reader18.DefaultOptions()
	opts.Port = c.Reader.Serial
	opts.CommandTimeout = c.Reader.CommandTimeout
	return opts
}

// RetryConfig returns the connect retry policy
func (c *Config) RetryConfig() *reeltag.RetryConfig {
	rc := reeltag.DefaultRetryConfig()
	rc.MaxAttempts = c.Reader.ConnectRetries
	return rc
}
