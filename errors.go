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
	"errors"
	"fmt"
)

// Session and transport errors
var (
	ErrNotConnected      = errors.New("reader not connected")
	ErrAlreadyConnected  = errors.New("reader already connected")
	ErrSettingsRejected  = errors.New("settings rejected by reader")
	ErrSequencePending   = errors.New("operation sequence already pending")
	ErrTransportTimeout  = errors.New("transport timeout")
	ErrTransportRead     = errors.New("transport read failed")
	ErrTransportWrite    = errors.New("transport write failed")
	ErrFrameCorrupted    = errors.New("frame corrupted")
	ErrCommandFailed     = errors.New("reader command failed")
	ErrSessionClosed     = errors.New("session closed")
	ErrUnsupportedFilter = errors.New("tag select filter not supported by reader")
)

// Configuration errors
var (
	ErrInvalidMode      = errors.New("invalid operation mode")
	ErrInvalidPassword  = errors.New("invalid tag password")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidTagData   = errors.New("invalid tag data")
)

// ErrorType classifies session errors
type ErrorType int

const (
	// ErrorTypePermanent errors will not go away on retry
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors are worth retrying
	ErrorTypeTransient
	// ErrorTypeConnection means the reader is unreachable
	ErrorTypeConnection
	// ErrorTypeSettings means the reader refused the settings
	ErrorTypeSettings
)

// String returns the error type name
func (t ErrorType) String() string {
	switch t {
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeConnection:
		return "connection"
	case ErrorTypeSettings:
		return "settings"
	default:
		return "unknown"
	}
}

// SessionError wraps an error raised while talking to the reader with the
// operation and address it happened on.
type SessionError struct {
	Err       error
	Op        string
	Address   string
	Type      ErrorType
	Retryable bool
}

// Error implements the error interface
func (e *SessionError) Error() string {
	if e.Address != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Address, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a session error, classifying err when errType is
// left as ErrorTypePermanent.
func NewSessionError(op, address string, err error, errType ErrorType) *SessionError {
	if errType == ErrorTypePermanent {
		errType = GetErrorType(err)
	}
	return &SessionError{
		Op:        op,
		Address:   address,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeConnection,
	}
}

// NewConnectionError reports an unreachable reader
func NewConnectionError(op, address string, err error) *SessionError {
	return &SessionError{
		Op:        op,
		Address:   address,
		Err:       err,
		Type:      ErrorTypeConnection,
		Retryable: true,
	}
}

// NewSettingsError reports settings the reader refused
func NewSettingsError(op, address string, err error) *SessionError {
	return &SessionError{
		Op:      op,
		Address: address,
		Err:     fmt.Errorf("%w: %w", ErrSettingsRejected, err),
		Type:    ErrorTypeSettings,
	}
}

// GetErrorType classifies err
func GetErrorType(err error) ErrorType {
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr.Type
	}
	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrFrameCorrupted):
		return ErrorTypeTransient
	case errors.Is(err, ErrNotConnected):
		return ErrorTypeConnection
	case errors.Is(err, ErrSettingsRejected), errors.Is(err, ErrUnsupportedFilter):
		return ErrorTypeSettings
	default:
		return ErrorTypePermanent
	}
}

// IsRetryable reports whether err is worth retrying
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr.Retryable
	}
	switch GetErrorType(err) {
	case ErrorTypeTransient, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsConnectionError reports whether err means the reader could not be reached
func IsConnectionError(err error) bool {
	return err != nil && GetErrorType(err) == ErrorTypeConnection
}
