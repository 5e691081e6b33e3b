// Copyright 2025 The go-satgate Authors
// This file is part of the go-satgate library.
//
// The go-satgate library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-satgate library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-satgate library. If not, see <http://www.gnu.org/licenses/>.

package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies gateway errors for the HTTP boundary and for retry
// decisions.
type Kind int

const (
	// KindValidation marks rejected input.
	KindValidation Kind = iota + 1
	// KindNotFound marks a missing intent, token or address.
	KindNotFound
	// KindInvalidState marks an operation against an intent in the wrong
	// lifecycle state.
	KindInvalidState
	// KindAuth marks a token signature mismatch.
	KindAuth
	// KindExpired marks a token past its expiry.
	KindExpired
	// KindConflict marks a uniqueness or assignment race.
	KindConflict
	// KindTransient marks a failure worth retrying: node timeout, indexer
	// 5xx, storage serialization failure.
	KindTransient
	// KindFatal marks an unrecoverable condition such as a bad descriptor
	// or rejected node credentials.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not found"
	case KindInvalidState:
		return "invalid state"
	case KindAuth:
		return "auth"
	case KindExpired:
		return "expired"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is a classified gateway error. It wraps an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the classification of err, or zero when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
