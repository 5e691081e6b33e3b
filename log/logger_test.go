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

package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromVerbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		want      slog.Level
	}{
		{-3, LevelCrit},
		{0, LevelCrit},
		{1, slog.LevelError},
		{2, slog.LevelWarn},
		{3, slog.LevelInfo},
		{4, slog.LevelDebug},
		{5, LevelTrace},
		{9, LevelTrace},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FromVerbosity(tt.verbosity), "verbosity %d", tt.verbosity)
	}
}

func TestTerminalHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(NewTerminalHandlerWithLevel(&buf, slog.LevelWarn, false))

	l.Debug("quiet", "k", 1)
	l.Info("also quiet")
	assert.Zero(t, buf.Len())

	l.Warn("loud", "addr", "bc1q")
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "WARN "), "got %q", out)
	assert.Contains(t, out, "loud")
	assert.Contains(t, out, "addr=bc1q")
}

func TestLoggerOddArgumentsPadded(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(NewTerminalHandlerWithLevel(&buf, LevelTrace, false))

	l.Info("unbalanced", "only-a-key")
	assert.Contains(t, buf.String(), errorKey)
}
