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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satgate/go-satgate/chain"
	"github.com/satgate/go-satgate/descriptor"
)

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"90s", 90 * time.Second, false},
		{"5m", 5 * time.Minute, false},
		{"* * * * *", time.Minute, false},
		{"*/5 * * * *", 5 * time.Minute, false},
		{"*/1 * * * *", time.Minute, false},
		{"500ms", 0, true},
		{"*/0 * * * *", 0, true},
		{"*/60 * * * *", 0, true},
		{"*/5 * * *", 0, true},
		{"*/5 1 * * *", 0, true},
		{"5 * * * *", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "schedule %q", tt.in)
			continue
		}
		require.NoError(t, err, "schedule %q", tt.in)
		assert.Equal(t, tt.want, got, "schedule %q", tt.in)
	}
}

func TestSanitizeDefaults(t *testing.T) {
	cfg := &Config{Secret: "0123456789abcdef0123456789abcdef", Descriptor: "wpkh(xpub/0/*)"}
	_, err := cfg.Sanitize()
	require.NoError(t, err)

	assert.Equal(t, descriptor.Mainnet, cfg.Network)
	assert.Equal(t, DefaultBasePath, cfg.BasePath)
	assert.Equal(t, int64(DefaultConfirmations), cfg.Confirmations)
	assert.Equal(t, DefaultGapLimit, cfg.GapLimit)
	assert.Equal(t, DefaultMagicLinkTTL, cfg.MagicLinkTTL)
	assert.Equal(t, DefaultIntentExpiry, cfg.IntentExpiry)
	assert.Equal(t, DefaultPollInterval, cfg.pollInterval)
	assert.Equal(t, MatchFirstOutput, cfg.MatchMode)
	assert.Equal(t, ReuseUntilExpiry, cfg.TokenReuse)
	assert.Equal(t, chain.EsploraMainnetURL, cfg.IndexerURL, "no RPC node falls back to the public indexer")
}

func TestSanitizeRejects(t *testing.T) {
	base := func() *Config {
		return &Config{Secret: "s", Descriptor: "wpkh(xpub/0/*)"}
	}

	cfg := base()
	cfg.Secret = ""
	_, err := cfg.Sanitize()
	assert.Equal(t, KindValidation, KindOf(err))

	cfg = base()
	cfg.Descriptor = ""
	_, err = cfg.Sanitize()
	assert.Equal(t, KindValidation, KindOf(err))

	cfg = base()
	cfg.Network = "litecoin"
	_, err = cfg.Sanitize()
	assert.Equal(t, KindValidation, KindOf(err))

	cfg = base()
	cfg.MatchMode = "biggestOutput"
	_, err = cfg.Sanitize()
	assert.Equal(t, KindValidation, KindOf(err))

	cfg = base()
	cfg.Network = descriptor.Regtest
	_, err = cfg.Sanitize()
	assert.Equal(t, KindValidation, KindOf(err), "regtest has no public indexer")

	cfg = base()
	cfg.ZMQ = chain.ZMQConfig{HashTxPort: 28333}
	_, err = cfg.Sanitize()
	assert.Equal(t, KindValidation, KindOf(err), "ZMQ without RPC cannot fetch transactions")

	cfg = base()
	cfg.PollInterval = "1 2 3 4 5"
	_, err = cfg.Sanitize()
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestSanitizeBasePathNormalized(t *testing.T) {
	cfg := &Config{Secret: "s", Descriptor: "wpkh(xpub/0/*)", BasePath: "pay/v1/"}
	_, err := cfg.Sanitize()
	require.NoError(t, err)
	assert.Equal(t, "/pay/v1", cfg.BasePath)
}

func TestSanitizeRPCOnly(t *testing.T) {
	cfg := &Config{
		Secret:     "s",
		Descriptor: "wpkh(xpub/0/*)",
		Network:    descriptor.Regtest,
		RPC:        &chain.RPCConfig{Host: "localhost", Port: 18443},
	}
	_, err := cfg.Sanitize()
	require.NoError(t, err)
	assert.Empty(t, cfg.IndexerURL, "indexer stays off unless requested")
}
