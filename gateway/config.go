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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/satgate/go-satgate/chain"
	"github.com/satgate/go-satgate/descriptor"
)

// MatchMode decides when observations on one address satisfy the intent
// amount.
type MatchMode string

const (
	// MatchFirstOutput confirms on the first single output whose value
	// meets the intent amount.
	MatchFirstOutput MatchMode = "firstOutputMeets"

	// MatchSumOfOutputs confirms when the sum of all outputs of one
	// transaction to the address meets the intent amount.
	MatchSumOfOutputs MatchMode = "sumOfOutputsMeets"
)

// TokenReuse decides whether a consumed magic-link token stays redeemable.
type TokenReuse string

const (
	// ReuseUntilExpiry allows idempotent replay of a consumed token until
	// it expires.
	ReuseUntilExpiry TokenReuse = "untilExpiry"

	// ReuseSingleUse rejects any redemption after the first.
	ReuseSingleUse TokenReuse = "singleUse"
)

// Defaults applied by Sanitize.
const (
	DefaultBasePath            = "/api/pay"
	DefaultConfirmations       = 1
	DefaultGapLimit            = 20
	DefaultMagicLinkTTL        = 86400 * time.Second
	DefaultIntentExpiry        = 60 * time.Minute
	DefaultPollInterval        = 5 * time.Minute
	DefaultExpirySweepInterval = time.Minute
)

// Config carries everything the gateway needs: merchant identity, the
// watch-only descriptor, node and indexer endpoints and the watcher tuning
// knobs.
type Config struct {
	// BaseURL is the externally visible base used when building magic-link
	// URLs, e.g. "https://shop.example.com".
	BaseURL string

	// Secret is the HMAC key for magic-link tokens. At least 32 bytes
	// recommended.
	Secret string

	// Descriptor is the watch-only output descriptor addresses are derived
	// from.
	Descriptor string

	// Network selects address encoding and default indexer endpoints.
	Network descriptor.Network

	// Confirmations is the default required confirmation count for new
	// intents.
	Confirmations int64

	// BasePath is the mount point of the HTTP surface.
	BasePath string

	// RPC enables the full-node push+pull path when non-nil.
	RPC *chain.RPCConfig

	// ZMQ configures push notifications; inert when no ports are set.
	ZMQ chain.ZMQConfig

	// IndexerURL enables the Esplora pull path. Empty selects the public
	// endpoint for the network, except on regtest where it must be
	// explicit.
	IndexerURL string

	// UseIndexer requests the Esplora path even without an explicit URL.
	UseIndexer bool

	// PollInterval is the pending-payment poll schedule, either a
	// "*/N * * * *" cron line or a Go duration string.
	PollInterval string

	// ExpirySweepInterval is the period of the expiry sweep.
	ExpirySweepInterval time.Duration

	// GapLimit bounds the startup look-ahead over unused addresses.
	GapLimit int

	// MagicLinkTTL is the default token lifetime.
	MagicLinkTTL time.Duration

	// IntentExpiry is the default intent lifetime.
	IntentExpiry time.Duration

	// MatchMode selects the amount matching policy.
	MatchMode MatchMode

	// TokenReuse selects the token replay policy.
	TokenReuse TokenReuse

	// Callbacks receive lifecycle events. All fields are optional.
	Callbacks Callbacks

	pollInterval time.Duration
}

// Sanitize validates the config, fills in defaults and resolves the poll
// schedule. It returns the config it was called on.
func (c *Config) Sanitize() (*Config, error) {
	if c.Secret == "" {
		return nil, newError(KindValidation, "secret is required")
	}
	if c.Descriptor == "" {
		return nil, newError(KindValidation, "descriptor is required")
	}
	if c.Network == "" {
		c.Network = descriptor.Mainnet
	}
	if _, err := c.Network.Params(); err != nil {
		return nil, wrapError(KindValidation, err, "bad network")
	}
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	c.BasePath = "/" + strings.Trim(c.BasePath, "/")
	if c.Confirmations <= 0 {
		c.Confirmations = DefaultConfirmations
	}
	if c.GapLimit <= 0 {
		c.GapLimit = DefaultGapLimit
	}
	if c.MagicLinkTTL <= 0 {
		c.MagicLinkTTL = DefaultMagicLinkTTL
	}
	if c.IntentExpiry <= 0 {
		c.IntentExpiry = DefaultIntentExpiry
	}
	if c.ExpirySweepInterval <= 0 {
		c.ExpirySweepInterval = DefaultExpirySweepInterval
	}
	if c.MatchMode == "" {
		c.MatchMode = MatchFirstOutput
	}
	if c.MatchMode != MatchFirstOutput && c.MatchMode != MatchSumOfOutputs {
		return nil, newError(KindValidation, "unknown match mode %q", c.MatchMode)
	}
	if c.TokenReuse == "" {
		c.TokenReuse = ReuseUntilExpiry
	}
	if c.TokenReuse != ReuseUntilExpiry && c.TokenReuse != ReuseSingleUse {
		return nil, newError(KindValidation, "unknown token reuse mode %q", c.TokenReuse)
	}

	if c.IndexerURL == "" && (c.UseIndexer || c.RPC == nil) {
		switch c.Network {
		case descriptor.Mainnet:
			c.IndexerURL = chain.EsploraMainnetURL
		case descriptor.Testnet:
			c.IndexerURL = chain.EsploraTestnetURL
		case descriptor.Signet:
			c.IndexerURL = chain.EsploraSignetURL
		default:
			return nil, newError(KindValidation, "no public indexer for %s, set indexer.apiUrl", c.Network)
		}
	}
	if c.RPC == nil && c.IndexerURL == "" {
		return nil, newError(KindValidation, "either an RPC node or an indexer must be configured")
	}
	if c.RPC == nil && c.ZMQ.Active() {
		return nil, newError(KindValidation, "ZMQ notifications require an RPC node to fetch transactions")
	}

	if c.PollInterval == "" {
		c.pollInterval = DefaultPollInterval
	} else {
		d, err := ParseSchedule(c.PollInterval)
		if err != nil {
			return nil, wrapError(KindValidation, err, "bad poll interval")
		}
		c.pollInterval = d
	}
	return c, nil
}

// ParseSchedule resolves a poll schedule to a tick period. It accepts the
// common "*/N * * * *" cron form, the every-minute "* * * * *" line, and Go
// duration strings like "90s".
func ParseSchedule(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, " ") {
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("not a duration: %q", s)
		}
		if d < time.Second {
			return 0, fmt.Errorf("interval %v too short", d)
		}
		return d, nil
	}
	fields := strings.Fields(s)
	if len(fields) != 5 {
		return 0, fmt.Errorf("cron line %q must have 5 fields", s)
	}
	for _, f := range fields[1:] {
		if f != "*" {
			return 0, fmt.Errorf("unsupported cron line %q, only */N minute schedules are understood", s)
		}
	}
	switch minute := fields[0]; {
	case minute == "*":
		return time.Minute, nil
	case strings.HasPrefix(minute, "*/"):
		n, err := strconv.Atoi(minute[2:])
		if err != nil || n <= 0 || n > 59 {
			return 0, fmt.Errorf("bad minute step in %q", s)
		}
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("unsupported cron minute field %q", minute)
	}
}
