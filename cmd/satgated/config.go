// Copyright 2025 The go-satgate Authors
// This file is part of go-satgate.
//
// go-satgate is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-satgate is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-satgate. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/satgate/go-satgate/chain"
	"github.com/satgate/go-satgate/descriptor"
	"github.com/satgate/go-satgate/gateway"
)

// fileConfig is the on-disk TOML layout of the daemon.
type fileConfig struct {
	BaseURL       string `toml:"baseURL"`
	Secret        string `toml:"secret"`
	Descriptor    string `toml:"descriptor"`
	Network       string `toml:"network"`
	Confirmations int64  `toml:"confirmations"`
	BasePath      string `toml:"basePath"`
	PollInterval  string `toml:"pollInterval"`

	Listen struct {
		Addr        string `toml:"addr"`
		MetricsAddr string `toml:"metricsAddr"`
	} `toml:"listen"`

	Storage struct {
		Driver string `toml:"driver"`
		DSN    string `toml:"dsn"`
	} `toml:"storage"`

	Watcher struct {
		RPC struct {
			Host     string `toml:"host"`
			Port     int    `toml:"port"`
			Username string `toml:"username"`
			Password string `toml:"password"`
		} `toml:"rpc"`
		ZMQ struct {
			Host          string `toml:"host"`
			HashTxPort    int    `toml:"hashtxPort"`
			HashBlockPort int    `toml:"hashblockPort"`
			RawTxPort     int    `toml:"rawtxPort"`
			RawBlockPort  int    `toml:"rawblockPort"`
			SequencePort  int    `toml:"sequencePort"`
		} `toml:"zmq"`
	} `toml:"watcher"`

	Indexer struct {
		APIURL string `toml:"apiUrl"`
	} `toml:"indexer"`

	Advanced struct {
		GapLimit            int    `toml:"gapLimit"`
		MagicLinkTTLSeconds int64  `toml:"magicLinkTTLSeconds"`
		IntentExpiryMinutes int64  `toml:"intentExpiryMinutes"`
		MatchMode           string `toml:"matchMode"`
		TokenReuse          string `toml:"tokenReuse"`
	} `toml:"advanced"`
}

// loadConfig reads and decodes the TOML config file.
func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg fileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Listen.Addr == "" {
		cfg.Listen.Addr = ":8080"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "satgate.db"
	}
	return &cfg, nil
}

// gatewayConfig maps the file layout onto the gateway config.
func (c *fileConfig) gatewayConfig() *gateway.Config {
	gc := &gateway.Config{
		BaseURL:       c.BaseURL,
		Secret:        c.Secret,
		Descriptor:    c.Descriptor,
		Network:       descriptor.Network(c.Network),
		Confirmations: c.Confirmations,
		BasePath:      c.BasePath,
		PollInterval:  c.PollInterval,
		IndexerURL:    c.Indexer.APIURL,
		GapLimit:      c.Advanced.GapLimit,
		MagicLinkTTL:  time.Duration(c.Advanced.MagicLinkTTLSeconds) * time.Second,
		IntentExpiry:  time.Duration(c.Advanced.IntentExpiryMinutes) * time.Minute,
		MatchMode:     gateway.MatchMode(c.Advanced.MatchMode),
		TokenReuse:    gateway.TokenReuse(c.Advanced.TokenReuse),
	}
	if c.Watcher.RPC.Host != "" {
		gc.RPC = &chain.RPCConfig{
			Host:     c.Watcher.RPC.Host,
			Port:     c.Watcher.RPC.Port,
			Username: c.Watcher.RPC.Username,
			Password: c.Watcher.RPC.Password,
		}
		gc.ZMQ = chain.ZMQConfig{
			Host:          c.Watcher.ZMQ.Host,
			HashTxPort:    c.Watcher.ZMQ.HashTxPort,
			HashBlockPort: c.Watcher.ZMQ.HashBlockPort,
			RawTxPort:     c.Watcher.ZMQ.RawTxPort,
			RawBlockPort:  c.Watcher.ZMQ.RawBlockPort,
			SequencePort:  c.Watcher.ZMQ.SequencePort,
		}
		if gc.ZMQ.Host == "" {
			gc.ZMQ.Host = c.Watcher.RPC.Host
		}
	}
	return gc
}
