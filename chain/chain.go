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

// Package chain provides the blockchain access layer: a JSON-RPC client for a
// Bitcoin full node, an Esplora REST client for public indexers, and a ZMQ
// subscriber for push notifications. Both query clients satisfy the same
// Backend contract so the watcher can fail over between them.
package chain

import (
	"context"
	"errors"
)

var (
	// ErrTxNotFound is returned when the backend does not know the
	// transaction, neither in the mempool nor in a block. After a
	// confirmation this is the reorg signal.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrUnavailable is returned when the backend cannot be reached or
	// answered with a transient failure after retries.
	ErrUnavailable = errors.New("backend unavailable")
)

// TxOut is one output of an observed transaction.
type TxOut struct {
	Vout        uint32 // output index within the transaction
	Address     string // decoded address, empty for non-standard scripts
	ValueSats   int64  // output value in satoshis
	PkScriptHex string // raw scriptPubKey, hex encoded
}

// Tx is a transaction as seen by a backend, reduced to the fields the
// reconciler needs.
type Tx struct {
	TxID          string
	Confirmations int64  // 0 while in the mempool
	BlockHash     string // empty while in the mempool
	Outputs       []TxOut
}

// OutputSighting is one output paying a queried address, as reported by an
// address-indexed lookup.
type OutputSighting struct {
	TxID          string
	Vout          uint32
	ValueSats     int64
	Confirmations int64
}

// Backend is the query surface the watcher needs from a chain source. All
// calls honour the context deadline; transient failures are retried
// internally before ErrUnavailable is reported.
type Backend interface {
	// GetTransaction fetches the verbose transaction. Returns ErrTxNotFound
	// if the backend no longer knows the txid.
	GetTransaction(ctx context.Context, txid string) (*Tx, error)

	// TipHeight returns the current best block height.
	TipHeight(ctx context.Context) (int64, error)

	// AddressOutputs returns all known outputs paying the address, both
	// mempool and confirmed.
	AddressOutputs(ctx context.Context, address string) ([]OutputSighting, error)

	// EstimateFee returns an estimated feerate in sat/vB for confirmation
	// within confTarget blocks.
	EstimateFee(ctx context.Context, confTarget int64) (int64, error)

	// SendRawTransaction broadcasts a serialized transaction and returns
	// its txid.
	SendRawTransaction(ctx context.Context, rawHex string) (string, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Name identifies the backend in logs and metrics ("rpc", "esplora").
	Name() string
}
