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

package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"

	"github.com/satgate/go-satgate/log"
)

const defaultRPCTimeout = 30 * time.Second

// retryBackoff is applied between attempts on transient failures.
var retryBackoff = []time.Duration{250 * time.Millisecond, time.Second, 4 * time.Second}

// RPCConfig configures the JSON-RPC client for a Bitcoin full node.
type RPCConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration // per-call timeout, default 30s
}

// URL returns the endpoint the client posts to.
func (c RPCConfig) URL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.Port)
}

// RPCError is a JSON-RPC level failure reported by the node.
type RPCError struct {
	Code    btcjson.RPCErrorCode `json:"code"`
	Message string               `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// transient reports whether retrying the call can help. Everything the node
// answered deliberately is final; only a warming-up node is worth waiting for.
func (e *RPCError) transient() bool {
	return e.Code == btcjson.ErrRPCInWarmup
}

// RPCClient talks JSON-RPC 1.0 over HTTP Basic to a Bitcoin full node.
type RPCClient struct {
	url     string
	auth    string
	client  *http.Client
	timeout time.Duration
	reqID   atomic.Uint64
	log     log.Logger
}

// NewRPCClient returns a client for the configured node. The client is safe
// for concurrent use.
func NewRPCClient(cfg RPCConfig, logger log.Logger) *RPCClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	creds := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
	return &RPCClient{
		url:     cfg.URL(),
		auth:    "Basic " + creds,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		log:     logger.New("backend", "rpc"),
	}
}

type rpcRequest struct {
	Version string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// call performs one JSON-RPC call with retries on transient failures.
func (c *RPCClient) call(ctx context.Context, method string, params []any, result any) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.callOnce(ctx, method, params, result)
		if lastErr == nil {
			return nil
		}
		var rpcErr *RPCError
		if errors.As(lastErr, &rpcErr) && !rpcErr.transient() {
			return lastErr
		}
		if attempt >= len(retryBackoff) {
			break
		}
		c.log.Debug("Retrying RPC call", "method", method, "attempt", attempt+1, "err", lastErr)
		select {
		case <-time.After(retryBackoff[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, method, lastErr)
}

func (c *RPCClient) callOnce(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(&rpcRequest{
		Version: "1.0",
		ID:      c.reqID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.auth)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &RPCError{Code: btcjson.ErrRPCInvalidRequest.Code, Message: "authentication failed"}
	case resp.StatusCode >= 500:
		return fmt.Errorf("node returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return err
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("malformed RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result == nil {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, result)
}

// GetTransaction implements Backend via getrawtransaction verbose=true.
func (c *RPCClient) GetTransaction(ctx context.Context, txid string) (*Tx, error) {
	var res btcjson.TxRawResult
	err := c.call(ctx, "getrawtransaction", []any{txid, true}, &res)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == btcjson.ErrRPCInvalidAddressOrKey {
			// "No such mempool or blockchain transaction."
			return nil, ErrTxNotFound
		}
		return nil, err
	}
	tx := &Tx{
		TxID:          res.Txid,
		Confirmations: int64(res.Confirmations),
		BlockHash:     res.BlockHash,
		Outputs:       make([]TxOut, 0, len(res.Vout)),
	}
	for _, vout := range res.Vout {
		amt, err := btcutil.NewAmount(vout.Value)
		if err != nil {
			c.log.Warn("Skipping output with bad value", "txid", res.Txid, "vout", vout.N, "err", err)
			continue
		}
		tx.Outputs = append(tx.Outputs, TxOut{
			Vout:        vout.N,
			Address:     voutAddress(vout.ScriptPubKey),
			ValueSats:   int64(amt),
			PkScriptHex: vout.ScriptPubKey.Hex,
		})
	}
	return tx, nil
}

// voutAddress extracts the single decoded address from a scriptPubKey result.
// Older nodes report an addresses array, newer ones a scalar field.
func voutAddress(spk btcjson.ScriptPubKeyResult) string {
	if spk.Address != "" {
		return spk.Address
	}
	if len(spk.Addresses) > 0 {
		return spk.Addresses[0]
	}
	return ""
}

// TipHeight implements Backend via getblockchaininfo.
func (c *RPCClient) TipHeight(ctx context.Context) (int64, error) {
	var res btcjson.GetBlockChainInfoResult
	if err := c.call(ctx, "getblockchaininfo", nil, &res); err != nil {
		return 0, err
	}
	return int64(res.Blocks), nil
}

// scanTxOutSetResult models the scantxoutset JSON-RPC response. btcjson does
// not ship a result type for this Bitcoin Core call, so the fields the watcher
// consumes are declared here.
type scanTxOutSetResult struct {
	Success     bool                  `json:"success"`
	Height      int64                 `json:"height"`
	BestBlock   string                `json:"bestblock"`
	Unspents    []scanTxOutSetUnspent `json:"unspents"`
	TotalAmount float64               `json:"total_amount"`
}

// scanTxOutSetUnspent is one unspent output in a scantxoutset response.
type scanTxOutSetUnspent struct {
	TxID         string  `json:"txid"`
	Vout         uint32  `json:"vout"`
	ScriptPubKey string  `json:"scriptPubKey"`
	Amount       float64 `json:"amount"`
	Height       int64   `json:"height"`
}

// AddressOutputs implements Backend via scantxoutset. Only confirmed,
// unspent outputs are visible through this call; mempool sightings arrive on
// the push path instead.
func (c *RPCClient) AddressOutputs(ctx context.Context, address string) ([]OutputSighting, error) {
	var res scanTxOutSetResult
	scanObjects := []any{fmt.Sprintf("addr(%s)", address)}
	if err := c.call(ctx, "scantxoutset", []any{"start", scanObjects}, &res); err != nil {
		return nil, err
	}
	out := make([]OutputSighting, 0, len(res.Unspents))
	for _, u := range res.Unspents {
		amt, err := btcutil.NewAmount(u.Amount)
		if err != nil {
			c.log.Warn("Skipping unspent with bad value", "txid", u.TxID, "vout", u.Vout, "err", err)
			continue
		}
		var confs int64
		if u.Height > 0 && res.Height >= u.Height {
			confs = res.Height - u.Height + 1
		}
		out = append(out, OutputSighting{
			TxID:          u.TxID,
			Vout:          u.Vout,
			ValueSats:     int64(amt),
			Confirmations: confs,
		})
	}
	return out, nil
}

// EstimateFee implements Backend via estimatesmartfee.
func (c *RPCClient) EstimateFee(ctx context.Context, confTarget int64) (int64, error) {
	var res btcjson.EstimateSmartFeeResult
	if err := c.call(ctx, "estimatesmartfee", []any{confTarget}, &res); err != nil {
		return 0, err
	}
	if res.FeeRate == nil {
		return 0, fmt.Errorf("no fee estimate for target %d: %v", confTarget, res.Errors)
	}
	amt, err := btcutil.NewAmount(*res.FeeRate)
	if err != nil {
		return 0, err
	}
	// estimatesmartfee reports BTC/kvB.
	return int64(amt) / 1000, nil
}

// SendRawTransaction implements Backend via sendrawtransaction.
func (c *RPCClient) SendRawTransaction(ctx context.Context, rawHex string) (string, error) {
	var txid string
	if err := c.call(ctx, "sendrawtransaction", []any{rawHex}, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

// Ping implements Backend.
func (c *RPCClient) Ping(ctx context.Context) error {
	var res btcjson.GetBlockChainInfoResult
	return c.call(ctx, "getblockchaininfo", nil, &res)
}

// Name implements Backend.
func (c *RPCClient) Name() string { return "rpc" }

// isTimeout reports whether err is a network timeout.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

var _ Backend = (*RPCClient)(nil)
