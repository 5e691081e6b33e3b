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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/satgate/go-satgate/log"
)

// Well-known public Esplora endpoints per network. Regtest has no public
// indexer and must be configured explicitly.
const (
	EsploraMainnetURL = "https://blockstream.info/api"
	EsploraTestnetURL = "https://blockstream.info/testnet/api"
	EsploraSignetURL  = "https://mempool.space/signet/api"
)

// EsploraClient is a pull-only Backend over the Esplora REST API as served by
// blockstream.info and mempool.space.
type EsploraClient struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	log     log.Logger
}

// NewEsploraClient returns a client for the given API base URL, e.g.
// "https://blockstream.info/api".
func NewEsploraClient(baseURL string, timeout time.Duration, logger log.Logger) *EsploraClient {
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	return &EsploraClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		log:     logger.New("backend", "esplora"),
	}
}

// esploraTx mirrors the Esplora transaction document, reduced to the fields
// the watcher consumes.
type esploraTx struct {
	TxID string `json:"txid"`
	Vout []struct {
		ScriptPubKey        string `json:"scriptpubkey"`
		ScriptPubKeyAddress string `json:"scriptpubkey_address"`
		Value               int64  `json:"value"`
	} `json:"vout"`
	Status esploraStatus `json:"status"`
}

type esploraStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight int64  `json:"block_height"`
	BlockHash   string `json:"block_hash"`
}

// get fetches path and decodes the JSON body into result, retrying transient
// failures with the shared backoff schedule. A 404 maps to ErrTxNotFound.
func (c *EsploraClient) get(ctx context.Context, path string, result any) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = c.getOnce(ctx, path, result)
		if lastErr == nil || errors.Is(lastErr, ErrTxNotFound) {
			return lastErr
		}
		if attempt >= len(retryBackoff) {
			break
		}
		c.log.Debug("Retrying indexer call", "path", path, "attempt", attempt+1, "err", lastErr)
		select {
		case <-time.After(retryBackoff[attempt]):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, path, lastErr)
}

func (c *EsploraClient) getOnce(ctx context.Context, path string, result any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrTxNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("indexer returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if result == nil {
		return nil
	}
	if s, ok := result.(*string); ok {
		*s = strings.TrimSpace(string(body))
		return nil
	}
	return json.Unmarshal(body, result)
}

// GetTransaction implements Backend via GET /tx/{txid}.
func (c *EsploraClient) GetTransaction(ctx context.Context, txid string) (*Tx, error) {
	var etx esploraTx
	if err := c.get(ctx, "/tx/"+txid, &etx); err != nil {
		return nil, err
	}
	confs, err := c.confirmations(ctx, etx.Status)
	if err != nil {
		return nil, err
	}
	tx := &Tx{
		TxID:          etx.TxID,
		Confirmations: confs,
		BlockHash:     etx.Status.BlockHash,
		Outputs:       make([]TxOut, 0, len(etx.Vout)),
	}
	for i, vout := range etx.Vout {
		tx.Outputs = append(tx.Outputs, TxOut{
			Vout:        uint32(i),
			Address:     vout.ScriptPubKeyAddress,
			ValueSats:   vout.Value,
			PkScriptHex: vout.ScriptPubKey,
		})
	}
	return tx, nil
}

// TipHeight implements Backend via GET /blocks/tip/height.
func (c *EsploraClient) TipHeight(ctx context.Context) (int64, error) {
	var body string
	if err := c.get(ctx, "/blocks/tip/height", &body); err != nil {
		return 0, err
	}
	height, err := strconv.ParseInt(body, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed tip height %q: %w", body, err)
	}
	return height, nil
}

// AddressOutputs implements Backend via GET /address/{a}/txs. The endpoint
// returns the 50 most recent transactions, newest first, which is plenty for
// a deposit address that is expected to receive a handful of payments.
func (c *EsploraClient) AddressOutputs(ctx context.Context, address string) ([]OutputSighting, error) {
	var txs []esploraTx
	if err := c.get(ctx, "/address/"+address+"/txs", &txs); err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, nil
	}
	var out []OutputSighting
	for _, etx := range txs {
		confs, err := c.confirmations(ctx, etx.Status)
		if err != nil {
			return nil, err
		}
		for i, vout := range etx.Vout {
			if vout.ScriptPubKeyAddress != address {
				continue
			}
			out = append(out, OutputSighting{
				TxID:          etx.TxID,
				Vout:          uint32(i),
				ValueSats:     vout.Value,
				Confirmations: confs,
			})
		}
	}
	return out, nil
}

// confirmations resolves a tx status to a confirmation count against the
// current tip.
func (c *EsploraClient) confirmations(ctx context.Context, status esploraStatus) (int64, error) {
	if !status.Confirmed || status.BlockHeight <= 0 {
		return 0, nil
	}
	tip, err := c.TipHeight(ctx)
	if err != nil {
		return 0, err
	}
	if tip < status.BlockHeight {
		return 0, nil
	}
	return tip - status.BlockHeight + 1, nil
}

// EstimateFee implements Backend via GET /fee-estimates, which maps
// confirmation targets to sat/vB.
func (c *EsploraClient) EstimateFee(ctx context.Context, confTarget int64) (int64, error) {
	estimates := make(map[string]float64)
	if err := c.get(ctx, "/fee-estimates", &estimates); err != nil {
		return 0, err
	}
	rate, ok := estimates[strconv.FormatInt(confTarget, 10)]
	if !ok {
		return 0, fmt.Errorf("no fee estimate for target %d", confTarget)
	}
	return int64(rate), nil
}

// SendRawTransaction implements Backend via POST /tx.
func (c *EsploraClient) SendRawTransaction(ctx context.Context, rawHex string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tx", strings.NewReader(rawHex))
	if err != nil {
		return "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("broadcast rejected: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

// Ping implements Backend.
func (c *EsploraClient) Ping(ctx context.Context) error {
	_, err := c.TipHeight(ctx)
	return err
}

// Name implements Backend.
func (c *EsploraClient) Name() string { return "esplora" }

var _ Backend = (*EsploraClient)(nil)
