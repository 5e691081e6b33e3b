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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satgate/go-satgate/log"
)

func newTestEsplora(t *testing.T, routes map[string]string) *EsploraClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("Transaction not found"))
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewEsploraClient(srv.URL, 5*time.Second, log.New())
}

func TestEsploraGetTransaction(t *testing.T) {
	c := newTestEsplora(t, map[string]string{
		"/tx/deadbeef": `{
			"txid": "deadbeef",
			"vout": [
				{"scriptpubkey": "0014aa", "scriptpubkey_address": "bc1qpayme", "value": 50000},
				{"scriptpubkey": "0014bb", "scriptpubkey_address": "bc1qchange", "value": 949000}
			],
			"status": {"confirmed": true, "block_height": 99, "block_hash": "00000000abc"}
		}`,
		"/blocks/tip/height": "100",
	})

	tx, err := c.GetTransaction(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", tx.TxID)
	assert.Equal(t, int64(2), tx.Confirmations, "block 99 at tip 100 is 2 confirmations")
	require.Len(t, tx.Outputs, 2)
	assert.Equal(t, uint32(0), tx.Outputs[0].Vout)
	assert.Equal(t, "bc1qpayme", tx.Outputs[0].Address)
	assert.Equal(t, int64(50000), tx.Outputs[0].ValueSats)
}

func TestEsploraUnconfirmedTransaction(t *testing.T) {
	c := newTestEsplora(t, map[string]string{
		"/tx/deadbeef": `{
			"txid": "deadbeef",
			"vout": [{"scriptpubkey": "0014aa", "scriptpubkey_address": "bc1qpayme", "value": 50000}],
			"status": {"confirmed": false}
		}`,
	})
	tx, err := c.GetTransaction(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, int64(0), tx.Confirmations)
}

func TestEsploraNotFound(t *testing.T) {
	c := newTestEsplora(t, nil)
	_, err := c.GetTransaction(context.Background(), "deadbeef")
	require.ErrorIs(t, err, ErrTxNotFound)
}

func TestEsploraAddressOutputs(t *testing.T) {
	c := newTestEsplora(t, map[string]string{
		"/address/bc1qpayme/txs": `[
			{
				"txid": "t1",
				"vout": [
					{"scriptpubkey": "0014aa", "scriptpubkey_address": "bc1qpayme", "value": 40000},
					{"scriptpubkey": "0014aa", "scriptpubkey_address": "bc1qpayme", "value": 10000},
					{"scriptpubkey": "0014bb", "scriptpubkey_address": "bc1qother", "value": 7000}
				],
				"status": {"confirmed": true, "block_height": 100}
			},
			{
				"txid": "t2",
				"vout": [{"scriptpubkey": "0014aa", "scriptpubkey_address": "bc1qpayme", "value": 1234}],
				"status": {"confirmed": false}
			}
		]`,
		"/blocks/tip/height": "100",
	})

	outs, err := c.AddressOutputs(context.Background(), "bc1qpayme")
	require.NoError(t, err)
	require.Len(t, outs, 3, "outputs to other addresses are filtered out")
	assert.Equal(t, "t1", outs[0].TxID)
	assert.Equal(t, uint32(0), outs[0].Vout)
	assert.Equal(t, uint32(1), outs[1].Vout)
	assert.Equal(t, int64(1), outs[0].Confirmations)
	assert.Equal(t, "t2", outs[2].TxID)
	assert.Equal(t, int64(0), outs[2].Confirmations)
}

func TestEsploraTipHeight(t *testing.T) {
	c := newTestEsplora(t, map[string]string{"/blocks/tip/height": "850123\n"})
	height, err := c.TipHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(850123), height)
}

func TestEsploraEstimateFee(t *testing.T) {
	c := newTestEsplora(t, map[string]string{
		"/fee-estimates": `{"1": 32.75, "2": 28.1, "6": 12.0}`,
	})
	rate, err := c.EstimateFee(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(28), rate)

	_, err = c.EstimateFee(context.Background(), 7)
	require.Error(t, err, "unknown targets are not interpolated")
}
