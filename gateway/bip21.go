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
	"net/url"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
)

// BIP21URI builds a bitcoin: payment URI. The amount is rendered in BTC with
// exactly eight decimal places; label and message are percent-encoded and
// omitted when empty.
func BIP21URI(address string, amountSats int64, label, message string) string {
	var b strings.Builder
	b.WriteString("bitcoin:")
	b.WriteString(address)
	b.WriteString("?amount=")
	b.WriteString(formatBTC(amountSats))
	if label != "" {
		b.WriteString("&label=")
		b.WriteString(percentEncode(label))
	}
	if message != "" {
		b.WriteString("&message=")
		b.WriteString(percentEncode(message))
	}
	return b.String()
}

// formatBTC renders satoshis as a fixed eight-decimal BTC string.
func formatBTC(sats int64) string {
	return fmt.Sprintf("%d.%08d", sats/btcutil.SatoshiPerBitcoin, sats%btcutil.SatoshiPerBitcoin)
}

// percentEncode is query escaping with spaces as %20 instead of +, as BIP21
// consumers expect.
func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
