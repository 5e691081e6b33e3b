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

package descriptor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BIP32 test vector 1 master public key.
const testXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"

const testTpub = "tpubD6NzVbkrYhZ4XgiXtGrdW5XDAPFCL9h7we1vwNCpn8tGbBcgfVYjXyhWo4E1xkh56hjod1RhGjxbaTLV3X4FyWuejifB9jusQ46QzG87VKp"

func TestParseRejectsGarbage(t *testing.T) {
	for _, desc := range []string{
		"",
		"wpkh()",
		"combo(" + testXpub + "/0/*)",
		"wpkh(" + testXpub + ")",       // no wildcard
		"wpkh(" + testXpub + "/0/1)",   // fixed path, no wildcard
		"wpkh(" + testXpub + "/0h/*)",  // hardened step on a public key
		"wpkh(notanxpub/0/*)",          // junk key
		"wpkh(" + testTpub + "/0/*)",   // testnet key on mainnet
		"tr(wpkh(" + testXpub + "/*))", // nonsense nesting
	} {
		_, err := Parse(desc, Mainnet)
		assert.Errorf(t, err, "descriptor %q should not parse", desc)
	}
}

func TestParseRejectsPrivateKey(t *testing.T) {
	// BIP32 test vector 1 master private key.
	const xprv = "xprv9s21ZrQH143K3QTDL4LXw2F7HEK3wJUD2nW2nRk4stbPy6cq3jPPqjiChkVvvNKmPGJxWUtg6LnF5kejMRNNU3TGtRBeJgk33yuGBxrMPHi"
	_, err := Parse("wpkh("+xprv+"/0/*)", Mainnet)
	require.ErrorIs(t, err, ErrInvalidXpub)
}

func TestParseChecksumAndOrigin(t *testing.T) {
	d, err := Parse("wpkh([d34db33f/84h/0h/0h]"+testXpub+"/0/*)#abcd1234", Mainnet)
	require.NoError(t, err)
	assert.Equal(t, TypeWitnessPKH, d.Type())
	assert.NotContains(t, d.String(), "#")
}

func TestDeriveDeterministic(t *testing.T) {
	// Two independent instances must agree for every index.
	d1, err := Parse("wpkh("+testXpub+"/0/*)", Mainnet)
	require.NoError(t, err)
	d2, err := Parse("wpkh("+testXpub+"/0/*)", Mainnet)
	require.NoError(t, err)

	for index := uint32(0); index < 25; index++ {
		a, err := d1.Derive(index)
		require.NoError(t, err)
		b, err := d2.Derive(index)
		require.NoError(t, err)
		assert.Equal(t, a.Address, b.Address, "index %d", index)
		assert.Equal(t, a.ScriptPubKeyHex(), b.ScriptPubKeyHex(), "index %d", index)
	}
}

func TestDeriveDistinctIndices(t *testing.T) {
	d, err := Parse("wpkh("+testXpub+"/0/*)", Mainnet)
	require.NoError(t, err)
	seen := make(map[string]uint32)
	for index := uint32(0); index < 50; index++ {
		deriv, err := d.Derive(index)
		require.NoError(t, err)
		prev, dup := seen[deriv.Address]
		require.Falsef(t, dup, "index %d repeats the address of index %d", index, prev)
		seen[deriv.Address] = index
	}
}

func TestDeriveAddressEncodings(t *testing.T) {
	tests := []struct {
		desc    string
		network Network
		prefix  string
	}{
		{"wpkh(" + testXpub + "/0/*)", Mainnet, "bc1q"},
		{"tr(" + testXpub + "/0/*)", Mainnet, "bc1p"},
		{"pkh(" + testXpub + "/0/*)", Mainnet, "1"},
		{"sh(wpkh(" + testXpub + "/0/*))", Mainnet, "3"},
		{"wpkh(" + testTpub + "/0/*)", Testnet, "tb1q"},
		{"tr(" + testTpub + "/0/*)", Testnet, "tb1p"},
	}
	for _, tt := range tests {
		d, err := Parse(tt.desc, tt.network)
		require.NoErrorf(t, err, "parse %q", tt.desc)
		deriv, err := d.Derive(0)
		require.NoError(t, err)
		assert.Truef(t, strings.HasPrefix(deriv.Address, tt.prefix),
			"%q derived %q, want prefix %q", tt.desc, deriv.Address, tt.prefix)
		assert.NotEmpty(t, deriv.ScriptPubKey)
	}
}

func TestDeriveChainSelection(t *testing.T) {
	d, err := Parse("wpkh("+testXpub+"/0/*)", Mainnet)
	require.NoError(t, err)
	change, err := Parse("wpkh("+testXpub+"/1/*)", Mainnet)
	require.NoError(t, err)

	a, err := d.Derive(0)
	require.NoError(t, err)
	b, err := change.Derive(0)
	require.NoError(t, err)
	assert.NotEqual(t, a.Address, b.Address, "external and change chains must differ")
}

func TestDefaultPathIsExternalChain(t *testing.T) {
	implicit, err := Parse("wpkh("+testXpub+"/*)", Mainnet)
	require.NoError(t, err)
	explicit, err := Parse("wpkh("+testXpub+"/0/*)", Mainnet)
	require.NoError(t, err)

	a, err := implicit.Derive(7)
	require.NoError(t, err)
	b, err := explicit.Derive(7)
	require.NoError(t, err)
	assert.Equal(t, b.Address, a.Address)
}

func TestFingerprintStable(t *testing.T) {
	d1, err := Parse("wpkh("+testXpub+"/0/*)#checksum", Mainnet)
	require.NoError(t, err)
	d2, err := Parse("wpkh("+testXpub+"/0/*)", Mainnet)
	require.NoError(t, err)
	other, err := Parse("tr("+testXpub+"/0/*)", Mainnet)
	require.NoError(t, err)

	assert.Equal(t, d1.Fingerprint(), d2.Fingerprint(), "checksum must not change the fingerprint")
	assert.NotEqual(t, d1.Fingerprint(), other.Fingerprint())
}
