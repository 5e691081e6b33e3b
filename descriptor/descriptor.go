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

// Package descriptor derives deposit addresses from watch-only output
// descriptors of the form <type>([origin]xpub/<path>/*), where type is one of
// tr, wpkh, sh and pkh. Only public derivation is supported: the descriptor
// must carry an extended public key and a non-hardened path.
package descriptor

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	lru "github.com/hashicorp/golang-lru"
)

var (
	// ErrUnsupportedDescriptor is returned when the descriptor string cannot
	// be parsed or uses a script type the engine does not know.
	ErrUnsupportedDescriptor = errors.New("unsupported descriptor")

	// ErrInvalidXpub is returned when the embedded extended key is malformed,
	// private, or belongs to a different network.
	ErrInvalidXpub = errors.New("invalid extended public key")
)

// Network selects the address encoding parameters.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
	Signet  Network = "signet"
)

// Params returns the chain parameters for the network.
func (n Network) Params() (*chaincfg.Params, error) {
	switch n {
	case Mainnet:
		return &chaincfg.MainNetParams, nil
	case Testnet:
		return &chaincfg.TestNet3Params, nil
	case Regtest:
		return &chaincfg.RegressionNetParams, nil
	case Signet:
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", string(n))
	}
}

// ScriptType is the output script family of a descriptor.
type ScriptType string

const (
	TypeTaproot    ScriptType = "tr"
	TypeWitnessPKH ScriptType = "wpkh"
	TypeScriptHash ScriptType = "sh"
	TypePubKeyHash ScriptType = "pkh"
)

// derivationCacheSize bounds the per-descriptor memo of derived addresses.
// One entry per derivation index; 4096 covers any sane gap limit many times
// over.
const derivationCacheSize = 4096

// descRegexp matches <type>([origin]xpub/<path>/*). The origin block and the
// fixed path components are optional; the trailing /* is not.
var descRegexp = regexp.MustCompile(`^(tr|wpkh|sh|pkh)\((?:\[([^\]]+)\])?([A-Za-z0-9]+)((?:/[0-9]+)*)/\*\)$`)

// Derivation is the result of deriving a descriptor at one index.
type Derivation struct {
	Index        uint32
	Address      string
	ScriptPubKey []byte
}

// ScriptPubKeyHex returns the output script as lowercase hex.
func (d *Derivation) ScriptPubKeyHex() string {
	return hex.EncodeToString(d.ScriptPubKey)
}

// Descriptor is a parsed watch-only descriptor bound to a network. It is safe
// for concurrent use.
type Descriptor struct {
	raw    string
	typ    ScriptType
	origin string
	key    *hdkeychain.ExtendedKey
	path   []uint32
	params *chaincfg.Params

	// Derivations are deterministic, so the memo is keyed by index alone;
	// each Descriptor instance owns its cache.
	cache *lru.Cache
}

// Parse parses a descriptor string for the given network. A trailing
// "#checksum" fragment is tolerated and ignored; the engine does not verify
// descriptor checksums.
func Parse(desc string, network Network) (*Descriptor, error) {
	params, err := network.Params()
	if err != nil {
		return nil, err
	}
	raw := strings.TrimSpace(desc)
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}

	// Unwrap the nested sh(wpkh(...)) form into the plain sh(...) form before
	// matching. Both mean p2sh-p2wpkh here.
	normalized := raw
	if strings.HasPrefix(normalized, "sh(wpkh(") && strings.HasSuffix(normalized, "))") {
		normalized = "sh(" + normalized[len("sh(wpkh("):len(normalized)-2] + ")"
	}

	m := descRegexp.FindStringSubmatch(normalized)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDescriptor, desc)
	}
	typ, origin, xpub, rawPath := ScriptType(m[1]), m[2], m[3], m[4]

	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXpub, err)
	}
	if key.IsPrivate() {
		return nil, fmt.Errorf("%w: descriptor must be watch-only", ErrInvalidXpub)
	}
	if !key.IsForNet(params) {
		return nil, fmt.Errorf("%w: key encoded for a different network", ErrInvalidXpub)
	}

	var path []uint32
	if rawPath != "" {
		for _, part := range strings.Split(rawPath[1:], "/") {
			n, err := strconv.ParseUint(part, 10, 31)
			if err != nil {
				return nil, fmt.Errorf("%w: bad path component %q", ErrUnsupportedDescriptor, part)
			}
			path = append(path, uint32(n))
		}
	} else {
		// External chain by default.
		path = []uint32{0}
	}

	cache, err := lru.New(derivationCacheSize)
	if err != nil {
		return nil, err
	}
	return &Descriptor{
		raw:    raw,
		typ:    typ,
		origin: origin,
		key:    key,
		path:   path,
		params: params,
		cache:  cache,
	}, nil
}

// String returns the descriptor as parsed, without any checksum fragment.
func (d *Descriptor) String() string { return d.raw }

// Type returns the script family of the descriptor.
func (d *Descriptor) Type() ScriptType { return d.typ }

// Fingerprint returns a hex digest identifying the descriptor. It is pinned in
// system metadata so a storage backend cannot silently be reused against a
// different key tree.
func (d *Descriptor) Fingerprint() string {
	sum := sha256.Sum256([]byte(d.raw))
	return hex.EncodeToString(sum[:])
}

// Derive derives the address and output script at the given index. The result
// is deterministic and memoized.
func (d *Descriptor) Derive(index uint32) (*Derivation, error) {
	if cached, ok := d.cache.Get(index); ok {
		return cached.(*Derivation), nil
	}

	key := d.key
	var err error
	for _, step := range append(append([]uint32{}, d.path...), index) {
		key, err = key.Derive(step)
		if err != nil {
			// hdkeychain.ErrInvalidChild happens for roughly 1 in 2^127
			// indices; callers should treat it like any other failure and
			// skip the index.
			return nil, fmt.Errorf("derive child %d: %w", step, err)
		}
	}
	pub, err := key.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXpub, err)
	}

	var addr btcutil.Address
	switch d.typ {
	case TypePubKeyHash:
		addr, err = btcutil.NewAddressPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), d.params)
	case TypeWitnessPKH:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), d.params)
	case TypeScriptHash:
		// p2sh-p2wpkh: the redeem script is the v0 witness program.
		var inner *btcutil.AddressWitnessPubKeyHash
		inner, err = btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), d.params)
		if err == nil {
			var redeem []byte
			redeem, err = txscript.PayToAddrScript(inner)
			if err == nil {
				addr, err = btcutil.NewAddressScriptHash(redeem, d.params)
			}
		}
	case TypeTaproot:
		tweaked := txscript.ComputeTaprootKeyNoScript(pub)
		addr, err = btcutil.NewAddressTaproot(schnorr.SerializePubKey(tweaked), d.params)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDescriptor, d.typ)
	}
	if err != nil {
		return nil, fmt.Errorf("address at index %d: %w", index, err)
	}

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, fmt.Errorf("script at index %d: %w", index, err)
	}
	deriv := &Derivation{
		Index:        index,
		Address:      addr.EncodeAddress(),
		ScriptPubKey: script,
	}
	d.cache.Add(index, deriv)
	return deriv, nil
}
