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

// Package token implements the signed single-purpose magic-link tokens handed
// to customers. A token is base64url(payload) || "." || base64url(hmac) and is
// safe to embed in a URL path.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidToken is returned for malformed tokens and signature
	// mismatches. Callers must not reveal which of the two failed.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the signature checks out but the token
	// is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// nonceLen matches the nanoid length the original gateway used. The nonce only
// disambiguates tokens issued for the same intent within the same second.
const nonceLen = 21

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

// Claims is the signed token payload.
type Claims struct {
	IntentID  string `json:"intentId"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	Nonce     string `json:"nonce"`
}

// Codec issues and verifies magic-link tokens with a shared HMAC-SHA256 secret.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec returns a codec signing with the given secret. Secrets shorter than
// 32 bytes are accepted but weaken the scheme.
func NewCodec(secret []byte) *Codec {
	return &Codec{secret: secret, now: time.Now}
}

// NewCodecWithClock returns a codec reading the current time from now. Used
// by callers that own a virtual clock.
func NewCodecWithClock(secret []byte, now func() time.Time) *Codec {
	return &Codec{secret: secret, now: now}
}

// Issue creates a signed token for the intent, valid for ttl.
func (c *Codec) Issue(intentID string, ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		return "", nil, fmt.Errorf("ttl must be positive, got %v", ttl)
	}
	nonce, err := newNonce()
	if err != nil {
		return "", nil, err
	}
	now := c.now()
	claims := &Claims{
		IntentID:  intentID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
		Nonce:     nonce,
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", nil, err
	}
	payloadB64 := base64.RawURLEncoding.EncodeToString(payload)
	return payloadB64 + "." + c.sign(payloadB64), claims, nil
}

// Verify checks the signature and expiry of a token and returns its claims.
// The comparison is constant time.
func (c *Codec) Verify(tok string) (*Claims, error) {
	// Split on the final dot so a dot inside a (corrupt) payload cannot shift
	// the signature boundary.
	i := strings.LastIndexByte(tok, '.')
	if i <= 0 || i == len(tok)-1 {
		return nil, ErrInvalidToken
	}
	payloadB64, sigB64 := tok[:i], tok[i+1:]

	expected := c.sign(payloadB64)
	if !hmac.Equal([]byte(sigB64), []byte(expected)) {
		return nil, ErrInvalidToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(payloadB64)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.IntentID == "" {
		return nil, ErrInvalidToken
	}
	if c.now().Unix() >= claims.ExpiresAt {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}

func (c *Codec) sign(payloadB64 string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payloadB64))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func newNonce() (string, error) {
	buf := make([]byte, nonceLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = nonceAlphabet[int(b)&63]
	}
	return string(buf), nil
}
