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

package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemDB is an ephemeral Store kept fully in memory. It backs the test suites
// and regtest development setups; production deployments use the SQL store.
type MemDB struct {
	mu sync.RWMutex

	intents    map[string]*Intent
	addresses  map[string]*DepositAddress
	addrIndex  map[string]string // address string -> id
	derivIndex map[uint32]string // derivation index -> id
	obs        map[string]*TxObservation
	tokens     map[string]*MagicLinkToken // token string -> row
	meta       map[string]string
	customers  map[string]*Customer // email -> row

	closed bool
}

// NewMemDB creates an empty in-memory store.
func NewMemDB() *MemDB {
	return &MemDB{
		intents:    make(map[string]*Intent),
		addresses:  make(map[string]*DepositAddress),
		addrIndex:  make(map[string]string),
		derivIndex: make(map[uint32]string),
		obs:        make(map[string]*TxObservation),
		tokens:     make(map[string]*MagicLinkToken),
		meta:       make(map[string]string),
		customers:  make(map[string]*Customer),
	}
}

var errMemDBClosed = errors.New("memdb: already closed")

func obsKey(txid string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func copyIntent(in *Intent) *Intent {
	c := *in
	c.ConfirmedAt = copyTime(in.ConfirmedAt)
	return &c
}

func copyAddress(in *DepositAddress) *DepositAddress {
	c := *in
	c.AssignedAt = copyTime(in.AssignedAt)
	return &c
}

func copyObservation(in *TxObservation) *TxObservation {
	c := *in
	return &c
}

func copyToken(in *MagicLinkToken) *MagicLinkToken {
	c := *in
	c.ConsumedAt = copyTime(in.ConsumedAt)
	return &c
}

// CreateIntent implements IntentStore.
func (db *MemDB) CreateIntent(ctx context.Context, intent *Intent) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errMemDBClosed
	}
	if _, ok := db.intents[intent.ID]; ok {
		return fmt.Errorf("%w: intent %s", ErrConflict, intent.ID)
	}
	db.intents[intent.ID] = copyIntent(intent)
	return nil
}

// GetIntent implements IntentStore.
func (db *MemDB) GetIntent(ctx context.Context, id string) (*Intent, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	intent, ok := db.intents[id]
	if !ok {
		return nil, fmt.Errorf("%w: intent %s", ErrNotFound, id)
	}
	return copyIntent(intent), nil
}

// TransitionIntent implements IntentStore.
func (db *MemDB) TransitionIntent(ctx context.Context, id string, from []IntentStatus, to IntentStatus, confirmedAt *time.Time) (*Intent, bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	intent, ok := db.intents[id]
	if !ok {
		return nil, false, fmt.Errorf("%w: intent %s", ErrNotFound, id)
	}
	matched := false
	for _, s := range from {
		if intent.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return copyIntent(intent), false, nil
	}
	intent.Status = to
	intent.ConfirmedAt = copyTime(confirmedAt)
	intent.UpdatedAt = time.Now().UTC()
	return copyIntent(intent), true, nil
}

// ListIntentsByStatus implements IntentStore.
func (db *MemDB) ListIntentsByStatus(ctx context.Context, statuses ...IntentStatus) ([]*Intent, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*Intent
	for _, intent := range db.intents {
		for _, s := range statuses {
			if intent.Status == s {
				out = append(out, copyIntent(intent))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListExpiredPending implements IntentStore.
func (db *MemDB) ListExpiredPending(ctx context.Context, now time.Time) ([]*Intent, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*Intent
	for _, intent := range db.intents {
		if intent.Status == IntentPending && !intent.ExpiresAt.After(now) {
			out = append(out, copyIntent(intent))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CreateAddress implements AddressStore.
func (db *MemDB) CreateAddress(ctx context.Context, addr *DepositAddress) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.addrIndex[addr.Address]; ok {
		return fmt.Errorf("%w: address %s", ErrConflict, addr.Address)
	}
	if _, ok := db.derivIndex[addr.DerivationIndex]; ok {
		return fmt.Errorf("%w: derivation index %d", ErrConflict, addr.DerivationIndex)
	}
	db.addresses[addr.ID] = copyAddress(addr)
	db.addrIndex[addr.Address] = addr.ID
	db.derivIndex[addr.DerivationIndex] = addr.ID
	return nil
}

// GetAddress implements AddressStore.
func (db *MemDB) GetAddress(ctx context.Context, id string) (*DepositAddress, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	addr, ok := db.addresses[id]
	if !ok {
		return nil, fmt.Errorf("%w: address id %s", ErrNotFound, id)
	}
	return copyAddress(addr), nil
}

// GetAddressByAddress implements AddressStore.
func (db *MemDB) GetAddressByAddress(ctx context.Context, address string) (*DepositAddress, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	id, ok := db.addrIndex[address]
	if !ok {
		return nil, fmt.Errorf("%w: address %s", ErrNotFound, address)
	}
	return copyAddress(db.addresses[id]), nil
}

// NextDerivationIndex implements AddressStore.
func (db *MemDB) NextDerivationIndex(ctx context.Context) (uint32, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	next := uint32(0)
	for idx := range db.derivIndex {
		if idx+1 > next {
			next = idx + 1
		}
	}
	return next, nil
}

// LowestUnassigned implements AddressStore.
func (db *MemDB) LowestUnassigned(ctx context.Context) (*DepositAddress, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var best *DepositAddress
	for _, addr := range db.addresses {
		if addr.IntentID != "" {
			continue
		}
		if best == nil || addr.DerivationIndex < best.DerivationIndex {
			best = addr
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no unassigned address", ErrNotFound)
	}
	return copyAddress(best), nil
}

// ListAssigned implements AddressStore.
func (db *MemDB) ListAssigned(ctx context.Context) ([]*DepositAddress, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*DepositAddress
	for _, addr := range db.addresses {
		if addr.IntentID != "" {
			out = append(out, copyAddress(addr))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DerivationIndex < out[j].DerivationIndex })
	return out, nil
}

// AssignAddressToIntent implements AddressStore.
func (db *MemDB) AssignAddressToIntent(ctx context.Context, addressID, intentID string, at time.Time) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	addr, ok := db.addresses[addressID]
	if !ok {
		return fmt.Errorf("%w: address id %s", ErrNotFound, addressID)
	}
	intent, ok := db.intents[intentID]
	if !ok {
		return fmt.Errorf("%w: intent %s", ErrNotFound, intentID)
	}
	if addr.IntentID == intentID && intent.AddressID == addressID {
		return nil // already linked
	}
	if addr.IntentID != "" {
		return fmt.Errorf("%w: address %s already assigned", ErrConflict, addr.Address)
	}
	if intent.AddressID != "" {
		return fmt.Errorf("%w: intent %s already has an address", ErrConflict, intentID)
	}
	addr.IntentID = intentID
	addr.AssignedAt = copyTime(&at)
	intent.AddressID = addressID
	intent.UpdatedAt = at
	return nil
}

// UpsertObservation implements ObservationStore.
func (db *MemDB) UpsertObservation(ctx context.Context, obs *TxObservation) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	key := obsKey(obs.TxID, obs.Vout)
	existing, ok := db.obs[key]
	if !ok {
		row := copyObservation(obs)
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		db.obs[key] = row
		obs.ID = row.ID
		return true, nil
	}
	existing.ValueSats = obs.ValueSats
	existing.Confirmations = obs.Confirmations
	existing.Status = obs.Status
	existing.UpdatedAt = obs.UpdatedAt
	obs.ID = existing.ID
	obs.SeenAt = existing.SeenAt
	return false, nil
}

// GetObservation implements ObservationStore.
func (db *MemDB) GetObservation(ctx context.Context, txid string, vout uint32) (*TxObservation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	obs, ok := db.obs[obsKey(txid, vout)]
	if !ok {
		return nil, fmt.Errorf("%w: observation %s:%d", ErrNotFound, txid, vout)
	}
	return copyObservation(obs), nil
}

// LatestObservationForIntent implements ObservationStore.
func (db *MemDB) LatestObservationForIntent(ctx context.Context, intentID string) (*TxObservation, error) {
	all, err := db.ListObservationsForIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("%w: no observation for intent %s", ErrNotFound, intentID)
	}
	return all[len(all)-1], nil
}

// ListObservationsForIntent implements ObservationStore.
func (db *MemDB) ListObservationsForIntent(ctx context.Context, intentID string) ([]*TxObservation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	intent, ok := db.intents[intentID]
	if !ok {
		return nil, fmt.Errorf("%w: intent %s", ErrNotFound, intentID)
	}
	if intent.AddressID == "" {
		return nil, nil
	}
	var out []*TxObservation
	for _, obs := range db.obs {
		if obs.AddressID == intent.AddressID {
			out = append(out, copyObservation(obs))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SeenAt.Equal(out[j].SeenAt) {
			return out[i].SeenAt.Before(out[j].SeenAt)
		}
		return out[i].Vout < out[j].Vout
	})
	return out, nil
}

// CreateToken implements TokenStore.
func (db *MemDB) CreateToken(ctx context.Context, tok *MagicLinkToken) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tokens[tok.Token]; ok {
		return fmt.Errorf("%w: token", ErrConflict)
	}
	db.tokens[tok.Token] = copyToken(tok)
	return nil
}

// GetToken implements TokenStore.
func (db *MemDB) GetToken(ctx context.Context, token string) (*MagicLinkToken, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	row, ok := db.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: token", ErrNotFound)
	}
	return copyToken(row), nil
}

// ConsumeToken implements TokenStore.
func (db *MemDB) ConsumeToken(ctx context.Context, token string, at time.Time) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	row, ok := db.tokens[token]
	if !ok {
		return false, fmt.Errorf("%w: token", ErrNotFound)
	}
	if row.Consumed {
		return false, nil
	}
	row.Consumed = true
	row.ConsumedAt = copyTime(&at)
	return true, nil
}

// GetMeta implements MetadataStore.
func (db *MemDB) GetMeta(ctx context.Context, key string) (string, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.meta[key]
	if !ok {
		return "", fmt.Errorf("%w: metadata %s", ErrNotFound, key)
	}
	return value, nil
}

// PutMeta implements MetadataStore.
func (db *MemDB) PutMeta(ctx context.Context, key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.meta[key] = value
	return nil
}

// UpsertCustomerByEmail implements the optional CustomerStore capability.
func (db *MemDB) UpsertCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if row, ok := db.customers[email]; ok {
		c := *row
		return &c, nil
	}
	row := &Customer{ID: uuid.NewString(), Email: email, CreatedAt: time.Now().UTC()}
	db.customers[email] = row
	c := *row
	return &c, nil
}

// Ping implements Store.
func (db *MemDB) Ping(ctx context.Context) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return errMemDBClosed
	}
	return nil
}

// Close implements Store.
func (db *MemDB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return errMemDBClosed
	}
	db.closed = true
	return nil
}

var (
	_ Store         = (*MemDB)(nil)
	_ CustomerStore = (*MemDB)(nil)
)
