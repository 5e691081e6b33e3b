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

// Package storage defines the persistence contract of the gateway: payment
// intents, deposit addresses, transaction observations, magic-link tokens and
// system metadata. Implementations must make every method linearizable on its
// own row; AssignAddressToIntent is additionally transactional across the
// address and intent rows.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an insert violates a uniqueness
	// constraint, e.g. a duplicate (txid, vout) pair or a derivation index
	// race.
	ErrConflict = errors.New("conflict")
)

// IntentStatus is the lifecycle state of a payment intent.
type IntentStatus string

const (
	IntentPending    IntentStatus = "pending"
	IntentProcessing IntentStatus = "processing"
	IntentConfirmed  IntentStatus = "confirmed"
	IntentExpired    IntentStatus = "expired"
	IntentFailed     IntentStatus = "failed"
)

// Terminal reports whether no further transitions can leave the state. Note
// that confirmed is terminal except for the reorg down-edge, which the state
// machine applies explicitly.
func (s IntentStatus) Terminal() bool {
	return s == IntentExpired || s == IntentFailed
}

// ObservationStatus is the chain state of a transaction observation.
type ObservationStatus string

const (
	ObservationMempool   ObservationStatus = "mempool"
	ObservationConfirmed ObservationStatus = "confirmed"
)

// Intent is a merchant-side record of an expected payment.
type Intent struct {
	ID            string
	AmountSats    int64
	Status        IntentStatus
	AddressID     string // empty until an address is assigned
	RequiredConfs int64
	ExpiresAt     time.Time
	ConfirmedAt   *time.Time
	CustomerID    string
	Email         string
	Memo          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DepositAddress is a derived on-chain address. It is assigned iff IntentID is
// non-empty; at most one intent per address.
type DepositAddress struct {
	ID              string
	Address         string
	DerivationIndex uint32
	ScriptPubKeyHex string
	IntentID        string
	AssignedAt      *time.Time
	CreatedAt       time.Time
}

// TxObservation is a per-output sighting of a transaction paying a watched
// address. (TxID, Vout) is unique; updates are in place.
type TxObservation struct {
	ID              string
	TxID            string
	Vout            uint32
	ValueSats       int64
	Confirmations   int64
	AddressID       string
	ScriptPubKeyHex string
	Status          ObservationStatus
	SeenAt          time.Time
	UpdatedAt       time.Time
}

// MagicLinkToken is a persisted magic-link row. Consumed is sticky until
// ExpiresAt; ConsumedAt is set exactly once.
type MagicLinkToken struct {
	ID         string
	Token      string
	IntentID   string
	Consumed   bool
	ConsumedAt *time.Time
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// Customer groups intents by e-mail address.
type Customer struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// IntentStore persists payment intents.
type IntentStore interface {
	CreateIntent(ctx context.Context, intent *Intent) error
	GetIntent(ctx context.Context, id string) (*Intent, error)

	// TransitionIntent atomically moves the intent to the target status if
	// its current status is one of from. The stored confirmed_at is replaced
	// with confirmedAt verbatim (nil clears it). The boolean reports whether
	// the transition applied; re-application of an already-applied
	// transition returns false without modifying the row.
	TransitionIntent(ctx context.Context, id string, from []IntentStatus, to IntentStatus, confirmedAt *time.Time) (*Intent, bool, error)

	// ListIntentsByStatus returns all intents whose status matches any of
	// the given states, ordered by creation time.
	ListIntentsByStatus(ctx context.Context, statuses ...IntentStatus) ([]*Intent, error)

	// ListExpiredPending returns pending intents with expires_at <= now.
	ListExpiredPending(ctx context.Context, now time.Time) ([]*Intent, error)
}

// AddressStore persists deposit addresses.
type AddressStore interface {
	CreateAddress(ctx context.Context, addr *DepositAddress) error
	GetAddress(ctx context.Context, id string) (*DepositAddress, error)
	GetAddressByAddress(ctx context.Context, address string) (*DepositAddress, error)

	// NextDerivationIndex returns the next unused derivation index, i.e.
	// max(derivation_index)+1, or 0 for an empty table.
	NextDerivationIndex(ctx context.Context) (uint32, error)

	// LowestUnassigned returns the unassigned address with the lowest
	// derivation index, or ErrNotFound.
	LowestUnassigned(ctx context.Context) (*DepositAddress, error)

	// ListAssigned returns every address currently bound to an intent.
	ListAssigned(ctx context.Context) ([]*DepositAddress, error)

	// AssignAddressToIntent binds the address and intent to each other in a
	// single transaction. It fails with ErrConflict if the address is
	// already assigned, and with ErrNotFound if either row is missing.
	AssignAddressToIntent(ctx context.Context, addressID, intentID string, at time.Time) error
}

// ObservationStore persists transaction observations.
type ObservationStore interface {
	// UpsertObservation inserts the observation or, when (txid, vout)
	// already exists, updates value, confirmations and status in place.
	// The boolean reports whether a new row was created.
	UpsertObservation(ctx context.Context, obs *TxObservation) (bool, error)

	GetObservation(ctx context.Context, txid string, vout uint32) (*TxObservation, error)

	// LatestObservationForIntent returns the most recent observation (by
	// seen_at) for the intent's address, or ErrNotFound.
	LatestObservationForIntent(ctx context.Context, intentID string) (*TxObservation, error)

	// ListObservationsForIntent returns all observations for the intent's
	// address ordered by seen_at ascending.
	ListObservationsForIntent(ctx context.Context, intentID string) ([]*TxObservation, error)
}

// TokenStore persists magic-link tokens.
type TokenStore interface {
	CreateToken(ctx context.Context, tok *MagicLinkToken) error
	GetToken(ctx context.Context, token string) (*MagicLinkToken, error)

	// ConsumeToken marks the token consumed at the given time. If it is
	// already consumed the call is a no-op; the boolean reports whether the
	// row changed.
	ConsumeToken(ctx context.Context, token string, at time.Time) (bool, error)
}

// MetadataStore is an opaque key/value table for system state such as the
// descriptor fingerprint.
type MetadataStore interface {
	GetMeta(ctx context.Context, key string) (string, error)
	PutMeta(ctx context.Context, key, value string) error
}

// Store is the required persistence capability set of the gateway core.
type Store interface {
	IntentStore
	AddressStore
	ObservationStore
	TokenStore
	MetadataStore

	Ping(ctx context.Context) error
	Close() error
}

// CustomerStore is an optional capability. Callers feature-gate with a type
// assertion on the Store value.
type CustomerStore interface {
	// UpsertCustomerByEmail returns the customer with the given e-mail,
	// creating it first if needed.
	UpsertCustomerByEmail(ctx context.Context, email string) (*Customer, error)
}
