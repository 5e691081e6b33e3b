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
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/satgate/go-satgate/chain"
	"github.com/satgate/go-satgate/storage"
	"github.com/satgate/go-satgate/token"
)

// assignRetries bounds the derivation-index race retry loop of EnsureAssigned.
const assignRetries = 3

// CreateIntentParams are the accepted fields of CreateIntent. Zero values
// take the configured defaults.
type CreateIntentParams struct {
	AmountSats    int64
	RequiredConfs int64
	ExpiresIn     time.Duration
	Email         string
	CustomerID    string
	Memo          string
}

// PaymentDetails is what a customer needs to pay: the deposit address, the
// BIP21 URI and the terms of the intent.
type PaymentDetails struct {
	IntentID   string    `json:"intentId"`
	Address    string    `json:"address"`
	BIP21      string    `json:"bip21"`
	AmountSats int64     `json:"amountSats"`
	ExpiresAt  time.Time `json:"expiresAt"`
	Status     string    `json:"status"`
}

// IssuedLink is a freshly minted magic link.
type IssuedLink struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// StatusInfo is the live payment state of an intent, folded from the most
// recent observation.
type StatusInfo struct {
	Status      string     `json:"status"`
	AmountSats  int64      `json:"amountSats"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
	Confs       int64      `json:"confs"`
	TxID        string     `json:"txid,omitempty"`
	ValueSats   int64      `json:"valueSats,omitempty"`
}

// CreateIntent records a new payment intent in pending. No address is
// assigned yet; EnsureAssigned does that lazily.
func (g *Gateway) CreateIntent(ctx context.Context, params CreateIntentParams) (*storage.Intent, error) {
	if params.AmountSats <= 0 {
		return nil, newError(KindValidation, "amountSats must be positive, got %d", params.AmountSats)
	}
	if params.RequiredConfs < 0 {
		return nil, newError(KindValidation, "requiredConfs must not be negative")
	}
	if params.RequiredConfs == 0 {
		params.RequiredConfs = g.cfg.Confirmations
	}
	if params.ExpiresIn < 0 {
		return nil, newError(KindValidation, "expiry must not be negative")
	}
	if params.ExpiresIn == 0 {
		params.ExpiresIn = g.cfg.IntentExpiry
	}

	customerID := params.CustomerID
	if customerID == "" && params.Email != "" {
		if customers, ok := g.store.(storage.CustomerStore); ok {
			customer, err := customers.UpsertCustomerByEmail(ctx, params.Email)
			if err != nil {
				return nil, wrapError(KindTransient, err, "resolve customer")
			}
			customerID = customer.ID
		}
	}

	now := g.now().UTC()
	intent := &storage.Intent{
		ID:            uuid.NewString(),
		AmountSats:    params.AmountSats,
		Status:        storage.IntentPending,
		RequiredConfs: params.RequiredConfs,
		ExpiresAt:     now.Add(params.ExpiresIn),
		CustomerID:    customerID,
		Email:         params.Email,
		Memo:          params.Memo,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := g.store.CreateIntent(ctx, intent); err != nil {
		return nil, wrapError(KindTransient, err, "create intent")
	}
	g.log.Info("Intent created", "intent", intent.ID, "amount", intent.AmountSats, "confs", intent.RequiredConfs)
	g.dispatcher.Dispatch(IntentEvent{Type: EventIntentCreated, Intent: intent})
	return intent, nil
}

// GetIntent returns the intent row.
func (g *Gateway) GetIntent(ctx context.Context, id string) (*storage.Intent, error) {
	intent, err := g.store.GetIntent(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, wrapError(KindNotFound, err, "intent %s", id)
	}
	if err != nil {
		return nil, wrapError(KindTransient, err, "load intent")
	}
	return intent, nil
}

// EnsureAssigned returns the payment details of the intent, assigning a
// deposit address first if it has none. Assignment reuses the unassigned
// address with the lowest derivation index before deriving a fresh one, so
// assigned indices stay a gap-free prefix.
func (g *Gateway) EnsureAssigned(ctx context.Context, intentID string) (*PaymentDetails, error) {
	intent, err := g.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.AddressID != "" {
		addr, err := g.store.GetAddress(ctx, intent.AddressID)
		if err != nil {
			return nil, wrapError(KindTransient, err, "load assigned address")
		}
		return g.paymentDetails(intent, addr), nil
	}
	if intent.Status != storage.IntentPending && intent.Status != storage.IntentProcessing {
		return nil, newError(KindInvalidState, "cannot assign an address to a %s intent", intent.Status)
	}

	var addr *storage.DepositAddress
	for attempt := 0; ; attempt++ {
		addr, err = g.takeAddress(ctx)
		if err != nil {
			return nil, err
		}
		err = g.store.AssignAddressToIntent(ctx, addr.ID, intent.ID, g.now().UTC())
		if err == nil {
			break
		}
		// Another intent won this address; take the next one.
		if errors.Is(err, storage.ErrConflict) && attempt < assignRetries-1 {
			continue
		}
		switch {
		case errors.Is(err, storage.ErrConflict):
			return nil, wrapError(KindConflict, err, "could not win an address after %d attempts", assignRetries)
		case errors.Is(err, storage.ErrNotFound):
			return nil, wrapError(KindNotFound, err, "assignment target vanished")
		default:
			return nil, wrapError(KindTransient, err, "assign address")
		}
	}
	g.watch.add(addr.Address, intent.ID)
	watchedAddressesGauge.Set(float64(g.watch.len()))
	g.log.Info("Address assigned", "intent", intent.ID, "address", addr.Address, "index", addr.DerivationIndex)

	intent.AddressID = addr.ID
	return g.paymentDetails(intent, addr), nil
}

// takeAddress returns the lowest unassigned address, deriving a fresh one
// when the pool is empty. Derivation races on the index are retried.
func (g *Gateway) takeAddress(ctx context.Context) (*storage.DepositAddress, error) {
	addr, err := g.store.LowestUnassigned(ctx)
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, wrapError(KindTransient, err, "look up unassigned address")
	}

	for attempt := 0; attempt < assignRetries; attempt++ {
		index, err := g.store.NextDerivationIndex(ctx)
		if err != nil {
			return nil, wrapError(KindTransient, err, "next derivation index")
		}
		deriv, err := g.desc.Derive(index)
		if err != nil {
			return nil, wrapError(KindFatal, err, "derive address at index %d", index)
		}
		addr = &storage.DepositAddress{
			ID:              uuid.NewString(),
			Address:         deriv.Address,
			DerivationIndex: deriv.Index,
			ScriptPubKeyHex: deriv.ScriptPubKeyHex(),
			CreatedAt:       g.now().UTC(),
		}
		err = g.store.CreateAddress(ctx, addr)
		if err == nil {
			return addr, nil
		}
		if !errors.Is(err, storage.ErrConflict) {
			return nil, wrapError(KindTransient, err, "persist derived address")
		}
		// Another writer took the index; re-read and try the next one.
	}
	return nil, newError(KindConflict, "could not win a derivation index after %d attempts", assignRetries)
}

func (g *Gateway) paymentDetails(intent *storage.Intent, addr *storage.DepositAddress) *PaymentDetails {
	return &PaymentDetails{
		IntentID:   intent.ID,
		Address:    addr.Address,
		BIP21:      BIP21URI(addr.Address, intent.AmountSats, intent.Memo, ""),
		AmountSats: intent.AmountSats,
		ExpiresAt:  intent.ExpiresAt,
		Status:     string(intent.Status),
	}
}

// IssueToken mints a magic link for the intent and persists its row. A zero
// ttl takes the configured default.
func (g *Gateway) IssueToken(ctx context.Context, intentID string, ttl time.Duration) (*IssuedLink, error) {
	if ttl < 0 {
		return nil, newError(KindValidation, "ttl must not be negative")
	}
	if ttl == 0 {
		ttl = g.cfg.MagicLinkTTL
	}
	intent, err := g.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status.Terminal() {
		return nil, newError(KindInvalidState, "cannot issue a magic link for a %s intent", intent.Status)
	}

	tok, claims, err := g.codec.Issue(intent.ID, ttl)
	if err != nil {
		return nil, wrapError(KindFatal, err, "sign token")
	}
	now := g.now().UTC()
	row := &storage.MagicLinkToken{
		ID:        uuid.NewString(),
		Token:     tok,
		IntentID:  intent.ID,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
		CreatedAt: now,
	}
	if err := g.store.CreateToken(ctx, row); err != nil {
		return nil, wrapError(KindTransient, err, "persist token")
	}
	g.log.Debug("Magic link issued", "intent", intent.ID, "expiresAt", row.ExpiresAt)
	return &IssuedLink{
		URL:   g.cfg.BaseURL + g.cfg.BasePath + "/pay/" + tok,
		Token: tok,
	}, nil
}

// RedeemToken verifies a magic link and returns the intent it grants access
// to. The first redemption stamps the row consumed; under the default reuse
// policy later redemptions before expiry succeed without touching the stamp.
func (g *Gateway) RedeemToken(ctx context.Context, tok string) (string, error) {
	claims, err := g.codec.Verify(tok)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return "", wrapError(KindExpired, err, "token expired")
		}
		return "", wrapError(KindAuth, err, "token rejected")
	}
	row, err := g.store.GetToken(ctx, tok)
	if errors.Is(err, storage.ErrNotFound) {
		// Valid signature but no row: rotated secret or forged issuance.
		return "", wrapError(KindNotFound, err, "token unknown")
	}
	if err != nil {
		return "", wrapError(KindTransient, err, "load token")
	}
	if row.IntentID != claims.IntentID {
		return "", newError(KindAuth, "token claims do not match the stored row")
	}
	if g.cfg.TokenReuse == ReuseSingleUse && row.Consumed {
		return "", newError(KindExpired, "token already used")
	}
	if _, err := g.store.ConsumeToken(ctx, tok, g.now().UTC()); err != nil {
		return "", wrapError(KindTransient, err, "consume token")
	}
	return claims.IntentID, nil
}

// GetStatus folds the intent and its most recent observation into the
// customer-facing status document. It reports last-known state even when the
// watcher is degraded.
func (g *Gateway) GetStatus(ctx context.Context, intentID string) (*StatusInfo, error) {
	intent, err := g.GetIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	info := &StatusInfo{
		Status:      string(intent.Status),
		AmountSats:  intent.AmountSats,
		ExpiresAt:   intent.ExpiresAt,
		ConfirmedAt: intent.ConfirmedAt,
	}
	obs, err := g.store.LatestObservationForIntent(ctx, intentID)
	if err == nil {
		info.Confs = obs.Confirmations
		info.TxID = obs.TxID
		info.ValueSats = obs.ValueSats
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, wrapError(KindTransient, err, "load observation")
	}
	return info, nil
}

// ScanForPayments forces a pull-path reconciliation of the intent right now.
func (g *Gateway) ScanForPayments(ctx context.Context, intentID string) error {
	if !g.Running() {
		return newError(KindTransient, "watcher is not running")
	}
	intent, err := g.GetIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if intent.AddressID == "" {
		return newError(KindInvalidState, "intent has no address to scan")
	}
	if err := g.reconcileIntent(ctx, intent, SourceManual); err != nil {
		return wrapError(KindTransient, err, "scan intent")
	}
	return nil
}

// EstimateFee passes a feerate estimate through from the configured backend,
// in sat/vB.
func (g *Gateway) EstimateFee(ctx context.Context, confTarget int64) (int64, error) {
	if confTarget <= 0 {
		return 0, newError(KindValidation, "confirmation target must be positive")
	}
	rate, err := g.primary.EstimateFee(ctx, confTarget)
	if err != nil && errors.Is(err, chain.ErrUnavailable) && g.fallback != nil {
		rate, err = g.fallback.EstimateFee(ctx, confTarget)
	}
	if err != nil {
		return 0, wrapError(KindTransient, err, "estimate fee")
	}
	return rate, nil
}
