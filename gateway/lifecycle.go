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

	"github.com/satgate/go-satgate/storage"
)

// The intent state machine. Every edge is one conditional storage update;
// the update reports whether it applied, which gates event emission so a
// replayed trigger cannot emit twice.

// advanceIntent applies an observation to the intent and walks it along the
// up edges. Down edges (reorg, expiry) are driven elsewhere.
func (g *Gateway) advanceIntent(ctx context.Context, intent *storage.Intent, obs *storage.TxObservation) error {
	value, err := g.effectiveValue(ctx, intent, obs)
	if err != nil {
		return err
	}
	if obs.Confirmations >= intent.RequiredConfs && value >= intent.AmountSats {
		return g.markConfirmed(ctx, intent, obs)
	}
	// Any sighting, even under-amount or unconfirmed, moves a pending
	// intent to processing.
	return g.markProcessing(ctx, intent, obs)
}

// effectiveValue resolves the amount an observation counts for under the
// configured match mode.
func (g *Gateway) effectiveValue(ctx context.Context, intent *storage.Intent, obs *storage.TxObservation) (int64, error) {
	if g.cfg.MatchMode == MatchFirstOutput {
		return obs.ValueSats, nil
	}
	// Sum mode: outputs of the same transaction to the same address count
	// together.
	all, err := g.store.ListObservationsForIntent(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return obs.ValueSats, nil
		}
		return 0, err
	}
	var sum int64
	seen := false
	for _, o := range all {
		if o.TxID == obs.TxID {
			sum += o.ValueSats
			if o.Vout == obs.Vout {
				seen = true
			}
		}
	}
	if !seen {
		sum += obs.ValueSats
	}
	return sum, nil
}

// markProcessing moves a pending intent to processing on its first sighting.
func (g *Gateway) markProcessing(ctx context.Context, intent *storage.Intent, obs *storage.TxObservation) error {
	updated, applied, err := g.store.TransitionIntent(ctx, intent.ID,
		[]storage.IntentStatus{storage.IntentPending}, storage.IntentProcessing, nil)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	g.log.Info("Intent processing", "intent", intent.ID, "txid", obs.TxID, "value", obs.ValueSats, "confs", obs.Confirmations)
	transitionsCounter.WithLabelValues(string(storage.IntentProcessing)).Inc()
	g.dispatcher.Dispatch(IntentEvent{Type: EventProcessing, Intent: updated, Observation: obs})
	return nil
}

// markConfirmed moves the intent to confirmed, stamps confirmedAt and retires
// its address from the watched set.
func (g *Gateway) markConfirmed(ctx context.Context, intent *storage.Intent, obs *storage.TxObservation) error {
	now := g.now().UTC()
	updated, applied, err := g.store.TransitionIntent(ctx, intent.ID,
		[]storage.IntentStatus{storage.IntentPending, storage.IntentProcessing},
		storage.IntentConfirmed, &now)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if addr, err := g.store.GetAddress(ctx, updated.AddressID); err == nil {
		g.watch.remove(addr.Address)
		watchedAddressesGauge.Set(float64(g.watch.len()))
	}
	g.log.Info("Intent confirmed", "intent", intent.ID, "txid", obs.TxID, "value", obs.ValueSats, "confs", obs.Confirmations)
	transitionsCounter.WithLabelValues(string(storage.IntentConfirmed)).Inc()
	g.dispatcher.Dispatch(IntentEvent{Type: EventConfirmed, Intent: updated, Observation: obs})
	return nil
}

// markReorged demotes a confirmed intent whose transaction vanished from the
// chain. The observation rows are reset to mempool at zero confirmations
// rather than deleted, the confirmation stamp is cleared and the address goes
// back on watch.
func (g *Gateway) markReorged(ctx context.Context, intent *storage.Intent) error {
	updated, applied, err := g.store.TransitionIntent(ctx, intent.ID,
		[]storage.IntentStatus{storage.IntentConfirmed}, storage.IntentProcessing, nil)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	obs, err := g.store.ListObservationsForIntent(ctx, intent.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	for _, o := range obs {
		o.Status = storage.ObservationMempool
		o.Confirmations = 0
		o.UpdatedAt = g.now().UTC()
		if _, err := g.store.UpsertObservation(ctx, o); err != nil {
			g.log.Warn("Failed to reset observation after reorg", "txid", o.TxID, "vout", o.Vout, "err", err)
		}
	}
	if addr, err := g.store.GetAddress(ctx, updated.AddressID); err == nil {
		g.watch.add(addr.Address, updated.ID)
		watchedAddressesGauge.Set(float64(g.watch.len()))
	}
	g.log.Warn("Intent demoted after reorg", "intent", intent.ID)
	reorgCounter.Inc()
	transitionsCounter.WithLabelValues(string(storage.IntentProcessing)).Inc()
	g.dispatcher.Dispatch(IntentEvent{Type: EventReorg, Intent: updated})
	return nil
}

// expireIntent moves a pending intent past its deadline to expired.
func (g *Gateway) expireIntent(ctx context.Context, intent *storage.Intent) error {
	updated, applied, err := g.store.TransitionIntent(ctx, intent.ID,
		[]storage.IntentStatus{storage.IntentPending}, storage.IntentExpired, nil)
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if updated.AddressID != "" {
		if addr, err := g.store.GetAddress(ctx, updated.AddressID); err == nil {
			g.watch.remove(addr.Address)
			watchedAddressesGauge.Set(float64(g.watch.len()))
		}
	}
	g.log.Info("Intent expired", "intent", intent.ID, "expiresAt", intent.ExpiresAt)
	transitionsCounter.WithLabelValues(string(storage.IntentExpired)).Inc()
	g.dispatcher.Dispatch(IntentEvent{Type: EventExpired, Intent: updated})
	return nil
}
