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
)

// Source tags where an observation delta came from.
type Source string

const (
	SourceZMQ     Source = "zmq"
	SourcePoll    Source = "poll"
	SourceIndexer Source = "indexer"
	SourceManual  Source = "manual"
)

// ObservationDelta is one normalized chain sighting, produced identically by
// the push and pull paths and consumed by the state machine.
type ObservationDelta struct {
	TxID          string
	Vout          uint32
	ValueSats     int64
	Confirmations int64
	Source        Source
	SeenAt        time.Time
}

// processTx fetches a transaction and reconciles every output paying a
// watched address. Per-output failures log and skip; they never abort the
// remaining outputs.
func (g *Gateway) processTx(ctx context.Context, txid string, source Source) error {
	tx, err := g.fetchTx(ctx, txid)
	if err != nil {
		if errors.Is(err, chain.ErrTxNotFound) {
			// A hashtx race with mempool eviction; nothing to do.
			g.log.Debug("Transaction vanished before fetch", "txid", txid, "source", source)
			return nil
		}
		return err
	}
	seenAt := g.now().UTC()
	for _, out := range tx.Outputs {
		if out.Address == "" {
			continue
		}
		intentID, ok := g.watch.lookup(out.Address)
		if !ok {
			continue
		}
		delta := ObservationDelta{
			TxID:          tx.TxID,
			Vout:          out.Vout,
			ValueSats:     out.ValueSats,
			Confirmations: tx.Confirmations,
			Source:        source,
			SeenAt:        seenAt,
		}
		if err := g.applyDelta(ctx, out.Address, intentID, delta); err != nil {
			g.log.Warn("Failed to apply observation", "txid", tx.TxID, "vout", out.Vout, "intent", intentID, "err", err)
		}
	}
	return nil
}

// fetchTx queries the primary backend and falls over to the indexer on
// transient failure.
func (g *Gateway) fetchTx(ctx context.Context, txid string) (*chain.Tx, error) {
	tx, err := g.primary.GetTransaction(ctx, txid)
	if err == nil || !errors.Is(err, chain.ErrUnavailable) || g.fallback == nil {
		return tx, err
	}
	g.log.Warn("Primary backend unavailable, using indexer", "txid", txid, "err", err)
	return g.fallback.GetTransaction(ctx, txid)
}

// applyDelta upserts the observation for one (txid, vout) and hands the
// owning intent to the state machine when the sighting is new or its
// confirmation count grew. Observation status never moves downward here;
// only the reorg path resets it.
func (g *Gateway) applyDelta(ctx context.Context, address, intentID string, delta ObservationDelta) error {
	addrRow, err := g.store.GetAddressByAddress(ctx, address)
	if err != nil {
		return err
	}
	intent, err := g.store.GetIntent(ctx, intentID)
	if err != nil {
		return err
	}
	if intent.Status.Terminal() {
		g.log.Debug("Ignoring observation for terminal intent", "intent", intentID, "status", intent.Status)
		return nil
	}

	confs := delta.Confirmations
	existing, err := g.store.GetObservation(ctx, delta.TxID, delta.Vout)
	switch {
	case err == nil:
		if existing.Confirmations >= confs && confs > 0 {
			return nil // stale poll result
		}
		if confs < existing.Confirmations {
			confs = existing.Confirmations
		}
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	status := storage.ObservationMempool
	if confs >= intent.RequiredConfs {
		status = storage.ObservationConfirmed
	}
	if existing != nil && existing.Status == storage.ObservationConfirmed {
		status = storage.ObservationConfirmed
	}

	obs := &storage.TxObservation{
		ID:              uuid.NewString(),
		TxID:            delta.TxID,
		Vout:            delta.Vout,
		ValueSats:       delta.ValueSats,
		Confirmations:   confs,
		AddressID:       addrRow.ID,
		ScriptPubKeyHex: addrRow.ScriptPubKeyHex,
		Status:          status,
		SeenAt:          delta.SeenAt,
		UpdatedAt:       g.now().UTC(),
	}
	created, err := g.store.UpsertObservation(ctx, obs)
	if err != nil {
		return err
	}
	observationsCounter.WithLabelValues(string(delta.Source)).Inc()

	grew := existing == nil || confs > existing.Confirmations
	if !created && !grew {
		return nil
	}
	return g.advanceIntent(ctx, intent, obs)
}

// reconcileIntent is the pull path for one intent: refresh the known
// transaction if there is an observation, otherwise query the backend by
// address. Reorgs are detected here.
func (g *Gateway) reconcileIntent(ctx context.Context, intent *storage.Intent, source Source) error {
	if intent.AddressID == "" {
		return nil
	}
	addrRow, err := g.store.GetAddress(ctx, intent.AddressID)
	if err != nil {
		return err
	}

	latest, err := g.store.LatestObservationForIntent(ctx, intent.ID)
	switch {
	case err == nil:
		return g.refreshObservation(ctx, intent, latest, source)
	case errors.Is(err, storage.ErrNotFound):
		return g.scanAddress(ctx, intent, addrRow, source)
	default:
		return err
	}
}

// refreshObservation re-fetches the observed transaction. A missing
// transaction while the intent is confirmed is the reorg signal.
func (g *Gateway) refreshObservation(ctx context.Context, intent *storage.Intent, obs *storage.TxObservation, source Source) error {
	tx, err := g.fetchTx(ctx, obs.TxID)
	if errors.Is(err, chain.ErrTxNotFound) {
		if intent.Status == storage.IntentConfirmed {
			return g.markReorged(ctx, intent)
		}
		g.log.Debug("Observed transaction not found yet", "txid", obs.TxID, "intent", intent.ID)
		return nil
	}
	if err != nil {
		return err
	}
	addrRow, err := g.store.GetAddress(ctx, intent.AddressID)
	if err != nil {
		return err
	}
	seenAt := g.now().UTC()
	for _, out := range tx.Outputs {
		if out.Address != addrRow.Address {
			continue
		}
		delta := ObservationDelta{
			TxID:          tx.TxID,
			Vout:          out.Vout,
			ValueSats:     out.ValueSats,
			Confirmations: tx.Confirmations,
			Source:        source,
			SeenAt:        seenAt,
		}
		if err := g.applyDelta(ctx, addrRow.Address, intent.ID, delta); err != nil {
			g.log.Warn("Failed to refresh observation", "txid", tx.TxID, "vout", out.Vout, "err", err)
		}
	}
	return nil
}

// scanAddress queries the backend address index for outputs the push path
// missed.
func (g *Gateway) scanAddress(ctx context.Context, intent *storage.Intent, addrRow *storage.DepositAddress, source Source) error {
	sightings, err := g.primary.AddressOutputs(ctx, addrRow.Address)
	if err != nil && errors.Is(err, chain.ErrUnavailable) && g.fallback != nil {
		g.log.Warn("Primary backend unavailable for address scan, using indexer", "address", addrRow.Address, "err", err)
		sightings, err = g.fallback.AddressOutputs(ctx, addrRow.Address)
	}
	if err != nil {
		return err
	}
	seenAt := g.now().UTC()
	for _, s := range sightings {
		delta := ObservationDelta{
			TxID:          s.TxID,
			Vout:          s.Vout,
			ValueSats:     s.ValueSats,
			Confirmations: s.Confirmations,
			Source:        source,
			SeenAt:        seenAt,
		}
		if err := g.applyDelta(ctx, addrRow.Address, intent.ID, delta); err != nil {
			g.log.Warn("Failed to apply scanned output", "txid", s.TxID, "vout", s.Vout, "err", err)
		}
	}
	return nil
}
