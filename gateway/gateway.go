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

// Package gateway is the payment-observation engine: it creates payment
// intents, assigns descriptor-derived deposit addresses, watches the chain
// through a push (ZMQ+RPC) and a pull (poll/Esplora) path, drives the intent
// state machine and dispatches lifecycle events.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/satgate/go-satgate/chain"
	"github.com/satgate/go-satgate/descriptor"
	"github.com/satgate/go-satgate/event"
	"github.com/satgate/go-satgate/log"
	"github.com/satgate/go-satgate/storage"
	"github.com/satgate/go-satgate/token"
)

// metaKeyFingerprint pins the descriptor a storage backend belongs to.
const metaKeyFingerprint = "descriptor_fingerprint"

// zmqHandlerTimeout bounds the work done for one push notification.
const zmqHandlerTimeout = 30 * time.Second

// Gateway is the root handle. Construct with New, then StartWatcher to begin
// observing the chain; the intent verbs work with or without a running
// watcher, except ScanForPayments.
type Gateway struct {
	cfg   *Config
	desc  *descriptor.Descriptor
	codec *token.Codec
	store storage.Store

	primary  chain.Backend
	fallback chain.Backend // indexer, nil unless configured alongside RPC
	zmq      *chain.Subscriber

	dispatcher *Dispatcher
	watch      *watchSet
	sched      *scheduler
	log        log.Logger

	// now is the clock; swapped in tests.
	now func() time.Time

	mu      sync.Mutex
	running bool
}

// New validates the config and assembles a stopped gateway.
func New(cfg *Config, store storage.Store, logger log.Logger) (*Gateway, error) {
	cfg, err := cfg.Sanitize()
	if err != nil {
		return nil, err
	}
	desc, err := descriptor.Parse(cfg.Descriptor, cfg.Network)
	if err != nil {
		return nil, wrapError(KindFatal, err, "parse descriptor")
	}

	g := &Gateway{
		cfg:   cfg,
		desc:  desc,
		store: store,
		watch: newWatchSet(),
		log:   logger,
		now:   time.Now,
	}
	g.codec = token.NewCodecWithClock([]byte(cfg.Secret), func() time.Time { return g.now() })
	g.dispatcher = NewDispatcher(cfg.Callbacks, logger)
	g.sched = newScheduler(g)

	var indexer chain.Backend
	if cfg.IndexerURL != "" {
		indexer = chain.NewEsploraClient(cfg.IndexerURL, 0, logger)
	}
	if cfg.RPC != nil {
		g.primary = chain.NewRPCClient(*cfg.RPC, logger)
		g.fallback = indexer
		g.zmq = chain.NewSubscriber(cfg.ZMQ, logger)
	} else {
		g.primary = indexer
	}
	return g, nil
}

// Descriptor returns the parsed descriptor the gateway derives from.
func (g *Gateway) Descriptor() *descriptor.Descriptor { return g.desc }

// Running reports whether the watcher is active.
func (g *Gateway) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// SubscribeEvents registers a channel receiving every lifecycle event, in
// addition to the configured callbacks.
func (g *Gateway) SubscribeEvents(ch chan<- IntentEvent) event.Subscription {
	return g.dispatcher.Subscribe(ch)
}

// StartWatcher verifies the descriptor pin, loads the watched-address set,
// connects the push path and starts the scheduler. Start after StopWatcher
// is allowed.
func (g *Gateway) StartWatcher(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		return fmt.Errorf("watcher already running")
	}

	if err := g.checkFingerprint(ctx); err != nil {
		return err
	}
	if err := g.loadWatchSet(ctx); err != nil {
		return err
	}
	if g.zmq != nil {
		g.zmq.OnTxHash(g.handleTxHash)
		g.zmq.OnBlockHash(g.handleBlockHash)
		if err := g.zmq.Start(); err != nil {
			return wrapError(KindFatal, err, "connect ZMQ")
		}
	}
	g.sched.start()
	g.running = true
	g.log.Info("Watcher started", "network", g.cfg.Network, "backend", g.primary.Name(),
		"push", g.zmq != nil && g.cfg.ZMQ.Active(), "watched", g.watch.len())

	go g.prescan(g.cfg.GapLimit)
	return nil
}

// StopWatcher disconnects the push path, stops the scheduler, waits for
// queued events and clears the watched set.
func (g *Gateway) StopWatcher() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	g.mu.Unlock()

	if g.zmq != nil {
		g.zmq.Stop()
	}
	g.sched.stop()
	g.dispatcher.Wait()
	g.watch.clear()
	watchedAddressesGauge.Set(0)
	g.log.Info("Watcher stopped")
}

// checkFingerprint pins the descriptor fingerprint in system metadata so a
// database cannot silently be reused against a different key tree.
func (g *Gateway) checkFingerprint(ctx context.Context) error {
	fp := g.desc.Fingerprint()
	stored, err := g.store.GetMeta(ctx, metaKeyFingerprint)
	if errors.Is(err, storage.ErrNotFound) {
		if err := g.store.PutMeta(ctx, metaKeyFingerprint, fp); err != nil {
			return wrapError(KindTransient, err, "pin descriptor fingerprint")
		}
		return nil
	}
	if err != nil {
		return wrapError(KindTransient, err, "read descriptor fingerprint")
	}
	if stored != fp {
		return newError(KindFatal,
			"storage belongs to a different descriptor (stored fingerprint %s, ours %s)", stored, fp)
	}
	return nil
}

// loadWatchSet rebuilds the in-memory address map from every assigned address
// whose intent is still live.
func (g *Gateway) loadWatchSet(ctx context.Context) error {
	assigned, err := g.store.ListAssigned(ctx)
	if err != nil {
		return wrapError(KindTransient, err, "list assigned addresses")
	}
	g.watch.clear()
	for _, addr := range assigned {
		intent, err := g.store.GetIntent(ctx, addr.IntentID)
		if err != nil {
			g.log.Warn("Assigned address points at missing intent", "address", addr.Address, "intent", addr.IntentID)
			continue
		}
		if intent.Status.Terminal() || intent.Status == storage.IntentConfirmed {
			continue
		}
		g.watch.add(addr.Address, intent.ID)
	}
	watchedAddressesGauge.Set(float64(g.watch.len()))
	return nil
}

// prescan derives gapLimit addresses past the highest known index and checks
// them for activity the database does not know about. A hit means the
// descriptor was used elsewhere; it is logged for the operator, not adopted.
func (g *Gateway) prescan(gapLimit int) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start, err := g.store.NextDerivationIndex(ctx)
	if err != nil {
		g.log.Warn("Prescan skipped, cannot read derivation index", "err", err)
		return
	}
	for i := 0; i < gapLimit; i++ {
		if !g.Running() {
			return
		}
		index := start + uint32(i)
		deriv, err := g.desc.Derive(index)
		if err != nil {
			g.log.Warn("Prescan derivation failed", "index", index, "err", err)
			continue
		}
		sightings, err := g.primary.AddressOutputs(ctx, deriv.Address)
		if err != nil {
			g.log.Debug("Prescan lookup failed", "index", index, "err", err)
			return
		}
		if len(sightings) > 0 {
			g.log.Warn("Unused address ahead of the gap has chain activity",
				"index", index, "address", deriv.Address, "outputs", len(sightings))
		}
	}
}

// handleTxHash is the hashtx push handler, invoked serially by the ZMQ
// dispatcher.
func (g *Gateway) handleTxHash(txid string) {
	if g.watch.len() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), zmqHandlerTimeout)
	defer cancel()
	if err := g.processTx(ctx, txid, SourceZMQ); err != nil {
		g.log.Warn("Push-path reconciliation failed", "txid", txid, "err", err)
	}
}

// handleBlockHash refreshes confirmation counts for every processing intent
// when a block connects, so confirmations advance without waiting for the
// next poll.
func (g *Gateway) handleBlockHash(hash string) {
	ctx, cancel := context.WithTimeout(context.Background(), zmqHandlerTimeout)
	defer cancel()

	g.log.Debug("Block connected", "hash", hash)
	intents, err := g.store.ListIntentsByStatus(ctx, storage.IntentProcessing)
	if err != nil {
		g.log.Warn("Block handler failed to list intents", "err", err)
		return
	}
	for _, intent := range intents {
		if err := g.reconcileIntent(ctx, intent, SourceZMQ); err != nil {
			g.log.Warn("Block handler failed to reconcile intent", "intent", intent.ID, "err", err)
		}
	}
}

// Healthy reports whether storage and the chain backend answer.
func (g *Gateway) Healthy(ctx context.Context) error {
	if err := g.store.Ping(ctx); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := g.primary.Ping(ctx); err != nil {
		if g.fallback == nil {
			return fmt.Errorf("backend: %w", err)
		}
		if err := g.fallback.Ping(ctx); err != nil {
			return fmt.Errorf("backend: %w", err)
		}
	}
	return nil
}
