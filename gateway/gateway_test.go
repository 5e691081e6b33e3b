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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satgate/go-satgate/chain"
	"github.com/satgate/go-satgate/log"
	"github.com/satgate/go-satgate/storage"
)

// BIP32 test vector 1 master public key.
const testXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"

// fakeClock is a settable time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0).UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// eventRecorder counts callback invocations per event type.
type eventRecorder struct {
	mu     sync.Mutex
	order  []EventType
	counts map[EventType]int
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{counts: make(map[EventType]int)}
}

func (r *eventRecorder) record(ev IntentEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, ev.Type)
	r.counts[ev.Type]++
	return nil
}

func (r *eventRecorder) callbacks() Callbacks {
	return Callbacks{
		OnIntentCreated: r.record,
		OnProcessing:    r.record,
		OnConfirmed:     r.record,
		OnExpired:       r.record,
		OnReorg:         r.record,
	}
}

func (r *eventRecorder) count(typ EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[typ]
}

func (r *eventRecorder) sequence() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventType(nil), r.order...)
}

// fakeBackend is an in-memory chain.Backend with mutable contents.
type fakeBackend struct {
	mu        sync.Mutex
	txs       map[string]*chain.Tx
	sightings map[string][]chain.OutputSighting
	feeRate   int64
	tip       int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		txs:       make(map[string]*chain.Tx),
		sightings: make(map[string][]chain.OutputSighting),
		feeRate:   21,
		tip:       850000,
	}
}

func (f *fakeBackend) addTx(tx *chain.Tx) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[tx.TxID] = tx
}

func (f *fakeBackend) dropTx(txid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.txs, txid)
}

func (f *fakeBackend) setConfirmations(txid string, confs int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txs[txid].Confirmations = confs
}

func (f *fakeBackend) addSighting(address string, s chain.OutputSighting) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sightings[address] = append(f.sightings[address], s)
}

func (f *fakeBackend) GetTransaction(ctx context.Context, txid string) (*chain.Tx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[txid]
	if !ok {
		return nil, chain.ErrTxNotFound
	}
	cp := *tx
	cp.Outputs = append([]chain.TxOut(nil), tx.Outputs...)
	return &cp, nil
}

func (f *fakeBackend) TipHeight(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tip, nil
}

func (f *fakeBackend) AddressOutputs(ctx context.Context, address string) ([]chain.OutputSighting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chain.OutputSighting(nil), f.sightings[address]...), nil
}

func (f *fakeBackend) EstimateFee(ctx context.Context, confTarget int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.feeRate, nil
}

func (f *fakeBackend) SendRawTransaction(ctx context.Context, rawHex string) (string, error) {
	return "broadcast", nil
}

func (f *fakeBackend) Ping(ctx context.Context) error { return nil }

func (f *fakeBackend) Name() string { return "fake" }

// newTestGateway wires a gateway onto an in-memory store, a fake backend and a
// virtual clock.
func newTestGateway(t *testing.T) (*Gateway, *fakeBackend, *eventRecorder, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	rec := newEventRecorder()
	fb := newFakeBackend()

	cfg := &Config{
		BaseURL:    "https://shop.example.com",
		Secret:     "0123456789abcdef0123456789abcdef",
		Descriptor: "wpkh(" + testXpub + "/0/*)",
		IndexerURL: "http://localhost:0",
		Callbacks:  rec.callbacks(),
	}
	g, err := New(cfg, storage.NewMemDB(), log.New())
	require.NoError(t, err)
	g.primary = fb
	g.fallback = nil
	g.now = clock.Now
	return g, fb, rec, clock
}

// newAssignedIntent creates an intent for the amount and assigns it an address.
func newAssignedIntent(t *testing.T, g *Gateway, amount int64) (*storage.Intent, string) {
	t.Helper()
	ctx := context.Background()
	intent, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: amount})
	require.NoError(t, err)
	details, err := g.EnsureAssigned(ctx, intent.ID)
	require.NoError(t, err)
	return intent, details.Address
}

func TestDirectConfirmation(t *testing.T) {
	g, fb, rec, _ := newTestGateway(t)
	ctx := context.Background()
	intent, address := newAssignedIntent(t, g, 50000)

	fb.addTx(&chain.Tx{TxID: "t1", Confirmations: 1, Outputs: []chain.TxOut{
		{Vout: 0, Address: address, ValueSats: 50000},
	}})
	require.NoError(t, g.processTx(ctx, "t1", SourceZMQ))
	g.dispatcher.Wait()

	got, err := g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)

	status, err := g.GetStatus(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, "confirmed", status.Status)
	assert.Equal(t, "t1", status.TxID)
	assert.Equal(t, int64(1), status.Confs)

	assert.Equal(t, 1, rec.count(EventIntentCreated))
	assert.Equal(t, 1, rec.count(EventConfirmed))
	assert.Equal(t, 0, rec.count(EventProcessing), "a sighting already past the bar skips processing")

	_, watched := g.watch.lookup(address)
	assert.False(t, watched, "confirmed addresses leave the watched set")
}

func TestMempoolThenConfirm(t *testing.T) {
	g, fb, rec, _ := newTestGateway(t)
	ctx := context.Background()
	intent, address := newAssignedIntent(t, g, 50000)

	fb.addTx(&chain.Tx{TxID: "t1", Confirmations: 0, Outputs: []chain.TxOut{
		{Vout: 0, Address: address, ValueSats: 50000},
	}})
	require.NoError(t, g.processTx(ctx, "t1", SourceZMQ))
	g.dispatcher.Wait()

	got, err := g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentProcessing, got.Status)

	fb.setConfirmations("t1", 1)
	require.NoError(t, g.processTx(ctx, "t1", SourcePoll))
	// A replayed stale notification must change nothing.
	require.NoError(t, g.processTx(ctx, "t1", SourcePoll))
	g.dispatcher.Wait()

	got, err = g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentConfirmed, got.Status)

	assert.Equal(t,
		[]EventType{EventIntentCreated, EventProcessing, EventConfirmed},
		rec.sequence(), "each edge fires exactly once, in order")
}

func TestExpiry(t *testing.T) {
	g, _, rec, clock := newTestGateway(t)
	ctx := context.Background()

	intent, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: 50000, ExpiresIn: time.Minute})
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	g.sched.expiryTick(ctx)
	g.sched.expiryTick(ctx) // replay of the sweep must not re-fire
	g.dispatcher.Wait()

	got, err := g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentExpired, got.Status)
	assert.Equal(t, 1, rec.count(EventExpired))

	_, err = g.EnsureAssigned(ctx, intent.ID)
	assert.Equal(t, KindInvalidState, KindOf(err))
	_, err = g.IssueToken(ctx, intent.ID, time.Hour)
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestReorgDemotesAndRecovers(t *testing.T) {
	g, fb, rec, _ := newTestGateway(t)
	ctx := context.Background()
	intent, address := newAssignedIntent(t, g, 50000)

	fb.addTx(&chain.Tx{TxID: "t1", Confirmations: 1, Outputs: []chain.TxOut{
		{Vout: 0, Address: address, ValueSats: 50000},
	}})
	require.NoError(t, g.processTx(ctx, "t1", SourceZMQ))
	g.dispatcher.Wait()

	// The confirmed transaction vanishes from the chain.
	fb.dropTx("t1")
	got, err := g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	require.NoError(t, g.reconcileIntent(ctx, got, SourcePoll))
	g.dispatcher.Wait()

	got, err = g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentProcessing, got.Status)
	assert.Nil(t, got.ConfirmedAt, "demotion clears the confirmation stamp")
	assert.Equal(t, 1, rec.count(EventReorg))

	obs, err := g.store.GetObservation(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Equal(t, storage.ObservationMempool, obs.Status)
	assert.Equal(t, int64(0), obs.Confirmations)

	_, watched := g.watch.lookup(address)
	assert.True(t, watched, "demoted intents go back on watch")

	// The transaction reappears on the winning branch.
	fb.addTx(&chain.Tx{TxID: "t1", Confirmations: 2, Outputs: []chain.TxOut{
		{Vout: 0, Address: address, ValueSats: 50000},
	}})
	require.NoError(t, g.reconcileIntent(ctx, got, SourcePoll))
	g.dispatcher.Wait()

	got, err = g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentConfirmed, got.Status)
	require.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, 2, rec.count(EventConfirmed), "re-confirmation after a reorg is a fresh event")
}

func TestUnderpaymentStaysProcessing(t *testing.T) {
	g, fb, rec, _ := newTestGateway(t)
	ctx := context.Background()
	intent, address := newAssignedIntent(t, g, 50000)

	fb.addTx(&chain.Tx{TxID: "t1", Confirmations: 6, Outputs: []chain.TxOut{
		{Vout: 0, Address: address, ValueSats: 40000},
	}})
	require.NoError(t, g.processTx(ctx, "t1", SourceZMQ))

	fb.addTx(&chain.Tx{TxID: "t2", Confirmations: 6, Outputs: []chain.TxOut{
		{Vout: 0, Address: address, ValueSats: 10000},
	}})
	require.NoError(t, g.processTx(ctx, "t2", SourceZMQ))
	g.dispatcher.Wait()

	got, err := g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentProcessing, got.Status,
		"independent transactions do not combine under firstOutputMeets")
	assert.Equal(t, 0, rec.count(EventConfirmed))

	obs, err := g.store.ListObservationsForIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Len(t, obs, 2, "both sightings are recorded")
}

func TestSumOfOutputsMatch(t *testing.T) {
	g, fb, _, _ := newTestGateway(t)
	g.cfg.MatchMode = MatchSumOfOutputs
	ctx := context.Background()
	intent, address := newAssignedIntent(t, g, 50000)

	fb.addTx(&chain.Tx{TxID: "t1", Confirmations: 1, Outputs: []chain.TxOut{
		{Vout: 0, Address: address, ValueSats: 30000},
		{Vout: 1, Address: address, ValueSats: 20000},
	}})
	require.NoError(t, g.processTx(ctx, "t1", SourceZMQ))
	g.dispatcher.Wait()

	got, err := g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentConfirmed, got.Status,
		"outputs of one transaction sum together")
}

func TestMagicLinkRedemption(t *testing.T) {
	g, _, _, clock := newTestGateway(t)
	ctx := context.Background()
	intent, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: 50000})
	require.NoError(t, err)

	link, err := g.IssueToken(ctx, intent.ID, time.Hour)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "https://shop.example.com/api/pay/pay/"))

	id, err := g.RedeemToken(ctx, link.Token)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, id)

	row, err := g.store.GetToken(ctx, link.Token)
	require.NoError(t, err)
	require.NotNil(t, row.ConsumedAt)
	first := *row.ConsumedAt

	// Under the default reuse policy a replay before expiry succeeds without
	// touching the consumption stamp.
	clock.Advance(10 * time.Minute)
	_, err = g.RedeemToken(ctx, link.Token)
	require.NoError(t, err)
	row, err = g.store.GetToken(ctx, link.Token)
	require.NoError(t, err)
	assert.True(t, row.ConsumedAt.Equal(first))

	clock.Advance(time.Hour)
	_, err = g.RedeemToken(ctx, link.Token)
	assert.Equal(t, KindExpired, KindOf(err))
}

func TestMagicLinkSingleUse(t *testing.T) {
	g, _, _, _ := newTestGateway(t)
	g.cfg.TokenReuse = ReuseSingleUse
	ctx := context.Background()
	intent, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: 50000})
	require.NoError(t, err)

	link, err := g.IssueToken(ctx, intent.ID, time.Hour)
	require.NoError(t, err)
	_, err = g.RedeemToken(ctx, link.Token)
	require.NoError(t, err)
	_, err = g.RedeemToken(ctx, link.Token)
	assert.Equal(t, KindExpired, KindOf(err))
}

func TestMagicLinkRejections(t *testing.T) {
	g, _, _, _ := newTestGateway(t)
	ctx := context.Background()
	intent, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: 50000})
	require.NoError(t, err)

	link, err := g.IssueToken(ctx, intent.ID, time.Hour)
	require.NoError(t, err)

	_, err = g.RedeemToken(ctx, "garbage")
	assert.Equal(t, KindAuth, KindOf(err))

	tampered := "x" + link.Token[1:]
	_, err = g.RedeemToken(ctx, tampered)
	assert.Equal(t, KindAuth, KindOf(err))

	// A well-signed token without a stored row means the issuance was never
	// persisted.
	orphan, _, err := g.codec.Issue(intent.ID, time.Hour)
	require.NoError(t, err)
	_, err = g.RedeemToken(ctx, orphan)
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestAssignmentIsGapFreeAndIdempotent(t *testing.T) {
	g, _, _, _ := newTestGateway(t)
	ctx := context.Background()

	var addresses []string
	for i := 0; i < 3; i++ {
		_, address := newAssignedIntent(t, g, 1000)
		addresses = append(addresses, address)
	}
	for i, address := range addresses {
		row, err := g.store.GetAddressByAddress(ctx, address)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), row.DerivationIndex, "assigned indices are a gap-free prefix")
	}

	intent, address := newAssignedIntent(t, g, 1000)
	again, err := g.EnsureAssigned(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, address, again.Address, "re-assignment returns the existing address")
}

// contestedStore hands the address picked by an assignment to a rival intent
// just before delegating, so the caller's first attempt loses the race.
type contestedStore struct {
	storage.Store
	mu    sync.Mutex
	done  bool
	rival string
}

func (s *contestedStore) AssignAddressToIntent(ctx context.Context, addressID, intentID string, at time.Time) error {
	s.mu.Lock()
	steal := !s.done
	s.done = true
	s.mu.Unlock()
	if steal {
		if err := s.Store.AssignAddressToIntent(ctx, addressID, s.rival, at); err != nil {
			return err
		}
	}
	return s.Store.AssignAddressToIntent(ctx, addressID, intentID, at)
}

func TestAssignmentRetriesLostRace(t *testing.T) {
	g, _, _, _ := newTestGateway(t)
	ctx := context.Background()

	rival, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: 1000})
	require.NoError(t, err)
	intent, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: 2000})
	require.NoError(t, err)

	g.store = &contestedStore{Store: g.store, rival: rival.ID}

	// Losing the first address to the rival must fall through to the next
	// one, not surface a conflict to the caller.
	details, err := g.EnsureAssigned(ctx, intent.ID)
	require.NoError(t, err)

	rivalRow, err := g.GetIntent(ctx, rival.ID)
	require.NoError(t, err)
	require.NotEmpty(t, rivalRow.AddressID)
	rivalAddr, err := g.store.GetAddress(ctx, rivalRow.AddressID)
	require.NoError(t, err)
	assert.NotEqual(t, rivalAddr.Address, details.Address)

	ours, err := g.store.GetAddressByAddress(ctx, details.Address)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, ours.IntentID)
}

func TestCustomerResolution(t *testing.T) {
	g, _, _, _ := newTestGateway(t)
	ctx := context.Background()

	a, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: 1000, Email: "a@example.com"})
	require.NoError(t, err)
	b, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: 2000, Email: "a@example.com"})
	require.NoError(t, err)
	require.NotEmpty(t, a.CustomerID)
	assert.Equal(t, a.CustomerID, b.CustomerID, "same e-mail resolves to one customer")
}

func TestScanForPayments(t *testing.T) {
	g, fb, _, _ := newTestGateway(t)
	ctx := context.Background()
	intent, address := newAssignedIntent(t, g, 50000)

	err := g.ScanForPayments(ctx, intent.ID)
	assert.Equal(t, KindTransient, KindOf(err), "scan requires a running watcher")

	g.mu.Lock()
	g.running = true
	g.mu.Unlock()

	// A payment that arrived while the watcher was down is picked up by the
	// address scan.
	fb.addSighting(address, chain.OutputSighting{TxID: "t1", Vout: 0, ValueSats: 50000, Confirmations: 2})
	require.NoError(t, g.ScanForPayments(ctx, intent.ID))
	g.dispatcher.Wait()

	got, err := g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentConfirmed, got.Status)
}

func TestPollTickReconciles(t *testing.T) {
	g, fb, _, _ := newTestGateway(t)
	ctx := context.Background()
	intent, address := newAssignedIntent(t, g, 50000)

	fb.addTx(&chain.Tx{TxID: "t1", Confirmations: 0, Outputs: []chain.TxOut{
		{Vout: 0, Address: address, ValueSats: 50000},
	}})
	require.NoError(t, g.processTx(ctx, "t1", SourceZMQ))

	fb.setConfirmations("t1", 3)
	g.sched.pollTick(ctx)
	g.dispatcher.Wait()

	got, err := g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentConfirmed, got.Status)
}

func TestFingerprintPin(t *testing.T) {
	g, _, _, _ := newTestGateway(t)
	ctx := context.Background()

	require.NoError(t, g.checkFingerprint(ctx))
	require.NoError(t, g.checkFingerprint(ctx), "same descriptor passes the pin")

	require.NoError(t, g.store.PutMeta(ctx, metaKeyFingerprint, "somebody-else"))
	err := g.checkFingerprint(ctx)
	assert.Equal(t, KindFatal, KindOf(err))
}

func TestPaymentsToUnwatchedAddressesIgnored(t *testing.T) {
	g, fb, rec, _ := newTestGateway(t)
	ctx := context.Background()
	_, _ = newAssignedIntent(t, g, 50000)

	fb.addTx(&chain.Tx{TxID: "t1", Confirmations: 1, Outputs: []chain.TxOut{
		{Vout: 0, Address: "bc1qsomebodyelse", ValueSats: 50000},
	}})
	require.NoError(t, g.processTx(ctx, "t1", SourceZMQ))
	g.dispatcher.Wait()

	assert.Equal(t, 0, rec.count(EventProcessing))
	assert.Equal(t, 0, rec.count(EventConfirmed))
}
