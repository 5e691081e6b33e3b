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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satgate/go-satgate/chain"
	"github.com/satgate/go-satgate/storage"
)

func TestOverlappingTickIsSkipped(t *testing.T) {
	g, _, _, _ := newTestGateway(t)

	started := make(chan struct{})
	release := make(chan struct{})
	slow := func(context.Context) {
		close(started)
		<-release
	}

	firstDone := make(chan struct{})
	go func() {
		g.sched.runGuarded("poll", slow)
		close(firstDone)
	}()
	<-started

	// While the first tick is in flight, an overlapping one must return
	// without running.
	ran := false
	g.sched.runGuarded("poll", func(context.Context) { ran = true })
	assert.False(t, ran, "overlapping tick must be skipped, not queued")

	// The expiry guard is independent of the poll guard.
	g.sched.runGuarded("expiry", func(context.Context) { ran = true })
	assert.True(t, ran, "expiry tick runs while a poll tick is in flight")

	close(release)
	select {
	case <-firstDone:
	case <-time.After(5 * time.Second):
		t.Fatal("blocked tick did not finish")
	}

	// With the first tick finished, the guard is free again.
	ran = false
	g.sched.runGuarded("poll", func(context.Context) { ran = true })
	assert.True(t, ran, "tick runs once the previous one has finished")
}

func TestSettledIntentsLeaveThePoll(t *testing.T) {
	g, fb, rec, _ := newTestGateway(t)
	ctx := context.Background()

	intent, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: 50000, RequiredConfs: 1})
	require.NoError(t, err)
	details, err := g.EnsureAssigned(ctx, intent.ID)
	require.NoError(t, err)

	fb.addTx(&chain.Tx{TxID: "t1", Confirmations: 1, Outputs: []chain.TxOut{
		{Vout: 0, Address: details.Address, ValueSats: 50000},
	}})
	require.NoError(t, g.processTx(ctx, "t1", SourceZMQ))
	g.dispatcher.Wait()

	// Bury the payment past the reorg window, then let the poll record it.
	fb.setConfirmations("t1", intent.RequiredConfs+reorgSafetyDepth)
	g.sched.pollTick(ctx)
	g.dispatcher.Wait()

	obs, err := g.store.GetObservation(ctx, "t1", 0)
	require.NoError(t, err)
	require.GreaterOrEqual(t, obs.Confirmations, intent.RequiredConfs+reorgSafetyDepth)

	// The transaction vanishing from the backend no longer matters: the
	// settled intent is not re-checked, so no reorg demotion fires.
	fb.dropTx("t1")
	g.sched.pollTick(ctx)
	g.dispatcher.Wait()

	got, err := g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentConfirmed, got.Status)
	assert.Equal(t, 0, rec.count(EventReorg))
}

func TestShallowConfirmationsStayOnThePoll(t *testing.T) {
	g, fb, rec, _ := newTestGateway(t)
	ctx := context.Background()

	intent, err := g.CreateIntent(ctx, CreateIntentParams{AmountSats: 50000, RequiredConfs: 1})
	require.NoError(t, err)
	details, err := g.EnsureAssigned(ctx, intent.ID)
	require.NoError(t, err)

	fb.addTx(&chain.Tx{TxID: "t1", Confirmations: 2, Outputs: []chain.TxOut{
		{Vout: 0, Address: details.Address, ValueSats: 50000},
	}})
	require.NoError(t, g.processTx(ctx, "t1", SourceZMQ))
	g.dispatcher.Wait()

	got, err := g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	require.Equal(t, storage.IntentConfirmed, got.Status)

	// Two confirmations are still inside the reorg window, so the poll keeps
	// re-checking and notices the disappearance.
	fb.dropTx("t1")
	g.sched.pollTick(ctx)
	g.dispatcher.Wait()

	got, err = g.GetIntent(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.IntentProcessing, got.Status)
	assert.Equal(t, 1, rec.count(EventReorg))
}
