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
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/satgate/go-satgate/storage"
)

// pollConcurrency bounds the per-intent fan-out of one poll tick.
const pollConcurrency = 8

// reorgSafetyDepth is how many confirmations past an intent's requirement an
// observation must reach before the poll stops re-checking it. Reorgs deeper
// than this are not recovered automatically.
const reorgSafetyDepth = 6

// scheduler drives the two periodic tasks: the pending-payment poll and the
// expiry sweep. Ticks that begin while the previous run of the same task is
// still active are skipped, not queued.
type scheduler struct {
	gw *Gateway

	pollEvery   time.Duration
	expiryEvery time.Duration

	pollActive   atomic.Bool
	expiryActive atomic.Bool

	quit chan struct{}
	wg   sync.WaitGroup
}

func newScheduler(gw *Gateway) *scheduler {
	return &scheduler{
		gw:          gw,
		pollEvery:   gw.cfg.pollInterval,
		expiryEvery: gw.cfg.ExpirySweepInterval,
	}
}

func (s *scheduler) start() {
	s.quit = make(chan struct{})
	s.wg.Add(2)
	go s.loop("poll", s.pollEvery, s.pollTick)
	go s.loop("expiry", s.expiryEvery, s.expiryTick)
}

// stop signals both loops and waits for at most one in-flight tick.
func (s *scheduler) stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *scheduler) loop(task string, every time.Duration, tick func(context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.runGuarded(task, tick)
		case <-s.quit:
			return
		}
	}
}

// runGuarded executes one tick unless the previous run of the task is still
// active.
func (s *scheduler) runGuarded(task string, tick func(context.Context)) {
	guard := &s.pollActive
	if task == "expiry" {
		guard = &s.expiryActive
	}
	if !guard.CompareAndSwap(false, true) {
		s.gw.log.Warn("Skipping overlapping scheduler tick", "task", task)
		tickSkippedCounter.WithLabelValues(task).Inc()
		return
	}
	defer guard.Store(false)

	tickCounter.WithLabelValues(task).Inc()
	ctx, cancel := context.WithTimeout(context.Background(), s.tickBudget())
	defer cancel()
	tick(ctx)
}

// tickBudget bounds one tick to just under the shorter schedule so a stuck
// backend cannot pile up work.
func (s *scheduler) tickBudget() time.Duration {
	budget := s.pollEvery
	if s.expiryEvery < budget {
		budget = s.expiryEvery
	}
	if budget > time.Minute {
		budget = time.Minute
	}
	return budget * 9 / 10
}

// pollTick reconciles every live intent, one work unit per intent.
func (s *scheduler) pollTick(ctx context.Context) {
	intents, err := s.gw.store.ListIntentsByStatus(ctx, storage.IntentPending, storage.IntentProcessing, storage.IntentConfirmed)
	if err != nil {
		s.gw.log.Warn("Poll tick failed to list intents", "err", err)
		return
	}
	if len(intents) == 0 {
		return
	}
	var group errgroup.Group
	group.SetLimit(pollConcurrency)
	for _, intent := range intents {
		intent := intent
		group.Go(func() error {
			if intent.Status == storage.IntentConfirmed {
				settled, err := s.intentSettled(ctx, intent)
				if err != nil {
					s.gw.log.Warn("Failed to check intent settlement", "intent", intent.ID, "err", err)
					return nil
				}
				if settled {
					return nil
				}
			}
			if err := s.gw.reconcileIntent(ctx, intent, SourcePoll); err != nil {
				s.gw.log.Warn("Failed to reconcile intent", "intent", intent.ID, "err", err)
			}
			return nil
		})
	}
	group.Wait()
}

// intentSettled reports whether a confirmed intent's payment is buried deep
// enough that the poll no longer needs to re-check it. Keeps tick cost bounded
// as the confirmed set grows.
func (s *scheduler) intentSettled(ctx context.Context, intent *storage.Intent) (bool, error) {
	obs, err := s.gw.store.LatestObservationForIntent(ctx, intent.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return obs.Status == storage.ObservationConfirmed &&
		obs.Confirmations >= intent.RequiredConfs+reorgSafetyDepth, nil
}

// expiryTick expires pending intents past their deadline.
func (s *scheduler) expiryTick(ctx context.Context) {
	expired, err := s.gw.store.ListExpiredPending(ctx, s.gw.now().UTC())
	if err != nil {
		s.gw.log.Warn("Expiry sweep failed to list intents", "err", err)
		return
	}
	for _, intent := range expired {
		if err := s.gw.expireIntent(ctx, intent); err != nil {
			s.gw.log.Warn("Failed to expire intent", "intent", intent.ID, "err", err)
		}
	}
}
