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
	"sync"
	"time"

	"github.com/satgate/go-satgate/event"
	"github.com/satgate/go-satgate/log"
	"github.com/satgate/go-satgate/storage"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventIntentCreated EventType = "onIntentCreated"
	EventProcessing    EventType = "onProcessing"
	EventConfirmed     EventType = "onConfirmed"
	EventExpired       EventType = "onExpired"
	EventReorg         EventType = "onReorg"
)

// IntentEvent is one lifecycle event. The intent is a snapshot of the row
// after the transition committed; the observation is set for events driven by
// a chain sighting.
type IntentEvent struct {
	Type        EventType
	Intent      *storage.Intent
	Observation *storage.TxObservation
	At          time.Time
}

// Callbacks are the merchant-side hooks. Every field is optional; errors are
// logged and never retried, and must not affect the committed transition.
type Callbacks struct {
	OnIntentCreated func(IntentEvent) error
	OnProcessing    func(IntentEvent) error
	OnConfirmed     func(IntentEvent) error
	OnExpired       func(IntentEvent) error
	OnReorg         func(IntentEvent) error
}

func (c Callbacks) callback(typ EventType) func(IntentEvent) error {
	switch typ {
	case EventIntentCreated:
		return c.OnIntentCreated
	case EventProcessing:
		return c.OnProcessing
	case EventConfirmed:
		return c.OnConfirmed
	case EventExpired:
		return c.OnExpired
	case EventReorg:
		return c.OnReorg
	default:
		return nil
	}
}

// Dispatcher delivers intent events to the configured callbacks and to feed
// subscribers. Delivery is serialized per intent so a downstream side-effect
// chain observes ordered transitions; distinct intents are delivered
// concurrently.
type Dispatcher struct {
	callbacks Callbacks
	feed      event.Feed[IntentEvent]
	log       log.Logger

	mu     sync.Mutex
	queues map[string][]IntentEvent // intentID -> pending events
	active map[string]bool          // intentID has a worker running
	wg     sync.WaitGroup
	closed bool
}

// NewDispatcher returns a dispatcher delivering to the given callbacks.
func NewDispatcher(callbacks Callbacks, logger log.Logger) *Dispatcher {
	return &Dispatcher{
		callbacks: callbacks,
		log:       logger,
		queues:    make(map[string][]IntentEvent),
		active:    make(map[string]bool),
	}
}

// Subscribe registers a channel receiving every dispatched event. The
// subscription must be unsubscribed when done.
func (d *Dispatcher) Subscribe(ch chan<- IntentEvent) event.Subscription {
	return d.feed.Subscribe(ch)
}

// Dispatch queues the event for delivery. It never blocks on callbacks.
func (d *Dispatcher) Dispatch(ev IntentEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.log.Warn("Dropping event after dispatcher close", "type", ev.Type, "intent", ev.Intent.ID)
		return
	}
	id := ev.Intent.ID
	d.queues[id] = append(d.queues[id], ev)
	if !d.active[id] {
		d.active[id] = true
		d.wg.Add(1)
		go d.run(id)
	}
	d.mu.Unlock()
}

// run drains the queue of one intent and exits when it is empty.
func (d *Dispatcher) run(id string) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		queue := d.queues[id]
		if len(queue) == 0 {
			delete(d.queues, id)
			d.active[id] = false
			delete(d.active, id)
			d.mu.Unlock()
			return
		}
		ev := queue[0]
		d.queues[id] = queue[1:]
		d.mu.Unlock()

		d.deliver(ev)
	}
}

func (d *Dispatcher) deliver(ev IntentEvent) {
	eventsDispatchedCounter.WithLabelValues(string(ev.Type)).Inc()
	d.feed.Send(ev)
	cb := d.callbacks.callback(ev.Type)
	if cb == nil {
		return
	}
	if err := cb(ev); err != nil {
		d.log.Warn("Event callback failed", "type", ev.Type, "intent", ev.Intent.ID, "err", err)
	}
}

// Wait blocks until every queued event has been delivered. Unlike Close it
// leaves the dispatcher usable, so the watcher can restart.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close waits for all queued events to be delivered. Further Dispatch calls
// are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
