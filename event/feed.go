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

// Package event implements a typed one-to-many event feed.
package event

import "sync"

// Feed delivers values to a set of subscribed channels. Subscribers come and
// go at any time; a value is delivered to every channel subscribed at the
// moment Send picks up the subscriber list.
//
// The zero value is ready to use.
type Feed[T any] struct {
	mu   sync.Mutex
	subs []*feedSub[T]
}

// Subscribe adds a channel to the feed. Future sends are delivered on the
// channel until the subscription is unsubscribed.
//
// The channel should have buffer space: Send blocks on a full channel until
// the subscriber drains it or unsubscribes. Slow subscribers are never
// dropped.
func (f *Feed[T]) Subscribe(ch chan<- T) Subscription {
	sub := &feedSub[T]{
		feed: f,
		ch:   ch,
		quit: make(chan struct{}),
		err:  make(chan error, 1),
	}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub
}

// Send delivers value to every subscribed channel and returns the number of
// subscribers it reached. A subscriber that unsubscribes mid-send is skipped
// rather than blocked on.
func (f *Feed[T]) Send(value T) int {
	f.mu.Lock()
	subs := make([]*feedSub[T], len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	nsent := 0
	for _, sub := range subs {
		select {
		case sub.ch <- value:
			nsent++
		case <-sub.quit:
		}
	}
	return nsent
}

func (f *Feed[T]) remove(sub *feedSub[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.subs {
		if s == sub {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

type feedSub[T any] struct {
	feed *Feed[T]
	ch   chan<- T
	quit chan struct{}
	once sync.Once
	err  chan error
}

// Unsubscribe removes the channel from the feed and releases any Send blocked
// on it. Safe to call more than once.
func (sub *feedSub[T]) Unsubscribe() {
	sub.once.Do(func() {
		close(sub.quit)
		sub.feed.remove(sub)
		close(sub.err)
	})
}

func (sub *feedSub[T]) Err() <-chan error {
	return sub.err
}
