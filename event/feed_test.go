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

package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedDeliversToAllSubscribers(t *testing.T) {
	var feed Feed[int]

	a := make(chan int, 1)
	b := make(chan int, 1)
	subA := feed.Subscribe(a)
	subB := feed.Subscribe(b)
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	assert.Equal(t, 2, feed.Send(7))
	assert.Equal(t, 7, <-a)
	assert.Equal(t, 7, <-b)

	subB.Unsubscribe()
	assert.Equal(t, 1, feed.Send(8))
	assert.Equal(t, 8, <-a)
	select {
	case v := <-b:
		t.Fatalf("unsubscribed channel received %d", v)
	default:
	}
}

func TestFeedZeroValueAndRepeatUnsubscribe(t *testing.T) {
	var feed Feed[string]
	assert.Equal(t, 0, feed.Send("nobody listening"))

	ch := make(chan string, 1)
	sub := feed.Subscribe(ch)
	sub.Unsubscribe()
	sub.Unsubscribe()

	_, open := <-sub.Err()
	assert.False(t, open, "error channel closes on unsubscribe")
}

func TestFeedUnsubscribeReleasesBlockedSend(t *testing.T) {
	var feed Feed[int]

	blocked := make(chan int) // no buffer, nobody reading
	sub := feed.Subscribe(blocked)

	done := make(chan int, 1)
	go func() { done <- feed.Send(1) }()

	// The send is parked on the full channel; unsubscribing must release it.
	time.Sleep(10 * time.Millisecond)
	sub.Unsubscribe()

	select {
	case n := <-done:
		require.Equal(t, 0, n)
	case <-time.After(5 * time.Second):
		t.Fatal("Send did not return after Unsubscribe")
	}
}
