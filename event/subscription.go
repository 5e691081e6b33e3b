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

// Subscription represents a stream of events. The carrier of the events is
// typically a channel, but isn't part of the interface.
//
// Subscriptions can fail while established. Failures are reported through an
// error channel. It receives a value if the subscription ends due to an error.
// Only one value will ever be sent.
//
// The error channel is closed when the subscription ends successfully (i.e.
// when the source of events is shut down). It is also closed when Unsubscribe
// is called.
//
// The Unsubscribe method cancels the sending of events. You must call
// Unsubscribe in all cases to ensure that resources related to the
// subscription are released. It can be called any number of times.
type Subscription interface {
	Err() <-chan error // returns the error channel
	Unsubscribe()      // cancels sending of events, closing the error channel
}
