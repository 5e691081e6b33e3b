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

import "sync"

// watchSet is the in-memory address -> intent map the reconciler matches
// transaction outputs against. The lock is held for map operations only,
// never across I/O.
type watchSet struct {
	mu     sync.RWMutex
	byAddr map[string]string
}

func newWatchSet() *watchSet {
	return &watchSet{byAddr: make(map[string]string)}
}

func (w *watchSet) add(address, intentID string) {
	w.mu.Lock()
	w.byAddr[address] = intentID
	w.mu.Unlock()
}

func (w *watchSet) remove(address string) {
	w.mu.Lock()
	delete(w.byAddr, address)
	w.mu.Unlock()
}

// lookup returns the intent watching the address, if any.
func (w *watchSet) lookup(address string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	id, ok := w.byAddr[address]
	return id, ok
}

func (w *watchSet) len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.byAddr)
}

func (w *watchSet) clear() {
	w.mu.Lock()
	w.byAddr = make(map[string]string)
	w.mu.Unlock()
}
