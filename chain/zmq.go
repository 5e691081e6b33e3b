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

package chain

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/gozmq"

	"github.com/satgate/go-satgate/log"
)

// ZMQ topics published by bitcoind.
const (
	TopicHashTx    = "hashtx"
	TopicHashBlock = "hashblock"
	TopicRawTx     = "rawtx"
	TopicRawBlock  = "rawblock"
	TopicSequence  = "sequence"
)

const (
	// zmqReadTimeout bounds a single Receive so the reader can notice a
	// shutdown request.
	zmqReadTimeout = time.Second

	// zmqDrainTimeout bounds queue draining on Stop.
	zmqDrainTimeout = 5 * time.Second
)

// ZMQConfig names the notification ports of the node. A zero port disables
// that topic; with all ports zero the subscriber is inert and the watcher
// degrades to polling.
type ZMQConfig struct {
	Host          string
	HashTxPort    int
	HashBlockPort int
	RawTxPort     int
	RawBlockPort  int
	SequencePort  int
}

// Active reports whether any topic is configured.
func (c ZMQConfig) Active() bool {
	return c.HashTxPort != 0 || c.HashBlockPort != 0 || c.RawTxPort != 0 ||
		c.RawBlockPort != 0 || c.SequencePort != 0
}

func (c ZMQConfig) endpoints() map[string]int {
	eps := make(map[string]int)
	for topic, port := range map[string]int{
		TopicHashTx:    c.HashTxPort,
		TopicHashBlock: c.HashBlockPort,
		TopicRawTx:     c.RawTxPort,
		TopicRawBlock:  c.RawBlockPort,
		TopicSequence:  c.SequencePort,
	} {
		if port != 0 {
			eps[topic] = port
		}
	}
	return eps
}

// Notification is one decoded ZMQ frame.
type Notification struct {
	Topic string
	Hash  string // display-order hash for hashtx/hashblock/sequence
	Seq   uint32 // per-topic little-endian sequence counter
	Raw   []byte // payload for rawtx/rawblock
}

// Subscriber listens on the node's ZMQ notification sockets. One connection
// is opened per configured topic; all handlers run on a single dispatch
// goroutine so a slow handler queues notifications in memory instead of
// blocking the socket readers.
type Subscriber struct {
	cfg ZMQConfig
	log log.Logger

	onTxHash    func(txid string)
	onBlockHash func(hash string)

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	conns   []*gozmq.Conn

	readerWg       sync.WaitGroup
	dispatcherDone chan struct{}

	queue *notifyQueue
}

// NewSubscriber returns a stopped subscriber. Handlers must be registered
// before Start.
func NewSubscriber(cfg ZMQConfig, logger log.Logger) *Subscriber {
	return &Subscriber{
		cfg: cfg,
		log: logger.New("backend", "zmq"),
	}
}

// OnTxHash registers the handler invoked with the display-order txid of every
// hashtx notification.
func (s *Subscriber) OnTxHash(fn func(txid string)) { s.onTxHash = fn }

// OnBlockHash registers the handler invoked with the display-order hash of
// every hashblock notification.
func (s *Subscriber) OnBlockHash(fn func(hash string)) { s.onBlockHash = fn }

// Start connects the configured sockets and begins dispatching. With no
// ports configured it returns immediately and the subscriber stays inert.
// Start after Stop is allowed.
func (s *Subscriber) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("zmq subscriber already started")
	}
	if !s.cfg.Active() {
		s.log.Info("No ZMQ ports configured, push path disabled")
		return nil
	}

	s.quit = make(chan struct{})
	s.queue = newNotifyQueue()
	s.dispatcherDone = make(chan struct{})
	s.conns = nil

	for topic, port := range s.cfg.endpoints() {
		addr := fmt.Sprintf("tcp://%s:%d", s.cfg.Host, port)
		conn, err := gozmq.Subscribe(addr, []string{topic}, zmqReadTimeout)
		if err != nil {
			for _, c := range s.conns {
				c.Close()
			}
			s.conns = nil
			return fmt.Errorf("zmq subscribe %s at %s: %w", topic, addr, err)
		}
		s.log.Info("Subscribed to ZMQ topic", "topic", topic, "addr", addr)
		s.conns = append(s.conns, conn)

		s.readerWg.Add(1)
		go s.readLoop(conn, topic)
	}
	go s.dispatchLoop()

	s.running = true
	return nil
}

// Stop closes the sockets and drains the queue with a deadline. Safe to call
// on an inert or already-stopped subscriber.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.quit)
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
	s.mu.Unlock()

	s.readerWg.Wait()
	select {
	case <-s.dispatcherDone:
	case <-time.After(zmqDrainTimeout):
		s.log.Warn("ZMQ queue drain deadline exceeded, dropping remainder", "pending", s.queue.len())
	}
}

// readLoop reads frames from one socket until shutdown. Receive timeouts are
// the normal idle case.
func (s *Subscriber) readLoop(conn *gozmq.Conn, topic string) {
	defer s.readerWg.Done()
	for {
		select {
		case <-s.quit:
			return
		default:
		}
		frames, err := conn.Receive(nil)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			select {
			case <-s.quit:
				return
			default:
			}
			s.log.Warn("ZMQ receive failed", "topic", topic, "err", err)
			time.Sleep(zmqReadTimeout)
			continue
		}
		n, err := decodeFrames(topic, frames)
		if err != nil {
			s.log.Warn("Dropping malformed ZMQ message", "topic", topic, "err", err)
			continue
		}
		s.queue.push(n)
	}
}

// decodeFrames turns a raw multipart message into a Notification. bitcoind
// sends [topic, payload, 4-byte LE sequence]; hash payloads are in internal
// byte order and are flipped to display order here.
func decodeFrames(topic string, frames [][]byte) (Notification, error) {
	if len(frames) < 2 {
		return Notification{}, fmt.Errorf("got %d frames, want at least 2", len(frames))
	}
	n := Notification{Topic: topic}
	payload := frames[1]
	if len(frames) >= 3 && len(frames[2]) == 4 {
		n.Seq = binary.LittleEndian.Uint32(frames[2])
	}
	switch topic {
	case TopicHashTx, TopicHashBlock:
		hash, err := chainhash.NewHash(payload)
		if err != nil {
			return Notification{}, fmt.Errorf("bad hash payload: %w", err)
		}
		n.Hash = hash.String()
	case TopicSequence:
		if len(payload) < chainhash.HashSize {
			return Notification{}, fmt.Errorf("sequence payload too short: %d bytes", len(payload))
		}
		hash, err := chainhash.NewHash(payload[:chainhash.HashSize])
		if err != nil {
			return Notification{}, fmt.Errorf("bad sequence hash: %w", err)
		}
		n.Hash = hash.String()
		n.Raw = payload[chainhash.HashSize:]
	default:
		n.Raw = payload
	}
	return n, nil
}

// dispatchLoop delivers queued notifications serially until shutdown, then
// drains whatever is left.
func (s *Subscriber) dispatchLoop() {
	defer close(s.dispatcherDone)
	for {
		n, ok := s.queue.popWait(s.quit)
		if !ok {
			return
		}
		s.deliver(n)
	}
}

func (s *Subscriber) deliver(n Notification) {
	switch n.Topic {
	case TopicHashTx:
		if s.onTxHash != nil {
			s.onTxHash(n.Hash)
		}
	case TopicHashBlock:
		if s.onBlockHash != nil {
			s.onBlockHash(n.Hash)
		}
	default:
		s.log.Trace("Ignoring ZMQ notification", "topic", n.Topic, "seq", n.Seq)
	}
}

// notifyQueue is an unbounded FIFO. Readers push without blocking; the
// dispatcher pops, waiting on the signal channel while empty.
type notifyQueue struct {
	mu     sync.Mutex
	items  []Notification
	signal chan struct{}
}

func newNotifyQueue() *notifyQueue {
	return &notifyQueue{signal: make(chan struct{}, 1)}
}

func (q *notifyQueue) push(n Notification) {
	q.mu.Lock()
	q.items = append(q.items, n)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *notifyQueue) pop() (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Notification{}, false
	}
	n := q.items[0]
	q.items = q.items[1:]
	return n, true
}

// popWait blocks until an item is available or quit closes. After quit it
// keeps returning remaining items so the caller can drain.
func (q *notifyQueue) popWait(quit <-chan struct{}) (Notification, bool) {
	for {
		if n, ok := q.pop(); ok {
			return n, true
		}
		select {
		case <-q.signal:
		case <-quit:
			// Final sweep in case a push raced the shutdown.
			return q.pop()
		}
	}
}

func (q *notifyQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
