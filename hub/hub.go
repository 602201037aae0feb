// MIT License
//
// Copyright (c) 2025 DaggerTech
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package hub implements the bounded, ordered, multi-producer/single-consumer
// queues at the centre of the console. Producers hold a Producer handle each;
// the hub closes once every handle has been closed, and the consumer observes
// that only after every buffered item has been delivered.
package hub

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the queue size used when a non-positive capacity is given.
const DefaultCapacity = 10

// Policy selects what Send does when the queue already holds Cap items.
type Policy string

const (
	// Block waits until the consumer frees a slot. Nothing is ever lost.
	Block Policy = "block"
	// DropOldest discards the oldest queued item to make room for the new one.
	DropOldest Policy = "dropold"
	// DropNewest discards the item being sent.
	DropNewest Policy = "drop"
)

// ParsePolicy maps a configuration value onto a Policy.
// An empty string selects Block.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case "":
		return Block, nil
	case Block, DropOldest, DropNewest:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Outcome is the result of a single Send.
type Outcome int

const (
	// Enqueued means the item is in the queue.
	Enqueued Outcome = iota
	// Full means the queue was full and the item was dropped (DropNewest only).
	Full
	// Closed means the producer handle or the hub is closed.
	Closed
)

func (o Outcome) String() string {
	switch o {
	case Enqueued:
		return "enqueued"
	case Full:
		return "full"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Hub is a bounded FIFO queue shared by any number of producers and drained
// by a single consumer.
type Hub[T any] struct {
	name    string
	policy  Policy
	queue   chan T
	metrics *Metrics

	// sendMu is held for reading by every Send and for writing when the
	// queue channel is closed, so a Send never races the close.
	sendMu sync.RWMutex

	mutex     sync.Mutex // guards producers and closed
	producers int
	closed    bool

	dropped atomic.Uint64
}

// Option configures a Hub.
type Option func(*options)

type options struct {
	metrics *Metrics
}

// WithMetrics reports enqueues, drops and queue depth into m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// New creates a hub holding at most capacity items.
// The capacity is fixed for the lifetime of the hub.
// Example:
//
//	events := hub.New[msg.Message]("events", 10, hub.Block)
func New[T any](name string, capacity int, policy Policy, opts ...Option) *Hub[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if policy == "" {
		policy = Block
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	return &Hub[T]{
		name:    name,
		policy:  policy,
		queue:   make(chan T, capacity),
		metrics: o.metrics,
	}
}

// Producer registers a new producer handle.
// A handle taken after the hub has closed is already closed.
func (h *Hub[T]) Producer() *Producer[T] {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	p := &Producer[T]{hub: h}
	if h.closed {
		p.closed.Store(true)
		return p
	}
	h.producers++
	return p
}

// Receive blocks until the next item is available.
// It returns false once the hub is closed and every buffered item
// has been received.
func (h *Hub[T]) Receive() (T, bool) {
	v, ok := <-h.queue
	if ok {
		h.metrics.depth(h.name, len(h.queue))
	}
	return v, ok
}

// C exposes the receive side of the queue for use in select statements.
// Items taken from C are not reflected in the depth gauge.
func (h *Hub[T]) C() <-chan T {
	return h.queue
}

// Name returns the label the hub reports metrics under.
func (h *Hub[T]) Name() string {
	return h.name
}

// Policy returns the overflow policy.
func (h *Hub[T]) Policy() Policy {
	return h.policy
}

// Len returns the number of items currently queued.
func (h *Hub[T]) Len() int {
	return len(h.queue)
}

// Cap returns the fixed capacity.
func (h *Hub[T]) Cap() int {
	return cap(h.queue)
}

// Dropped returns how many items the overflow policy has discarded.
func (h *Hub[T]) Dropped() uint64 {
	return h.dropped.Load()
}

// IsClosed reports whether every producer has gone.
func (h *Hub[T]) IsClosed() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.closed
}

func (h *Hub[T]) release() {
	h.mutex.Lock()
	h.producers--
	last := h.producers == 0 && !h.closed
	if last {
		h.closed = true
	}
	h.mutex.Unlock()
	if !last {
		return
	}
	h.sendMu.Lock()
	close(h.queue)
	h.sendMu.Unlock()
}

func (h *Hub[T]) send(v T) Outcome {
	h.sendMu.RLock()
	defer h.sendMu.RUnlock()
	if h.IsClosed() {
		return Closed
	}
	var out Outcome
	switch h.policy {
	case DropNewest:
		select {
		case h.queue <- v:
			out = Enqueued
		default:
			h.drop()
			out = Full
		}
	case DropOldest:
		out = h.sendDropOldest(v)
	default:
		h.queue <- v
		out = Enqueued
	}
	if out == Enqueued {
		h.metrics.enqueued(h.name)
	}
	h.metrics.depth(h.name, len(h.queue))
	return out
}

// sendDropOldest discards from the head of the queue until v fits.
// Only the consumer and other producers can change the queue between
// attempts, so the loop ends as soon as a slot is observed free.
func (h *Hub[T]) sendDropOldest(v T) Outcome {
	for {
		select {
		case h.queue <- v:
			return Enqueued
		default:
		}
		select {
		case <-h.queue:
			h.drop()
		default:
		}
	}
}

func (h *Hub[T]) drop() {
	h.dropped.Add(1)
	h.metrics.dropped(h.name)
}

// Producer is a handle through which one execution context sends into a hub.
// Items sent through the same handle from the same goroutine keep their order.
type Producer[T any] struct {
	hub    *Hub[T]
	once   sync.Once
	closed atomic.Bool
}

// Send queues v according to the hub's overflow policy.
// Under Block it waits for space; under the drop policies it never blocks.
func (p *Producer[T]) Send(v T) Outcome {
	if p.closed.Load() {
		return Closed
	}
	return p.hub.send(v)
}

// Close releases the handle. It is safe to call more than once; the last
// handle to close closes the hub.
func (p *Producer[T]) Close() {
	if p.closed.Load() {
		return
	}
	p.once.Do(func() {
		p.closed.Store(true)
		p.hub.release()
	})
}
