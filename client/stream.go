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

package client

import (
	"sync"
	"sync/atomic"
)

// item is either an event or a connection-level error.
type item struct {
	event Event
	err   error
}

// stream turns the callbacks of the MQTT library into a blocking iterator.
// Pushes from the library block while the buffer is full, so a slow reader
// slows the connection down instead of losing events. Observations made by
// the sender use offer and are dropped instead, so a send never waits on
// the reader.
type stream struct {
	items   chan item
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func newStream(buffer int) *stream {
	if buffer <= 0 {
		buffer = 1
	}
	return &stream{
		items: make(chan item, buffer),
		done:  make(chan struct{}),
	}
}

// push delivers it unless the stream has ended. It reports whether it was delivered.
func (s *stream) push(it item) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.items <- it:
		return true
	case <-s.done:
		return false
	}
}

// offer delivers ev only if there is room right now. Events that do not fit
// are counted in dropped.
func (s *stream) offer(ev Event) bool {
	select {
	case <-s.done:
		s.dropped.Add(1)
		return false
	default:
	}
	select {
	case s.items <- item{event: ev}:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *stream) event(ev Event) bool {
	return s.push(item{event: ev})
}

func (s *stream) fail(err error) bool {
	return s.push(item{err: err})
}

// end stops the stream. Items already buffered are still returned by Next.
func (s *stream) end() {
	s.once.Do(func() {
		close(s.done)
	})
}

// Next implements Iterator.
func (s *stream) Next() (Event, error) {
	select {
	case it := <-s.items:
		return it.event, it.err
	default:
	}
	select {
	case it := <-s.items:
		return it.event, it.err
	case <-s.done:
		select {
		case it := <-s.items:
			return it.event, it.err
		default:
			return Event{}, ErrClosed
		}
	}
}
