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

package console

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/markoxley/unfezant/hub"
	"github.com/markoxley/unfezant/msg"
)

// Sink receives one rendered line per drained message.
type Sink interface {
	AppendLog(text string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(text string)

// AppendLog calls f(text).
func (f SinkFunc) AppendLog(text string) {
	f(text)
}

// Renderer turns a message into display text.
type Renderer func(msg.Message) string

// hubEventMsg carries one drained message onto the UI loop.
type hubEventMsg struct {
	message msg.Message
}

// hubClosedMsg reports that every producer has gone and the hub is empty.
type hubClosedMsg struct{}

// Loop is the single consumer of the event hub. It runs as a cooperative
// task on the bubbletea event loop: Wait is its only suspension point, and
// Handle, called from Update, appends exactly one line per message before
// re-arming Wait.
type Loop struct {
	events  *hub.Hub[msg.Message]
	sink    Sink
	render  Renderer
	done    bool
	handled int
}

// NewLoop creates a loop draining events into sink. A nil render uses PlainText.
func NewLoop(events *hub.Hub[msg.Message], sink Sink, render Renderer) *Loop {
	if render == nil {
		render = PlainText
	}
	return &Loop{
		events: events,
		sink:   sink,
		render: render,
	}
}

// Wait returns the command that suspends until the next hub item.
// It returns nil once the hub has reported closed.
func (l *Loop) Wait() tea.Cmd {
	if l.done {
		return nil
	}
	events := l.events
	return func() tea.Msg {
		m, ok := events.Receive()
		if !ok {
			return hubClosedMsg{}
		}
		return hubEventMsg{message: m}
	}
}

// Handle processes a message produced by Wait. It reports false for any
// other message so the caller can route it elsewhere.
func (l *Loop) Handle(m tea.Msg) (tea.Cmd, bool) {
	switch m := m.(type) {
	case hubEventMsg:
		l.sink.AppendLog(l.render(m.message))
		l.handled++
		return l.Wait(), true
	case hubClosedMsg:
		l.done = true
		return nil, true
	}
	return nil, false
}

// Done reports whether the hub has closed.
func (l *Loop) Done() bool {
	return l.done
}

// Handled returns how many messages have been appended.
func (l *Loop) Handled() int {
	return l.handled
}

// Drain is the same loop for callers without a UI event loop: it blocks,
// appending one line per message until the hub closes, and returns the
// number of lines appended.
func Drain(events *hub.Hub[msg.Message], sink Sink, render Renderer) int {
	l := NewLoop(events, sink, render)
	for cmd := l.Wait(); cmd != nil; {
		cmd, _ = l.Handle(cmd())
	}
	return l.handled
}
