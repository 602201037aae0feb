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

// Package bridge moves traffic between the network connection and the hubs.
// Ingress owns the connection's event iterator and Egress owns its send
// handle; each runs on a goroutine of its own and touches nothing else of
// the connection.
package bridge

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/markoxley/unfezant/client"
	"github.com/markoxley/unfezant/decode"
	"github.com/markoxley/unfezant/hub"
	"github.com/markoxley/unfezant/msg"
	"github.com/markoxley/unfezant/topic"
)

// Ingress forwards every network event into the event hub.
//
// For each event a RawEvent is sent first. An inbound publish is then run
// through the decoder and, if it yields text, followed by a DecodedPayload.
// Connection-level errors from the iterator are dropped: there is no retry
// and nothing reaches the display.
type Ingress struct {
	events  client.Iterator
	out     *hub.Producer[msg.Message]
	decoder decode.Decoder
	topics  *topic.Filters
	log     logrus.FieldLogger
}

// IngressOption configures an Ingress.
type IngressOption func(*Ingress)

// WithDecoder selects the payload decoding strategy (default: decode.JSON).
func WithDecoder(d decode.Decoder) IngressOption {
	return func(in *Ingress) {
		if d != nil {
			in.decoder = d
		}
	}
}

// WithDecodeTopics restricts decoding to publishes whose topic matches one
// of filters. Raw events are forwarded regardless.
func WithDecodeTopics(filters *topic.Filters) IngressOption {
	return func(in *Ingress) {
		in.topics = filters
	}
}

// WithIngressLogger sets the logger.
func WithIngressLogger(log logrus.FieldLogger) IngressOption {
	return func(in *Ingress) {
		if log != nil {
			in.log = log
		}
	}
}

// NewIngress creates an adapter reading from events and writing through out.
// The adapter takes ownership of out and closes it when iteration ends.
func NewIngress(events client.Iterator, out *hub.Producer[msg.Message], opts ...IngressOption) *Ingress {
	in := &Ingress{
		events:  events,
		out:     out,
		decoder: decode.JSON,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(in)
	}
	in.log = in.log.WithField("component", "ingress")
	return in
}

// Run blocks on the iterator until it reports client.ErrClosed.
func (in *Ingress) Run() {
	defer in.out.Close()
	for {
		ev, err := in.events.Next()
		if errors.Is(err, client.ErrClosed) {
			in.log.Debug("event iterator closed")
			return
		}
		if err != nil {
			in.log.WithError(err).Debug("discarding connection error")
			continue
		}
		in.Forward(ev)
	}
}

// Forward classifies a single event and sends the resulting messages.
func (in *Ingress) Forward(ev client.Event) {
	in.send(msg.RawEvent(ev.String()))
	if !ev.IsPublish() {
		return
	}
	if in.topics != nil && !in.topics.Matches(ev.Topic) {
		return
	}
	text, ok := in.decoder.Decode(ev.Payload)
	if !ok {
		return
	}
	in.send(msg.DecodedPayload(ev.Topic, text))
}

func (in *Ingress) send(m msg.Message) {
	if out := in.out.Send(m); out != hub.Enqueued {
		in.log.WithField("kind", m.Kind).WithField("outcome", out).Debug("message not queued")
	}
}
