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

package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/markoxley/unfezant/client"
	"github.com/markoxley/unfezant/decode"
	"github.com/markoxley/unfezant/hub"
	"github.com/markoxley/unfezant/msg"
	"github.com/markoxley/unfezant/topic"
)

// Connector is the network client boundary: one connect yielding a send
// handle and an event iterator, and a disconnect that ends the iterator.
type Connector interface {
	Connect(ctx context.Context) (client.Sender, client.Iterator, error)
	Disconnect()
}

// Config sizes the hubs and selects the decode strategy.
type Config struct {
	Capacity        int        // Event hub capacity (default: hub.DefaultCapacity)
	Overflow        hub.Policy // Event hub overflow policy (default: block)
	CommandCapacity int        // Command hub capacity (default: hub.DefaultCapacity)
	CommandOverflow hub.Policy // Command hub overflow policy (default: drop)
	Decoder         decode.Decoder
	DecodeTopics    *topic.Filters
	Metrics         *hub.Metrics
	Log             logrus.FieldLogger
}

// Pipeline wires one connection to an event hub and a command hub and runs
// the ingress and egress adapters around them.
type Pipeline struct {
	Events   *hub.Hub[msg.Message]
	Commands *hub.Hub[msg.Command]

	conn        Connector
	input       *hub.Producer[msg.Command]
	wg          sync.WaitGroup
	ingressDone chan struct{}
	egressDone  chan struct{}
	log         logrus.FieldLogger
}

// Start creates both hubs, connects and starts the adapters.
// On a connect error nothing is left running.
func Start(ctx context.Context, conn Connector, cfg Config) (*Pipeline, error) {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.CommandOverflow == "" {
		cfg.CommandOverflow = hub.DropNewest
	}
	var hubOpts []hub.Option
	if cfg.Metrics != nil {
		hubOpts = append(hubOpts, hub.WithMetrics(cfg.Metrics))
	}

	p := &Pipeline{
		Events:      hub.New[msg.Message]("events", cfg.Capacity, cfg.Overflow, hubOpts...),
		Commands:    hub.New[msg.Command]("commands", cfg.CommandCapacity, cfg.CommandOverflow, hubOpts...),
		conn:        conn,
		ingressDone: make(chan struct{}),
		egressDone:  make(chan struct{}),
		log:         cfg.Log.WithField("component", "pipeline"),
	}
	ingressOut := p.Events.Producer()
	egressOut := p.Events.Producer()
	p.input = p.Commands.Producer()

	sender, events, err := conn.Connect(ctx)
	if err != nil {
		p.input.Close()
		ingressOut.Close()
		egressOut.Close()
		return nil, fmt.Errorf("start pipeline: %w", err)
	}

	ingress := NewIngress(events, ingressOut,
		WithDecoder(cfg.Decoder),
		WithDecodeTopics(cfg.DecodeTopics),
		WithIngressLogger(cfg.Log),
	)
	egress := NewEgress(sender, p.Commands, egressOut, cfg.Log)

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		defer close(p.ingressDone)
		ingress.Run()
	}()
	go func() {
		defer p.wg.Done()
		defer close(p.egressDone)
		egress.Run()
	}()
	p.log.WithField("capacity", p.Events.Cap()).WithField("overflow", p.Events.Policy()).Debug("pipeline started")
	return p, nil
}

// Submit queues text for the egress adapter. It is the user interface's
// send callback and never blocks under the drop policies.
func (p *Pipeline) Submit(text string) hub.Outcome {
	return p.input.Send(msg.Command{Text: text})
}

// Disconnected is closed once the ingress adapter has seen the end of the
// event stream, whether from Stop or a lost connection.
func (p *Pipeline) Disconnected() <-chan struct{} {
	return p.ingressDone
}

// Stop closes the user input handle and disconnects. The event hub closes
// once both adapters have finished; a consumer keeps draining until then.
func (p *Pipeline) Stop() {
	p.input.Close()
	p.conn.Disconnect()
}

// Finish closes the user input handle, waits for the egress adapter to send
// everything already queued and then stops. Use it where every submitted
// command must reach the connection before disconnecting.
func (p *Pipeline) Finish(ctx context.Context) error {
	p.input.Close()
	select {
	case <-p.egressDone:
	case <-ctx.Done():
		p.Stop()
		return ctx.Err()
	}
	p.Stop()
	return nil
}

// Wait blocks until both adapters have returned.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Shutdown stops the pipeline after the consumer has gone away: whatever is
// left in the event hub is discarded so blocked producers can finish.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.Stop()
	go func() {
		for {
			if _, ok := p.Events.Receive(); !ok {
				return
			}
		}
	}()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a point-in-time view of both hubs.
type Stats struct {
	EventsQueued    int
	EventsCapacity  int
	EventsDropped   uint64
	EventsPolicy    hub.Policy
	CommandsQueued  int
	CommandCapacity int
	CommandsDropped uint64
	CommandsPolicy  hub.Policy
}

func (s Stats) String() string {
	return fmt.Sprintf("events %d/%d dropped %d (%s) | commands %d/%d dropped %d (%s)",
		s.EventsQueued, s.EventsCapacity, s.EventsDropped, s.EventsPolicy,
		s.CommandsQueued, s.CommandCapacity, s.CommandsDropped, s.CommandsPolicy)
}

// Stats reports queue depths and drop counts.
func (p *Pipeline) Stats() Stats {
	return Stats{
		EventsQueued:    p.Events.Len(),
		EventsCapacity:  p.Events.Cap(),
		EventsDropped:   p.Events.Dropped(),
		EventsPolicy:    p.Events.Policy(),
		CommandsQueued:  p.Commands.Len(),
		CommandCapacity: p.Commands.Cap(),
		CommandsDropped: p.Commands.Dropped(),
		CommandsPolicy:  p.Commands.Policy(),
	}
}
