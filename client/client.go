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

// Package client connects the console to an MQTT broker. Connect hands back
// the two halves of the connection separately: a Sender for the egress
// adapter and an Iterator for the ingress adapter, so each can be owned by
// a single goroutine.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/markoxley/unfezant/topic"
)

// Defaults applied by New for zero-valued options.
const (
	defaultKeepAlive      = 30 * time.Second
	defaultConnectTimeout = 5 * time.Second
	defaultPublishTimeout = 10 * time.Second
	defaultEventBuffer    = 64
	minEventBuffer        = 8
	disconnectQuiesce     = 250 // milliseconds
)

// Options configures the broker connection.
type Options struct {
	Broker         string        // Broker URL, e.g. "tcp://127.0.0.1:1883"
	ClientID       string        // MQTT client identifier (default: "unfezant-" + random suffix)
	Subscribe      []string      // Filters subscribed to after connecting
	PublishTopic   string        // Topic every outgoing command is published on
	QoS            byte          // QoS for subscriptions and publishes (0-2)
	Retain         bool          // Retain flag for publishes
	KeepAlive      time.Duration // Keep-alive interval (default: 30s)
	ConnectTimeout time.Duration // Connect and subscribe timeout (default: 5s)
	PublishTimeout time.Duration // Upper bound for a single blocking send (default: 10s)
	EventBuffer    int           // Events buffered between the library and the iterator (default: 64)
}

// Client owns a single MQTT connection. A Client connects at most once;
// there is no transition from Closed back to Connecting.
type Client struct {
	opts    Options
	filters *topic.Filters
	state   stateBox
	log     logrus.FieldLogger

	mutex  sync.Mutex
	conn   mqtt.Client
	events *stream
}

// New validates opts, applies defaults and returns an unconnected client.
func New(opts Options, log logrus.FieldLogger) (*Client, error) {
	if opts.Broker == "" {
		return nil, errors.New("broker address is required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("invalid qos %d", opts.QoS)
	}
	if err := topic.ValidateName(opts.PublishTopic); err != nil {
		return nil, fmt.Errorf("publish topic: %w", err)
	}
	filters, err := topic.New(opts.Subscribe...)
	if err != nil {
		return nil, fmt.Errorf("subscriptions: %w", err)
	}
	if opts.ClientID == "" {
		opts.ClientID = "unfezant-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = defaultPublishTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = defaultEventBuffer
	}
	if opts.EventBuffer < minEventBuffer {
		opts.EventBuffer = minEventBuffer
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Client{
		opts:    opts,
		filters: filters,
		log:     log.WithField("component", "client"),
	}, nil
}

// ID returns the MQTT client identifier in use.
func (c *Client) ID() string {
	return c.opts.ClientID
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.state.load()
}

// DroppedEvents returns how many outgoing observations were left off the
// event iterator because its buffer was full.
func (c *Client) DroppedEvents() uint64 {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.events == nil {
		return 0
	}
	return c.events.dropped.Load()
}

// Subscriptions returns the filters subscribed to on connect.
func (c *Client) Subscriptions() []string {
	return c.filters.List()
}

// Connect dials the broker, subscribes to the configured filters and returns
// the send handle and the event iterator. The first events on the iterator
// are the ConnAck and the subscription exchange.
//
// Automatic reconnection is disabled: once the connection is lost the
// iterator yields one error item and then ErrClosed.
func (c *Client) Connect(ctx context.Context) (Sender, Iterator, error) {
	if !c.state.advance(Connecting) {
		return nil, nil, fmt.Errorf("connect: client is %s", c.State())
	}
	events := newStream(c.opts.EventBuffer)

	po := mqtt.NewClientOptions().
		AddBroker(c.opts.Broker).
		SetClientID(c.opts.ClientID).
		SetKeepAlive(c.opts.KeepAlive).
		SetConnectTimeout(c.opts.ConnectTimeout).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(false).
		SetConnectRetry(false)
	po.SetDefaultPublishHandler(func(_ mqtt.Client, m mqtt.Message) {
		events.event(Event{
			Direction: Incoming,
			Packet:    Publish,
			Topic:     m.Topic(),
			QoS:       m.Qos(),
			Retain:    m.Retained(),
			PacketID:  m.MessageID(),
			Payload:   m.Payload(),
		})
	})
	po.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.state.advance(Closed)
		c.log.WithError(err).Debug("connection lost")
		events.fail(fmt.Errorf("%w: %v", ErrConnectionLost, err))
		events.end()
	})

	conn := mqtt.NewClient(po)
	if err := wait(ctx, conn.Connect()); err != nil {
		conn.Disconnect(0)
		c.state.advance(Closed)
		events.end()
		return nil, nil, fmt.Errorf("connect to %s: %w", c.opts.Broker, err)
	}
	c.state.advance(Running)
	c.log.WithField("broker", c.opts.Broker).WithField("client_id", c.opts.ClientID).Info("connected")
	events.event(Event{Direction: Incoming, Packet: ConnAck, Detail: "Code = Success"})

	if err := c.subscribe(ctx, conn, events); err != nil {
		conn.Disconnect(disconnectQuiesce)
		c.state.advance(Closed)
		events.end()
		return nil, nil, err
	}

	c.mutex.Lock()
	c.conn = conn
	c.events = events
	c.mutex.Unlock()

	p := &publisher{
		conn:    conn,
		topic:   c.opts.PublishTopic,
		qos:     c.opts.QoS,
		retain:  c.opts.Retain,
		timeout: c.opts.PublishTimeout,
		state:   &c.state,
		events:  events,
	}
	return p, events, nil
}

func (c *Client) subscribe(ctx context.Context, conn mqtt.Client, events *stream) error {
	filters := c.filters.List()
	if len(filters) == 0 {
		return nil
	}
	want := make(map[string]byte, len(filters))
	for _, f := range filters {
		want[f] = c.opts.QoS
	}
	events.event(Event{Direction: Outgoing, Packet: Subscribe, Detail: strings.Join(filters, ",")})

	tok := conn.SubscribeMultiple(want, nil)
	if err := wait(ctx, tok); err != nil {
		return fmt.Errorf("subscribe %s: %w", strings.Join(filters, ","), err)
	}
	granted := make([]string, 0, len(filters))
	if st, ok := tok.(*mqtt.SubscribeToken); ok {
		result := st.Result()
		for _, f := range filters {
			granted = append(granted, fmt.Sprintf("%s:%d", f, result[f]))
		}
	}
	events.event(Event{Direction: Incoming, Packet: SubAck, Detail: strings.Join(granted, ",")})
	return nil
}

// Disconnect closes the connection and ends the iterator. Events already
// buffered are still delivered before ErrClosed.
func (c *Client) Disconnect() {
	c.mutex.Lock()
	conn, events := c.conn, c.events
	c.mutex.Unlock()
	if !c.state.advance(Closed) || conn == nil {
		return
	}
	conn.Disconnect(disconnectQuiesce)
	events.end()
	c.log.Info("disconnected")
}

// publisher is the send half of a connection. It must only be used by the
// goroutine it was handed to.
type publisher struct {
	conn    mqtt.Client
	topic   string
	qos     byte
	retain  bool
	timeout time.Duration
	state   *stateBox
	events  *stream
}

// Send publishes payload on the configured topic and waits for the library
// to report completion (written for QoS 0, acknowledged for QoS 1 and 2).
// The outgoing publish and its acknowledgement are offered to the event
// iterator without waiting for the reader.
func (p *publisher) Send(payload []byte) error {
	if p.state.load() != Running {
		return ErrNotConnected
	}
	tok := p.conn.Publish(p.topic, p.qos, p.retain, payload)
	if !tok.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s: timed out after %s", p.topic, p.timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic, err)
	}
	var id uint16
	if pt, ok := tok.(*mqtt.PublishToken); ok {
		id = pt.MessageID()
	}
	p.events.offer(Event{
		Direction: Outgoing,
		Packet:    Publish,
		Topic:     p.topic,
		QoS:       p.qos,
		Retain:    p.retain,
		PacketID:  id,
		Payload:   payload,
	})
	if p.qos > 0 {
		p.events.offer(Event{Direction: Incoming, Packet: PubAck, PacketID: id})
	}
	return nil
}

// SetLibraryLogger routes the MQTT library's own diagnostics into log.
// The library loggers are process-wide.
func SetLibraryLogger(log logrus.FieldLogger) {
	l := log.WithField("component", "paho")
	mqtt.ERROR = l
	mqtt.CRITICAL = l
	mqtt.WARN = l
}

func wait(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
