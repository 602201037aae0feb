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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrClosed is returned by Iterator.Next once the connection has ended
	// and every pending event has been delivered.
	ErrClosed = errors.New("connection closed")
	// ErrNotConnected is returned by Sender.Send when the connection is not running.
	ErrNotConnected = errors.New("not connected")
	// ErrConnectionLost wraps the cause reported when the transport drops.
	ErrConnectionLost = errors.New("connection lost")
)

// Direction tells whether an event was received from or sent to the broker.
type Direction int

// Event directions
const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) String() string {
	if d == Outgoing {
		return "Outgoing"
	}
	return "Incoming"
}

// PacketType names the MQTT control packet an event describes.
type PacketType string

// Packet types surfaced by the connection
const (
	ConnAck    PacketType = "ConnAck"
	Publish    PacketType = "Publish"
	PubAck     PacketType = "PubAck"
	Subscribe  PacketType = "Subscribe"
	SubAck     PacketType = "SubAck"
	Disconnect PacketType = "Disconnect"
)

// Event is a single item observed on the network connection.
type Event struct {
	Direction Direction
	Packet    PacketType
	Topic     string
	QoS       byte
	Retain    bool
	PacketID  uint16
	Payload   []byte
	// Detail carries packet-specific text such as granted filters.
	Detail string
}

// IsPublish reports whether the event is an inbound publish carrying a payload.
func (e Event) IsPublish() bool {
	return e.Direction == Incoming && e.Packet == Publish
}

// String renders the event for debugging, one line per event.
// Example:
//
//	Incoming(Publish(Topic = "a/b", Qos = 0, Retain = false, Pkid = 0, Payload Size = 7))
func (e Event) String() string {
	var b strings.Builder
	b.WriteString(e.Direction.String())
	b.WriteByte('(')
	b.WriteString(string(e.Packet))
	switch e.Packet {
	case Publish:
		fmt.Fprintf(&b, "(Topic = %q, Qos = %d, Retain = %t, Pkid = %d, Payload Size = %d)",
			e.Topic, e.QoS, e.Retain, e.PacketID, len(e.Payload))
	case Subscribe, SubAck:
		fmt.Fprintf(&b, "(Pkid = %d, Filters = %s)", e.PacketID, e.Detail)
	case PubAck:
		fmt.Fprintf(&b, "(Pkid = %d)", e.PacketID)
	default:
		if e.Detail != "" {
			fmt.Fprintf(&b, "(%s)", e.Detail)
		}
	}
	b.WriteByte(')')
	return b.String()
}

// Iterator yields network events. Next blocks until an event is available.
// A non-nil error other than ErrClosed is a connection-level error item;
// iteration may continue after it. ErrClosed ends the sequence.
type Iterator interface {
	Next() (Event, error)
}

// Sender hands a payload to the transport, blocking until it has been accepted.
type Sender interface {
	Send(payload []byte) error
}
