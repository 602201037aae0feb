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

// Package msg defines the values that travel through the console's hubs.
// A Message flows from the network adapters to the display loop; a Command
// flows from the user interface to the egress adapter.
package msg

import (
	"fmt"
	"time"
)

// Kind identifies which variant a Message carries.
type Kind byte

// Message kinds
const (
	RawEventKind       = Kind(0x01) // Debug rendering of a network event
	DecodedPayloadKind = Kind(0x02) // Decoded publish payload
	SendFailureKind    = Kind(0x03) // Outbound send that failed
)

// String returns the short label used by log lines and the console.
func (k Kind) String() string {
	switch k {
	case RawEventKind:
		return "raw"
	case DecodedPayloadKind:
		return "decoded"
	case SendFailureKind:
		return "send-failure"
	default:
		return fmt.Sprintf("kind(%d)", byte(k))
	}
}

// Message is a single item on the event hub.
// Topic is only set for decoded payloads and send failures.
type Message struct {
	Kind  Kind
	Topic string
	Text  string
	At    time.Time
}

// RawEvent wraps the debug rendering of a network event.
// Example:
//
//	m := msg.RawEvent(ev.String())
func RawEvent(text string) Message {
	return Message{
		Kind: RawEventKind,
		Text: text,
		At:   time.Now(),
	}
}

// DecodedPayload wraps the displayable form of an inbound publish payload.
func DecodedPayload(topic, text string) Message {
	return Message{
		Kind:  DecodedPayloadKind,
		Topic: topic,
		Text:  text,
		At:    time.Now(),
	}
}

// SendFailure reports that the egress adapter could not hand payload to the
// network connection.
func SendFailure(payload string, err error) Message {
	return Message{
		Kind: SendFailureKind,
		Text: fmt.Sprintf("send %q failed: %v", payload, err),
		At:   time.Now(),
	}
}

// IsError reports whether the message describes a failure.
func (m Message) IsError() bool {
	return m.Kind == SendFailureKind
}

// Command is a single outbound payload captured from user input.
type Command struct {
	Text string
}
