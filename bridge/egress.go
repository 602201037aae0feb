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
	"github.com/sirupsen/logrus"

	"github.com/markoxley/unfezant/client"
	"github.com/markoxley/unfezant/hub"
	"github.com/markoxley/unfezant/msg"
)

// Egress drains the command hub and performs one blocking send per command.
// A failed send is reported as a SendFailure on the event hub and the loop
// carries on; it never produces any other message.
type Egress struct {
	sender   client.Sender
	commands *hub.Hub[msg.Command]
	events   *hub.Producer[msg.Message]
	log      logrus.FieldLogger
}

// NewEgress creates an adapter that takes ownership of sender and of the
// events producer handle. Nothing else may use sender afterwards.
func NewEgress(sender client.Sender, commands *hub.Hub[msg.Command], events *hub.Producer[msg.Message], log logrus.FieldLogger) *Egress {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Egress{
		sender:   sender,
		commands: commands,
		events:   events,
		log:      log.WithField("component", "egress"),
	}
}

// Run blocks until the command hub closes, then closes the events handle.
func (e *Egress) Run() {
	defer e.events.Close()
	for {
		cmd, ok := e.commands.Receive()
		if !ok {
			e.log.Debug("command hub closed")
			return
		}
		if err := e.sender.Send([]byte(cmd.Text)); err != nil {
			e.log.WithError(err).Warn("send failed")
			if out := e.events.Send(msg.SendFailure(cmd.Text, err)); out != hub.Enqueued {
				e.log.WithField("outcome", out).Debug("send failure not queued")
			}
		}
	}
}
