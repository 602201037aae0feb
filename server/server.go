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

// Package server runs the embedded MQTT broker. Nothing the broker does is
// forwarded into the console's hubs; the console talks to it only as an
// ordinary network client.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/sirupsen/logrus"
)

// Options configures the broker listeners.
type Options struct {
	Address   string // TCP listener address, e.g. "127.0.0.1:1883"
	WSAddress string // Websocket listener address; empty disables it
}

// Server owns the embedded broker and its blocking run loop.
type Server struct {
	opts     Options
	broker   *mqtt.Server
	sessions *Sessions
	tcp      *listeners.TCP
	ready    chan struct{}
	log      *logrus.Entry
}

// New creates a broker with the allow-all auth hook and a hook that records
// sessions. Nothing listens until Run is called.
func New(opts Options, log logrus.FieldLogger) (*Server, error) {
	if opts.Address == "" {
		return nil, errors.New("server address is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("component", "server")

	broker := mqtt.New(&mqtt.Options{
		Logger: newSlogLogger(entry),
	})
	if err := broker.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("add auth hook: %w", err)
	}
	sessions := NewSessions()
	if err := broker.AddHook(&sessionHook{sessions: sessions, log: entry}, nil); err != nil {
		return nil, fmt.Errorf("add session hook: %w", err)
	}
	return &Server{
		opts:     opts,
		broker:   broker,
		sessions: sessions,
		tcp:      listeners.NewTCP(listeners.Config{ID: "tcp", Address: opts.Address}),
		ready:    make(chan struct{}),
		log:      entry,
	}, nil
}

// Run binds the listeners, serves until ctx is cancelled and then closes
// the broker. Listener errors are returned before ready is signalled.
// Run must be called once.
func (s *Server) Run(ctx context.Context) error {
	if err := s.broker.AddListener(s.tcp); err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.Address, err)
	}
	if s.opts.WSAddress != "" {
		ws := listeners.NewWebsocket(listeners.Config{ID: "ws", Address: s.opts.WSAddress})
		if err := s.broker.AddListener(ws); err != nil {
			_ = s.broker.Close()
			return fmt.Errorf("listen on %s: %w", s.opts.WSAddress, err)
		}
	}
	if err := s.broker.Serve(); err != nil {
		_ = s.broker.Close()
		return fmt.Errorf("serve: %w", err)
	}
	close(s.ready)
	s.log.WithField("address", s.Addr()).Info("broker listening")

	go s.sessions.collectGarbage(ctx.Done(), s.log)
	<-ctx.Done()
	s.log.Info("broker stopping")
	return s.broker.Close()
}

// Ready is closed once the listeners accept connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound TCP address once Ready is closed, and the
// configured address before that.
func (s *Server) Addr() string {
	select {
	case <-s.ready:
		return s.tcp.Address()
	default:
		return s.opts.Address
	}
}

// Sessions returns the session registry.
func (s *Server) Sessions() *Sessions {
	return s.sessions
}

// sessionHook mirrors broker connects and disconnects into Sessions.
type sessionHook struct {
	mqtt.HookBase
	sessions *Sessions
	log      logrus.FieldLogger
}

func (h *sessionHook) ID() string {
	return "unfezant-sessions"
}

func (h *sessionHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnSessionEstablished,
		mqtt.OnDisconnect,
	}, []byte{b})
}

func (h *sessionHook) OnSessionEstablished(cl *mqtt.Client, _ packets.Packet) {
	h.sessions.Add(Session{
		ID:       cl.ID,
		Remote:   cl.Net.Remote,
		Listener: cl.Net.Listener,
		Username: string(cl.Properties.Username),
	})
	h.log.WithField("client", cl.ID).WithField("remote", cl.Net.Remote).Debug("session established")
}

func (h *sessionHook) OnDisconnect(cl *mqtt.Client, err error, _ bool) {
	entry := h.log.WithField("client", cl.ID).WithField("remote", cl.Net.Remote)
	if err != nil {
		entry = entry.WithError(err)
	}
	if !h.sessions.DisconnectRemote(cl.ID, cl.Net.Remote) {
		entry.Debug("ignored disconnect of a replaced session")
		return
	}
	entry.Debug("session disconnected")
}
