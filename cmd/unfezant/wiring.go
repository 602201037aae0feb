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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/markoxley/unfezant/bridge"
	"github.com/markoxley/unfezant/client"
	"github.com/markoxley/unfezant/config"
	"github.com/markoxley/unfezant/decode"
	"github.com/markoxley/unfezant/hub"
	"github.com/markoxley/unfezant/ops"
	"github.com/markoxley/unfezant/server"
	"github.com/markoxley/unfezant/topic"
)

// newLogger builds the process logger writing to out and routes the MQTT
// library's diagnostics through it.
func newLogger(cfg *config.Config, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(cfg.LogLevel())
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	client.SetLibraryLogger(log)
	return log
}

// openLogFile opens the console's log file; the terminal belongs to the UI.
func openLogFile(cfg *config.Config) (*os.File, error) {
	f, err := os.OpenFile(cfg.LogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}

// broker is a running embedded server.
type broker struct {
	srv    *server.Server
	cancel context.CancelFunc
	done   chan error
}

// startBroker runs the embedded server when enabled and waits until it
// accepts connections. A nil broker means the server is disabled.
func startBroker(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*broker, error) {
	if !cfg.Server.Enabled {
		return nil, nil
	}
	srv, err := server.New(server.Options{
		Address:   cfg.Server.Address,
		WSAddress: cfg.Server.WSAddress,
	}, log)
	if err != nil {
		return nil, err
	}
	// The broker outlives ctx until stop so clients can disconnect cleanly.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b := &broker{srv: srv, cancel: cancel, done: make(chan error, 1)}
	go func() {
		b.done <- srv.Run(runCtx)
	}()
	select {
	case <-srv.Ready():
		return b, nil
	case err := <-b.done:
		cancel()
		return nil, err
	case <-ctx.Done():
		cancel()
		<-b.done
		return nil, ctx.Err()
	}
}

func (b *broker) sessions() ops.SessionLister {
	if b == nil {
		return nil
	}
	return b.srv.Sessions()
}

// stop closes the broker and waits for its run loop to return.
func (b *broker) stop() error {
	if b == nil {
		return nil
	}
	b.cancel()
	return <-b.done
}

// startOps runs the ops endpoint in the background when an address is set.
func startOps(ctx context.Context, cfg *config.Config, reg prometheus.Gatherer, b *broker, log logrus.FieldLogger) {
	if cfg.Metrics.Address == "" {
		return
	}
	s := ops.New(ops.Options{
		Address:  cfg.Metrics.Address,
		Gatherer: reg,
		Sessions: b.sessions(),
		Log:      log,
	})
	go func() {
		if err := s.Run(ctx); err != nil {
			log.WithError(err).Error("ops endpoint stopped")
		}
	}()
}

// clientOptions maps the broker section of the configuration.
func clientOptions(cfg *config.Config) client.Options {
	return client.Options{
		Broker:         cfg.Broker.Address,
		ClientID:       cfg.Broker.ClientID,
		Subscribe:      cfg.Broker.Subscribe,
		PublishTopic:   cfg.Broker.PublishTopic,
		QoS:            byte(cfg.Broker.QoS),
		Retain:         cfg.Broker.Retain,
		KeepAlive:      cfg.Broker.KeepAlive,
		ConnectTimeout: cfg.Broker.ConnectTimeout,
		PublishTimeout: cfg.Broker.PublishTimeout,
		EventBuffer:    cfg.Broker.EventBuffer,
	}
}

// pipelineConfig maps the hub and decode sections of the configuration.
func pipelineConfig(cfg *config.Config, metrics *hub.Metrics, log logrus.FieldLogger) (bridge.Config, error) {
	decoder, err := decode.ByName(cfg.Decode.Strategy)
	if err != nil {
		return bridge.Config{}, err
	}
	topics, err := topic.New(cfg.Decode.Topics...)
	if err != nil {
		return bridge.Config{}, fmt.Errorf("decode topics: %w", err)
	}
	return bridge.Config{
		Capacity:        cfg.Hub.Capacity,
		Overflow:        cfg.Overflow(),
		CommandCapacity: cfg.Hub.CommandCapacity,
		CommandOverflow: cfg.CommandOverflow(),
		Decoder:         decoder,
		DecodeTopics:    topics,
		Metrics:         metrics,
		Log:             log,
	}, nil
}

// shutdown stops the pipeline after its consumer has gone, then the broker.
func shutdown(ctx context.Context, p *bridge.Pipeline, b *broker) error {
	var errs []error
	if p != nil {
		if err := p.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pipeline shutdown: %w", err))
		}
	}
	if err := b.stop(); err != nil {
		errs = append(errs, fmt.Errorf("broker shutdown: %w", err))
	}
	return errors.Join(errs...)
}
