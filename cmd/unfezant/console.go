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
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/markoxley/unfezant/bridge"
	"github.com/markoxley/unfezant/client"
	"github.com/markoxley/unfezant/config"
	"github.com/markoxley/unfezant/console"
	"github.com/markoxley/unfezant/hub"
)

const shutdownTimeout = 5 * time.Second

// runConsole runs the interactive console until the user quits or ctx ends.
func runConsole(ctx context.Context, cfg *config.Config) (err error) {
	logFile, err := openLogFile(cfg)
	if err != nil {
		return err
	}
	defer logFile.Close()
	log := newLogger(cfg, logFile)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics, err := hub.NewMetrics(reg)
	if err != nil {
		return err
	}

	b, err := startBroker(ctx, cfg, log)
	if err != nil {
		return err
	}
	startOps(ctx, cfg, reg, b, log)

	c, err := client.New(clientOptions(cfg), log)
	if err != nil {
		return errors.Join(err, b.stop())
	}
	pcfg, err := pipelineConfig(cfg, metrics, log)
	if err != nil {
		return errors.Join(err, b.stop())
	}
	p, err := bridge.Start(ctx, c, pcfg)
	if err != nil {
		return errors.Join(err, b.stop())
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		err = errors.Join(err, shutdown(sctx, p, b))
	}()

	// A lost connection closes the event hub so the console shows it.
	go func() {
		select {
		case <-ctx.Done():
		case <-p.Disconnected():
			p.Stop()
		}
	}()

	title := cfg.UI.Title
	if title == "" {
		title = "mqtt console"
	}
	model := console.New(p.Events, console.Options{
		Title:      fmt.Sprintf("%s  %s -> %s", title, c.ID(), cfg.Broker.PublishTopic),
		Scrollback: cfg.UI.Scrollback,
		OnSend:     p.Submit,
		Stats:      func() string { return p.Stats().String() },
	})
	prog := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("console: %w", err)
	}
	log.Info("console closed")
	return nil
}
