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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/markoxley/unfezant/bridge"
	"github.com/markoxley/unfezant/client"
	"github.com/markoxley/unfezant/config"
	"github.com/markoxley/unfezant/console"
	"github.com/markoxley/unfezant/hub"
	"github.com/markoxley/unfezant/msg"
)

func subCmd(configPath *string) *cobra.Command {
	var (
		filters     []string
		decodedOnly bool
	)

	cmd := &cobra.Command{
		Use:   "sub",
		Short: "Print events without the interactive console",
		Long: `Connect to the configured broker and print every event line by line
until interrupted or the connection closes. Decoded payloads are printed
the same way the console shows them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if len(filters) > 0 {
				cfg.Broker.Subscribe = filters
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return subscribe(cmd, cfg, decodedOnly)
		},
	}

	cmd.Flags().StringSliceVarP(&filters, "topic", "t", nil, "topic filters to subscribe to (overrides broker.subscribe)")
	cmd.Flags().BoolVarP(&decodedOnly, "decoded", "d", false, "print decoded payloads only")

	return cmd
}

func subscribe(cmd *cobra.Command, cfg *config.Config, decodedOnly bool) error {
	ctx := cmd.Context()
	log := newLogger(cfg, cmd.ErrOrStderr())

	c, err := client.New(clientOptions(cfg), log)
	if err != nil {
		return err
	}
	pcfg, err := pipelineConfig(cfg, nil, log)
	if err != nil {
		return err
	}
	pcfg.Overflow = hub.Block
	p, err := bridge.Start(ctx, c, pcfg)
	if err != nil {
		return err
	}
	go func() {
		select {
		case <-ctx.Done():
		case <-p.Disconnected():
		}
		p.Stop()
	}()

	render := console.PlainText
	if decodedOnly {
		render = func(m msg.Message) string {
			if m.Kind != msg.DecodedPayloadKind {
				return ""
			}
			return console.PlainText(m)
		}
	}
	out := cmd.OutOrStdout()
	console.Drain(p.Events, console.SinkFunc(func(text string) {
		if text != "" {
			fmt.Fprintln(out, text)
		}
	}), render)
	p.Wait()
	return nil
}
