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
	"strings"

	"github.com/spf13/cobra"

	"github.com/markoxley/unfezant/bridge"
	"github.com/markoxley/unfezant/client"
	"github.com/markoxley/unfezant/config"
	"github.com/markoxley/unfezant/console"
	"github.com/markoxley/unfezant/decode"
	"github.com/markoxley/unfezant/hub"
)

func pubCmd(configPath *string) *cobra.Command {
	var (
		topicName string
		qos       int
		retain    bool
	)

	cmd := &cobra.Command{
		Use:   "pub <message>...",
		Short: "Publish messages and exit",
		Long: `Connect to the configured broker, publish each argument as one
message on the publish topic and disconnect once all have been sent.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("topic") {
				cfg.Broker.PublishTopic = topicName
			}
			if cmd.Flags().Changed("qos") {
				cfg.Broker.QoS = qos
			}
			if cmd.Flags().Changed("retain") {
				cfg.Broker.Retain = retain
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return publish(cmd, cfg, args)
		},
	}

	cmd.Flags().StringVarP(&topicName, "topic", "t", "", "topic to publish on (overrides broker.publish_topic)")
	cmd.Flags().IntVarP(&qos, "qos", "q", 0, "quality of service")
	cmd.Flags().BoolVarP(&retain, "retain", "r", false, "set the retain flag")

	return cmd
}

func publish(cmd *cobra.Command, cfg *config.Config, messages []string) error {
	ctx := cmd.Context()
	log := newLogger(cfg, cmd.ErrOrStderr())

	opts := clientOptions(cfg)
	opts.Subscribe = nil
	c, err := client.New(opts, log)
	if err != nil {
		return err
	}
	// Nothing is typed interactively here, so the command hub may block.
	p, err := bridge.Start(ctx, c, bridge.Config{
		Capacity:        cfg.Hub.Capacity,
		Overflow:        hub.Block,
		CommandCapacity: cfg.Hub.CommandCapacity,
		CommandOverflow: hub.Block,
		Decoder:         decode.None,
		Log:             log,
	})
	if err != nil {
		return err
	}

	failures := make(chan []string, 1)
	go func() {
		var failed []string
		for {
			m, ok := p.Events.Receive()
			if !ok {
				failures <- failed
				return
			}
			if m.IsError() {
				failed = append(failed, console.PlainText(m))
				continue
			}
			log.Debug(m.Text)
		}
	}()

	for _, m := range messages {
		p.Submit(m)
	}
	if err := p.Finish(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	p.Wait()

	if failed := <-failures; len(failed) > 0 {
		return fmt.Errorf("%d of %d messages failed:\n%s", len(failed), len(messages), strings.Join(failed, "\n"))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %d message(s) to %s\n", len(messages), cfg.Broker.PublishTopic)
	return nil
}
