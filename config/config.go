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

// Package config provides configuration management for the unfezant console.
// Settings come from built-in defaults, an optional TOML, YAML or JSON file
// and UNFEZANT_ environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/markoxley/unfezant/decode"
	"github.com/markoxley/unfezant/hub"
	"github.com/markoxley/unfezant/topic"
)

// EnvPrefix is the prefix of environment overrides, e.g. UNFEZANT_HUB_CAPACITY.
const EnvPrefix = "UNFEZANT"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the console settings.
type Config struct {
	Broker  BrokerConfig  `mapstructure:"broker"`
	Server  ServerConfig  `mapstructure:"server"`
	Hub     HubConfig     `mapstructure:"hub"`
	Decode  DecodeConfig  `mapstructure:"decode"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	UI      UIConfig      `mapstructure:"ui"`
}

// BrokerConfig holds the MQTT connection settings.
type BrokerConfig struct {
	Address        string        `mapstructure:"address"`         // Broker URL (default: tcp://127.0.0.1:1883)
	ClientID       string        `mapstructure:"client_id"`       // Empty picks "unfezant-" plus a random suffix
	Subscribe      []string      `mapstructure:"subscribe"`       // Filters subscribed on connect (default: #)
	PublishTopic   string        `mapstructure:"publish_topic"`   // Topic for entered messages (default: unfezant/console)
	QoS            int           `mapstructure:"qos"`             // 0, 1 or 2
	Retain         bool          `mapstructure:"retain"`          // Retain flag for published messages
	KeepAlive      time.Duration `mapstructure:"keep_alive"`      // (default: 30s)
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"` // (default: 5s)
	PublishTimeout time.Duration `mapstructure:"publish_timeout"` // (default: 10s)
	EventBuffer    int           `mapstructure:"event_buffer"`    // (default: 64)
}

// ServerConfig holds the embedded broker settings.
type ServerConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	WSAddress string `mapstructure:"ws_address"`
}

// HubConfig sizes the event and command hubs.
type HubConfig struct {
	Capacity        int    `mapstructure:"capacity"`
	CommandCapacity int    `mapstructure:"command_capacity"`
	Overflow        string `mapstructure:"overflow"`
	CommandOverflow string `mapstructure:"command_overflow"`
}

// DecodeConfig selects how inbound payloads are decoded.
type DecodeConfig struct {
	Strategy string   `mapstructure:"strategy"`
	Topics   []string `mapstructure:"topics"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// MetricsConfig holds the ops endpoint settings. An empty address disables it.
type MetricsConfig struct {
	Address string `mapstructure:"address"`
}

// UIConfig holds presentation settings.
type UIConfig struct {
	Title      string `mapstructure:"title"`
	Scrollback int    `mapstructure:"scrollback"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("broker.address", "tcp://127.0.0.1:1883")
	v.SetDefault("broker.client_id", "")
	v.SetDefault("broker.subscribe", []string{"#"})
	v.SetDefault("broker.publish_topic", "unfezant/console")
	v.SetDefault("broker.qos", 0)
	v.SetDefault("broker.retain", false)
	v.SetDefault("broker.keep_alive", 30*time.Second)
	v.SetDefault("broker.connect_timeout", 5*time.Second)
	v.SetDefault("broker.publish_timeout", 10*time.Second)
	v.SetDefault("broker.event_buffer", 64)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.address", "127.0.0.1:1883")
	v.SetDefault("server.ws_address", "")
	v.SetDefault("hub.capacity", hub.DefaultCapacity)
	v.SetDefault("hub.command_capacity", hub.DefaultCapacity)
	v.SetDefault("hub.overflow", string(hub.Block))
	v.SetDefault("hub.command_overflow", string(hub.DropNewest))
	v.SetDefault("decode.strategy", "json")
	v.SetDefault("decode.topics", []string{"#"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("metrics.address", "")
	v.SetDefault("ui.title", "mqtt console")
	v.SetDefault("ui.scrollback", 0)
}

// Load reads the configuration. If path is empty, UNFEZANT_CONFIG is used,
// and failing that an optional unfezant.{toml,yaml,json} is looked up in
// the user config directory and the working directory. A file named
// explicitly must exist.
//
// Returns:
//   - *Config: A validated configuration with defaults applied
//   - error: nil if successful, or an error wrapping ErrInvalid
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "unfezant"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("unfezant")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks every setting and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	if c.Broker.Address == "" {
		invalid("broker.address is required")
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		invalid("broker.qos must be 0, 1 or 2, got %d", c.Broker.QoS)
	}
	if err := topic.ValidateName(c.Broker.PublishTopic); err != nil {
		invalid("broker.publish_topic: %v", err)
	}
	for _, f := range c.Broker.Subscribe {
		if err := topic.ValidateFilter(f); err != nil {
			invalid("broker.subscribe: %v", err)
		}
	}
	if c.Broker.EventBuffer < 0 {
		invalid("broker.event_buffer must not be negative")
	}
	if c.Server.Enabled && c.Server.Address == "" {
		invalid("server.address is required when the server is enabled")
	}
	if c.Hub.Capacity <= 0 {
		invalid("hub.capacity must be positive, got %d", c.Hub.Capacity)
	}
	if c.Hub.CommandCapacity <= 0 {
		invalid("hub.command_capacity must be positive, got %d", c.Hub.CommandCapacity)
	}
	if _, err := hub.ParsePolicy(c.Hub.Overflow); err != nil {
		invalid("hub.overflow: %v", err)
	}
	// The user interface is the command hub's only producer and must never wait on it.
	if p, err := hub.ParsePolicy(c.Hub.CommandOverflow); err != nil {
		invalid("hub.command_overflow: %v", err)
	} else if p == hub.Block {
		invalid("hub.command_overflow must be %q or %q", hub.DropNewest, hub.DropOldest)
	}
	if _, err := decode.ByName(c.Decode.Strategy); err != nil {
		invalid("decode.strategy: %v", err)
	}
	for _, f := range c.Decode.Topics {
		if err := topic.ValidateFilter(f); err != nil {
			invalid("decode.topics: %v", err)
		}
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		invalid("log.level: %v", err)
	}
	if c.UI.Scrollback < 0 {
		invalid("ui.scrollback must not be negative")
	}
	return errors.Join(errs...)
}

// Overflow returns the event hub policy. Load has already validated it.
func (c *Config) Overflow() hub.Policy {
	p, _ := hub.ParsePolicy(c.Hub.Overflow)
	return p
}

// CommandOverflow returns the command hub policy.
func (c *Config) CommandOverflow() hub.Policy {
	p, _ := hub.ParsePolicy(c.Hub.CommandOverflow)
	if p == hub.Block {
		return hub.DropNewest
	}
	return p
}

// LogLevel returns the parsed log level, defaulting to info.
func (c *Config) LogLevel() logrus.Level {
	l, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}

// LogPath returns where the console writes its log.
func (c *Config) LogPath() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(os.TempDir(), "unfezant.log")
}

// MustLoad is like Load but panics if the configuration cannot be loaded.
// This should only be used during program initialization where an invalid
// configuration is a fatal error.
//
// Example:
//
//	cfg := config.MustLoad("")
//	p, err := bridge.Start(ctx, conn, bridge.Config{Capacity: cfg.Hub.Capacity})
//
// Panics if the configuration file cannot be read or fails validation.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}
	return config
}
