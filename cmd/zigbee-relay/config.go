package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"zigbee-relay/internal/node"
	"zigbee-relay/internal/store"
)

// Config is the YAML process configuration.
type Config struct {
	Radio struct {
		Port      string        `yaml:"port"`
		Baud      int           `yaml:"baud"`
		ATTimeout time.Duration `yaml:"at_timeout"`
	} `yaml:"radio"`
	Relay struct {
		Bus          string `yaml:"bus"` // i2c-dev node, or "none" for a dry run
		Address      uint16 `yaml:"address"`
		Command      uint8  `yaml:"command"`
		Count        int    `yaml:"count"`
		BaseEndpoint uint8  `yaml:"base_endpoint"`
	} `yaml:"relay"`
	Node struct {
		Heartbeat       time.Duration `yaml:"heartbeat"`
		IdleSleep       time.Duration `yaml:"idle_sleep"`
		AnnounceOnStart *bool         `yaml:"announce_on_start"`
		Capability      uint8         `yaml:"capability"`
	} `yaml:"node"`
	Store struct {
		Path         string `yaml:"path"`
		JournalLimit int    `yaml:"journal_limit"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	Web struct {
		Listen         string   `yaml:"listen"` // empty disables the HTTP API
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Automation struct {
		ScriptsDir string `yaml:"scripts_dir"` // empty disables Lua scripts
	} `yaml:"automation"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	if c.Radio.Port == "" {
		return fmt.Errorf("radio.port is required")
	}
	if c.Radio.Baud <= 0 {
		return fmt.Errorf("radio.baud must be positive, got %d", c.Radio.Baud)
	}
	if c.Relay.Address == 0 || c.Relay.Address > 0x7F {
		return fmt.Errorf("relay.address must be a 7-bit i2c address, got 0x%02X", c.Relay.Address)
	}
	if err := c.nodeConfig().Validate(); err != nil {
		return fmt.Errorf("relay: %w", err)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// nodeConfig maps the relay and node sections onto the dispatcher config.
func (c *Config) nodeConfig() node.Config {
	announce := c.Node.AnnounceOnStart == nil || *c.Node.AnnounceOnStart
	return node.Config{
		RelayCount:      c.Relay.Count,
		BaseEndpoint:    c.Relay.BaseEndpoint,
		RelayCommand:    c.Relay.Command,
		Heartbeat:       c.Node.Heartbeat,
		IdleSleep:       c.Node.IdleSleep,
		AnnounceOnStart: announce,
		Capability:      c.Node.Capability,
	}
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Radio.Baud == 0 {
		cfg.Radio.Baud = 9600
	}
	if cfg.Radio.ATTimeout == 0 {
		cfg.Radio.ATTimeout = 2 * time.Second
	}
	if cfg.Relay.Bus == "" {
		cfg.Relay.Bus = "/dev/i2c-1"
	}
	if cfg.Relay.Address == 0 {
		cfg.Relay.Address = 17
	}
	if cfg.Relay.Command == 0 {
		cfg.Relay.Command = node.DefaultRelayCommand
	}
	if cfg.Relay.Count == 0 {
		cfg.Relay.Count = node.DefaultRelayCount
	}
	if cfg.Relay.BaseEndpoint == 0 {
		cfg.Relay.BaseEndpoint = node.DefaultBaseEndpoint
	}
	if cfg.Node.Heartbeat == 0 {
		cfg.Node.Heartbeat = node.DefaultHeartbeat
	}
	if cfg.Node.IdleSleep == 0 {
		cfg.Node.IdleSleep = node.DefaultIdleSleep
	}
	if cfg.Node.AnnounceOnStart == nil {
		announce := true
		cfg.Node.AnnounceOnStart = &announce
	}
	if cfg.Node.Capability == 0 {
		cfg.Node.Capability = node.DefaultCapability
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "zigbee-relay.db"
	}
	if cfg.Store.JournalLimit == 0 {
		cfg.Store.JournalLimit = store.DefaultJournalLimit
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "zigbee-relay"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
