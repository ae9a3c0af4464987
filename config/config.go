// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for boothline.
//
// Configuration is loaded from a single YAML file specified by:
//   - BOOTHLINE_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery; a booth install is
// provisioned with exactly one config file and behaves the same every
// boot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for a booth client.
type Config struct {
	// Server configures the venue server connection.
	Server ServerConfig `yaml:"server"`

	// Fleet optionally seeds the collector credential. When both
	// fields are set, the credential gate activates at startup
	// without waiting for provisioning.
	Fleet FleetConfig `yaml:"fleet"`

	// Paths configures where durable state lives.
	Paths PathsConfig `yaml:"paths"`

	// Telemetry configures delivery schedules.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Log configures structured logging output.
	Log LogConfig `yaml:"log"`
}

// ServerConfig configures the venue server connection.
type ServerConfig struct {
	// BaseURL is the venue server, e.g. "http://booth.local:4000".
	BaseURL string `yaml:"base_url"`

	// ReconnectDelay is the fixed pause before an event stream
	// reconnect. Default: 3s.
	ReconnectDelay string `yaml:"reconnect_delay"`

	// CommandPollInterval is the fallback command fetch period used
	// when the event stream is down. Default: 30s.
	CommandPollInterval string `yaml:"command_poll_interval"`
}

// FleetConfig optionally seeds the collector credential.
type FleetConfig struct {
	// Endpoint is the fleet collector base URL.
	Endpoint string `yaml:"endpoint"`

	// DeviceKey authenticates this booth with the collector.
	DeviceKey string `yaml:"device_key"`
}

// PathsConfig configures durable state locations.
type PathsConfig struct {
	// State is the directory holding the state database and the
	// roster snapshot. Created if missing.
	State string `yaml:"state"`
}

// TelemetryConfig configures delivery schedules. All durations are Go
// duration strings ("3m", "30s").
type TelemetryConfig struct {
	// FlushInterval between log flushes. Default: 3m.
	FlushInterval string `yaml:"flush_interval"`

	// HeartbeatInterval between heartbeats. Default: 3m.
	HeartbeatInterval string `yaml:"heartbeat_interval"`

	// CredentialPollInterval between credential checks while the
	// gate is waiting. Default: 30s.
	CredentialPollInterval string `yaml:"credential_poll_interval"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn, or error. Default: info.
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: text.
	Format string `yaml:"format"`
}

// Load loads configuration from the file named by the
// BOOTHLINE_CONFIG environment variable. Fails if unset.
func Load() (*Config, error) {
	path := os.Getenv("BOOTHLINE_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("BOOTHLINE_CONFIG environment variable not set; " +
			"set it or pass --config")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from the given path, applies defaults,
// and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.ReconnectDelay == "" {
		c.Server.ReconnectDelay = "3s"
	}
	if c.Server.CommandPollInterval == "" {
		c.Server.CommandPollInterval = "30s"
	}
	if c.Telemetry.FlushInterval == "" {
		c.Telemetry.FlushInterval = "3m"
	}
	if c.Telemetry.HeartbeatInterval == "" {
		c.Telemetry.HeartbeatInterval = "3m"
	}
	if c.Telemetry.CredentialPollInterval == "" {
		c.Telemetry.CredentialPollInterval = "30s"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}
	if c.Paths.State == "" {
		return fmt.Errorf("paths.state is required")
	}

	durations := map[string]string{
		"server.reconnect_delay":             c.Server.ReconnectDelay,
		"server.command_poll_interval":       c.Server.CommandPollInterval,
		"telemetry.flush_interval":           c.Telemetry.FlushInterval,
		"telemetry.heartbeat_interval":       c.Telemetry.HeartbeatInterval,
		"telemetry.credential_poll_interval": c.Telemetry.CredentialPollInterval,
	}
	for field, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: invalid duration %q", field, value)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: invalid level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: invalid format %q", c.Log.Format)
	}

	// A half-configured fleet section is almost certainly a typo; an
	// empty one (provisioning pending) is fine.
	if (c.Fleet.Endpoint == "") != (c.Fleet.DeviceKey == "") {
		return fmt.Errorf("fleet: endpoint and device_key must be set together")
	}
	return nil
}

// Duration accessors. Validate has already checked these parse.

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		panic("config: unvalidated duration " + value)
	}
	return d
}

// ReconnectDelay returns the event stream reconnect pause.
func (c *Config) ReconnectDelay() time.Duration {
	return mustDuration(c.Server.ReconnectDelay)
}

// CommandPollInterval returns the fallback command fetch period.
func (c *Config) CommandPollInterval() time.Duration {
	return mustDuration(c.Server.CommandPollInterval)
}

// FlushInterval returns the telemetry flush period.
func (c *Config) FlushInterval() time.Duration {
	return mustDuration(c.Telemetry.FlushInterval)
}

// HeartbeatInterval returns the heartbeat period.
func (c *Config) HeartbeatInterval() time.Duration {
	return mustDuration(c.Telemetry.HeartbeatInterval)
}

// CredentialPollInterval returns the gate's poll period.
func (c *Config) CredentialPollInterval() time.Duration {
	return mustDuration(c.Telemetry.CredentialPollInterval)
}

// StateDBPath returns the state database file path.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.Paths.State, "state.db")
}

// RosterSnapshotPath returns the roster snapshot file path.
func (c *Config) RosterSnapshotPath() string {
	return filepath.Join(c.Paths.State, "roster.cbor")
}

// EnsurePaths creates the state directory if missing.
func (c *Config) EnsurePaths() error {
	if err := os.MkdirAll(c.Paths.State, 0o755); err != nil {
		return fmt.Errorf("config: creating state directory: %w", err)
	}
	return nil
}
