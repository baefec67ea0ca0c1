package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent splice configuration stored as config.toml
// in the .splice/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int          `toml:"version"`
	Proxy   ProxyConfig  `toml:"proxy"`
	Inject  InjectConfig `toml:"inject"`
	Events  EventsConfig `toml:"events"`
}

// ProxyConfig holds reverse proxy settings.
type ProxyConfig struct {
	Listen   string `toml:"listen,omitempty"`
	Upstream string `toml:"upstream,omitempty"`
}

// InjectConfig holds the injection filter settings applied to every
// eligible document.
type InjectConfig struct {
	// Location is "head" or "body".
	Location string `toml:"location,omitempty"`

	// Policy is "first" or "every".
	Policy string `toml:"policy,omitempty"`

	// Script is inline JavaScript source. ScriptFile wins when both are set.
	Script     string `toml:"script,omitempty"`
	ScriptFile string `toml:"script_file,omitempty"`

	// Nonce is emitted as the script element's nonce attribute.
	Nonce string `toml:"nonce,omitempty"`

	// ChunkSize is the filter output buffer size in bytes.
	ChunkSize uint `toml:"chunk_size,omitempty"`

	// OverflowLimit bounds the filter's overflow queue; 0 is unbounded.
	OverflowLimit uint `toml:"overflow_limit,omitempty"`
}

// EventsConfig holds injection event publishing settings.
type EventsConfig struct {
	Enabled bool   `toml:"enabled,omitempty"`
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"proxy.listen": {
		get: func(c *Config) string { return c.Proxy.Listen },
		set: func(c *Config, v string) error { c.Proxy.Listen = v; return nil },
	},
	"proxy.upstream": {
		get: func(c *Config) string { return c.Proxy.Upstream },
		set: func(c *Config, v string) error { c.Proxy.Upstream = v; return nil },
	},
	"inject.location": {
		get: func(c *Config) string { return c.Inject.Location },
		set: func(c *Config, v string) error {
			if v != "head" && v != "body" {
				return fmt.Errorf("invalid value for inject.location: %q (expected head or body)", v)
			}
			c.Inject.Location = v
			return nil
		},
	},
	"inject.policy": {
		get: func(c *Config) string { return c.Inject.Policy },
		set: func(c *Config, v string) error {
			if v != "first" && v != "every" {
				return fmt.Errorf("invalid value for inject.policy: %q (expected first or every)", v)
			}
			c.Inject.Policy = v
			return nil
		},
	},
	"inject.script": {
		get: func(c *Config) string { return c.Inject.Script },
		set: func(c *Config, v string) error { c.Inject.Script = v; return nil },
	},
	"inject.script_file": {
		get: func(c *Config) string { return c.Inject.ScriptFile },
		set: func(c *Config, v string) error { c.Inject.ScriptFile = v; return nil },
	},
	"inject.nonce": {
		get: func(c *Config) string { return c.Inject.Nonce },
		set: func(c *Config, v string) error { c.Inject.Nonce = v; return nil },
	},
	"inject.chunk_size":     uintKey("inject.chunk_size", func(c *Config) *uint { return &c.Inject.ChunkSize }),
	"inject.overflow_limit": uintKey("inject.overflow_limit", func(c *Config) *uint { return &c.Inject.OverflowLimit }),
	"events.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.Events.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for events.enabled: %w", err)
			}
			c.Events.Enabled = b
			return nil
		},
	},
	"events.brokers": {
		get: func(c *Config) string { return c.Events.Brokers },
		set: func(c *Config, v string) error { c.Events.Brokers = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}
