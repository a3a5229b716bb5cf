// Package config handles loading and parsing the node's configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration written as a string ("5s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// Config holds all configuration for a homestate node.
type Config struct {
	NodeID   string   `toml:"node_id"` // Unique ID for the node in the cluster
	Host     string   `toml:"host"`
	Port     int      `toml:"port"`
	RaftPort int      `toml:"raft_port"` // Port for Raft's internal communication
	DataDir  string   `toml:"data_dir"`  // Raft data, snapshots and the WAL
	Peers    []string `toml:"peers"`     // HTTP base URLs asked to /join on startup

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // "text" or "json"

	SnapshotRetain int      `toml:"snapshot_retain"` // Raft snapshots kept on disk
	ApplyTimeout   Duration `toml:"apply_timeout"`   // How long an HTTP write waits for commit
}

// New returns a new Config with default values.
func New() *Config {
	return &Config{
		NodeID:         "",
		Host:           "localhost",
		Port:           8080,
		RaftPort:       9080,
		DataDir:        ".",
		Peers:          []string{},
		LogLevel:       "info",
		LogFormat:      "text",
		SnapshotRetain: 2,
		ApplyTimeout:   Duration{5 * time.Second},
	}
}

// Load reads a configuration file from the given path and populates the Config struct.
func (c *Config) Load(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	return c.Validate()
}

// Validate checks the values Load cannot type-check.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id is required")
	}
	if c.Port == c.RaftPort {
		return fmt.Errorf("port and raft_port must differ (both %d)", c.Port)
	}
	if c.SnapshotRetain < 1 {
		return fmt.Errorf("snapshot_retain must be at least 1")
	}
	if c.ApplyTimeout.Duration <= 0 {
		return fmt.Errorf("apply_timeout must be positive")
	}
	return nil
}
