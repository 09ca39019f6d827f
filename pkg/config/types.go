package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the persistent tracenotes configuration stored as
// config.toml in the .tracenotes/ directory. The TOML layout uses sections
// for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Notes   NotesConfig   `toml:"notes"`
	Staging StagingConfig `toml:"staging"`
	Git     GitConfig     `toml:"git"`
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Events  EventsConfig  `toml:"events"`
	Tool    ToolConfig    `toml:"tool"`
}

// NotesConfig holds the git notes namespace.
type NotesConfig struct {
	Ref string `toml:"ref,omitempty"`
}

// StagingConfig holds the staging buffer location, relative to the
// repository root unless absolute.
type StagingConfig struct {
	Path string `toml:"path,omitempty"`
}

// GitConfig holds settings for the git subprocess.
type GitConfig struct {
	Binary  string `toml:"binary,omitempty"`
	Timeout string `toml:"timeout,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// StorageConfig holds the optional SQLite mirror location.
type StorageConfig struct {
	SQLitePath string `toml:"sqlite_path,omitempty"`
}

// EventsConfig holds event stream settings. Publishing is disabled when no
// brokers are configured.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// ToolConfig pins the tool identity stamped on captured records. Empty
// values are detected from the agent environment.
type ToolConfig struct {
	Name    string `toml:"name,omitempty"`
	Version string `toml:"version,omitempty"`
}

// Brokers splits the comma separated broker list.
func (c EventsConfig) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// TimeoutDuration parses Timeout, returning zero when it is empty.
func (c GitConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid value for git.timeout: %w", err)
	}
	return d, nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeyOrder lists the keys in TOML section order.
var configKeyOrder = []string{
	"notes.ref",
	"staging.path",
	"git.binary",
	"git.timeout",
	"api.listen",
	"storage.sqlite_path",
	"events.kafka_brokers",
	"events.kafka_topic",
	"tool.name",
	"tool.version",
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"notes.ref": {
		get: func(c *Config) string { return c.Notes.Ref },
		set: func(c *Config, v string) error {
			if v == "" {
				return fmt.Errorf("notes.ref cannot be empty")
			}
			c.Notes.Ref = v
			return nil
		},
	},
	"staging.path": {
		get: func(c *Config) string { return c.Staging.Path },
		set: func(c *Config, v string) error { c.Staging.Path = v; return nil },
	},
	"git.binary": {
		get: func(c *Config) string { return c.Git.Binary },
		set: func(c *Config, v string) error { c.Git.Binary = v; return nil },
	},
	"git.timeout": {
		get: func(c *Config) string { return c.Git.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for git.timeout: %w", err)
			}
			c.Git.Timeout = v
			return nil
		},
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"events.kafka_brokers": {
		get: func(c *Config) string { return c.Events.KafkaBrokers },
		set: func(c *Config, v string) error { c.Events.KafkaBrokers = v; return nil },
	},
	"events.kafka_topic": {
		get: func(c *Config) string { return c.Events.KafkaTopic },
		set: func(c *Config, v string) error { c.Events.KafkaTopic = v; return nil },
	},
	"tool.name": {
		get: func(c *Config) string { return c.Tool.Name },
		set: func(c *Config, v string) error { c.Tool.Name = v; return nil },
	},
	"tool.version": {
		get: func(c *Config) string { return c.Tool.Version },
		set: func(c *Config, v string) error { c.Tool.Version = v; return nil },
	},
}
