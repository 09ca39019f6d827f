package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/tracenotes/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the TRACENOTES_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (TRACENOTES_NOTES_REF, TRACENOTES_API_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: TRACENOTES_GIT_TIMEOUT, TRACENOTES_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("TRACENOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("notes.ref", d.Notes.Ref)
	v.SetDefault("staging.path", d.Staging.Path)

	// Git subprocess
	v.SetDefault("git.binary", d.Git.Binary)
	v.SetDefault("git.timeout", d.Git.Timeout)

	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)

	// Event stream
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.kafka_topic", d.Events.KafkaTopic)

	v.SetDefault("tool.name", d.Tool.Name)
	v.SetDefault("tool.version", d.Tool.Version)
}

// FromViper snapshots the effective configuration after flag, environment,
// file and default precedence has been applied.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Notes:   NotesConfig{Ref: v.GetString("notes.ref")},
		Staging: StagingConfig{Path: v.GetString("staging.path")},
		Git: GitConfig{
			Binary:  v.GetString("git.binary"),
			Timeout: v.GetString("git.timeout"),
		},
		API:     APIConfig{Listen: v.GetString("api.listen")},
		Storage: StorageConfig{SQLitePath: v.GetString("storage.sqlite_path")},
		Events: EventsConfig{
			KafkaBrokers: v.GetString("events.kafka_brokers"),
			KafkaTopic:   v.GetString("events.kafka_topic"),
		},
		Tool: ToolConfig{
			Name:    v.GetString("tool.name"),
			Version: v.GetString("tool.version"),
		},
	}
}
