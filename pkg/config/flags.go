package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline, so the same logical flag
// (e.g. --ref on "show", "report" and "serve") cannot drift.
type Flag struct {
	// Name is the long flag name (e.g. "ref").
	Name string

	// Shorthand is the one-letter short flag. Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "notes.ref").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag and BindRegisteredFlags.
const (
	FlagRef          = "ref"
	FlagStagingPath  = "staging-path"
	FlagGitBinary    = "git-binary"
	FlagGitTimeout   = "git-timeout"
	FlagListen       = "listen"
	FlagSQLite       = "sqlite"
	FlagKafkaBrokers = "kafka-brokers"
	FlagKafkaTopic   = "kafka-topic"
	FlagToolName     = "tool"
	FlagToolVersion  = "tool-version"
)

// Flags is the registry shared by every tracenotes command.
var Flags = FlagSet{
	FlagRef: {
		Name:        "ref",
		ViperKey:    "notes.ref",
		Description: "Git notes reference holding agent traces",
	},
	FlagStagingPath: {
		Name:        "staging-path",
		ViperKey:    "staging.path",
		Description: "Staging buffer for traces captured before the first commit",
	},
	FlagGitBinary: {
		Name:        "git-binary",
		ViperKey:    "git.binary",
		Description: "Path to the git executable",
	},
	FlagGitTimeout: {
		Name:        "git-timeout",
		ViperKey:    "git.timeout",
		Description: "Timeout for each git invocation (e.g. 30s)",
	},
	FlagListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the SQLite mirror of the trace notes",
	},
	FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "events.kafka_brokers",
		Description: "Comma separated Kafka brokers for trace events",
	},
	FlagKafkaTopic: {
		Name:        "kafka-topic",
		ViperKey:    "events.kafka_topic",
		Description: "Kafka topic for trace events",
	},
	FlagToolName: {
		Name:        "tool",
		ViperKey:    "tool.name",
		Description: "Tool name stamped on captured traces",
	},
	FlagToolVersion: {
		Name:        "tool-version",
		ViperKey:    "tool.version",
		Description: "Tool version stamped on captured traces",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddPersistentStringFlag is AddStringFlag for flags inherited by subcommands.
func AddPersistentStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.PersistentFlags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.PersistentFlags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}
