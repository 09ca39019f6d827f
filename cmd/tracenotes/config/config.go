// Package configcmder provides the config command for managing persistent
// tracenotes configuration stored in the .tracenotes/ directory.
package configcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tracenotes/pkg/config"
)

const configLongDesc string = `Manage persistent tracenotes configuration.

Configuration is stored as config.toml in the .tracenotes/ directory and
provides default values for command flags. CLI flags and TRACENOTES_*
environment variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  notes.ref, staging.path, git.binary, git.timeout,
  api.listen, storage.sqlite_path,
  events.kafka_brokers, events.kafka_topic,
  tool.name, tool.version

Use subcommands to get, set, or list configuration values:
  tracenotes config set <key> <value>    Set a configuration value
  tracenotes config get <key>            Get a configuration value
  tracenotes config list                 List all configuration values

Examples:
  tracenotes config set notes.ref refs/notes/agent-trace
  tracenotes config set events.kafka_brokers localhost:9092
  tracenotes config get git.timeout
  tracenotes config list`

const configShortDesc string = "Manage persistent tracenotes configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func validateKey(key string) error {
	if !config.IsValidConfigKey(key) {
		return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
			key, strings.Join(config.ValidConfigKeys(), ", "))
	}
	return nil
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
