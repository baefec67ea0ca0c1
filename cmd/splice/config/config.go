// Package configcmder provides the config command for managing persistent
// splice configuration stored in the .splice/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/splice/pkg/cliui"
	"github.com/papercomputeco/splice/pkg/config"
)

const configLongDesc string = `Manage persistent splice configuration.

Configuration is stored as config.toml in the .splice/ directory and provides
default values for command flags. CLI flags and SPLICE_* environment
variables always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  proxy.listen, proxy.upstream,
  inject.location, inject.policy, inject.script, inject.script_file,
  inject.nonce, inject.chunk_size, inject.overflow_limit,
  events.enabled, events.brokers, events.topic

Use subcommands to get, set, or list configuration values:
  splice config set <key> <value>    Set a configuration value
  splice config get <key>            Get a configuration value
  splice config list                 List all configuration values

Examples:
  splice config set proxy.upstream http://localhost:5173
  splice config set inject.script_file ./dev/reload.js
  splice config get inject.policy
  splice config list`

const configShortDesc string = "Manage persistent splice configuration"

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

func printTarget(out io.Writer, cfger *config.Configer) {
	target := cfger.GetTarget()
	if target != "" {
		fmt.Fprintf(out, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
}
