package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/splice/pkg/cliui"
	"github.com/papercomputeco/splice/pkg/config"
)

const listLongDesc string = `List all configuration values.

Displays all configuration keys and their current values from the
config.toml file stored in the .splice/ directory.

Examples:
  splice config list
  splice config list --markdown`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir, markdown)
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render the configuration as a markdown table")

	return cmd
}

func runList(out io.Writer, configDir string, markdown bool) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	keys := config.ValidConfigKeys()
	values := make([]string, len(keys))
	for i, key := range keys {
		values[i], err = cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
	}

	if markdown {
		return renderMarkdownTable(out, cfger.GetTarget(), keys, values)
	}

	target := cfger.GetTarget()
	if target != "" {
		fmt.Fprintf(out, "Using config file: %s\n\n", target)
	} else {
		fmt.Fprint(out, "No config file found. Using default config.\n\n")
	}

	// Find the longest key name for alignment.
	maxLen := 0
	for _, k := range keys {
		if len(k) > maxLen {
			maxLen = len(k)
		}
	}

	for i, key := range keys {
		if values[i] == "" {
			fmt.Fprintf(out, "%-*s = <not set>\n", maxLen, key)
		} else {
			fmt.Fprintf(out, "%-*s = %q\n", maxLen, key, values[i])
		}
	}

	return nil
}

func renderMarkdownTable(out io.Writer, target string, keys, values []string) error {
	var b strings.Builder

	b.WriteString("# splice configuration\n\n")
	if target != "" {
		fmt.Fprintf(&b, "Config file: `%s`\n\n", target)
	} else {
		b.WriteString("No config file found. Using defaults.\n\n")
	}

	b.WriteString("| key | value |\n|---|---|\n")
	for i, key := range keys {
		value := values[i]
		if value == "" {
			value = "*not set*"
		} else {
			value = "`" + strings.ReplaceAll(value, "|", `\|`) + "`"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", key, value)
	}

	// RenderMarkdown hands back the raw markdown when it cannot render.
	rendered, _ := cliui.RenderMarkdown(b.String())
	_, err := fmt.Fprint(out, rendered)
	return err
}
