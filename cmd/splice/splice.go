// Package splicecmder
package splicecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/splice/cmd/splice/config"
	injectcmder "github.com/papercomputeco/splice/cmd/splice/inject"
	servecmder "github.com/papercomputeco/splice/cmd/splice/serve"
	versioncmder "github.com/papercomputeco/splice/cmd/version"
)

const spliceLongDesc string = `splice injects a script into HTML documents as they stream past.

Run it in front of a web app:
  splice serve --upstream http://localhost:3000 --script-file overlay.js

Or filter a single document:
  splice inject index.html --script 'console.log("hi")'

Manage defaults for both with:
  splice config set <key> <value>`

const spliceShortDesc string = "splice - streaming script injection"

func NewSpliceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splice",
		Short: spliceShortDesc,
		Long:  spliceLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .splice/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(injectcmder.NewInjectCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
