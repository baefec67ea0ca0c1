package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline, so the same logical flag
// cannot drift between "splice serve" and "splice inject".
type Flag struct {
	// Name is the long flag name (e.g. "upstream").
	Name string

	// Shorthand is the one-letter short flag (e.g. "u"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "proxy.upstream").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagListen        = "listen"
	FlagUpstream      = "upstream"
	FlagLocation      = "location"
	FlagPolicy        = "policy"
	FlagScript        = "script"
	FlagScriptFile    = "script-file"
	FlagNonce         = "nonce"
	FlagChunkSize     = "chunk-size"
	FlagOverflowLimit = "overflow-limit"
	FlagEvents        = "events"
	FlagKafkaBrokers  = "kafka-brokers"
	FlagKafkaTopic    = "kafka-topic"
)

// Flags is the registry shared by every splice command.
var Flags = FlagSet{
	FlagListen:        {Name: "listen", Shorthand: "l", ViperKey: "proxy.listen", Description: "Address for the proxy to listen on"},
	FlagUpstream:      {Name: "upstream", Shorthand: "u", ViperKey: "proxy.upstream", Description: "Upstream origin URL"},
	FlagLocation:      {Name: "location", ViperKey: "inject.location", Description: "Tag to inject after (head, body)"},
	FlagPolicy:        {Name: "policy", ViperKey: "inject.policy", Description: "Inject after the first marker only, or after every marker (first, every)"},
	FlagScript:        {Name: "script", ViperKey: "inject.script", Description: "Inline JavaScript to inject"},
	FlagScriptFile:    {Name: "script-file", Shorthand: "f", ViperKey: "inject.script_file", Description: "Path to a JavaScript file to inject (reloaded on change)"},
	FlagNonce:         {Name: "nonce", ViperKey: "inject.nonce", Description: "CSP nonce attribute for the injected script element"},
	FlagChunkSize:     {Name: "chunk-size", ViperKey: "inject.chunk_size", Description: "Filter buffer size in bytes"},
	FlagOverflowLimit: {Name: "overflow-limit", ViperKey: "inject.overflow_limit", Description: "Maximum bytes queued by a filter before it stops reading input (0 = unbounded)"},
	FlagEvents:        {Name: "events", ViperKey: "events.enabled", Description: "Publish injection events to Kafka"},
	FlagKafkaBrokers:  {Name: "kafka-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka broker addresses"},
	FlagKafkaTopic:    {Name: "kafka-topic", ViperKey: "events.topic", Description: "Kafka topic for injection events"},
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

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
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

func defaultsViper() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}

func defaultString(viperKey string) string {
	return defaultsViper().GetString(viperKey)
}

func defaultUint(viperKey string) uint {
	return defaultsViper().GetUint(viperKey)
}

func defaultBool(viperKey string) bool {
	return defaultsViper().GetBool(viperKey)
}
