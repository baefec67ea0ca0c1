package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/splice/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads config.toml (if found via
// dotdir resolution), and binds environment variables with the SPLICE_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (SPLICE_PROXY_LISTEN, SPLICE_INJECT_POLICY, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	target, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
		if err := v.ReadInConfig(); err != nil {
			// Config file not found errors are fine, defaults will apply.
			if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("SPLICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("proxy.upstream", d.Proxy.Upstream)

	v.SetDefault("inject.location", d.Inject.Location)
	v.SetDefault("inject.policy", d.Inject.Policy)
	v.SetDefault("inject.script", d.Inject.Script)
	v.SetDefault("inject.script_file", d.Inject.ScriptFile)
	v.SetDefault("inject.nonce", d.Inject.Nonce)
	v.SetDefault("inject.chunk_size", d.Inject.ChunkSize)
	v.SetDefault("inject.overflow_limit", d.Inject.OverflowLimit)

	v.SetDefault("events.enabled", d.Events.Enabled)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
