package config

const (
	defaultProxyListen = ":8080"
	defaultUpstream    = "http://localhost:3000"

	defaultLocation  = "head"
	defaultPolicy    = "first"
	defaultChunkSize = 32 * 1024

	defaultBrokers = "localhost:9092"
	defaultTopic   = "splice.injections"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Proxy: ProxyConfig{
			Listen:   defaultProxyListen,
			Upstream: defaultUpstream,
		},
		Inject: InjectConfig{
			Location:  defaultLocation,
			Policy:    defaultPolicy,
			ChunkSize: defaultChunkSize,
		},
		Events: EventsConfig{
			Brokers: defaultBrokers,
			Topic:   defaultTopic,
		},
	}
}
