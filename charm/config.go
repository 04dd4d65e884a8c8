// ABOUTME: Settings for the Charm KV watermark backend
// ABOUTME: Server host, auto-sync and the key namespace, filled in from the app config

package charm

const (
	// DefaultCharmHost is the self-hosted 2389 research server.
	DefaultCharmHost = "charm.2389.dev"

	// AppName names the Charm KV database.
	AppName = "crmsync"
)

// Config holds charm connection settings.
type Config struct {
	// Host is the charm server hostname.
	Host string `json:"host,omitempty"`

	// AutoSync pushes to the server after every write.
	AutoSync bool `json:"auto_sync"`

	// Database overrides the KV database name, mainly so several
	// environments can share one charm account.
	Database string `json:"database,omitempty"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Host:     DefaultCharmHost,
		AutoSync: true,
		Database: AppName,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	return c
}
