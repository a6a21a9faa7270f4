package config

import "time"

// Config holds runtime settings for the GophNotes CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the relay gRPC endpoint.
//   - OnlineCheckInterval: how often the client checks server reachability.
//   - DatabasePath: sqlite file of the local store. The secure key store
//     lives next to it with a ".keys" suffix.
//   - SyncBatchSize: items per upload batch, 0 picks the engine default.
//   - ConflictThreshold: how far apart two edits of the same content must
//     be before they are treated as a conflict rather than newest-wins.
//   - DeviceName: label shown in the prompt and the logs.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	DatabasePath        string
	SyncBatchSize       int
	ConflictThreshold   time.Duration
	DeviceName          string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.DatabasePath = "gophnotes.db"
	c.SyncBatchSize = 0
	c.ConflictThreshold = time.Minute
	c.DeviceName = "cli"
}

// SecureStorePath is where the device secrets are kept.
func (c *Config) SecureStorePath() string {
	return c.DatabasePath + ".keys"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
