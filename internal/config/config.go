// Package config loads daemon settings from defaults, an optional JSON file,
// environment variables and command-line flags, in that order of precedence.
package config

import "time"

// Config holds runtime settings for the tastebase data layer.
type Config struct {
	// DatabasePath is the sqlite file holding the local projection.
	DatabasePath string
	// ImageDir is the root directory for locally cached entity images.
	ImageDir string

	// Remote object store (S3-compatible). Empty PrivateBucket switches the
	// daemon into local-only mode.
	S3Endpoint    string
	S3Region      string
	S3AccessKey   string
	S3SecretKey   string
	PrivateBucket string
	PublicBucket  string

	// Retry scheduler tuning.
	SyncBaseInterval time.Duration
	SyncMaxInterval  time.Duration
	MaxSyncAttempts  int

	// TombstoneRetention bounds how long deletion markers are kept.
	TombstoneRetention time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "tastebase.db"
	c.ImageDir = "images"
	c.S3Region = "us-east-1"
	c.SyncBaseInterval = 2 * time.Minute
	c.SyncMaxInterval = time.Hour
	c.MaxSyncAttempts = 10
	c.TombstoneRetention = 30 * 24 * time.Hour
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), environment variables and command-line flags. Later
// sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
