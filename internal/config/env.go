package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays cfg with TASTEBASE_* environment variables.
func parseEnv(cfg *Config) {
	setString(&cfg.DatabasePath, os.Getenv("TASTEBASE_DATABASE_PATH"))
	setString(&cfg.ImageDir, os.Getenv("TASTEBASE_IMAGE_DIR"))
	setString(&cfg.S3Endpoint, os.Getenv("TASTEBASE_S3_ENDPOINT"))
	setString(&cfg.S3Region, os.Getenv("TASTEBASE_S3_REGION"))
	setString(&cfg.S3AccessKey, os.Getenv("TASTEBASE_S3_ACCESS_KEY"))
	setString(&cfg.S3SecretKey, os.Getenv("TASTEBASE_S3_SECRET_KEY"))
	setString(&cfg.PrivateBucket, os.Getenv("TASTEBASE_PRIVATE_BUCKET"))
	setString(&cfg.PublicBucket, os.Getenv("TASTEBASE_PUBLIC_BUCKET"))

	if v := os.Getenv("TASTEBASE_SYNC_BASE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SyncBaseInterval = d
		}
	}
	if v := os.Getenv("TASTEBASE_SYNC_MAX_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SyncMaxInterval = d
		}
	}
	if v := os.Getenv("TASTEBASE_MAX_SYNC_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxSyncAttempts = n
		}
	}
}
