package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/tastebase/tastebase/internal/flagx"
	"github.com/tastebase/tastebase/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations may
// be given as strings like "2m" or as integer nanoseconds.
type JsonConfig struct {
	DatabasePath       string         `json:"database_path"`
	ImageDir           string         `json:"image_dir"`
	S3Endpoint         string         `json:"s3_endpoint"`
	S3Region           string         `json:"s3_region"`
	S3AccessKey        string         `json:"s3_access_key"`
	S3SecretKey        string         `json:"s3_secret_key"`
	PrivateBucket      string         `json:"private_bucket"`
	PublicBucket       string         `json:"public_bucket"`
	SyncBaseInterval   timex.Duration `json:"sync_base_interval"`
	SyncMaxInterval    timex.Duration `json:"sync_max_interval"`
	MaxSyncAttempts    int            `json:"max_sync_attempts"`
	TombstoneRetention timex.Duration `json:"tombstone_retention"`
}

// parseJson overlays cfg with values from the JSON file named by -c/-config.
// Absent file path means no JSON stage; zero-valued fields are skipped so the
// file may be partial.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.DatabasePath, jc.DatabasePath)
	setString(&cfg.ImageDir, jc.ImageDir)
	setString(&cfg.S3Endpoint, jc.S3Endpoint)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	setString(&cfg.PrivateBucket, jc.PrivateBucket)
	setString(&cfg.PublicBucket, jc.PublicBucket)
	setDuration(&cfg.SyncBaseInterval, jc.SyncBaseInterval.Duration)
	setDuration(&cfg.SyncMaxInterval, jc.SyncMaxInterval.Duration)
	if jc.MaxSyncAttempts > 0 {
		cfg.MaxSyncAttempts = jc.MaxSyncAttempts
	}
	setDuration(&cfg.TombstoneRetention, jc.TombstoneRetention.Duration)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}
