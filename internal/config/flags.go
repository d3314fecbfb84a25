package config

import (
	"os"
	"time"

	"flag"

	"github.com/tastebase/tastebase/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   sqlite database path
//	-images     image cache directory
//	-s3 string  S3-compatible endpoint
//	-i int      base sync interval in seconds
//
// The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-images", "-s3", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DatabasePath, "d", cfg.DatabasePath, "sqlite database path")
	fs.StringVar(&cfg.ImageDir, "images", cfg.ImageDir, "image cache directory")
	fs.StringVar(&cfg.S3Endpoint, "s3", cfg.S3Endpoint, "S3-compatible endpoint")
	baseInterval := fs.Int("i", int(cfg.SyncBaseInterval.Seconds()), "base sync interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.SyncBaseInterval = time.Duration(*baseInterval) * time.Second
}
