package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tastebase/tastebase/internal/app"
	"github.com/tastebase/tastebase/internal/config"
	"github.com/tastebase/tastebase/internal/logging"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "tastebased",
	Short: "tastebased - local-first recipe data layer daemon",
	RunE:  run,
	// Config flags are layered (JSON file, env, flags) outside cobra.
	DisableFlagParsing: true,
}

var serveCmd = &cobra.Command{
	Use:                "serve",
	Short:              "Open the local store and run the sync scheduler",
	RunE:               run,
	DisableFlagParsing: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the daemon version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(Version)
	},
}

func run(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg := config.LoadConfig()

	logger := logging.NewSlogLogger(slog.New(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))

	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info(ctx, "tastebased starting",
		"version", Version, "db", cfg.DatabasePath, "images", cfg.ImageDir)

	return a.Run(ctx)
}

func main() {
	rootCmd.AddCommand(serveCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
