// Package app wires the data layer together: local storage, remote client,
// image managers, entity services and the retry scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/config"
	"github.com/tastebase/tastebase/internal/events"
	"github.com/tastebase/tastebase/internal/imagesync"
	"github.com/tastebase/tastebase/internal/logging"
	"github.com/tastebase/tastebase/internal/models"
	"github.com/tastebase/tastebase/internal/remote"
	"github.com/tastebase/tastebase/internal/services"
	"github.com/tastebase/tastebase/internal/storage"
)

const (
	imageMaxDimension = 2048
	imageTargetBytes  = 512 * 1024
)

// App is the assembled data layer.
type App struct {
	Repos  *storage.Repositories
	Client remote.Client
	Bus    *events.Bus

	Recipes     *services.RecipeService
	Collections *services.CollectionService
	Profiles    *services.ProfileService
	Connections *services.ConnectionService

	RecipeImages  *imagesync.Manager
	ProfileImages *imagesync.Manager

	Scheduler *services.Scheduler

	cfg *config.Config
	log logging.Logger
}

// NewApp builds the full dependency graph from cfg. With no private bucket
// configured the app runs local-only against a no-op remote client.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	repos, err := storage.InitDatabase(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	var client remote.Client
	if cfg.PrivateBucket == "" {
		log.Info(ctx, "no remote store configured, running local-only")
		client = remote.NoopClient{}
	} else {
		client, err = remote.NewS3Client(ctx, remote.S3Options{
			Endpoint:      cfg.S3Endpoint,
			Region:        cfg.S3Region,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PrivateBucket: cfg.PrivateBucket,
			PublicBucket:  cfg.PublicBucket,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init remote client: %w", err)
		}
	}

	a := &App{
		Repos:  repos,
		Client: client,
		Bus:    events.NewBus(),
		cfg:    cfg,
		log:    log,
	}

	a.RecipeImages, err = a.newImageManager(models.KindRecipe, "recipes", log)
	if err != nil {
		return nil, err
	}
	a.ProfileImages, err = a.newImageManager(models.KindProfile, "profiles", log)
	if err != nil {
		return nil, err
	}

	a.Recipes = services.NewRecipeService(
		repos.Recipes, repos.SyncState, repos.Tombstones, repos.SyncOps,
		client, a.RecipeImages, a.Bus, log, cfg.MaxSyncAttempts)
	a.Collections = services.NewCollectionService(
		repos.Collections, repos.SyncState, repos.Tombstones, repos.SyncOps,
		client, a.Bus, log, cfg.MaxSyncAttempts)
	a.Profiles = services.NewProfileService(
		repos.Profiles, repos.SyncState, repos.Tombstones, repos.SyncOps,
		client, a.ProfileImages, a.Bus, log, cfg.MaxSyncAttempts)
	a.Connections = services.NewConnectionService(
		repos.Connections, repos.SyncState, repos.Tombstones, repos.SyncOps,
		client, a.Bus, log, cfg.MaxSyncAttempts)

	sources := []services.Source{
		a.Recipes.Syncer(),
		a.Collections.Syncer(),
		a.Profiles.Syncer(),
		a.Connections.Syncer(),
		services.ImageSource("recipe-images", a.RecipeImages),
		services.ImageSource("profile-images", a.ProfileImages),
	}
	a.Scheduler = services.NewScheduler(sources, repos.Tombstones,
		cfg.TombstoneRetention, cfg.SyncBaseInterval, cfg.SyncMaxInterval, log)

	return a, nil
}

// newImageManager builds the asset manager for one entity kind, bound to its
// own subdirectory and recording successful uploads in sync state.
func (a *App) newImageManager(kind models.Kind, subdir string, log logging.Logger) (*imagesync.Manager, error) {
	dir := filepath.Join(a.cfg.ImageDir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image dir %s: %w", dir, err)
	}

	partition := func(public bool) remote.Partition {
		if public {
			return remote.PartitionPublic
		}
		return remote.PartitionPrivate
	}

	ops := imagesync.CloudOps{
		Upload: func(ctx context.Context, entityID string, data []byte, public bool) (string, error) {
			return a.Client.UploadAsset(ctx, partition(public), entityID, data)
		},
		Download: func(ctx context.Context, entityID string, public bool) ([]byte, error) {
			return a.Client.DownloadAsset(ctx, partition(public), entityID)
		},
		Delete: func(ctx context.Context, entityID string, public bool) error {
			return a.Client.DeleteAsset(ctx, partition(public), entityID)
		},
		OnUploaded: func(ctx context.Context, entityID, remoteAssetID string, public bool, modifiedAt time.Time) {
			if err := a.Repos.SyncState.SetRemoteAsset(ctx, entityID, kind, remoteAssetID, public, modifiedAt); err != nil {
				log.Warn(ctx, "failed to record asset sync state", "id", entityID, "error", err)
			}
		},
	}

	cfg := imagesync.Config{
		Dir:          dir,
		MaxDimension: imageMaxDimension,
		TargetBytes:  imageTargetBytes,
		MaxAttempts:  a.cfg.MaxSyncAttempts,
	}
	return imagesync.NewManager(cfg, ops, log.With("images", string(kind))), nil
}

// Run probes the remote store, then blocks in the retry scheduler until ctx
// is cancelled. On return all detached propagation tasks have drained and
// the database is closed.
func (a *App) Run(ctx context.Context) error {
	if err := a.Client.Available(ctx); err != nil {
		if errors.Is(err, common.ErrNetworkUnavailable) {
			a.log.Warn(ctx, "remote store unreachable, writes stay local until it recovers")
		} else {
			a.log.Warn(ctx, "remote store probe failed", "error", err)
		}
	} else {
		a.log.Info(ctx, "remote store reachable")
	}

	a.log.Info(ctx, "scheduler started",
		"base", a.cfg.SyncBaseInterval, "max", a.cfg.SyncMaxInterval)
	a.Scheduler.Run(ctx)

	return a.Close()
}

// Close drains background work and releases the database handle.
func (a *App) Close() error {
	a.Recipes.Wait()
	a.Collections.Wait()
	a.Profiles.Wait()
	a.Connections.Wait()
	return a.Repos.DB.Close()
}
