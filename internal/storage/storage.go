// Package storage opens the local sqlite database, applies migrations and
// wires up the repository set.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/tastebase/tastebase/internal/migrations"
	"github.com/tastebase/tastebase/internal/repositories/collections"
	"github.com/tastebase/tastebase/internal/repositories/connections"
	"github.com/tastebase/tastebase/internal/repositories/profiles"
	"github.com/tastebase/tastebase/internal/repositories/recipes"
	"github.com/tastebase/tastebase/internal/repositories/syncops"
	"github.com/tastebase/tastebase/internal/repositories/syncstate"
	"github.com/tastebase/tastebase/internal/repositories/tombstones"
)

// Repositories bundles every repository bound to one database handle.
type Repositories struct {
	Recipes     recipes.Repository
	Collections collections.Repository
	Profiles    profiles.Repository
	Connections connections.Repository
	SyncState   syncstate.Repository
	Tombstones  tombstones.Repository
	SyncOps     syncops.Repository
	DB          *sql.DB
}

// RunMigrations applies all embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (or creates) the sqlite database at dsn, migrates it and
// returns the repository set.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// A single connection sidesteps sqlite writer contention; the data layer
	// serializes writes per repository anyway.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		return nil, err
	}

	repos := &Repositories{
		Recipes:     recipes.NewSQLiteRepository(db),
		Collections: collections.NewSQLiteRepository(db),
		Profiles:    profiles.NewSQLiteRepository(db),
		Connections: connections.NewSQLiteRepository(db),
		SyncState:   syncstate.NewSQLiteRepository(db),
		Tombstones:  tombstones.NewSQLiteRepository(db),
		SyncOps:     syncops.NewSQLiteRepository(db),
		DB:          db,
	}
	return repos, nil
}
