package recipes

import (
	"context"

	"github.com/tastebase/tastebase/internal/models"
)

// Repository describes CRUD and query operations for Recipe records backed
// by the local store. Implementations never touch the network.
type Repository interface {
	// CreateOrUpdate inserts a new recipe or replaces an existing one by ID.
	CreateOrUpdate(ctx context.Context, r *models.Recipe) error

	// GetByID returns a recipe, or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Recipe, error)

	// GetAll returns every recipe ordered by update time, newest first.
	GetAll(ctx context.Context) ([]models.Recipe, error)

	// GetByOwner returns all recipes belonging to ownerID, newest first.
	GetByOwner(ctx context.Context, ownerID string) ([]models.Recipe, error)

	// DeleteByID removes the row. Resurrection protection is the tombstone
	// store's job, so this is a hard delete.
	DeleteByID(ctx context.Context, id string) error
}
