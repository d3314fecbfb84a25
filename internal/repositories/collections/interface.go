package collections

import (
	"context"

	"github.com/tastebase/tastebase/internal/models"
)

// Repository describes CRUD and query operations for Collection records,
// including recipe membership.
type Repository interface {
	// CreateOrUpdate upserts the collection and rewrites its membership rows
	// in one transaction.
	CreateOrUpdate(ctx context.Context, c *models.Collection) error

	// GetByID returns a collection with its ordered recipe ids, or
	// common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Collection, error)

	// GetAll returns every collection ordered by update time, newest first.
	GetAll(ctx context.Context) ([]models.Collection, error)

	// GetByOwner returns all collections belonging to ownerID, newest first.
	GetByOwner(ctx context.Context, ownerID string) ([]models.Collection, error)

	// GetByRecipe returns the collections containing the given recipe.
	GetByRecipe(ctx context.Context, recipeID string) ([]models.Collection, error)

	// DeleteByID removes the collection and its membership rows.
	DeleteByID(ctx context.Context, id string) error
}
