package connections

import (
	"context"

	"github.com/tastebase/tastebase/internal/models"
)

// Repository describes CRUD operations for tenant connections.
type Repository interface {
	CreateOrUpdate(ctx context.Context, c *models.Connection) error
	GetByID(ctx context.Context, id string) (*models.Connection, error)
	GetByOwner(ctx context.Context, ownerID string) ([]models.Connection, error)
	GetAll(ctx context.Context) ([]models.Connection, error)
	DeleteByID(ctx context.Context, id string) error
}
