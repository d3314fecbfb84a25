package profiles

import (
	"context"

	"github.com/tastebase/tastebase/internal/models"
)

// Repository describes CRUD operations for tenant profiles.
type Repository interface {
	CreateOrUpdate(ctx context.Context, p *models.Profile) error
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	GetAll(ctx context.Context) ([]models.Profile, error)
	DeleteByID(ctx context.Context, id string) error
}
