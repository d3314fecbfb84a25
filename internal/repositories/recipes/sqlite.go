package recipes

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/dbx"
	"github.com/tastebase/tastebase/internal/models"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

// NewSQLiteRepository returns a new SQLiteRepository bound to the given DBTX.
func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, rec *models.Recipe) error {
	ingredients, err := json.Marshal(rec.Ingredients)
	if err != nil {
		return fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	steps, err := json.Marshal(rec.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}
	tags, err := json.Marshal(rec.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := ` INSERT INTO recipes (id, owner_id, title, ingredients, steps, notes, tags, visibility, has_image, created_at, updated_at)
			values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET title = excluded.title,
				ingredients = excluded.ingredients,
				steps = excluded.steps,
				notes = excluded.notes,
				tags = excluded.tags,
				visibility = excluded.visibility,
				has_image = excluded.has_image,
				updated_at = excluded.updated_at
	`
	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.Title, ingredients, steps, rec.Notes, tags,
		rec.Visibility, rec.HasImage, rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert recipe: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Recipe, error) {
	query := `select id, owner_id, title, ingredients, steps, notes, tags, visibility, has_image, created_at, updated_at
		from recipes where id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	rec, err := scanRecipe(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return rec, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Recipe, error) {
	query := `select id, owner_id, title, ingredients, steps, notes, tags, visibility, has_image, created_at, updated_at
		from recipes order by updated_at desc`
	return r.queryMany(ctx, query)
}

func (r *SQLiteRepository) GetByOwner(ctx context.Context, ownerID string) ([]models.Recipe, error) {
	query := `select id, owner_id, title, ingredients, steps, notes, tags, visibility, has_image, created_at, updated_at
		from recipes where owner_id=? order by updated_at desc`
	return r.queryMany(ctx, query, ownerID)
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `delete from recipes where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recipe: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if ra == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.Recipe, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select recipes: %w", err)
	}
	defer rows.Close()

	var result []models.Recipe
	for rows.Next() {
		rec, err := scanRecipe(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanRecipe(scan func(dest ...any) error) (*models.Recipe, error) {
	var (
		rec                     models.Recipe
		ingredients, steps, tags []byte
		createdAt, updatedAt    int64
	)
	if err := scan(&rec.ID, &rec.OwnerID, &rec.Title, &ingredients, &steps, &rec.Notes, &tags,
		&rec.Visibility, &rec.HasImage, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(ingredients, &rec.Ingredients); err != nil {
		return nil, fmt.Errorf("%w: ingredients: %v", common.ErrInvalidData, err)
	}
	if err := json.Unmarshal(steps, &rec.Steps); err != nil {
		return nil, fmt.Errorf("%w: steps: %v", common.ErrInvalidData, err)
	}
	if err := json.Unmarshal(tags, &rec.Tags); err != nil {
		return nil, fmt.Errorf("%w: tags: %v", common.ErrInvalidData, err)
	}
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &rec, nil
}
