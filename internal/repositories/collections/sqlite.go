package collections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/dbx"
	"github.com/tastebase/tastebase/internal/models"
)

// SQLiteRepository implements Repository. Unlike the single-table repos it
// needs *sql.DB rather than DBTX: membership rewrites run in a transaction.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, c *models.Collection) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := ` INSERT INTO collections (id, owner_id, name, description, visibility, created_at, updated_at)
				values (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = excluded.name,
					description = excluded.description,
					visibility = excluded.visibility,
					updated_at = excluded.updated_at
		`
		_, err := tx.ExecContext(ctx, query,
			c.ID, c.OwnerID, c.Name, c.Description, c.Visibility,
			c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to upsert collection: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `delete from collection_recipes where collection_id=?`, c.ID); err != nil {
			return fmt.Errorf("failed to clear membership: %w", err)
		}
		for n, recipeID := range c.RecipeIDs {
			_, err := tx.ExecContext(ctx,
				`insert into collection_recipes (collection_id, recipe_id, position) values (?, ?, ?)`,
				c.ID, recipeID, n)
			if err != nil {
				return fmt.Errorf("failed to insert membership: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Collection, error) {
	query := `select id, owner_id, name, description, visibility, created_at, updated_at
		from collections where id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	c, err := scanCollection(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	if err := r.loadMembers(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Collection, error) {
	query := `select id, owner_id, name, description, visibility, created_at, updated_at
		from collections order by updated_at desc`
	return r.queryMany(ctx, query)
}

func (r *SQLiteRepository) GetByOwner(ctx context.Context, ownerID string) ([]models.Collection, error) {
	query := `select id, owner_id, name, description, visibility, created_at, updated_at
		from collections where owner_id=? order by updated_at desc`
	return r.queryMany(ctx, query, ownerID)
}

func (r *SQLiteRepository) GetByRecipe(ctx context.Context, recipeID string) ([]models.Collection, error) {
	query := `select c.id, c.owner_id, c.name, c.description, c.visibility, c.created_at, c.updated_at
		from collections c
		join collection_recipes cr on cr.collection_id = c.id
		where cr.recipe_id=? order by c.updated_at desc`
	return r.queryMany(ctx, query, recipeID)
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `delete from collection_recipes where collection_id=?`, id); err != nil {
			return fmt.Errorf("failed to clear membership: %w", err)
		}
		res, err := tx.ExecContext(ctx, `delete from collections where id=?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
		ra, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if ra == 0 {
			return common.ErrNotFound
		}
		return nil
	})
}

func (r *SQLiteRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.Collection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select collections: %w", err)
	}
	defer rows.Close()

	var result []models.Collection
	for rows.Next() {
		c, err := scanCollection(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for n := range result {
		if err := r.loadMembers(ctx, &result[n]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (r *SQLiteRepository) loadMembers(ctx context.Context, c *models.Collection) error {
	rows, err := r.db.QueryContext(ctx,
		`select recipe_id from collection_recipes where collection_id=? order by position`, c.ID)
	if err != nil {
		return fmt.Errorf("failed to select membership: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		c.RecipeIDs = append(c.RecipeIDs, id)
	}
	return rows.Err()
}

func scanCollection(scan func(dest ...any) error) (*models.Collection, error) {
	var (
		c                    models.Collection
		createdAt, updatedAt int64
	)
	if err := scan(&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.Visibility, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &c, nil
}
