package connections

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

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, c *models.Connection) error {
	query := ` INSERT INTO connections (id, owner_id, peer_id, status, created_at, updated_at)
			values (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET peer_id = excluded.peer_id,
				status = excluded.status,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.OwnerID, c.PeerID, c.Status, c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert connection: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Connection, error) {
	query := `select id, owner_id, peer_id, status, created_at, updated_at from connections where id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	c, err := scanConnection(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return c, nil
}

func (r *SQLiteRepository) GetByOwner(ctx context.Context, ownerID string) ([]models.Connection, error) {
	query := `select id, owner_id, peer_id, status, created_at, updated_at
		from connections where owner_id=? order by updated_at desc`
	return r.queryMany(ctx, query, ownerID)
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Connection, error) {
	query := `select id, owner_id, peer_id, status, created_at, updated_at
		from connections order by updated_at desc`
	return r.queryMany(ctx, query)
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `delete from connections where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
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

func (r *SQLiteRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.Connection, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select connections: %w", err)
	}
	defer rows.Close()

	var result []models.Connection
	for rows.Next() {
		c, err := scanConnection(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanConnection(scan func(dest ...any) error) (*models.Connection, error) {
	var (
		c                    models.Connection
		createdAt, updatedAt int64
	)
	if err := scan(&c.ID, &c.OwnerID, &c.PeerID, &c.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &c, nil
}
