package profiles

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

func (r *SQLiteRepository) CreateOrUpdate(ctx context.Context, p *models.Profile) error {
	query := ` INSERT INTO profiles (id, display_name, bio, visibility, has_avatar, created_at, updated_at)
			values (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name,
				bio = excluded.bio,
				visibility = excluded.visibility,
				has_avatar = excluded.has_avatar,
				updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.DisplayName, p.Bio, p.Visibility, p.HasAvatar,
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `select id, display_name, bio, visibility, has_avatar, created_at, updated_at
		from profiles where id=?`
	row := r.db.QueryRowContext(ctx, query, id)

	p, err := scanProfile(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	return p, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context) ([]models.Profile, error) {
	query := `select id, display_name, bio, visibility, has_avatar, created_at, updated_at
		from profiles order by updated_at desc`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select profiles: %w", err)
	}
	defer rows.Close()

	var result []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `delete from profiles where id=?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
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

func scanProfile(scan func(dest ...any) error) (*models.Profile, error) {
	var (
		p                    models.Profile
		createdAt, updatedAt int64
	)
	if err := scan(&p.ID, &p.DisplayName, &p.Bio, &p.Visibility, &p.HasAvatar, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &p, nil
}
