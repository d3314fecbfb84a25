package tombstones

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

func (r *SQLiteRepository) MarkDeleted(ctx context.Context, entityID string, kind models.Kind, remoteRecordID string) error {
	// INSERT OR IGNORE keeps the original deletion time on repeat calls.
	query := `insert or ignore into tombstones (entity_id, entity_kind, remote_record_id, deleted_at) values (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, entityID, kind, remoteRecordID, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert tombstone: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) IsDeleted(ctx context.Context, entityID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `select 1 from tombstones where entity_id=?`, entityID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check tombstone: %w", err)
	}
	return true, nil
}

func (r *SQLiteRepository) Get(ctx context.Context, entityID string) (*models.Tombstone, error) {
	query := `select entity_id, entity_kind, remote_record_id, deleted_at from tombstones where entity_id=?`
	row := r.db.QueryRowContext(ctx, query, entityID)

	var (
		t         models.Tombstone
		deletedAt int64
	)
	err := row.Scan(&t.EntityID, &t.EntityKind, &t.RemoteRecordID, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	t.DeletedAt = time.UnixMilli(deletedAt).UTC()
	return &t, nil
}

func (r *SQLiteRepository) Unmark(ctx context.Context, entityID string) error {
	if _, err := r.db.ExecContext(ctx, `delete from tombstones where entity_id=?`, entityID); err != nil {
		return fmt.Errorf("failed to remove tombstone: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `delete from tombstones where deleted_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to clean tombstones: %w", err)
	}
	return res.RowsAffected()
}
