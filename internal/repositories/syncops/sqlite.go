package syncops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tastebase/tastebase/internal/dbx"
	"github.com/tastebase/tastebase/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Enqueue(ctx context.Context, kind models.Kind, entityID string, op models.OpKind) (int64, error) {
	var existing int64
	err := r.db.QueryRowContext(ctx,
		`select id from sync_operations where entity_id=? and op_kind=? and status=?`,
		entityID, op, models.OpQueued).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to check queued operation: %w", err)
	}

	now := time.Now().UnixMilli()
	res, err := r.db.ExecContext(ctx,
		`insert into sync_operations (entity_kind, entity_id, op_kind, status, created_at, updated_at) values (?, ?, ?, ?, ?, ?)`,
		kind, entityID, op, models.OpQueued, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue operation: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) MarkInProgress(ctx context.Context, opID int64) error {
	return r.setStatus(ctx, opID, models.OpInProgress, "")
}

func (r *SQLiteRepository) MarkCompleted(ctx context.Context, opID int64) error {
	return r.setStatus(ctx, opID, models.OpCompleted, "")
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, opID int64, lastError string) error {
	return r.setStatus(ctx, opID, models.OpFailed, lastError)
}

func (r *SQLiteRepository) setStatus(ctx context.Context, opID int64, status models.OpStatus, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`update sync_operations set status=?, last_error=?, updated_at=? where id=?`,
		status, lastError, time.Now().UnixMilli(), opID)
	if err != nil {
		return fmt.Errorf("failed to set operation status: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteForEntity(ctx context.Context, entityID string) error {
	_, err := r.db.ExecContext(ctx,
		`delete from sync_operations where entity_id=? and status in (?, ?)`,
		entityID, models.OpQueued, models.OpInProgress)
	if err != nil {
		return fmt.Errorf("failed to delete operations: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByStatus(ctx context.Context, status models.OpStatus) ([]models.SyncOperation, error) {
	query := `select id, entity_kind, entity_id, op_kind, status, last_error, created_at, updated_at
		from sync_operations where status=? order by id`
	return r.queryMany(ctx, query, status)
}

func (r *SQLiteRepository) GetForEntity(ctx context.Context, entityID string) ([]models.SyncOperation, error) {
	query := `select id, entity_kind, entity_id, op_kind, status, last_error, created_at, updated_at
		from sync_operations where entity_id=? order by id`
	return r.queryMany(ctx, query, entityID)
}

func (r *SQLiteRepository) queryMany(ctx context.Context, query string, args ...any) ([]models.SyncOperation, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select operations: %w", err)
	}
	defer rows.Close()

	var result []models.SyncOperation
	for rows.Next() {
		var (
			op                   models.SyncOperation
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&op.ID, &op.EntityKind, &op.EntityID, &op.OpKind, &op.Status,
			&op.LastError, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		op.CreatedAt = time.UnixMilli(createdAt).UTC()
		op.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		result = append(result, op)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
