package syncstate

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

func (r *SQLiteRepository) Get(ctx context.Context, entityID string) (*models.SyncState, error) {
	query := `select entity_id, entity_kind, remote_record_id, remote_asset_record_id, remote_asset_modified_at, remote_public_asset_modified_at, last_synced_at
		from sync_states where entity_id=?`
	row := r.db.QueryRowContext(ctx, query, entityID)

	var (
		s                             models.SyncState
		recordID, assetID             sql.NullString
		assetMod, pubAssetMod, synced sql.NullInt64
	)
	err := row.Scan(&s.EntityID, &s.EntityKind, &recordID, &assetID, &assetMod, &pubAssetMod, &synced)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query row scan failed: %w", err)
	}
	if recordID.Valid {
		s.RemoteRecordID = &recordID.String
	}
	if assetID.Valid {
		s.RemoteAssetRecordID = &assetID.String
	}
	if assetMod.Valid {
		t := time.UnixMilli(assetMod.Int64).UTC()
		s.RemoteAssetModifiedAt = &t
	}
	if pubAssetMod.Valid {
		t := time.UnixMilli(pubAssetMod.Int64).UTC()
		s.RemotePublicAssetModifiedAt = &t
	}
	if synced.Valid {
		t := time.UnixMilli(synced.Int64).UTC()
		s.LastSyncedAt = &t
	}
	return &s, nil
}

func (r *SQLiteRepository) SetRemoteRecord(ctx context.Context, entityID string, kind models.Kind, remoteRecordID string, syncedAt time.Time) error {
	query := ` INSERT INTO sync_states (entity_id, entity_kind, remote_record_id, last_synced_at)
			values (?, ?, ?, ?)
			ON CONFLICT(entity_id) DO UPDATE SET remote_record_id = excluded.remote_record_id,
				last_synced_at = excluded.last_synced_at
	`
	_, err := r.db.ExecContext(ctx, query, entityID, kind, remoteRecordID, syncedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert sync state: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SetRemoteAsset(ctx context.Context, entityID string, kind models.Kind, remoteAssetID string, public bool, modifiedAt time.Time) error {
	column := "remote_asset_modified_at"
	if public {
		column = "remote_public_asset_modified_at"
	}
	query := fmt.Sprintf(` INSERT INTO sync_states (entity_id, entity_kind, remote_asset_record_id, %[1]s)
			values (?, ?, ?, ?)
			ON CONFLICT(entity_id) DO UPDATE SET remote_asset_record_id = excluded.remote_asset_record_id,
				%[1]s = excluded.%[1]s
	`, column)
	_, err := r.db.ExecContext(ctx, query, entityID, kind, remoteAssetID, modifiedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert asset sync state: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, entityID string) error {
	if _, err := r.db.ExecContext(ctx, `delete from sync_states where entity_id=?`, entityID); err != nil {
		return fmt.Errorf("failed to delete sync state: %w", err)
	}
	return nil
}
