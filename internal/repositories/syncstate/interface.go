package syncstate

import (
	"context"
	"time"

	"github.com/tastebase/tastebase/internal/models"
)

// Repository tracks the remote-side state of each entity. Rows exist only
// for entities that have been pushed at least once (record or asset).
type Repository interface {
	// Get returns the sync state for an entity, or common.ErrNotFound when
	// the entity has never synced.
	Get(ctx context.Context, entityID string) (*models.SyncState, error)

	// SetRemoteRecord records a successful record push.
	SetRemoteRecord(ctx context.Context, entityID string, kind models.Kind, remoteRecordID string, syncedAt time.Time) error

	// SetRemoteAsset records a successful asset upload to one partition and
	// the local file modification time it captured.
	SetRemoteAsset(ctx context.Context, entityID string, kind models.Kind, remoteAssetID string, public bool, modifiedAt time.Time) error

	// Delete drops the sync state row (used on local delete).
	Delete(ctx context.Context, entityID string) error
}
