package tombstones

import (
	"context"
	"time"

	"github.com/tastebase/tastebase/internal/models"
)

// Repository is the authoritative record of locally deleted entity ids.
// While a tombstone exists, no remote-origin write may materialize that id.
type Repository interface {
	// MarkDeleted writes a tombstone. A second call for the same id is a
	// no-op: the first deletion time wins.
	MarkDeleted(ctx context.Context, entityID string, kind models.Kind, remoteRecordID string) error

	// IsDeleted reports whether a tombstone exists for the id.
	IsDeleted(ctx context.Context, entityID string) (bool, error)

	// Get returns the tombstone for an id, or common.ErrNotFound.
	Get(ctx context.Context, entityID string) (*models.Tombstone, error)

	// Unmark removes a tombstone; used when the user knowingly re-creates
	// a previously deleted id.
	Unmark(ctx context.Context, entityID string) error

	// Cleanup deletes tombstones older than the cutoff and returns how many
	// were removed. Safe once cross-device propagation is assumed complete.
	Cleanup(ctx context.Context, olderThan time.Time) (int64, error)
}
