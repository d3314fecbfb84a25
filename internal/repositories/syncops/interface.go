package syncops

import (
	"context"

	"github.com/tastebase/tastebase/internal/models"
)

// Repository is the durable queue of propagation operations. Rows move
// queued → in_progress → completed | failed. Failed rows stay queryable for
// diagnostics; re-execution is driven by the pending sets, not by replaying
// this log.
type Repository interface {
	// Enqueue records a pending operation. An already-queued row for the
	// same (entity, opKind) is reused, so duplicate enqueues collapse.
	Enqueue(ctx context.Context, kind models.Kind, entityID string, op models.OpKind) (int64, error)

	MarkInProgress(ctx context.Context, opID int64) error
	MarkCompleted(ctx context.Context, opID int64) error
	MarkFailed(ctx context.Context, opID int64, lastError string) error

	// DeleteForEntity removes every queued/in-progress row for an entity;
	// called when the entity is deleted locally.
	DeleteForEntity(ctx context.Context, entityID string) error

	// GetByStatus lists operations in a given state, oldest first.
	GetByStatus(ctx context.Context, status models.OpStatus) ([]models.SyncOperation, error)

	// GetForEntity lists every operation recorded for an entity.
	GetForEntity(ctx context.Context, entityID string) ([]models.SyncOperation, error)
}
