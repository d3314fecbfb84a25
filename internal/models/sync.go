package models

import "time"

// SyncState is the nullable cloud-side counterpart of an entity record,
// joined by EntityID. A nil RemoteRecordID means the entity has never been
// pushed successfully. Asset modification times are tracked per partition
// so a visibility change can tell which remote copy is missing or stale.
type SyncState struct {
	EntityID                    string
	EntityKind                  Kind
	RemoteRecordID              *string
	RemoteAssetRecordID         *string
	RemoteAssetModifiedAt       *time.Time
	RemotePublicAssetModifiedAt *time.Time
	LastSyncedAt                *time.Time
}

// OpKind is the kind of a queued sync operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// OpStatus is a sync operation's position in its state machine:
// queued → in_progress → completed | failed.
type OpStatus string

const (
	OpQueued     OpStatus = "queued"
	OpInProgress OpStatus = "in_progress"
	OpCompleted  OpStatus = "completed"
	OpFailed     OpStatus = "failed"
)

// SyncOperation is one durable row of the propagation queue. Operations
// carry no payload: executing one re-reads current local state, so several
// queued updates for the same id collapse into a single remote write.
type SyncOperation struct {
	ID         int64
	EntityKind Kind
	EntityID   string
	OpKind     OpKind
	Status     OpStatus
	LastError  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Tombstone records a local deletion so a stale remote copy can never
// resurrect the entity. RemoteRecordID is kept for the remote delete that
// may still be outstanding when the tombstone is written.
type Tombstone struct {
	EntityID       string
	EntityKind     Kind
	RemoteRecordID string
	DeletedAt      time.Time
}
