// Package remote abstracts the two-partition remote object store. The
// private partition backs up every owned entity; the public partition holds
// copies of entities whose visibility is public.
package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/models"
)

// Partition names one of the two remote namespaces.
type Partition string

const (
	PartitionPrivate Partition = "private"
	PartitionPublic  Partition = "public"
)

// Record is the remote projection of an entity. Payload carries the entity's
// JSON encoding; ModifiedAt mirrors the local updated_at so sync-down can
// run last-write-wins comparisons without decoding the payload.
type Record struct {
	RecordID   string          `json:"record_id"`
	EntityID   string          `json:"entity_id"`
	Kind       models.Kind     `json:"kind"`
	OwnerID    string          `json:"owner_id"`
	Payload    json.RawMessage `json:"payload"`
	ModifiedAt time.Time       `json:"modified_at"`
}

// Client is the minimal surface the sync engine needs from the remote store.
// Implementations classify failures into the common sentinel errors:
// ErrNotFound, ErrNetworkUnavailable, ErrQuotaExceeded, ErrConflict.
type Client interface {
	// SaveRecord writes the record and returns its stable remote id.
	SaveRecord(ctx context.Context, p Partition, rec *Record) (string, error)

	// FetchRecord reads one record by entity id.
	FetchRecord(ctx context.Context, p Partition, kind models.Kind, entityID string) (*Record, error)

	// DeleteRecord removes a record. Deleting an absent record is not an error.
	DeleteRecord(ctx context.Context, p Partition, kind models.Kind, entityID string) error

	// ListRecords returns every record of a kind belonging to ownerID.
	ListRecords(ctx context.Context, p Partition, kind models.Kind, ownerID string) ([]*Record, error)

	// UploadAsset stores a binary asset keyed by entity id and returns the
	// remote asset id.
	UploadAsset(ctx context.Context, p Partition, entityID string, data []byte) (string, error)

	// DownloadAsset reads a binary asset, or ErrNotFound.
	DownloadAsset(ctx context.Context, p Partition, entityID string) ([]byte, error)

	// DeleteAsset removes an asset. Absent assets are not an error.
	DeleteAsset(ctx context.Context, p Partition, entityID string) error

	// Available probes reachability of the store.
	Available(ctx context.Context) error
}

// NoopClient is used when no remote store is configured: the daemon runs in
// local-only mode and every remote call reports the store as unreachable, so
// entities simply accumulate in pending sets until the retry cap drops them.
type NoopClient struct{}

func (NoopClient) SaveRecord(context.Context, Partition, *Record) (string, error) {
	return "", common.ErrNetworkUnavailable
}

func (NoopClient) FetchRecord(context.Context, Partition, models.Kind, string) (*Record, error) {
	return nil, common.ErrNetworkUnavailable
}

func (NoopClient) DeleteRecord(context.Context, Partition, models.Kind, string) error {
	return common.ErrNetworkUnavailable
}

func (NoopClient) ListRecords(context.Context, Partition, models.Kind, string) ([]*Record, error) {
	return nil, common.ErrNetworkUnavailable
}

func (NoopClient) UploadAsset(context.Context, Partition, string, []byte) (string, error) {
	return "", common.ErrNetworkUnavailable
}

func (NoopClient) DownloadAsset(context.Context, Partition, string) ([]byte, error) {
	return nil, common.ErrNetworkUnavailable
}

func (NoopClient) DeleteAsset(context.Context, Partition, string) error {
	return common.ErrNetworkUnavailable
}

func (NoopClient) Available(context.Context) error {
	return common.ErrNetworkUnavailable
}
