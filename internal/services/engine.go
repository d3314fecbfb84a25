// Package services hosts the per-entity-kind orchestration: synchronous
// local writes, the durable operation queue, detached background propagation
// to the remote store, and the retry scheduler that heals failures.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/events"
	"github.com/tastebase/tastebase/internal/imagesync"
	"github.com/tastebase/tastebase/internal/logging"
	"github.com/tastebase/tastebase/internal/models"
	"github.com/tastebase/tastebase/internal/remote"
	"github.com/tastebase/tastebase/internal/repositories/syncops"
	"github.com/tastebase/tastebase/internal/repositories/syncstate"
	"github.com/tastebase/tastebase/internal/repositories/tombstones"
)

// snapshotFunc re-reads current local state and returns the remote
// projection plus visibility and whether a local image asset exists.
// Propagation always works from a fresh snapshot, never a captured payload,
// so a late-finishing task cannot overwrite newer local state.
type snapshotFunc func(ctx context.Context, entityID string) (*remote.Record, models.Visibility, bool, error)

// opRetract is a pending-set-only marker for "delete the public copy after
// a visibility transition to private". It is never persisted to the
// operation queue, whose op kinds stay create/update/delete.
const opRetract models.OpKind = "retract"

// pendingKey keys the pending set by (id, op) so a failed delete or
// retraction is never collapsed into a plain push retry, and a push success
// cannot wipe an outstanding delete or retract marker for the same id.
type pendingKey struct {
	id string
	op models.OpKind
}

type pendingItem struct {
	attempts int
}

// engine is the propagation half shared by every entity service. Its
// mutable state (the pending set) is only touched under its own mutex.
type engine struct {
	kind        models.Kind
	client      remote.Client
	syncState   syncstate.Repository
	tombstones  tombstones.Repository
	syncOps     syncops.Repository
	images      *imagesync.Manager // nil for kinds without assets
	bus         *events.Bus
	log         logging.Logger
	snapshot    snapshotFunc
	maxAttempts int

	mu      sync.Mutex
	pending map[pendingKey]*pendingItem

	wg sync.WaitGroup
}

func newEngine(
	kind models.Kind,
	client remote.Client,
	syncState syncstate.Repository,
	tombs tombstones.Repository,
	ops syncops.Repository,
	images *imagesync.Manager,
	bus *events.Bus,
	log logging.Logger,
	snapshot snapshotFunc,
	maxAttempts int,
) *engine {
	if maxAttempts <= 0 {
		maxAttempts = 10
	}
	return &engine{
		kind:        kind,
		client:      client,
		syncState:   syncState,
		tombstones:  tombs,
		syncOps:     ops,
		images:      images,
		bus:         bus,
		log:         log.With("kind", kind),
		snapshot:    snapshot,
		maxAttempts: maxAttempts,
		pending:     make(map[pendingKey]*pendingItem),
	}
}

// schedulePush launches a detached task pushing the entity's current state.
// The caller's context is deliberately not used: the caller returns as soon
// as the local write lands.
func (e *engine) schedulePush(entityID string, opID int64) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.push(context.Background(), entityID, opID)
	}()
}

// scheduleDelete launches a detached task removing the entity's remote
// copies. The local row is already gone, so everything needed to execute is
// passed explicitly (and re-derivable from the tombstone on retry).
func (e *engine) scheduleDelete(entityID string, opID int64, wasPublic, hadAsset bool) {
	// the local row is gone, so any queued push or retraction is moot
	e.clearPending(entityID, models.OpUpdate)
	e.clearPending(entityID, opRetract)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pushDelete(context.Background(), entityID, opID, wasPublic, hadAsset)
	}()
}

// scheduleRetractPublic launches a detached task deleting the entity's
// public-partition copy (record and asset) after a transition to private.
// The private partition is untouched.
func (e *engine) scheduleRetractPublic(entityID string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.retractPublic(context.Background(), entityID)
	}()
}

// retractPublic removes the public record and asset for an entity.
func (e *engine) retractPublic(ctx context.Context, entityID string) bool {
	if err := e.client.DeleteRecord(ctx, remote.PartitionPublic, e.kind, entityID); err != nil {
		e.recordFailure(ctx, entityID, 0, opRetract, err)
		return false
	}
	if e.images != nil {
		if err := e.images.DeleteFromCloud(ctx, entityID, true); err != nil && !errors.Is(err, common.ErrNotFound) {
			e.recordFailure(ctx, entityID, 0, opRetract, err)
			return false
		}
	}
	e.clearPending(entityID, opRetract)
	e.log.Debug(ctx, "public copy retracted", "id", entityID)
	return true
}

// Wait blocks until every detached propagation task has finished. Used by
// shutdown and tests; never by the write paths.
func (e *engine) Wait() {
	e.wg.Wait()
}

// push propagates the entity's current local state: private partition
// always, public partition while visible. Asset upload failures do not fail
// the record push; they route into the image manager's pending set which
// has its own retry budget.
func (e *engine) push(ctx context.Context, entityID string, opID int64) bool {
	if opID != 0 {
		if err := e.syncOps.MarkInProgress(ctx, opID); err != nil {
			e.log.Warn(ctx, "failed to mark operation in progress", "id", entityID, "error", err)
		}
	}

	rec, visibility, hasAsset, err := e.snapshot(ctx, entityID)
	if errors.Is(err, common.ErrNotFound) {
		// Deleted between enqueue and execution; the delete op owns cleanup.
		e.completeOp(ctx, opID)
		e.clearPending(entityID, models.OpUpdate)
		return true
	}
	if err != nil {
		e.recordFailure(ctx, entityID, opID, models.OpUpdate, err)
		return false
	}

	recordID, err := e.client.SaveRecord(ctx, remote.PartitionPrivate, rec)
	if err != nil {
		e.recordFailure(ctx, entityID, opID, models.OpUpdate, err)
		return false
	}
	if err := e.syncState.SetRemoteRecord(ctx, entityID, e.kind, recordID, time.Now().UTC()); err != nil {
		e.log.Error(ctx, "failed to record sync state", "id", entityID, "error", err)
	}

	if visibility == models.VisibilityPublic {
		if _, err := e.client.SaveRecord(ctx, remote.PartitionPublic, rec); err != nil {
			e.recordFailure(ctx, entityID, opID, models.OpUpdate, err)
			return false
		}
	}

	if hasAsset && e.images != nil {
		e.syncAsset(ctx, entityID, visibility)
	}

	e.completeOp(ctx, opID)
	e.clearPending(entityID, models.OpUpdate)
	e.bus.Publish(events.Event{Type: events.EntitySynced, EntityKind: e.kind, EntityID: entityID, Visibility: visibility})
	e.log.Debug(ctx, "push complete", "id", entityID)
	return true
}

// syncAsset uploads the local image to each partition whose remote copy is
// missing or older than the local file.
func (e *engine) syncAsset(ctx context.Context, entityID string, visibility models.Visibility) {
	needPrivate, needPublic, err := e.assetNeeds(ctx, entityID, visibility)
	if err != nil {
		e.log.Warn(ctx, "failed to check asset freshness", "id", entityID, "error", err)
		return
	}
	if needPrivate {
		if _, err := e.images.UploadToCloud(ctx, entityID, false); err != nil {
			e.handleAssetFailure(ctx, entityID, true, needPublic, err)
			return
		}
	}
	if needPublic {
		if _, err := e.images.UploadToCloud(ctx, entityID, true); err != nil {
			e.handleAssetFailure(ctx, entityID, false, true, err)
		}
	}
}

func (e *engine) handleAssetFailure(ctx context.Context, entityID string, needPrivate, needPublic bool, err error) {
	if !common.Retryable(err) {
		e.log.Warn(ctx, "asset upload failed terminally", "id", entityID, "error", err)
		return
	}
	e.log.Warn(ctx, "asset upload failed, queued for retry", "id", entityID, "error", err)
	e.images.MarkPending(entityID, needPrivate, needPublic)
}

// assetNeeds reports which partitions need the local image uploaded. The
// comparison is per partition and at the millisecond precision the sync
// state stores, so a fresh private copy cannot mask a missing public one
// and sub-millisecond file times never read as stale.
func (e *engine) assetNeeds(ctx context.Context, entityID string, visibility models.Visibility) (needPrivate, needPublic bool, err error) {
	mod, err := e.images.ModTime(entityID)
	if errors.Is(err, common.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	mod = mod.Truncate(time.Millisecond)

	public := visibility == models.VisibilityPublic
	state, err := e.syncState.Get(ctx, entityID)
	if errors.Is(err, common.ErrNotFound) {
		return true, public, nil
	}
	if err != nil {
		return false, false, err
	}
	needPrivate = state.RemoteAssetModifiedAt == nil || mod.After(*state.RemoteAssetModifiedAt)
	needPublic = public && (state.RemotePublicAssetModifiedAt == nil || mod.After(*state.RemotePublicAssetModifiedAt))
	return needPrivate, needPublic, nil
}

// pushDelete removes the entity's remote copies. The tombstone already
// exists regardless of what happens here.
func (e *engine) pushDelete(ctx context.Context, entityID string, opID int64, wasPublic, hadAsset bool) bool {
	if opID != 0 {
		if err := e.syncOps.MarkInProgress(ctx, opID); err != nil {
			e.log.Warn(ctx, "failed to mark operation in progress", "id", entityID, "error", err)
		}
	}

	if err := e.client.DeleteRecord(ctx, remote.PartitionPrivate, e.kind, entityID); err != nil {
		e.recordFailure(ctx, entityID, opID, models.OpDelete, err)
		return false
	}
	if wasPublic {
		if err := e.client.DeleteRecord(ctx, remote.PartitionPublic, e.kind, entityID); err != nil {
			e.recordFailure(ctx, entityID, opID, models.OpDelete, err)
			return false
		}
	}
	if hadAsset && e.images != nil {
		if err := e.images.DeleteFromCloud(ctx, entityID, false); err != nil && !errors.Is(err, common.ErrNotFound) {
			e.recordFailure(ctx, entityID, opID, models.OpDelete, err)
			return false
		}
		if wasPublic {
			if err := e.images.DeleteFromCloud(ctx, entityID, true); err != nil && !errors.Is(err, common.ErrNotFound) {
				e.recordFailure(ctx, entityID, opID, models.OpDelete, err)
				return false
			}
		}
	}

	e.completeOp(ctx, opID)
	e.clearAllPending(entityID)
	e.log.Debug(ctx, "remote delete complete", "id", entityID)
	return true
}

func (e *engine) completeOp(ctx context.Context, opID int64) {
	if opID == 0 {
		return
	}
	if err := e.syncOps.MarkCompleted(ctx, opID); err != nil {
		e.log.Warn(ctx, "failed to mark operation completed", "error", err)
	}
}

// recordFailure logs the failure, marks the op row failed and routes the id
// into the pending set unless the failure is terminal or the attempt budget
// is spent.
func (e *engine) recordFailure(ctx context.Context, entityID string, opID int64, op models.OpKind, err error) {
	e.log.Warn(ctx, "propagation failed", "id", entityID, "op", op, "error", err)
	if opID != 0 {
		if merr := e.syncOps.MarkFailed(ctx, opID, err.Error()); merr != nil {
			e.log.Warn(ctx, "failed to mark operation failed", "error", merr)
		}
	}

	if !common.Retryable(err) {
		e.clearPending(entityID, op)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	key := pendingKey{id: entityID, op: op}
	item, ok := e.pending[key]
	if !ok {
		item = &pendingItem{}
		e.pending[key] = item
	}
	item.attempts++
	if item.attempts >= e.maxAttempts {
		e.log.Warn(ctx, "propagation retries exhausted, entity stays local-only", "id", entityID, "op", op, "attempts", item.attempts)
		delete(e.pending, key)
	}
}

func (e *engine) clearPending(entityID string, op models.OpKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, pendingKey{id: entityID, op: op})
}

// clearAllPending drops every marker for an id; only a completed remote
// delete may call it, since that supersedes pushes and retractions alike.
func (e *engine) clearAllPending(entityID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.pending {
		if key.id == entityID {
			delete(e.pending, key)
		}
	}
}

// PendingCount reports outstanding retry markers, one per (id, op).
func (e *engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Name identifies the engine to the scheduler.
func (e *engine) Name() string {
	return string(e.kind)
}

// Sweep retries every pending id once, synchronously. Deletes re-derive
// their parameters from the tombstone; pushes re-read current local state.
func (e *engine) Sweep(ctx context.Context) (succeeded, failed int) {
	e.mu.Lock()
	batch := make([]pendingKey, 0, len(e.pending))
	for key := range e.pending {
		batch = append(batch, key)
	}
	e.mu.Unlock()

	for _, key := range batch {
		var ok bool
		switch key.op {
		case opRetract:
			ok = e.retractPublic(ctx, key.id)
		case models.OpDelete:
			deleted, err := e.tombstones.IsDeleted(ctx, key.id)
			if err != nil {
				e.log.Warn(ctx, "failed to check tombstone for retry", "id", key.id, "error", err)
				failed++
				continue
			}
			if !deleted {
				// Tombstone already cleaned up; nothing left to delete.
				e.clearPending(key.id, models.OpDelete)
				continue
			}
			// Deleting absent public copies and assets is a no-op, so the
			// retry always sweeps both partitions.
			ok = e.pushDelete(ctx, key.id, 0, true, e.images != nil)
		default:
			ok = e.push(ctx, key.id, 0)
		}
		if ok {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
