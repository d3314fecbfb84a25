package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/events"
	"github.com/tastebase/tastebase/internal/imagesync"
	"github.com/tastebase/tastebase/internal/logging"
	"github.com/tastebase/tastebase/internal/models"
	"github.com/tastebase/tastebase/internal/remote"
	"github.com/tastebase/tastebase/internal/repositories/recipes"
	"github.com/tastebase/tastebase/internal/repositories/syncops"
	"github.com/tastebase/tastebase/internal/repositories/syncstate"
	"github.com/tastebase/tastebase/internal/repositories/tombstones"
)

// RecipeService orchestrates recipe CRUD: every mutation lands in the local
// store synchronously, then propagates to the remote store in the background.
type RecipeService struct {
	repo       recipes.Repository
	syncState  syncstate.Repository
	tombstones tombstones.Repository
	syncOps    syncops.Repository
	images     *imagesync.Manager
	bus        *events.Bus
	log        logging.Logger
	eng        *engine

	clock func() time.Time
}

func NewRecipeService(
	repo recipes.Repository,
	state syncstate.Repository,
	tombs tombstones.Repository,
	ops syncops.Repository,
	client remote.Client,
	images *imagesync.Manager,
	bus *events.Bus,
	log logging.Logger,
	maxAttempts int,
) *RecipeService {
	s := &RecipeService{
		repo:       repo,
		syncState:  state,
		tombstones: tombs,
		syncOps:    ops,
		images:     images,
		bus:        bus,
		log:        log,
		clock:      time.Now,
	}
	s.eng = newEngine(models.KindRecipe, client, state, tombs, ops, images, bus, log, s.snapshot, maxAttempts)
	return s
}

// snapshot builds the remote projection from current local state.
func (s *RecipeService) snapshot(ctx context.Context, id string) (*remote.Record, models.Visibility, bool, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", false, err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: marshal recipe: %v", common.ErrInvalidData, err)
	}
	record := &remote.Record{
		EntityID:   rec.ID,
		Kind:       models.KindRecipe,
		OwnerID:    rec.OwnerID,
		Payload:    payload,
		ModifiedAt: rec.UpdatedAt,
	}
	return record, rec.Visibility, rec.HasImage, nil
}

// Create writes the recipe locally, clears any tombstone for its id (the
// user is knowingly re-creating it), enqueues a create operation and returns
// without waiting on the network.
func (s *RecipeService) Create(ctx context.Context, rec *models.Recipe) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Visibility == "" {
		rec.Visibility = models.VisibilityPrivate
	}
	now := s.clock().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	if err := s.repo.CreateOrUpdate(ctx, rec); err != nil {
		return err
	}
	if err := s.tombstones.Unmark(ctx, rec.ID); err != nil {
		return err
	}
	opID, err := s.syncOps.Enqueue(ctx, models.KindRecipe, rec.ID, models.OpCreate)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityCreated, EntityKind: models.KindRecipe, EntityID: rec.ID, Visibility: rec.Visibility})
	s.eng.schedulePush(rec.ID, opID)
	return nil
}

// Get reads one recipe from the local store only.
func (s *RecipeService) Get(ctx context.Context, id string) (*models.Recipe, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all recipes, newest first, from the local store only.
func (s *RecipeService) List(ctx context.Context) ([]models.Recipe, error) {
	return s.repo.GetAll(ctx)
}

// ListByOwner returns one owner's recipes, newest first.
func (s *RecipeService) ListByOwner(ctx context.Context, ownerID string) ([]models.Recipe, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// Update re-reads the prior state to diff asset and visibility side effects,
// writes the new state locally and triggers background propagation. With
// preserveTimestamp the caller's UpdatedAt is kept as-is (sync-origin
// reconciliation); otherwise it is bumped to now.
func (s *RecipeService) Update(ctx context.Context, rec *models.Recipe, preserveTimestamp bool) error {
	prev, err := s.repo.GetByID(ctx, rec.ID)
	if err != nil {
		return err
	}

	rec.OwnerID = prev.OwnerID
	rec.CreatedAt = prev.CreatedAt
	if !preserveTimestamp {
		rec.UpdatedAt = s.clock().UTC()
	}
	if rec.Visibility == "" {
		rec.Visibility = prev.Visibility
	}

	if err := s.repo.CreateOrUpdate(ctx, rec); err != nil {
		return err
	}
	opID, err := s.syncOps.Enqueue(ctx, models.KindRecipe, rec.ID, models.OpUpdate)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityUpdated, EntityKind: models.KindRecipe, EntityID: rec.ID, Visibility: rec.Visibility})
	if prev.Visibility != rec.Visibility {
		s.bus.Publish(events.Event{Type: events.VisibilityChanged, EntityKind: models.KindRecipe, EntityID: rec.ID, Visibility: rec.Visibility})
		if prev.Visibility == models.VisibilityPublic && rec.Visibility == models.VisibilityPrivate {
			s.eng.scheduleRetractPublic(rec.ID)
		}
	}
	if prev.HasImage && !rec.HasImage {
		s.removeAsset(ctx, rec.ID, prev.Visibility == models.VisibilityPublic)
	}

	s.eng.schedulePush(rec.ID, opID)
	return nil
}

// removeAsset deletes the local image and schedules remote asset removal.
func (s *RecipeService) removeAsset(ctx context.Context, id string, wasPublic bool) {
	if s.images == nil {
		return
	}
	if err := s.images.Delete(id); err != nil {
		s.log.Warn(ctx, "failed to remove local image", "id", id, "error", err)
	}
	s.eng.wg.Add(1)
	go func() {
		defer s.eng.wg.Done()
		bg := context.Background()
		if err := s.images.DeleteFromCloud(bg, id, false); err != nil && !errors.Is(err, common.ErrNotFound) {
			s.log.Warn(bg, "failed to remove remote image", "id", id, "error", err)
		}
		if wasPublic {
			if err := s.images.DeleteFromCloud(bg, id, true); err != nil && !errors.Is(err, common.ErrNotFound) {
				s.log.Warn(bg, "failed to remove public remote image", "id", id, "error", err)
			}
		}
	}()
}

// Delete removes the recipe locally, tombstones its id and schedules remote
// deletion from both partitions. The tombstone is written even if remote
// deletion later fails: resurrection protection is independent of it.
func (s *RecipeService) Delete(ctx context.Context, id string) error {
	prev, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	var remoteRecordID string
	if state, err := s.syncState.Get(ctx, id); err == nil && state.RemoteRecordID != nil {
		remoteRecordID = *state.RemoteRecordID
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return err
	}
	if err := s.syncOps.DeleteForEntity(ctx, id); err != nil {
		return err
	}
	if err := s.tombstones.MarkDeleted(ctx, id, models.KindRecipe, remoteRecordID); err != nil {
		return err
	}
	if err := s.syncState.Delete(ctx, id); err != nil {
		s.log.Warn(ctx, "failed to drop sync state", "id", id, "error", err)
	}
	if prev.HasImage && s.images != nil {
		if err := s.images.Delete(id); err != nil {
			s.log.Warn(ctx, "failed to remove local image", "id", id, "error", err)
		}
	}

	opID, err := s.syncOps.Enqueue(ctx, models.KindRecipe, id, models.OpDelete)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityDeleted, EntityKind: models.KindRecipe, EntityID: id, Visibility: prev.Visibility})
	s.eng.scheduleDelete(id, opID, prev.Visibility == models.VisibilityPublic, prev.HasImage)
	return nil
}

// ApplyRemote materializes a remote-origin record locally, unless the id is
// tombstoned or the local copy is newer (last-write-wins on UpdatedAt).
// Reconciliation preserves the source timestamp.
func (s *RecipeService) ApplyRemote(ctx context.Context, record *remote.Record) error {
	deleted, err := s.tombstones.IsDeleted(ctx, record.EntityID)
	if err != nil {
		return err
	}
	if deleted {
		s.log.Debug(ctx, "discarding remote record for tombstoned id", "id", record.EntityID)
		return nil
	}

	var incoming models.Recipe
	if err := json.Unmarshal(record.Payload, &incoming); err != nil {
		return fmt.Errorf("%w: unmarshal recipe: %v", common.ErrInvalidData, err)
	}

	existing, err := s.repo.GetByID(ctx, incoming.ID)
	switch {
	case err == nil:
		if !incoming.UpdatedAt.After(existing.UpdatedAt) {
			return nil // local copy is at least as new
		}
	case errors.Is(err, common.ErrNotFound):
		// first sighting on this device
	default:
		return err
	}

	if err := s.repo.CreateOrUpdate(ctx, &incoming); err != nil {
		return err
	}
	if record.RecordID != "" {
		if err := s.syncState.SetRemoteRecord(ctx, incoming.ID, models.KindRecipe, record.RecordID, s.clock().UTC()); err != nil {
			s.log.Warn(ctx, "failed to record sync state", "id", incoming.ID, "error", err)
		}
	}

	evType := events.EntityUpdated
	if existing == nil {
		evType = events.EntityCreated
	}
	s.bus.Publish(events.Event{Type: evType, EntityKind: models.KindRecipe, EntityID: incoming.ID, Visibility: incoming.Visibility})
	return nil
}

// Restore pulls every private-partition recipe for an owner through the
// tombstone/LWW guard; used when a device rejoins.
func (s *RecipeService) Restore(ctx context.Context, ownerID string) error {
	records, err := s.eng.client.ListRecords(ctx, remote.PartitionPrivate, models.KindRecipe, ownerID)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := s.ApplyRemote(ctx, record); err != nil {
			s.log.Warn(ctx, "failed to apply remote recipe", "id", record.EntityID, "error", err)
		}
	}
	return nil
}

// Images exposes the image manager for callers that store recipe photos.
func (s *RecipeService) Images() *imagesync.Manager {
	return s.images
}

// Syncer exposes the propagation engine as a scheduler source.
func (s *RecipeService) Syncer() Source {
	return s.eng
}

// Wait drains detached propagation tasks; for shutdown and tests.
func (s *RecipeService) Wait() {
	s.eng.Wait()
}
