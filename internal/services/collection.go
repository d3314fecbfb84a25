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
	"github.com/tastebase/tastebase/internal/logging"
	"github.com/tastebase/tastebase/internal/models"
	"github.com/tastebase/tastebase/internal/remote"
	"github.com/tastebase/tastebase/internal/repositories/collections"
	"github.com/tastebase/tastebase/internal/repositories/syncops"
	"github.com/tastebase/tastebase/internal/repositories/syncstate"
	"github.com/tastebase/tastebase/internal/repositories/tombstones"
)

// CollectionService orchestrates collection CRUD. Collections carry no
// image asset; membership rows ride along inside the record payload.
type CollectionService struct {
	repo       collections.Repository
	syncState  syncstate.Repository
	tombstones tombstones.Repository
	syncOps    syncops.Repository
	bus        *events.Bus
	log        logging.Logger
	eng        *engine

	clock func() time.Time
}

func NewCollectionService(
	repo collections.Repository,
	state syncstate.Repository,
	tombs tombstones.Repository,
	ops syncops.Repository,
	client remote.Client,
	bus *events.Bus,
	log logging.Logger,
	maxAttempts int,
) *CollectionService {
	s := &CollectionService{
		repo:       repo,
		syncState:  state,
		tombstones: tombs,
		syncOps:    ops,
		bus:        bus,
		log:        log,
		clock:      time.Now,
	}
	s.eng = newEngine(models.KindCollection, client, state, tombs, ops, nil, bus, log, s.snapshot, maxAttempts)
	return s
}

func (s *CollectionService) snapshot(ctx context.Context, id string) (*remote.Record, models.Visibility, bool, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", false, err
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: marshal collection: %v", common.ErrInvalidData, err)
	}
	record := &remote.Record{
		EntityID:   c.ID,
		Kind:       models.KindCollection,
		OwnerID:    c.OwnerID,
		Payload:    payload,
		ModifiedAt: c.UpdatedAt,
	}
	return record, c.Visibility, false, nil
}

func (s *CollectionService) Create(ctx context.Context, c *models.Collection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Visibility == "" {
		c.Visibility = models.VisibilityPrivate
	}
	now := s.clock().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}

	if err := s.repo.CreateOrUpdate(ctx, c); err != nil {
		return err
	}
	if err := s.tombstones.Unmark(ctx, c.ID); err != nil {
		return err
	}
	opID, err := s.syncOps.Enqueue(ctx, models.KindCollection, c.ID, models.OpCreate)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityCreated, EntityKind: models.KindCollection, EntityID: c.ID, Visibility: c.Visibility})
	s.eng.schedulePush(c.ID, opID)
	return nil
}

func (s *CollectionService) Get(ctx context.Context, id string) (*models.Collection, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *CollectionService) List(ctx context.Context) ([]models.Collection, error) {
	return s.repo.GetAll(ctx)
}

func (s *CollectionService) ListByOwner(ctx context.Context, ownerID string) ([]models.Collection, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// ListContaining returns the collections a recipe belongs to.
func (s *CollectionService) ListContaining(ctx context.Context, recipeID string) ([]models.Collection, error) {
	return s.repo.GetByRecipe(ctx, recipeID)
}

func (s *CollectionService) Update(ctx context.Context, c *models.Collection, preserveTimestamp bool) error {
	prev, err := s.repo.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}

	c.OwnerID = prev.OwnerID
	c.CreatedAt = prev.CreatedAt
	if !preserveTimestamp {
		c.UpdatedAt = s.clock().UTC()
	}
	if c.Visibility == "" {
		c.Visibility = prev.Visibility
	}

	if err := s.repo.CreateOrUpdate(ctx, c); err != nil {
		return err
	}
	opID, err := s.syncOps.Enqueue(ctx, models.KindCollection, c.ID, models.OpUpdate)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityUpdated, EntityKind: models.KindCollection, EntityID: c.ID, Visibility: c.Visibility})
	if prev.Visibility != c.Visibility {
		s.bus.Publish(events.Event{Type: events.VisibilityChanged, EntityKind: models.KindCollection, EntityID: c.ID, Visibility: c.Visibility})
		if prev.Visibility == models.VisibilityPublic && c.Visibility == models.VisibilityPrivate {
			s.eng.scheduleRetractPublic(c.ID)
		}
	}

	s.eng.schedulePush(c.ID, opID)
	return nil
}

func (s *CollectionService) Delete(ctx context.Context, id string) error {
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
	if err := s.tombstones.MarkDeleted(ctx, id, models.KindCollection, remoteRecordID); err != nil {
		return err
	}
	if err := s.syncState.Delete(ctx, id); err != nil {
		s.log.Warn(ctx, "failed to drop sync state", "id", id, "error", err)
	}

	opID, err := s.syncOps.Enqueue(ctx, models.KindCollection, id, models.OpDelete)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityDeleted, EntityKind: models.KindCollection, EntityID: id, Visibility: prev.Visibility})
	s.eng.scheduleDelete(id, opID, prev.Visibility == models.VisibilityPublic, false)
	return nil
}

func (s *CollectionService) ApplyRemote(ctx context.Context, record *remote.Record) error {
	deleted, err := s.tombstones.IsDeleted(ctx, record.EntityID)
	if err != nil {
		return err
	}
	if deleted {
		s.log.Debug(ctx, "discarding remote record for tombstoned id", "id", record.EntityID)
		return nil
	}

	var incoming models.Collection
	if err := json.Unmarshal(record.Payload, &incoming); err != nil {
		return fmt.Errorf("%w: unmarshal collection: %v", common.ErrInvalidData, err)
	}

	existing, err := s.repo.GetByID(ctx, incoming.ID)
	switch {
	case err == nil:
		if !incoming.UpdatedAt.After(existing.UpdatedAt) {
			return nil
		}
	case errors.Is(err, common.ErrNotFound):
	default:
		return err
	}

	if err := s.repo.CreateOrUpdate(ctx, &incoming); err != nil {
		return err
	}
	if record.RecordID != "" {
		if err := s.syncState.SetRemoteRecord(ctx, incoming.ID, models.KindCollection, record.RecordID, s.clock().UTC()); err != nil {
			s.log.Warn(ctx, "failed to record sync state", "id", incoming.ID, "error", err)
		}
	}

	evType := events.EntityUpdated
	if existing == nil {
		evType = events.EntityCreated
	}
	s.bus.Publish(events.Event{Type: evType, EntityKind: models.KindCollection, EntityID: incoming.ID, Visibility: incoming.Visibility})
	return nil
}

func (s *CollectionService) Restore(ctx context.Context, ownerID string) error {
	records, err := s.eng.client.ListRecords(ctx, remote.PartitionPrivate, models.KindCollection, ownerID)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := s.ApplyRemote(ctx, record); err != nil {
			s.log.Warn(ctx, "failed to apply remote collection", "id", record.EntityID, "error", err)
		}
	}
	return nil
}

func (s *CollectionService) Syncer() Source {
	return s.eng
}

func (s *CollectionService) Wait() {
	s.eng.Wait()
}
