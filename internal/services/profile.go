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
	"github.com/tastebase/tastebase/internal/repositories/profiles"
	"github.com/tastebase/tastebase/internal/repositories/syncops"
	"github.com/tastebase/tastebase/internal/repositories/syncstate"
	"github.com/tastebase/tastebase/internal/repositories/tombstones"
)

// ProfileService orchestrates tenant profile CRUD. A profile owns itself,
// so its id doubles as the owner id on the remote record. The avatar rides
// through the image manager the same way recipe photos do.
type ProfileService struct {
	repo       profiles.Repository
	syncState  syncstate.Repository
	tombstones tombstones.Repository
	syncOps    syncops.Repository
	images     *imagesync.Manager
	bus        *events.Bus
	log        logging.Logger
	eng        *engine

	clock func() time.Time
}

func NewProfileService(
	repo profiles.Repository,
	state syncstate.Repository,
	tombs tombstones.Repository,
	ops syncops.Repository,
	client remote.Client,
	images *imagesync.Manager,
	bus *events.Bus,
	log logging.Logger,
	maxAttempts int,
) *ProfileService {
	s := &ProfileService{
		repo:       repo,
		syncState:  state,
		tombstones: tombs,
		syncOps:    ops,
		images:     images,
		bus:        bus,
		log:        log,
		clock:      time.Now,
	}
	s.eng = newEngine(models.KindProfile, client, state, tombs, ops, images, bus, log, s.snapshot, maxAttempts)
	return s
}

func (s *ProfileService) snapshot(ctx context.Context, id string) (*remote.Record, models.Visibility, bool, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", false, err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: marshal profile: %v", common.ErrInvalidData, err)
	}
	record := &remote.Record{
		EntityID:   p.ID,
		Kind:       models.KindProfile,
		OwnerID:    p.ID,
		Payload:    payload,
		ModifiedAt: p.UpdatedAt,
	}
	return record, p.Visibility, p.HasAvatar, nil
}

func (s *ProfileService) Create(ctx context.Context, p *models.Profile) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Visibility == "" {
		p.Visibility = models.VisibilityPrivate
	}
	now := s.clock().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}

	if err := s.repo.CreateOrUpdate(ctx, p); err != nil {
		return err
	}
	if err := s.tombstones.Unmark(ctx, p.ID); err != nil {
		return err
	}
	opID, err := s.syncOps.Enqueue(ctx, models.KindProfile, p.ID, models.OpCreate)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityCreated, EntityKind: models.KindProfile, EntityID: p.ID, Visibility: p.Visibility})
	s.eng.schedulePush(p.ID, opID)
	return nil
}

func (s *ProfileService) Get(ctx context.Context, id string) (*models.Profile, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ProfileService) List(ctx context.Context) ([]models.Profile, error) {
	return s.repo.GetAll(ctx)
}

func (s *ProfileService) Update(ctx context.Context, p *models.Profile, preserveTimestamp bool) error {
	prev, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}

	p.CreatedAt = prev.CreatedAt
	if !preserveTimestamp {
		p.UpdatedAt = s.clock().UTC()
	}
	if p.Visibility == "" {
		p.Visibility = prev.Visibility
	}

	if err := s.repo.CreateOrUpdate(ctx, p); err != nil {
		return err
	}
	opID, err := s.syncOps.Enqueue(ctx, models.KindProfile, p.ID, models.OpUpdate)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityUpdated, EntityKind: models.KindProfile, EntityID: p.ID, Visibility: p.Visibility})
	if prev.Visibility != p.Visibility {
		s.bus.Publish(events.Event{Type: events.VisibilityChanged, EntityKind: models.KindProfile, EntityID: p.ID, Visibility: p.Visibility})
		if prev.Visibility == models.VisibilityPublic && p.Visibility == models.VisibilityPrivate {
			s.eng.scheduleRetractPublic(p.ID)
		}
	}
	if prev.HasAvatar && !p.HasAvatar {
		s.removeAvatar(ctx, p.ID, prev.Visibility == models.VisibilityPublic)
	}

	s.eng.schedulePush(p.ID, opID)
	return nil
}

func (s *ProfileService) removeAvatar(ctx context.Context, id string, wasPublic bool) {
	if s.images == nil {
		return
	}
	if err := s.images.Delete(id); err != nil {
		s.log.Warn(ctx, "failed to remove local avatar", "id", id, "error", err)
	}
	s.eng.wg.Add(1)
	go func() {
		defer s.eng.wg.Done()
		bg := context.Background()
		if err := s.images.DeleteFromCloud(bg, id, false); err != nil && !errors.Is(err, common.ErrNotFound) {
			s.log.Warn(bg, "failed to remove remote avatar", "id", id, "error", err)
		}
		if wasPublic {
			if err := s.images.DeleteFromCloud(bg, id, true); err != nil && !errors.Is(err, common.ErrNotFound) {
				s.log.Warn(bg, "failed to remove public remote avatar", "id", id, "error", err)
			}
		}
	}()
}

func (s *ProfileService) Delete(ctx context.Context, id string) error {
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
	if err := s.tombstones.MarkDeleted(ctx, id, models.KindProfile, remoteRecordID); err != nil {
		return err
	}
	if err := s.syncState.Delete(ctx, id); err != nil {
		s.log.Warn(ctx, "failed to drop sync state", "id", id, "error", err)
	}
	if prev.HasAvatar && s.images != nil {
		if err := s.images.Delete(id); err != nil {
			s.log.Warn(ctx, "failed to remove local avatar", "id", id, "error", err)
		}
	}

	opID, err := s.syncOps.Enqueue(ctx, models.KindProfile, id, models.OpDelete)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityDeleted, EntityKind: models.KindProfile, EntityID: id, Visibility: prev.Visibility})
	s.eng.scheduleDelete(id, opID, prev.Visibility == models.VisibilityPublic, prev.HasAvatar)
	return nil
}

func (s *ProfileService) ApplyRemote(ctx context.Context, record *remote.Record) error {
	deleted, err := s.tombstones.IsDeleted(ctx, record.EntityID)
	if err != nil {
		return err
	}
	if deleted {
		s.log.Debug(ctx, "discarding remote record for tombstoned id", "id", record.EntityID)
		return nil
	}

	var incoming models.Profile
	if err := json.Unmarshal(record.Payload, &incoming); err != nil {
		return fmt.Errorf("%w: unmarshal profile: %v", common.ErrInvalidData, err)
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
		if err := s.syncState.SetRemoteRecord(ctx, incoming.ID, models.KindProfile, record.RecordID, s.clock().UTC()); err != nil {
			s.log.Warn(ctx, "failed to record sync state", "id", incoming.ID, "error", err)
		}
	}

	evType := events.EntityUpdated
	if existing == nil {
		evType = events.EntityCreated
	}
	s.bus.Publish(events.Event{Type: evType, EntityKind: models.KindProfile, EntityID: incoming.ID, Visibility: incoming.Visibility})
	return nil
}

func (s *ProfileService) Restore(ctx context.Context, ownerID string) error {
	records, err := s.eng.client.ListRecords(ctx, remote.PartitionPrivate, models.KindProfile, ownerID)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := s.ApplyRemote(ctx, record); err != nil {
			s.log.Warn(ctx, "failed to apply remote profile", "id", record.EntityID, "error", err)
		}
	}
	return nil
}

func (s *ProfileService) Images() *imagesync.Manager {
	return s.images
}

func (s *ProfileService) Syncer() Source {
	return s.eng
}

func (s *ProfileService) Wait() {
	s.eng.Wait()
}
