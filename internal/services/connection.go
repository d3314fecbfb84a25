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
	"github.com/tastebase/tastebase/internal/repositories/connections"
	"github.com/tastebase/tastebase/internal/repositories/syncops"
	"github.com/tastebase/tastebase/internal/repositories/syncstate"
	"github.com/tastebase/tastebase/internal/repositories/tombstones"
)

// ConnectionService orchestrates peer connection CRUD. Connections are
// private-partition only and carry no asset, so the propagation engine
// runs without an image manager and always reports private visibility.
type ConnectionService struct {
	repo       connections.Repository
	syncState  syncstate.Repository
	tombstones tombstones.Repository
	syncOps    syncops.Repository
	bus        *events.Bus
	log        logging.Logger
	eng        *engine

	clock func() time.Time
}

func NewConnectionService(
	repo connections.Repository,
	state syncstate.Repository,
	tombs tombstones.Repository,
	ops syncops.Repository,
	client remote.Client,
	bus *events.Bus,
	log logging.Logger,
	maxAttempts int,
) *ConnectionService {
	s := &ConnectionService{
		repo:       repo,
		syncState:  state,
		tombstones: tombs,
		syncOps:    ops,
		bus:        bus,
		log:        log,
		clock:      time.Now,
	}
	s.eng = newEngine(models.KindConnection, client, state, tombs, ops, nil, bus, log, s.snapshot, maxAttempts)
	return s
}

func (s *ConnectionService) snapshot(ctx context.Context, id string) (*remote.Record, models.Visibility, bool, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, "", false, err
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: marshal connection: %v", common.ErrInvalidData, err)
	}
	record := &remote.Record{
		EntityID:   c.ID,
		Kind:       models.KindConnection,
		OwnerID:    c.OwnerID,
		Payload:    payload,
		ModifiedAt: c.UpdatedAt,
	}
	return record, models.VisibilityPrivate, false, nil
}

func (s *ConnectionService) Create(ctx context.Context, c *models.Connection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = models.ConnectionPending
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
	opID, err := s.syncOps.Enqueue(ctx, models.KindConnection, c.ID, models.OpCreate)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityCreated, EntityKind: models.KindConnection, EntityID: c.ID, Visibility: models.VisibilityPrivate})
	s.eng.schedulePush(c.ID, opID)
	return nil
}

func (s *ConnectionService) Get(ctx context.Context, id string) (*models.Connection, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *ConnectionService) List(ctx context.Context) ([]models.Connection, error) {
	return s.repo.GetAll(ctx)
}

func (s *ConnectionService) ListByOwner(ctx context.Context, ownerID string) ([]models.Connection, error) {
	return s.repo.GetByOwner(ctx, ownerID)
}

// SetStatus advances the handshake: pending to accepted or blocked.
func (s *ConnectionService) SetStatus(ctx context.Context, id string, status models.ConnectionStatus) error {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	c.Status = status
	return s.Update(ctx, c, false)
}

func (s *ConnectionService) Update(ctx context.Context, c *models.Connection, preserveTimestamp bool) error {
	prev, err := s.repo.GetByID(ctx, c.ID)
	if err != nil {
		return err
	}

	c.OwnerID = prev.OwnerID
	c.PeerID = prev.PeerID
	c.CreatedAt = prev.CreatedAt
	if !preserveTimestamp {
		c.UpdatedAt = s.clock().UTC()
	}

	if err := s.repo.CreateOrUpdate(ctx, c); err != nil {
		return err
	}
	opID, err := s.syncOps.Enqueue(ctx, models.KindConnection, c.ID, models.OpUpdate)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityUpdated, EntityKind: models.KindConnection, EntityID: c.ID, Visibility: models.VisibilityPrivate})
	s.eng.schedulePush(c.ID, opID)
	return nil
}

func (s *ConnectionService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
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
	if err := s.tombstones.MarkDeleted(ctx, id, models.KindConnection, remoteRecordID); err != nil {
		return err
	}
	if err := s.syncState.Delete(ctx, id); err != nil {
		s.log.Warn(ctx, "failed to drop sync state", "id", id, "error", err)
	}

	opID, err := s.syncOps.Enqueue(ctx, models.KindConnection, id, models.OpDelete)
	if err != nil {
		return err
	}

	s.bus.Publish(events.Event{Type: events.EntityDeleted, EntityKind: models.KindConnection, EntityID: id, Visibility: models.VisibilityPrivate})
	s.eng.scheduleDelete(id, opID, false, false)
	return nil
}

func (s *ConnectionService) ApplyRemote(ctx context.Context, record *remote.Record) error {
	deleted, err := s.tombstones.IsDeleted(ctx, record.EntityID)
	if err != nil {
		return err
	}
	if deleted {
		s.log.Debug(ctx, "discarding remote record for tombstoned id", "id", record.EntityID)
		return nil
	}

	var incoming models.Connection
	if err := json.Unmarshal(record.Payload, &incoming); err != nil {
		return fmt.Errorf("%w: unmarshal connection: %v", common.ErrInvalidData, err)
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
		if err := s.syncState.SetRemoteRecord(ctx, incoming.ID, models.KindConnection, record.RecordID, s.clock().UTC()); err != nil {
			s.log.Warn(ctx, "failed to record sync state", "id", incoming.ID, "error", err)
		}
	}

	evType := events.EntityUpdated
	if existing == nil {
		evType = events.EntityCreated
	}
	s.bus.Publish(events.Event{Type: evType, EntityKind: models.KindConnection, EntityID: incoming.ID, Visibility: models.VisibilityPrivate})
	return nil
}

func (s *ConnectionService) Restore(ctx context.Context, ownerID string) error {
	records, err := s.eng.client.ListRecords(ctx, remote.PartitionPrivate, models.KindConnection, ownerID)
	if err != nil {
		return err
	}
	for _, record := range records {
		if err := s.ApplyRemote(ctx, record); err != nil {
			s.log.Warn(ctx, "failed to apply remote connection", "id", record.EntityID, "error", err)
		}
	}
	return nil
}

func (s *ConnectionService) Syncer() Source {
	return s.eng
}

func (s *ConnectionService) Wait() {
	s.eng.Wait()
}
