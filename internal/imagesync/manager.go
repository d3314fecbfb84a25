// Package imagesync manages the binary assets attached to entities: a local
// disk cache of normalized JPEGs plus replication to the remote store with
// download coalescing, negative caching and a bounded pending-upload set.
package imagesync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/imagex"
	"github.com/tastebase/tastebase/internal/logging"
)

// CloudOps are the injected remote operations. The manager never talks to
// the object store directly, so each entity kind can wire its own partition
// rules (connections, for instance, wire none at all).
type CloudOps struct {
	Upload   func(ctx context.Context, entityID string, data []byte, public bool) (string, error)
	Download func(ctx context.Context, entityID string, public bool) ([]byte, error)
	Delete   func(ctx context.Context, entityID string, public bool) error

	// OnUploaded, when set, is called after every successful upload so the
	// owner can record the remote asset id and captured modification time
	// for the partition that received it.
	OnUploaded func(ctx context.Context, entityID, remoteAssetID string, public bool, modifiedAt time.Time)
}

// Config sizes one manager instance.
type Config struct {
	// Dir is the storage directory for this entity kind's assets.
	Dir string
	// MaxDimension bounds the longer image side in pixels.
	MaxDimension int
	// TargetBytes is the compressed-size goal for stored JPEGs.
	TargetBytes int
	// MaxAttempts caps upload retries per entity id before the id is
	// dropped from the pending set.
	MaxAttempts int
	// NegativeTTL is how long a "not found" download result is trusted.
	NegativeTTL time.Duration
}

// pendingUpload tracks one entity id awaiting (re-)upload. The partition
// need flags are cleared individually as uploads land, so a retry never
// redoes a partition that already succeeded, and the attempt count survives
// partial progress.
type pendingUpload struct {
	attempts    int
	needPrivate bool
	needPublic  bool
}

// Manager owns the assets of one entity kind. All mutable state (pending
// set, negative cache) is guarded by one mutex; no external code touches it.
type Manager struct {
	cfg Config
	ops CloudOps
	log logging.Logger

	group singleflight.Group

	mu       sync.Mutex
	pending  map[string]*pendingUpload
	negative map[string]time.Time

	now func() time.Time
}

func NewManager(cfg Config, ops CloudOps, log logging.Logger) *Manager {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = 5 * time.Minute
	}
	return &Manager{
		cfg:      cfg,
		ops:      ops,
		log:      log,
		pending:  make(map[string]*pendingUpload),
		negative: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *Manager) path(entityID string) string {
	return filepath.Join(m.cfg.Dir, entityID+".jpg")
}

// Save normalizes the image and writes it to the local cache.
func (m *Manager) Save(entityID string, data []byte) error {
	processed, err := imagex.Process(data, m.cfg.MaxDimension, m.cfg.TargetBytes)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(m.cfg.Dir, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", m.cfg.Dir, err)
	}
	if err := os.WriteFile(m.path(entityID), processed, 0o660); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	return nil
}

// Load reads the locally cached image, or common.ErrNotFound.
func (m *Manager) Load(entityID string) ([]byte, error) {
	data, err := os.ReadFile(m.path(entityID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

// Delete removes the local file and forgets any pending upload for the id.
func (m *Manager) Delete(entityID string) error {
	m.DropPending(entityID)
	err := os.Remove(m.path(entityID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove image: %w", err)
	}
	return nil
}

// Exists reports whether a local copy is present.
func (m *Manager) Exists(entityID string) bool {
	_, err := os.Stat(m.path(entityID))
	return err == nil
}

// ModTime returns the local file's modification time, or common.ErrNotFound.
func (m *Manager) ModTime(entityID string) (time.Time, error) {
	fi, err := os.Stat(m.path(entityID))
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, common.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("stat image: %w", err)
	}
	return fi.ModTime(), nil
}

// UploadToCloud pushes the local file through the injected upload op and
// returns the remote asset id. A success invalidates the negative cache for
// the id so fresh downloads see the new asset immediately.
func (m *Manager) UploadToCloud(ctx context.Context, entityID string, toPublic bool) (string, error) {
	data, err := m.Load(entityID)
	if err != nil {
		return "", err
	}
	modTime, err := m.ModTime(entityID)
	if err != nil {
		return "", err
	}

	assetID, err := m.ops.Upload(ctx, entityID, data, toPublic)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	delete(m.negative, negativeKey(entityID, false))
	delete(m.negative, negativeKey(entityID, true))
	if p, ok := m.pending[entityID]; ok {
		if toPublic {
			p.needPublic = false
		} else {
			p.needPrivate = false
		}
		if !p.needPrivate && !p.needPublic {
			delete(m.pending, entityID)
		}
	}
	m.mu.Unlock()

	if m.ops.OnUploaded != nil {
		m.ops.OnUploaded(ctx, entityID, assetID, toPublic, modTime)
	}
	return assetID, nil
}

// DownloadFromCloud fetches an asset, coalescing concurrent requests for the
// same (id, partition) into one underlying call and short-circuiting ids
// recently confirmed absent. Successful downloads land in the local cache.
func (m *Manager) DownloadFromCloud(ctx context.Context, entityID string, fromPublic bool) ([]byte, error) {
	key := negativeKey(entityID, fromPublic)

	m.mu.Lock()
	if until, ok := m.negative[key]; ok {
		if m.now().Before(until) {
			m.mu.Unlock()
			return nil, common.ErrNotFound
		}
		delete(m.negative, key)
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(key, func() (any, error) {
		data, err := m.ops.Download(ctx, entityID, fromPublic)
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				m.mu.Lock()
				m.negative[key] = m.now().Add(m.cfg.NegativeTTL)
				m.mu.Unlock()
			}
			return nil, err
		}

		if err := os.MkdirAll(m.cfg.Dir, 0o770); err == nil {
			if werr := os.WriteFile(m.path(entityID), data, 0o660); werr != nil {
				m.log.Warn(ctx, "failed to cache downloaded image", "id", entityID, "error", werr)
			}
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// DeleteFromCloud removes the remote copy through the injected delete op.
func (m *Manager) DeleteFromCloud(ctx context.Context, entityID string, fromPublic bool) error {
	return m.ops.Delete(ctx, entityID, fromPublic)
}

// MarkPending records that the id's asset still needs upload to the given
// partitions. An id already pending keeps its attempt count; the partition
// needs are merged.
func (m *Manager) MarkPending(entityID string, needPrivate, needPublic bool) {
	if !needPrivate && !needPublic {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pending[entityID]; ok {
		p.needPrivate = p.needPrivate || needPrivate
		p.needPublic = p.needPublic || needPublic
		return
	}
	m.pending[entityID] = &pendingUpload{needPrivate: needPrivate, needPublic: needPublic}
}

// DropPending removes the id from the pending set.
func (m *Manager) DropPending(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, entityID)
}

// PendingCount reports how many assets still await upload.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// SweepPending retries every pending upload once. Quota failures are
// terminal and drop the id immediately; other failures count against
// MaxAttempts, after which the id is dropped and stays local-only until the
// next write touches it.
func (m *Manager) SweepPending(ctx context.Context) (succeeded, failed int) {
	m.mu.Lock()
	batch := make(map[string]pendingUpload, len(m.pending))
	for id, p := range m.pending {
		batch[id] = *p
	}
	m.mu.Unlock()

	for id, p := range batch {
		if !m.Exists(id) {
			m.DropPending(id)
			continue
		}

		// each successful upload clears its need flag on the live entry, so
		// a partition that lands is not redone on the next sweep
		var err error
		if p.needPrivate {
			_, err = m.UploadToCloud(ctx, id, false)
		}
		if err == nil && p.needPublic {
			_, err = m.UploadToCloud(ctx, id, true)
		}
		if err == nil {
			succeeded++
			continue
		}

		failed++
		if !common.Retryable(err) {
			m.log.Warn(ctx, "image upload failed terminally", "id", id, "error", err)
			m.DropPending(id)
			continue
		}

		m.mu.Lock()
		if live, ok := m.pending[id]; ok {
			live.attempts++
			if live.attempts >= m.cfg.MaxAttempts {
				m.log.Warn(ctx, "image upload retries exhausted", "id", id, "attempts", live.attempts)
				delete(m.pending, id)
			}
		}
		m.mu.Unlock()
	}
	return succeeded, failed
}

func negativeKey(entityID string, public bool) string {
	if public {
		return entityID + "|public"
	}
	return entityID + "|private"
}
