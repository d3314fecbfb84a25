package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/events"
	"github.com/tastebase/tastebase/internal/imagesync"
	"github.com/tastebase/tastebase/internal/logging"
	"github.com/tastebase/tastebase/internal/models"
	"github.com/tastebase/tastebase/internal/remote"
	"github.com/tastebase/tastebase/internal/services"
	"github.com/tastebase/tastebase/internal/storage"
)

// fakeClient is an in-memory two-partition store with failure injection.
type fakeClient struct {
	mu      sync.Mutex
	records map[remote.Partition]map[string]*remote.Record
	assets  map[remote.Partition]map[string][]byte

	saveErr   error
	deleteErr error
	uploadErr error

	saves   int
	uploads int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		records: map[remote.Partition]map[string]*remote.Record{
			remote.PartitionPrivate: {},
			remote.PartitionPublic:  {},
		},
		assets: map[remote.Partition]map[string][]byte{
			remote.PartitionPrivate: {},
			remote.PartitionPublic:  {},
		},
	}
}

func recordKey(kind models.Kind, entityID string) string {
	return string(kind) + "/" + entityID
}

func (f *fakeClient) SaveRecord(ctx context.Context, p remote.Partition, rec *remote.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saves++
	key := recordKey(rec.Kind, rec.EntityID)
	stored := *rec
	stored.RecordID = key
	f.records[p][key] = &stored
	return key, nil
}

func (f *fakeClient) FetchRecord(ctx context.Context, p remote.Partition, kind models.Kind, entityID string) (*remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[p][recordKey(kind, entityID)]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeClient) DeleteRecord(ctx context.Context, p remote.Partition, kind models.Kind, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.records[p], recordKey(kind, entityID))
	return nil
}

func (f *fakeClient) ListRecords(ctx context.Context, p remote.Partition, kind models.Kind, ownerID string) ([]*remote.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*remote.Record
	for _, rec := range f.records[p] {
		if rec.Kind == kind && rec.OwnerID == ownerID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeClient) UploadAsset(ctx context.Context, p remote.Partition, entityID string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads++
	f.assets[p][entityID] = data
	return "assets/" + entityID + ".jpg", nil
}

func (f *fakeClient) DownloadAsset(ctx context.Context, p remote.Partition, entityID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.assets[p][entityID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return data, nil
}

func (f *fakeClient) DeleteAsset(ctx context.Context, p remote.Partition, entityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.assets[p], entityID)
	return nil
}

func (f *fakeClient) Available(ctx context.Context) error { return nil }

func (f *fakeClient) setSaveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

func (f *fakeClient) setDeleteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr = err
}

func (f *fakeClient) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

func (f *fakeClient) record(p remote.Partition, kind models.Kind, entityID string) *remote.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[p][recordKey(kind, entityID)]
}

func (f *fakeClient) asset(p remote.Partition, entityID string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assets[p][entityID]
}

// env wires the full service stack onto in-memory storage and the fake
// remote store.
type env struct {
	repos       *storage.Repositories
	client      *fakeClient
	bus         *events.Bus
	images      *imagesync.Manager
	recipes     *services.RecipeService
	connections *services.ConnectionService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	repos, err := storage.InitDatabase(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.DB.Close() })

	client := newFakeClient()
	bus := events.NewBus()
	log := logging.Nop{}

	images := imagesync.NewManager(imagesync.Config{
		Dir:          t.TempDir(),
		MaxDimension: 1024,
		TargetBytes:  1 << 20,
	}, imagesync.CloudOps{
		Upload: func(ctx context.Context, entityID string, data []byte, public bool) (string, error) {
			return client.UploadAsset(ctx, partitionFor(public), entityID, data)
		},
		Download: func(ctx context.Context, entityID string, public bool) ([]byte, error) {
			return client.DownloadAsset(ctx, partitionFor(public), entityID)
		},
		Delete: func(ctx context.Context, entityID string, public bool) error {
			return client.DeleteAsset(ctx, partitionFor(public), entityID)
		},
		OnUploaded: func(ctx context.Context, entityID, remoteAssetID string, public bool, modifiedAt time.Time) {
			_ = repos.SyncState.SetRemoteAsset(ctx, entityID, models.KindRecipe, remoteAssetID, public, modifiedAt)
		},
	}, log)

	return &env{
		repos:  repos,
		client: client,
		bus:    bus,
		images: images,
		recipes: services.NewRecipeService(
			repos.Recipes, repos.SyncState, repos.Tombstones, repos.SyncOps,
			client, images, bus, log, 10),
		connections: services.NewConnectionService(
			repos.Connections, repos.SyncState, repos.Tombstones, repos.SyncOps,
			client, bus, log, 10),
	}
}

func partitionFor(public bool) remote.Partition {
	if public {
		return remote.PartitionPublic
	}
	return remote.PartitionPrivate
}

func sampleRecipe(id string, vis models.Visibility) *models.Recipe {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Recipe{
		ID:      id,
		OwnerID: "owner1",
		Title:   "Pancakes",
		Ingredients: []models.Ingredient{
			{Name: "flour", Quantity: 200, Unit: "g"},
		},
		Steps:      []string{"mix", "fry"},
		Visibility: vis,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
