package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebase/tastebase/internal/models"
	"github.com/tastebase/tastebase/internal/remote"
)

func sampleConnection(id string) *models.Connection {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Connection{
		ID:        id,
		OwnerID:   "owner1",
		PeerID:    "peer1",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestConnectionCreate_NeverLeavesPrivatePartition(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.connections.Create(ctx, sampleConnection("c1")))
	e.connections.Wait()

	assert.NotNil(t, e.client.record(remote.PartitionPrivate, models.KindConnection, "c1"))
	assert.Nil(t, e.client.record(remote.PartitionPublic, models.KindConnection, "c1"))

	got, err := e.connections.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionPending, got.Status)
}

func TestConnectionSetStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.connections.Create(ctx, sampleConnection("c1")))
	require.NoError(t, e.connections.SetStatus(ctx, "c1", models.ConnectionAccepted))
	e.connections.Wait()

	got, err := e.connections.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionAccepted, got.Status)
}

func TestConnectionUpdate_KeepsOwnerAndPeer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.connections.Create(ctx, sampleConnection("c1")))

	tampered := sampleConnection("c1")
	tampered.OwnerID = "someone-else"
	tampered.PeerID = "other-peer"
	tampered.Status = models.ConnectionBlocked
	require.NoError(t, e.connections.Update(ctx, tampered, false))
	e.connections.Wait()

	got, err := e.connections.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "owner1", got.OwnerID)
	assert.Equal(t, "peer1", got.PeerID)
	assert.Equal(t, models.ConnectionBlocked, got.Status)
}

func TestConnectionDelete_Tombstones(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	require.NoError(t, e.connections.Create(ctx, sampleConnection("c1")))
	e.connections.Wait()
	require.NoError(t, e.connections.Delete(ctx, "c1"))
	e.connections.Wait()

	assert.Nil(t, e.client.record(remote.PartitionPrivate, models.KindConnection, "c1"))

	deleted, err := e.repos.Tombstones.IsDeleted(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, deleted)
}
