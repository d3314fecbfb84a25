package tombstones_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/models"
	"github.com/tastebase/tastebase/internal/repositories/tombstones"
	"github.com/tastebase/tastebase/internal/storage"
)

func setupRepo(t *testing.T) tombstones.Repository {
	t.Helper()
	repos, err := storage.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.DB.Close() })
	return repos.Tombstones
}

func TestMarkDeleted_FirstDeletionWins(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.MarkDeleted(ctx, "id1", models.KindRecipe, "rec-1"))

	first, err := r.Get(ctx, "id1")
	require.NoError(t, err)

	// second mark keeps the original row
	require.NoError(t, r.MarkDeleted(ctx, "id1", models.KindRecipe, "rec-other"))

	again, err := r.Get(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, "rec-1", again.RemoteRecordID)
	assert.True(t, first.DeletedAt.Equal(again.DeletedAt))
}

func TestIsDeleted(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	deleted, err := r.IsDeleted(ctx, "id1")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, r.MarkDeleted(ctx, "id1", models.KindRecipe, ""))

	deleted, err = r.IsDeleted(ctx, "id1")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestUnmark(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.MarkDeleted(ctx, "id1", models.KindRecipe, ""))
	require.NoError(t, r.Unmark(ctx, "id1"))

	deleted, err := r.IsDeleted(ctx, "id1")
	require.NoError(t, err)
	assert.False(t, deleted)

	// unmarking an absent tombstone is fine
	require.NoError(t, r.Unmark(ctx, "never-there"))
}

func TestGet_NotFound(t *testing.T) {
	r := setupRepo(t)

	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCleanup_RemovesOnlyOld(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.MarkDeleted(ctx, "old", models.KindRecipe, ""))
	require.NoError(t, r.MarkDeleted(ctx, "fresh", models.KindRecipe, ""))

	// nothing is older than a cutoff in the past
	n, err := r.Cleanup(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	deleted, err := r.IsDeleted(ctx, "old")
	require.NoError(t, err)
	assert.True(t, deleted)

	// everything is older than a cutoff in the future
	n, err = r.Cleanup(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	deleted, err = r.IsDeleted(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, deleted)
}
