package recipes_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebase/tastebase/internal/common"
	"github.com/tastebase/tastebase/internal/models"
	"github.com/tastebase/tastebase/internal/repositories/recipes"
	"github.com/tastebase/tastebase/internal/storage"
)

func setupRepo(t *testing.T) recipes.Repository {
	t.Helper()
	repos, err := storage.InitDatabase(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.DB.Close() })
	return repos.Recipes
}

func sampleRecipe(id string) *models.Recipe {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.Recipe{
		ID:      id,
		OwnerID: "owner1",
		Title:   "Shakshuka",
		Ingredients: []models.Ingredient{
			{Name: "eggs", Quantity: 4, Unit: "pcs"},
			{Name: "tomatoes", Quantity: 400, Unit: "g", Note: "crushed"},
		},
		Steps:      []string{"simmer sauce", "crack eggs", "cover"},
		Notes:      "best with bread",
		Tags:       []string{"breakfast"},
		Visibility: models.VisibilityPrivate,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestCreateOrUpdate_InsertAndUpdate(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	rec := sampleRecipe("id1")
	require.NoError(t, r.CreateOrUpdate(ctx, rec))

	got, err := r.GetByID(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, rec.Title, got.Title)
	assert.Equal(t, rec.Ingredients, got.Ingredients)
	assert.Equal(t, rec.Steps, got.Steps)
	assert.True(t, rec.UpdatedAt.Equal(got.UpdatedAt))

	rec.Title = "Shakshuka v2"
	rec.Visibility = models.VisibilityPublic
	rec.HasImage = true
	rec.UpdatedAt = rec.UpdatedAt.Add(time.Minute)
	require.NoError(t, r.CreateOrUpdate(ctx, rec))

	got, err = r.GetByID(ctx, "id1")
	require.NoError(t, err)
	assert.Equal(t, "Shakshuka v2", got.Title)
	assert.Equal(t, models.VisibilityPublic, got.Visibility)
	assert.True(t, got.HasImage)
}

func TestGetByID_NotFound(t *testing.T) {
	r := setupRepo(t)

	_, err := r.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestGetAll_NewestFirst(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	older := sampleRecipe("old")
	older.UpdatedAt = older.UpdatedAt.Add(-time.Hour)
	newer := sampleRecipe("new")
	require.NoError(t, r.CreateOrUpdate(ctx, older))
	require.NoError(t, r.CreateOrUpdate(ctx, newer))

	got, err := r.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)
}

func TestGetByOwner_FiltersOwner(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	mine := sampleRecipe("mine")
	theirs := sampleRecipe("theirs")
	theirs.OwnerID = "owner2"
	require.NoError(t, r.CreateOrUpdate(ctx, mine))
	require.NoError(t, r.CreateOrUpdate(ctx, theirs))

	got, err := r.GetByOwner(ctx, "owner1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "mine", got[0].ID)
}

func TestDeleteByID(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateOrUpdate(ctx, sampleRecipe("id1")))
	require.NoError(t, r.DeleteByID(ctx, "id1"))

	_, err := r.GetByID(ctx, "id1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, r.DeleteByID(ctx, "id1"), common.ErrNotFound)
}
