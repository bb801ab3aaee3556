// Package repotest holds a behavioural test suite that every
// repository.SavedRecipeRepository implementation must pass.
package repotest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recipe-finder/internal/apperror"
	"github.com/sakif/recipe-finder/internal/model"
	"github.com/sakif/recipe-finder/internal/repository"
)

// NewRecipe returns a fully populated entry keyed by id.
func NewRecipe(id string) *model.SavedRecipe {
	calories := 321.5
	return &model.SavedRecipe{
		RecipeID:     id,
		Label:        "Recipe " + id,
		Image:        "https://img.example/" + id + ".jpg",
		Source:       "Test Kitchen",
		URL:          "https://example.com/" + id,
		Calories:     &calories,
		Ingredients:  []any{map[string]any{"text": "1 cup rice", "foodCategory": "grains"}},
		DietLabels:   []any{"Balanced"},
		HealthLabels: []any{"Vegan"},
		SavedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
}

// Run exercises repo against the storage contract. newRepo is called once per
// subtest and must return an empty repository.
func Run(t *testing.T, newRepo func(t *testing.T) repository.SavedRecipeRepository) {
	ctx := context.Background()

	t.Run("get unknown user", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.GetByUserID(ctx, "nobody")
		assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
	})

	t.Run("add creates document", func(t *testing.T) {
		repo := newRepo(t)
		want := NewRecipe("r1")
		require.NoError(t, repo.AddRecipe(ctx, "u1", want))

		doc, err := repo.GetByUserID(ctx, "u1")
		require.NoError(t, err)
		assert.NotEmpty(t, doc.ID)
		assert.Equal(t, "u1", doc.UserID)
		require.Len(t, doc.Recipes, 1)

		got := doc.Recipes[0]
		assert.Equal(t, want.RecipeID, got.RecipeID)
		assert.Equal(t, want.Label, got.Label)
		assert.Equal(t, want.URL, got.URL)
		require.NotNil(t, got.Calories)
		assert.InDelta(t, *want.Calories, *got.Calories, 1e-9)
		assert.Nil(t, got.TotalTime)
		assert.Len(t, got.Ingredients, 1)
		assert.Equal(t, []any{"Balanced"}, got.DietLabels)
		assert.True(t, want.SavedAt.Equal(got.SavedAt), "SavedAt = %v, want %v", got.SavedAt, want.SavedAt)
	})

	t.Run("preserves insertion order", func(t *testing.T) {
		repo := newRepo(t)
		for _, id := range []string{"z", "m", "a"} {
			require.NoError(t, repo.AddRecipe(ctx, "u1", NewRecipe(id)))
		}
		doc, err := repo.GetByUserID(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, doc.Recipes, 3)
		assert.Equal(t, "z", doc.Recipes[0].RecipeID)
		assert.Equal(t, "m", doc.Recipes[1].RecipeID)
		assert.Equal(t, "a", doc.Recipes[2].RecipeID)
	})

	t.Run("duplicate is a conflict", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.AddRecipe(ctx, "u1", NewRecipe("r1")))

		err := repo.AddRecipe(ctx, "u1", NewRecipe("r1"))
		assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

		doc, err := repo.GetByUserID(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, doc.Recipes, 1)
	})

	t.Run("concurrent duplicates", func(t *testing.T) {
		repo := newRepo(t)
		const workers = 5

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			successes int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := repo.AddRecipe(ctx, "u1", NewRecipe("r1"))
				if err != nil && !errors.Is(err, apperror.ErrConflict) {
					t.Errorf("AddRecipe() unexpected error = %v", err)
					return
				}
				if err == nil {
					mu.Lock()
					successes++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, successes)
		doc, err := repo.GetByUserID(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, doc.Recipes, 1)
	})

	t.Run("concurrent distinct first saves", func(t *testing.T) {
		repo := newRepo(t)
		ids := []string{"r1", "r2", "r3", "r4", "r5"}

		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := repo.AddRecipe(ctx, "u1", NewRecipe(id)); err != nil {
					t.Errorf("AddRecipe(%s) error = %v", id, err)
				}
			}()
		}
		wg.Wait()

		doc, err := repo.GetByUserID(ctx, "u1")
		require.NoError(t, err)
		got := make([]string, 0, len(doc.Recipes))
		for _, r := range doc.Recipes {
			got = append(got, r.RecipeID)
		}
		assert.ElementsMatch(t, ids, got)
	})

	t.Run("remove keeps empty document", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.AddRecipe(ctx, "u1", NewRecipe("r1")))
		require.NoError(t, repo.RemoveRecipe(ctx, "u1", "r1"))

		doc, err := repo.GetByUserID(ctx, "u1")
		require.NoError(t, err)
		assert.NotNil(t, doc.Recipes)
		assert.Empty(t, doc.Recipes)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.AddRecipe(ctx, "u1", NewRecipe("r1")))
		require.NoError(t, repo.RemoveRecipe(ctx, "u1", "r1"))
		require.NoError(t, repo.RemoveRecipe(ctx, "u1", "r1"))
		require.NoError(t, repo.RemoveRecipe(ctx, "u1", "missing"))
	})

	t.Run("remove unknown user", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.RemoveRecipe(ctx, "nobody", "r1")
		assert.True(t, errors.Is(err, apperror.ErrNotFound), "got %v", err)
	})
}
