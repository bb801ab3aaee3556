package sqlite

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
	"github.com/sakif/recipe-finder/internal/repository/repotest"
)

// newTestDB opens a fresh in-memory database for one test.
// t.Cleanup closes it when the test (and its subtests) finish.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestContract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.SavedRecipeRepository {
		return newTestDB(t)
	})
}

func newRecipe(id string) *model.SavedRecipe {
	calories := 512.25
	return &model.SavedRecipe{
		RecipeID:     id,
		Label:        "Recipe " + id,
		Image:        "https://img.example/" + id + ".jpg",
		Source:       "Test Kitchen",
		URL:          "https://example.com/" + id,
		Calories:     &calories,
		Ingredients:  []any{map[string]any{"text": "2 eggs", "weight": 100.0, "foodCategory": "Eggs"}},
		DietLabels:   []any{"Low-Carb"},
		HealthLabels: []any{"Vegetarian", "Peanut-Free"},
		SavedAt:      time.Now().UTC().Truncate(time.Second),
	}
}

// addTestRecipe saves a recipe and fails the test if it errors.
func addTestRecipe(t *testing.T, db *DB, userID, recipeID string) *model.SavedRecipe {
	t.Helper()
	r := newRecipe(recipeID)
	if err := db.AddRecipe(context.Background(), userID, r); err != nil {
		t.Fatalf("AddRecipe(%s, %s) error = %v", userID, recipeID, err)
	}
	return r
}

// =========================================================================
// GET TESTS
// =========================================================================

func TestGetByUserID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetByUserID(context.Background(), "nobody")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByUserID() error = %v, want ErrNotFound", err)
	}
}

func TestGetByUserID_RoundTripsAllFields(t *testing.T) {
	db := newTestDB(t)
	saved := addTestRecipe(t, db, "u1", "r1")

	doc, err := db.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "u1", doc.UserID)
	assert.False(t, doc.CreatedAt.IsZero())
	require.Len(t, doc.Recipes, 1)

	got := doc.Recipes[0]
	assert.Equal(t, saved.RecipeID, got.RecipeID)
	assert.Equal(t, saved.Label, got.Label)
	assert.Equal(t, saved.Image, got.Image)
	assert.Equal(t, saved.Source, got.Source)
	assert.Equal(t, saved.URL, got.URL)
	require.NotNil(t, got.Calories)
	assert.Equal(t, *saved.Calories, *got.Calories)
	assert.Nil(t, got.TotalTime, "absent numbers stay absent")
	assert.Equal(t, saved.Ingredients, got.Ingredients)
	assert.Equal(t, saved.DietLabels, got.DietLabels)
	assert.Equal(t, saved.HealthLabels, got.HealthLabels)
	assert.True(t, saved.SavedAt.Equal(got.SavedAt), "SavedAt = %v, want %v", got.SavedAt, saved.SavedAt)
}

func TestGetByUserID_InsertionOrder(t *testing.T) {
	db := newTestDB(t)
	for _, id := range []string{"c", "a", "b"} {
		addTestRecipe(t, db, "u1", id)
	}

	doc, err := db.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)

	ids := make([]string, 0, len(doc.Recipes))
	for _, r := range doc.Recipes {
		ids = append(ids, r.RecipeID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestGetByUserID_IsolatesUsers(t *testing.T) {
	db := newTestDB(t)
	addTestRecipe(t, db, "u1", "r1")
	addTestRecipe(t, db, "u2", "r1")
	addTestRecipe(t, db, "u2", "r2")

	doc1, err := db.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	doc2, err := db.GetByUserID(context.Background(), "u2")
	require.NoError(t, err)

	assert.Len(t, doc1.Recipes, 1)
	assert.Len(t, doc2.Recipes, 2)
}

// =========================================================================
// ADD TESTS
// =========================================================================

func TestAddRecipe_Duplicate(t *testing.T) {
	db := newTestDB(t)
	addTestRecipe(t, db, "u1", "r1")

	err := db.AddRecipe(context.Background(), "u1", newRecipe("r1"))
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("AddRecipe() duplicate error = %v, want ErrConflict", err)
	}

	doc, err := db.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, doc.Recipes, 1, "the rejected save must not leave a second entry")
}

func TestAddRecipe_KeepsDocumentID(t *testing.T) {
	db := newTestDB(t)
	addTestRecipe(t, db, "u1", "r1")
	first, err := db.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)

	addTestRecipe(t, db, "u1", "r2")
	second, err := db.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "document identity is immutable once created")
}

func TestAddRecipe_EmptyUserIDRejected(t *testing.T) {
	db := newTestDB(t)

	err := db.AddRecipe(context.Background(), "", newRecipe("r1"))
	require.Error(t, err)

	_, err = db.GetByUserID(context.Background(), "")
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "no document may exist with an empty identity")
}

// Concurrent saves of the same new recipe: the UNIQUE constraint must let
// exactly one through no matter how the goroutines interleave.
func TestAddRecipe_ConcurrentDuplicates(t *testing.T) {
	db := newTestDB(t)
	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := db.AddRecipe(context.Background(), "u1", newRecipe("r1"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperror.ErrConflict):
				conflicts++
			default:
				t.Errorf("AddRecipe() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	doc, err := db.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, doc.Recipes, 1)
}

// =========================================================================
// REMOVE TESTS
// =========================================================================

func TestRemoveRecipe(t *testing.T) {
	db := newTestDB(t)
	addTestRecipe(t, db, "u1", "r1")
	addTestRecipe(t, db, "u1", "r2")

	require.NoError(t, db.RemoveRecipe(context.Background(), "u1", "r1"))

	doc, err := db.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, doc.Recipes, 1)
	assert.Equal(t, "r2", doc.Recipes[0].RecipeID)
}

func TestRemoveRecipe_LastEntryKeepsDocument(t *testing.T) {
	db := newTestDB(t)
	addTestRecipe(t, db, "u1", "r1")

	require.NoError(t, db.RemoveRecipe(context.Background(), "u1", "r1"))

	doc, err := db.GetByUserID(context.Background(), "u1")
	require.NoError(t, err, "the document outlives its last entry")
	assert.NotNil(t, doc.Recipes)
	assert.Empty(t, doc.Recipes)
}

func TestRemoveRecipe_Idempotent(t *testing.T) {
	db := newTestDB(t)
	addTestRecipe(t, db, "u1", "r1")

	require.NoError(t, db.RemoveRecipe(context.Background(), "u1", "r1"))
	require.NoError(t, db.RemoveRecipe(context.Background(), "u1", "r1"))
	require.NoError(t, db.RemoveRecipe(context.Background(), "u1", "never-saved"))
}

func TestRemoveRecipe_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	err := db.RemoveRecipe(context.Background(), "nobody", "r1")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("RemoveRecipe() error = %v, want ErrNotFound", err)
	}
}

func TestRemoveRecipe_ThenSaveAgain(t *testing.T) {
	db := newTestDB(t)
	addTestRecipe(t, db, "u1", "r1")
	require.NoError(t, db.RemoveRecipe(context.Background(), "u1", "r1"))

	addTestRecipe(t, db, "u1", "r1")

	doc, err := db.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, doc.Recipes, 1)
}
