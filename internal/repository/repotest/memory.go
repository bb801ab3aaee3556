package repotest

import (
	"context"
	"sync"
	"time"

	"github.com/sakif/recipe-finder/internal/apperror"
	"github.com/sakif/recipe-finder/internal/model"
	"github.com/sakif/recipe-finder/internal/repository"
)

var _ repository.SavedRecipeRepository = (*Memory)(nil)

// Memory is an in-memory SavedRecipeRepository for tests. It counts calls
// and can be told to fail, which is hard to arrange with a real database.
type Memory struct {
	mu   sync.Mutex
	docs map[string]*model.UserRecipes

	// Err, when set, is returned by every method instead of touching the data.
	Err error

	Gets    int
	Adds    int
	Removes int
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]*model.UserRecipes)}
}

func (m *Memory) GetByUserID(_ context.Context, userID string) (*model.UserRecipes, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.Err != nil {
		return nil, m.Err
	}

	doc, ok := m.docs[userID]
	if !ok {
		return nil, apperror.NotFound("user recipes", userID)
	}
	// Hand out a copy so callers can't modify our internal state.
	out := *doc
	out.Recipes = append([]model.SavedRecipe{}, doc.Recipes...)
	return &out, nil
}

func (m *Memory) AddRecipe(_ context.Context, userID string, recipe *model.SavedRecipe) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Adds++
	if m.Err != nil {
		return m.Err
	}
	if userID == "" {
		return apperror.ValidationFailed("userId", "userId must not be empty")
	}

	now := time.Now().UTC()
	doc, ok := m.docs[userID]
	if !ok {
		doc = &model.UserRecipes{
			ID:        "mem-" + userID,
			UserID:    userID,
			Recipes:   []model.SavedRecipe{},
			CreatedAt: now,
		}
		m.docs[userID] = doc
	}
	if doc.Contains(recipe.RecipeID) {
		return apperror.Conflict("saved recipe", recipe.RecipeID)
	}
	doc.Recipes = append(doc.Recipes, *recipe)
	doc.UpdatedAt = now
	return nil
}

func (m *Memory) RemoveRecipe(_ context.Context, userID, recipeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removes++
	if m.Err != nil {
		return m.Err
	}

	doc, ok := m.docs[userID]
	if !ok {
		return apperror.NotFound("user recipes", userID)
	}
	doc.Remove(recipeID)
	doc.UpdatedAt = time.Now().UTC()
	return nil
}
