// Package repository defines the storage contract for saved recipes.
//
// The service layer only ever sees these interfaces. Concrete backends live
// in subpackages (sqlite, mongo, firestore) and can be wrapped by decorators
// such as rediscache without the service noticing.
package repository

import (
	"context"
	"io"

	"github.com/sakif/recipe-finder/internal/model"
)

// SavedRecipeRepository stores one UserRecipes document per user.
//
// Implementations must make AddRecipe atomic with respect to its uniqueness
// check: two concurrent calls for the same (userID, recipe.RecipeID) pair
// must never both succeed. The storage layer, not the caller's earlier read,
// is the authority on duplicates.
type SavedRecipeRepository interface {
	// GetByUserID returns the user's document, or an error wrapping
	// apperror.ErrNotFound if the user has never saved anything.
	GetByUserID(ctx context.Context, userID string) (*model.UserRecipes, error)

	// AddRecipe appends recipe to the user's list, creating the document
	// first if it does not exist. Returns an error wrapping
	// apperror.ErrConflict if the recipe ID is already present.
	AddRecipe(ctx context.Context, userID string, recipe *model.SavedRecipe) error

	// RemoveRecipe drops every entry with recipeID from the user's list and
	// persists the document even if nothing matched. Returns an error
	// wrapping apperror.ErrNotFound if the document does not exist.
	RemoveRecipe(ctx context.Context, userID, recipeID string) error
}

// Store is a SavedRecipeRepository that owns a connection and must be closed
// on shutdown.
type Store interface {
	SavedRecipeRepository
	io.Closer
}
