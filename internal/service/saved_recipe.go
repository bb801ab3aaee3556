// Package service contains the business logic layer of the application.
//
// The layers are:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes a storage backend
//
// Services accept plain Go values and return apperror values. They never see
// an *http.Request and never pick a status code; the handler translates
// apperror kinds into HTTP.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/recipe-finder/internal/apperror"
	"github.com/sakif/recipe-finder/internal/model"
	"github.com/sakif/recipe-finder/internal/repository"
)

// Messages returned to clients. Storage details are logged, never sent.
const (
	MsgMissingFields = "Missing required fields"
	MsgAlreadySaved  = "Recipe is already saved"
	MsgUserNotFound  = "User not found"
	MsgSaveFailed    = "Failed to save recipe"
	MsgUnsaveFailed  = "Failed to unsave recipe"
	MsgListFailed    = "Failed to fetch saved recipes"
)

// SavedRecipeService manages each user's list of saved recipes.
//
// The repository is the authority on duplicates. Save still reads the
// document first so that the common "already saved" case is answered without
// attempting a write, but two concurrent saves that both pass that read are
// settled by AddRecipe, which lets exactly one of them through.
type SavedRecipeService struct {
	repo   repository.SavedRecipeRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewSavedRecipeService creates a SavedRecipeService backed by repo. Any
// repository implementation works, including a cache decorator.
func NewSavedRecipeService(repo repository.SavedRecipeRepository, logger *slog.Logger) *SavedRecipeService {
	return &SavedRecipeService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Save adds a snapshot of recipe to userID's list under recipeID.
//
// The user's document is created on the first save. Saving an id that is
// already in the list is a Conflict and writes nothing.
func (s *SavedRecipeService) Save(ctx context.Context, userID, recipeID string, recipe *model.RecipeSnapshot) error {
	if userID == "" || recipeID == "" || recipe == nil {
		return apperror.New(apperror.ErrValidation, MsgMissingFields)
	}

	doc, err := s.repo.GetByUserID(ctx, userID)
	switch {
	case err == nil:
		if doc.Contains(recipeID) {
			return apperror.New(apperror.ErrConflict, MsgAlreadySaved)
		}
	case errors.Is(err, apperror.ErrNotFound):
		// First save for this user; AddRecipe creates the document.
	default:
		s.logger.Error("loading saved recipes failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return apperror.Internal(MsgSaveFailed)
	}

	entry := model.NewSavedRecipe(recipeID, recipe, s.now().UTC())
	if err := s.repo.AddRecipe(ctx, userID, &entry); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return apperror.New(apperror.ErrConflict, MsgAlreadySaved)
		}
		s.logger.Error("saving recipe failed",
			slog.String("userID", userID),
			slog.String("recipeID", recipeID),
			slog.String("error", err.Error()),
		)
		return apperror.Internal(MsgSaveFailed)
	}

	s.logger.Info("recipe saved",
		slog.String("userID", userID),
		slog.String("recipeID", recipeID),
	)
	return nil
}

// Unsave removes every entry with recipeID from userID's list. Removing an id
// that is not in the list succeeds; only a user with no document at all is
// NotFound.
func (s *SavedRecipeService) Unsave(ctx context.Context, userID, recipeID string) error {
	if userID == "" || recipeID == "" {
		return apperror.New(apperror.ErrValidation, MsgMissingFields)
	}

	if err := s.repo.RemoveRecipe(ctx, userID, recipeID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.New(apperror.ErrNotFound, MsgUserNotFound)
		}
		s.logger.Error("unsaving recipe failed",
			slog.String("userID", userID),
			slog.String("recipeID", recipeID),
			slog.String("error", err.Error()),
		)
		return apperror.Internal(MsgUnsaveFailed)
	}

	s.logger.Info("recipe unsaved",
		slog.String("userID", userID),
		slog.String("recipeID", recipeID),
	)
	return nil
}

// List returns userID's saved recipes in the order they were saved. A user
// who never saved anything gets an empty, non-nil slice.
func (s *SavedRecipeService) List(ctx context.Context, userID string) ([]model.SavedRecipe, error) {
	doc, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return []model.SavedRecipe{}, nil
		}
		s.logger.Error("listing saved recipes failed",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, apperror.Internal(MsgListFailed)
	}

	if doc.Recipes == nil {
		return []model.SavedRecipe{}, nil
	}
	return doc.Recipes, nil
}
