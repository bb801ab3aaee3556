package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/recipe-finder/internal/apperror"
	"github.com/sakif/recipe-finder/internal/auth"
	"github.com/sakif/recipe-finder/internal/model"
	"github.com/sakif/recipe-finder/internal/recipeid"
	"github.com/sakif/recipe-finder/internal/service"
)

// maxSaveBody caps the save request. A recipe snapshot with a long
// ingredient list is a few KB.
const maxSaveBody = 1 << 20

// SavedRecipeHandler exposes the saved-recipes operations over HTTP.
type SavedRecipeHandler struct {
	recipes *service.SavedRecipeService
	logger  *slog.Logger
}

func NewSavedRecipeHandler(recipes *service.SavedRecipeService, logger *slog.Logger) *SavedRecipeHandler {
	return &SavedRecipeHandler{
		recipes: recipes,
		logger:  logger,
	}
}

// Routes returns the router to mount under /api/recipes.
func (h *SavedRecipeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/save", h.HandleSave)
	r.Delete("/unsave/{userId}/{recipeId}", h.HandleUnsave)
	r.Get("/saved/{userId}", h.HandleList)
	return r
}

// SaveRequest is the body of POST /api/recipes/save.
type SaveRequest struct {
	UserID   string                `json:"userId"`
	RecipeID string                `json:"recipeId"`
	Recipe   *model.RecipeSnapshot `json:"recipe"`
}

// HandleSave stores a recipe snapshot in the user's list.
//
// HTTP: POST /api/recipes/save
// BODY: {"userId": "...", "recipeId": "...", "recipe": {...}}
//
// recipeId may also be the provider's full resource locator; it is reduced
// to the bare id before use.
func (h *SavedRecipeHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSaveBody)

	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("invalid save request body", slog.String("error", err.Error()))
		writeError(w, apperror.ValidationFailed("body", "Invalid JSON body"))
		return
	}

	if !h.authorize(w, r, req.UserID) {
		return
	}

	recipeID := req.RecipeID
	if strings.Contains(recipeID, recipeid.Marker) {
		recipeID = recipeid.Extract(recipeID)
	}

	if err := h.recipes.Save(r.Context(), req.UserID, recipeID, req.Recipe); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true})
}

// HandleUnsave removes a recipe from the user's list.
//
// HTTP: DELETE /api/recipes/unsave/{userId}/{recipeId}
func (h *SavedRecipeHandler) HandleUnsave(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	recipeID := chi.URLParam(r, "recipeId")

	if !h.authorize(w, r, userID) {
		return
	}

	if err := h.recipes.Unsave(r.Context(), userID, recipeID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true})
}

// HandleList returns the user's saved recipes, oldest first.
//
// HTTP: GET /api/recipes/saved/{userId}
func (h *SavedRecipeHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	if !h.authorize(w, r, userID) {
		return
	}

	recipes, err := h.recipes.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Success: true, Recipes: recipes})
}

// authorize rejects the request with 403 when the caller is signed in as a
// different user than the one being accessed. Anonymous callers pass; routes
// that must not allow them are wrapped in auth.RequireAuth.
func (h *SavedRecipeHandler) authorize(w http.ResponseWriter, r *http.Request, userID string) bool {
	caller, ok := auth.UserIDFromContext(r.Context())
	if !ok || userID == "" || caller == userID {
		return true
	}

	h.logger.Warn("identity mismatch",
		slog.String("caller", caller),
		slog.String("userID", userID),
	)
	writeError(w, apperror.Forbidden("You can only access your own saved recipes"))
	return false
}
