package handler

// Every JSON response uses the same envelope:
//
//	{"success": true}
//	{"success": true, "recipes": [...]}
//	{"success": false, "error": "not_found", "message": "User not found"}
//
// "error" is the machine-readable classification, "message" is safe to show
// to a person. Internal failure details never reach the client.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/recipe-finder/internal/apperror"
	"github.com/sakif/recipe-finder/internal/model"
)

// Envelope is the response body for every endpoint except List.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ListResponse always carries a recipes array, even when it is empty.
type ListResponse struct {
	Success bool                `json:"success"`
	Recipes []model.SavedRecipe `json:"recipes"`
}

// writeJSON sets headers and status before the body; after the first write
// header changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to a status code and writes the envelope.
//
// A duplicate save is reported as 400, not 409: existing clients only tell
// "already saved" apart by the message and "error" fields.
func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)

	message := "An internal error occurred"
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Message
	}

	writeJSON(w, status, Envelope{
		Success: false,
		Error:   kind,
		Message: message,
	})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusBadRequest, "conflict"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
