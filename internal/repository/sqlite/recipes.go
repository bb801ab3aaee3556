package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/recipe-finder/internal/apperror"
	"github.com/sakif/recipe-finder/internal/model"
	"github.com/sakif/recipe-finder/internal/repository"
)

var _ repository.SavedRecipeRepository = (*DB)(nil)

// GetByUserID loads the document header and then its entries in insertion order.
//
// Two queries instead of a JOIN: a user with zero entries (everything
// unsaved) still has a header row and must come back as an empty list, not
// as "not found".
func (db *DB) GetByUserID(ctx context.Context, userID string) (*model.UserRecipes, error) {
	var doc model.UserRecipes

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, updated_at
		 FROM user_recipes
		 WHERE user_id = ?`,
		userID,
	).Scan(&doc.ID, &doc.UserID, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user recipes", userID)
		}
		return nil, fmt.Errorf("sqlite: getting user recipes %s: %w", userID, err)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT recipe_id, label, image, source, url, calories, total_time,
		        ingredients, diet_labels, health_labels, saved_at
		 FROM saved_recipes
		 WHERE user_id = ?
		 ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing saved recipes for %s: %w", userID, err)
	}
	defer rows.Close()

	doc.Recipes = []model.SavedRecipe{}
	for rows.Next() {
		r, err := scanSavedRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning saved recipe row: %w", err)
		}
		doc.Recipes = append(doc.Recipes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating saved recipes: %w", err)
	}

	return &doc, nil
}

// AddRecipe creates the user's document if needed and inserts the entry, in
// one transaction.
//
// The INSERT relies on UNIQUE(user_id, recipe_id): if another request saved
// the same recipe first, SQLite rejects ours and we report a Conflict. Any
// earlier "is it already there?" read done by the caller is only a shortcut.
func (db *DB) AddRecipe(ctx context.Context, userID string, recipe *model.SavedRecipe) error {
	ingredients, dietLabels, healthLabels, err := encodeLists(recipe)
	if err != nil {
		return fmt.Errorf("sqlite: encoding recipe %s: %w", recipe.RecipeID, err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer tx.Rollback()

	now := time.Now().UTC()

	// Upsert the document header: create it on the first save, otherwise
	// just bump updated_at. The generated id is discarded on conflict.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO user_recipes (id, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET updated_at = excluded.updated_at`,
		xid.New().String(), userID, now, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user recipes %s: %w", userID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO saved_recipes
		   (user_id, recipe_id, label, image, source, url, calories, total_time,
		    ingredients, diet_labels, health_labels, saved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		userID,
		recipe.RecipeID,
		recipe.Label,
		recipe.Image,
		recipe.Source,
		recipe.URL,
		nullFloat(recipe.Calories),
		nullFloat(recipe.TotalTime),
		ingredients,
		dietLabels,
		healthLabels,
		recipe.SavedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("saved recipe", recipe.RecipeID)
		}
		return fmt.Errorf("sqlite: inserting saved recipe %s: %w", recipe.RecipeID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing saved recipe %s: %w", recipe.RecipeID, err)
	}
	return nil
}

// RemoveRecipe deletes the matching entries of an existing document.
//
// The header's updated_at is written first: that both proves the document
// exists (RowsAffected == 0 → NotFound) and persists the document even when
// no entry matched, which keeps unsave idempotent.
func (db *DB) RemoveRecipe(ctx context.Context, userID, recipeID string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE user_recipes SET updated_at = ? WHERE user_id = ?`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching user recipes %s: %w", userID, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("user recipes", userID)
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM saved_recipes WHERE user_id = ? AND recipe_id = ?`,
		userID, recipeID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting saved recipe %s: %w", recipeID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing unsave of %s: %w", recipeID, err)
	}
	return nil
}

// scanSavedRecipe reads one saved_recipes row. The column order must match
// the SELECT in GetByUserID.
func scanSavedRecipe(rows *sql.Rows) (model.SavedRecipe, error) {
	var (
		r                                     model.SavedRecipe
		calories, totalTime                   sql.NullFloat64
		ingredients, dietLabels, healthLabels string
	)
	if err := rows.Scan(
		&r.RecipeID, &r.Label, &r.Image, &r.Source, &r.URL,
		&calories, &totalTime,
		&ingredients, &dietLabels, &healthLabels,
		&r.SavedAt,
	); err != nil {
		return r, err
	}

	if calories.Valid {
		r.Calories = &calories.Float64
	}
	if totalTime.Valid {
		r.TotalTime = &totalTime.Float64
	}

	var err error
	if r.Ingredients, err = decodeList(ingredients); err != nil {
		return r, fmt.Errorf("decoding ingredients: %w", err)
	}
	if r.DietLabels, err = decodeList(dietLabels); err != nil {
		return r, fmt.Errorf("decoding diet labels: %w", err)
	}
	if r.HealthLabels, err = decodeList(healthLabels); err != nil {
		return r, fmt.Errorf("decoding health labels: %w", err)
	}
	return r, nil
}

func encodeLists(r *model.SavedRecipe) (ingredients, dietLabels, healthLabels string, err error) {
	if ingredients, err = encodeList(r.Ingredients); err != nil {
		return "", "", "", err
	}
	if dietLabels, err = encodeList(r.DietLabels); err != nil {
		return "", "", "", err
	}
	if healthLabels, err = encodeList(r.HealthLabels); err != nil {
		return "", "", "", err
	}
	return ingredients, dietLabels, healthLabels, nil
}

func encodeList(v []any) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeList(s string) ([]any, error) {
	out := []any{}
	if s == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// isUniqueViolation reports whether err is SQLite rejecting a row because of
// a UNIQUE or PRIMARY KEY constraint.
func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
}
