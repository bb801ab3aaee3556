// Package model defines the data structures used throughout the application.
//
// A user's saved recipes live in ONE document (UserRecipes) that embeds an
// ordered list of SavedRecipe records. The same structs are used for JSON on
// the wire and for every storage backend, so each field carries json, bson
// (MongoDB) and firestore tags side by side.
package model

import "time"

// RecipeSnapshot is the recipe data as the recipe-search provider returned
// it at search time. Clients send it verbatim when saving.
//
// The list fields hold opaque provider values (ingredient objects, label
// strings); they are copied without inspecting their shape.
type RecipeSnapshot struct {
	URI          string   `json:"uri,omitempty"`
	Label        string   `json:"label,omitempty"`
	Image        string   `json:"image,omitempty"`
	Source       string   `json:"source,omitempty"`
	URL          string   `json:"url,omitempty"`
	Calories     *float64 `json:"calories,omitempty"`
	TotalTime    *float64 `json:"totalTime,omitempty"`
	Ingredients  []any    `json:"ingredients,omitempty"`
	DietLabels   []any    `json:"dietLabels,omitempty"`
	HealthLabels []any    `json:"healthLabels,omitempty"`
}

// SavedRecipe is one entry of a user's saved list.
//
// RecipeID is unique within the owning UserRecipes document. SavedAt is set
// by the server when the entry is created and never changes afterwards.
type SavedRecipe struct {
	RecipeID     string    `json:"recipeId"               bson:"recipeId"            firestore:"recipeId"`
	Label        string    `json:"label,omitempty"        bson:"label,omitempty"     firestore:"label,omitempty"`
	Image        string    `json:"image,omitempty"        bson:"image,omitempty"     firestore:"image,omitempty"`
	Source       string    `json:"source,omitempty"       bson:"source,omitempty"    firestore:"source,omitempty"`
	URL          string    `json:"url,omitempty"          bson:"url,omitempty"       firestore:"url,omitempty"`
	Calories     *float64  `json:"calories,omitempty"     bson:"calories,omitempty"  firestore:"calories,omitempty"`
	TotalTime    *float64  `json:"totalTime,omitempty"    bson:"totalTime,omitempty" firestore:"totalTime,omitempty"`
	Ingredients  []any     `json:"ingredients"            bson:"ingredients"         firestore:"ingredients"`
	DietLabels   []any     `json:"dietLabels"             bson:"dietLabels"          firestore:"dietLabels"`
	HealthLabels []any     `json:"healthLabels"           bson:"healthLabels"        firestore:"healthLabels"`
	SavedAt      time.Time `json:"savedAt"                bson:"savedAt"             firestore:"savedAt"`
}

// UserRecipes is the per-user document. It is created lazily by the first
// successful save and is never deleted by this application.
type UserRecipes struct {
	ID        string        `json:"id"        bson:"_id"       firestore:"id"`
	UserID    string        `json:"userId"    bson:"userId"    firestore:"userId"`
	Recipes   []SavedRecipe `json:"recipes"   bson:"recipes"   firestore:"recipes"`
	CreatedAt time.Time     `json:"createdAt" bson:"createdAt" firestore:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt" bson:"updatedAt" firestore:"updatedAt"`
}

// NewSavedRecipe copies every field of the snapshot into a SavedRecipe keyed
// by recipeID. Missing list fields become empty lists so clients can always
// iterate them.
func NewSavedRecipe(recipeID string, snapshot *RecipeSnapshot, savedAt time.Time) SavedRecipe {
	return SavedRecipe{
		RecipeID:     recipeID,
		Label:        snapshot.Label,
		Image:        snapshot.Image,
		Source:       snapshot.Source,
		URL:          snapshot.URL,
		Calories:     snapshot.Calories,
		TotalTime:    snapshot.TotalTime,
		Ingredients:  nonNil(snapshot.Ingredients),
		DietLabels:   nonNil(snapshot.DietLabels),
		HealthLabels: nonNil(snapshot.HealthLabels),
		SavedAt:      savedAt,
	}
}

// Contains reports whether an entry with recipeID is already in the list.
func (u *UserRecipes) Contains(recipeID string) bool {
	for _, r := range u.Recipes {
		if r.RecipeID == recipeID {
			return true
		}
	}
	return false
}

// Remove filters out every entry with recipeID and reports how many were
// dropped. Order of the remaining entries is preserved.
func (u *UserRecipes) Remove(recipeID string) int {
	kept := u.Recipes[:0]
	for _, r := range u.Recipes {
		if r.RecipeID != recipeID {
			kept = append(kept, r)
		}
	}
	removed := len(u.Recipes) - len(kept)
	u.Recipes = kept
	return removed
}

func nonNil(v []any) []any {
	if v == nil {
		return []any{}
	}
	return v
}
