// Package firestore keeps each user's saved recipes in a Cloud Firestore
// document at users/{userId}.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcfs "cloud.google.com/go/firestore"
	"github.com/rs/xid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sakif/recipe-finder/internal/apperror"
	"github.com/sakif/recipe-finder/internal/model"
	"github.com/sakif/recipe-finder/internal/repository"
)

// Collection holds one document per user, keyed by user ID.
const Collection = "users"

var _ repository.Store = (*Store)(nil)

// txnAttempts bounds retries of a transaction aborted by contention on the
// same user document.
const txnAttempts = 10

type Store struct {
	client     *gcfs.Client
	collection string
}

// New creates a Firestore client for projectID. When FIRESTORE_EMULATOR_HOST
// is set the client talks to the emulator instead.
func New(ctx context.Context, projectID string) (*Store, error) {
	client, err := gcfs.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("firestore: creating client: %w", err)
	}
	return &Store{client: client, collection: Collection}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) GetByUserID(ctx context.Context, userID string) (*model.UserRecipes, error) {
	ref := s.client.Collection(s.collection).Doc(userID)
	if ref == nil {
		// Doc returns nil for IDs that cannot name a document ("", "a/b").
		return nil, apperror.NotFound("user recipes", userID)
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperror.NotFound("user recipes", userID)
		}
		return nil, fmt.Errorf("while reading user recipes %s: %w", userID, err)
	}
	return decode(snap)
}

// AddRecipe runs a read-modify-write transaction on the user's document.
// Firestore retries the function when another writer touched the document
// in between, so the duplicate check always sees the latest list.
func (s *Store) AddRecipe(ctx context.Context, userID string, recipe *model.SavedRecipe) error {
	ref := s.client.Collection(s.collection).Doc(userID)
	if ref == nil {
		return apperror.ValidationFailed("userId", fmt.Sprintf("%q is not a valid user id", userID))
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, txn *gcfs.Transaction) error {
		now := time.Now().UTC()

		snap, err := txn.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return fmt.Errorf("while reading user recipes: %w", err)
			}
			doc := &model.UserRecipes{
				ID:        xid.New().String(),
				UserID:    userID,
				Recipes:   []model.SavedRecipe{*recipe},
				CreatedAt: now,
				UpdatedAt: now,
			}
			return txn.Create(ref, doc)
		}

		doc, err := decode(snap)
		if err != nil {
			return err
		}
		if doc.Contains(recipe.RecipeID) {
			return apperror.Conflict("saved recipe", recipe.RecipeID)
		}
		doc.Recipes = append(doc.Recipes, *recipe)
		doc.UpdatedAt = now
		return txn.Set(ref, doc)
	}, gcfs.MaxAttempts(txnAttempts))
	return wrapTxnErr(err, "saving recipe "+recipe.RecipeID)
}

func (s *Store) RemoveRecipe(ctx context.Context, userID, recipeID string) error {
	ref := s.client.Collection(s.collection).Doc(userID)
	if ref == nil {
		return apperror.NotFound("user recipes", userID)
	}

	err := s.client.RunTransaction(ctx, func(ctx context.Context, txn *gcfs.Transaction) error {
		snap, err := txn.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return apperror.NotFound("user recipes", userID)
			}
			return fmt.Errorf("while reading user recipes: %w", err)
		}

		doc, err := decode(snap)
		if err != nil {
			return err
		}
		doc.Remove(recipeID)
		doc.UpdatedAt = time.Now().UTC()
		return txn.Set(ref, doc)
	}, gcfs.MaxAttempts(txnAttempts))
	return wrapTxnErr(err, "removing recipe "+recipeID)
}

func decode(snap *gcfs.DocumentSnapshot) (*model.UserRecipes, error) {
	doc := &model.UserRecipes{}
	if err := snap.DataTo(doc); err != nil {
		return nil, fmt.Errorf("while deserializing user recipes %s: %w", snap.Ref.ID, err)
	}
	if doc.Recipes == nil {
		doc.Recipes = []model.SavedRecipe{}
	}
	return doc, nil
}

// wrapTxnErr passes application errors from inside a transaction through
// untouched and adds context to everything else.
func wrapTxnErr(err error, action string) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return fmt.Errorf("while %s: %w", action, err)
}
