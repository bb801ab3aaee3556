// Package mongo stores each user's saved recipes as one document in a MongoDB
// collection, with the entries embedded as an array.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/recipe-finder/internal/apperror"
	"github.com/sakif/recipe-finder/internal/model"
	"github.com/sakif/recipe-finder/internal/repository"
)

// Collection holds one document per user.
const Collection = "users"

var _ repository.Store = (*Store)(nil)

// Store is the MongoDB implementation of repository.Store.
type Store struct {
	client *mongo.Client
	col    *mongo.Collection
}

// New connects to uri, pings the server and makes sure the userId index
// exists. Atlas clusters can be slow to answer the first ping, hence the
// generous timeouts.
func New(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(10 * time.Second).
		// Decode nested documents inside []any fields (ingredients) as
		// bson.M rather than bson.D so they marshal to JSON objects.
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 10*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	s := &Store{
		client: client,
		col:    client.Database(database).Collection(Collection),
	}
	if err := s.EnsureIndexes(connectCtx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the unique index on userId. AddRecipe depends on it
// to turn a lost race into a duplicate key error.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().SetName("uniq_user_id").SetUnique(true),
	}
	if _, err := s.col.Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("mongo: creating userId index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) GetByUserID(ctx context.Context, userID string) (*model.UserRecipes, error) {
	var doc model.UserRecipes
	err := s.col.FindOne(ctx, bson.M{"userId": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperror.NotFound("user recipes", userID)
		}
		return nil, fmt.Errorf("mongo: getting user recipes %s: %w", userID, err)
	}
	if doc.Recipes == nil {
		doc.Recipes = []model.SavedRecipe{}
	}
	return &doc, nil
}

// AddRecipe pushes the entry with a single conditional upsert.
//
// The filter only matches the user's document if it does not already hold
// recipe.RecipeID. A duplicate key error on the unique userId index means
// either the document holds the recipe, or a concurrent first save created
// the document between our match and our insert. The second case is told
// apart by retrying once without upsert: a match means the push went
// through, no match means the recipe is there.
func (s *Store) AddRecipe(ctx context.Context, userID string, recipe *model.SavedRecipe) error {
	if userID == "" {
		return apperror.ValidationFailed("userId", "userId must not be empty")
	}
	now := time.Now().UTC()

	filter := bson.M{
		"userId":           userID,
		"recipes.recipeId": bson.M{"$ne": recipe.RecipeID},
	}
	push := bson.M{
		"$push": bson.M{"recipes": recipe},
		"$set":  bson.M{"updatedAt": now},
	}
	upsert := bson.M{
		"$push":        push["$push"],
		"$set":         push["$set"],
		"$setOnInsert": bson.M{"_id": xid.New().String(), "createdAt": now},
	}

	_, err := s.col.UpdateOne(ctx, filter, upsert, options.Update().SetUpsert(true))
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongo: saving recipe %s for %s: %w", recipe.RecipeID, userID, err)
	}

	result, err := s.col.UpdateOne(ctx, filter, push)
	if err != nil {
		return fmt.Errorf("mongo: saving recipe %s for %s: %w", recipe.RecipeID, userID, err)
	}
	if result.MatchedCount == 0 {
		return apperror.Conflict("saved recipe", recipe.RecipeID)
	}
	return nil
}

func (s *Store) RemoveRecipe(ctx context.Context, userID, recipeID string) error {
	update := bson.M{
		"$pull": bson.M{"recipes": bson.M{"recipeId": recipeID}},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	}
	result, err := s.col.UpdateOne(ctx, bson.M{"userId": userID}, update)
	if err != nil {
		return fmt.Errorf("mongo: removing recipe %s for %s: %w", recipeID, userID, err)
	}
	if result.MatchedCount == 0 {
		return apperror.NotFound("user recipes", userID)
	}
	return nil
}

// Drop removes the whole database. Only tests call it.
func (s *Store) Drop(ctx context.Context) error {
	return s.col.Database().Drop(ctx)
}
