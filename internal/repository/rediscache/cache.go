// Package rediscache wraps a repository.SavedRecipeRepository with a Redis
// read-through cache of whole user documents.
//
// Redis is an accelerator only. Every Redis failure is logged and the call
// falls through to the wrapped repository, so a dead cache never fails a
// request.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/recipe-finder/internal/model"
	"github.com/sakif/recipe-finder/internal/repository"
)

const (
	keyPrefix = "saved_recipes:"     // saved_recipes:{userId} -> JSON UserRecipes
	genPrefix = "saved_recipes_gen:" // saved_recipes_gen:{userId} -> write counter

	// genTTL outlives any cache fill by a wide margin; an expired counter
	// restarts from zero.
	genTTL = 24 * time.Hour
)

// fillScript stores the document only if no write has bumped the user's
// generation since the fill read it.
//
//	KEYS[1] document key   ARGV[1] JSON document
//	KEYS[2] generation key ARGV[2] generation seen before the store read
//	                       ARGV[3] ttl in milliseconds
var fillScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[2]) or "0"
if gen ~= ARGV[2] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[3])
return 1
`)

var _ repository.SavedRecipeRepository = (*Cache)(nil)

// Cache is a caching decorator around another repository.
type Cache struct {
	inner  repository.SavedRecipeRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(inner repository.SavedRecipeRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Connect parses a redis:// URL, applies pool settings and pings the server.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("rediscache: parsing url: %w", err)
	}

	opt.PoolSize = 10
	opt.MinIdleConns = 2
	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("rediscache: pinging: %w", err)
	}
	return client, nil
}

func key(userID string) string {
	return keyPrefix + userID
}

func genKey(userID string) string {
	return genPrefix + userID
}

// GetByUserID serves from Redis when it can and fills the cache on a miss.
// NotFound results are not cached.
//
// A write that commits while the fill is reading the store bumps the user's
// generation, and the fill then leaves the key empty instead of caching the
// pre-write document.
func (c *Cache) GetByUserID(ctx context.Context, userID string) (*model.UserRecipes, error) {
	data, err := c.client.Get(ctx, key(userID)).Bytes()
	switch {
	case err == nil:
		var doc model.UserRecipes
		if err := json.Unmarshal(data, &doc); err == nil {
			return &doc, nil
		}
		c.logger.Warn("discarding undecodable cache entry", slog.String("userID", userID))
	case errors.Is(err, redis.Nil):
		// miss
	default:
		c.logger.Warn("redis get failed", slog.String("userID", userID), slog.String("error", err.Error()))
	}

	gen, genErr := c.generation(ctx, userID)

	doc, err := c.inner.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if genErr != nil {
		c.logger.Warn("redis generation read failed, not caching",
			slog.String("userID", userID), slog.String("error", genErr.Error()))
		return doc, nil
	}
	c.fill(ctx, userID, gen, doc)
	return doc, nil
}

func (c *Cache) generation(ctx context.Context, userID string) (string, error) {
	gen, err := c.client.Get(ctx, genKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

func (c *Cache) fill(ctx context.Context, userID, gen string, doc *model.UserRecipes) {
	data, err := json.Marshal(doc)
	if err != nil {
		c.logger.Warn("encoding cache entry failed", slog.String("userID", userID), slog.String("error", err.Error()))
		return
	}

	stored, err := fillScript.Run(ctx, c.client,
		[]string{key(userID), genKey(userID)},
		data, gen, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		c.logger.Warn("redis set failed", slog.String("userID", userID), slog.String("error", err.Error()))
		return
	}
	if stored == 0 {
		c.logger.Debug("skipped cache fill after concurrent write", slog.String("userID", userID))
	}
}

func (c *Cache) AddRecipe(ctx context.Context, userID string, recipe *model.SavedRecipe) error {
	if err := c.inner.AddRecipe(ctx, userID, recipe); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

func (c *Cache) RemoveRecipe(ctx context.Context, userID, recipeID string) error {
	if err := c.inner.RemoveRecipe(ctx, userID, recipeID); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

// invalidate bumps the user's generation and drops the cached document in
// one MULTI/EXEC.
func (c *Cache) invalidate(ctx context.Context, userID string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(userID))
		pipe.Expire(ctx, genKey(userID), genTTL)
		pipe.Del(ctx, key(userID))
		return nil
	})
	if err != nil {
		c.logger.Warn("redis invalidate failed", slog.String("userID", userID), slog.String("error", err.Error()))
	}
}
