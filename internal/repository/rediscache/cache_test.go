package rediscache

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/recipe-finder/internal/apperror"
	"github.com/sakif/recipe-finder/internal/model"
	"github.com/sakif/recipe-finder/internal/repository"
	"github.com/sakif/recipe-finder/internal/repository/repotest"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.Ping(context.Background()).Err())
	return client, mr
}

func newTestCache(t *testing.T) (*Cache, *repotest.Memory, *miniredis.Miniredis) {
	t.Helper()
	client, mr := setupTestRedis(t)
	inner := repotest.NewMemory()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return New(inner, client, time.Minute, logger), inner, mr
}

func TestCache_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) repository.SavedRecipeRepository {
		c, _, _ := newTestCache(t)
		return c
	})
}

func TestCache_ReadThrough(t *testing.T) {
	c, inner, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.AddRecipe(ctx, "u1", repotest.NewRecipe("r1")))

	first, err := c.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	second, err := c.GetByUserID(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.Gets, "second read must be served from redis")
	assert.Equal(t, first.Recipes[0].RecipeID, second.Recipes[0].RecipeID)
	assert.True(t, mr.Exists("saved_recipes:u1"))

	ttl := mr.TTL("saved_recipes:u1")
	assert.True(t, ttl > 0 && ttl <= time.Minute, "ttl = %v", ttl)
}

func TestCache_WritesInvalidate(t *testing.T) {
	c, inner, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.AddRecipe(ctx, "u1", repotest.NewRecipe("r1")))
	_, err := c.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	require.True(t, mr.Exists("saved_recipes:u1"))

	require.NoError(t, c.AddRecipe(ctx, "u1", repotest.NewRecipe("r2")))
	assert.False(t, mr.Exists("saved_recipes:u1"), "save must drop the cached document")

	doc, err := c.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, doc.Recipes, 2)
	assert.Equal(t, 2, inner.Gets)

	require.NoError(t, c.RemoveRecipe(ctx, "u1", "r1"))
	assert.False(t, mr.Exists("saved_recipes:u1"), "unsave must drop the cached document")

	doc, err = c.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, doc.Recipes, 1)
}

// pausingRepo holds its first GetByUserID after the read until release is
// closed, leaving a window for a write to land between the read and the fill.
type pausingRepo struct {
	*repotest.Memory
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (p *pausingRepo) GetByUserID(ctx context.Context, userID string) (*model.UserRecipes, error) {
	doc, err := p.Memory.GetByUserID(ctx, userID)
	p.once.Do(func() {
		close(p.read)
		<-p.release
	})
	return doc, err
}

func TestCache_WriteDuringFill(t *testing.T) {
	tests := []struct {
		name  string
		write func(c *Cache) error
		want  []string
	}{
		{
			name:  "unsave",
			write: func(c *Cache) error { return c.RemoveRecipe(context.Background(), "u1", "r1") },
			want:  []string{},
		},
		{
			name:  "save",
			write: func(c *Cache) error { return c.AddRecipe(context.Background(), "u1", repotest.NewRecipe("r2")) },
			want:  []string{"r1", "r2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, mr := setupTestRedis(t)
			inner := &pausingRepo{
				Memory:  repotest.NewMemory(),
				read:    make(chan struct{}),
				release: make(chan struct{}),
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
			c := New(inner, client, time.Minute, logger)
			ctx := context.Background()

			require.NoError(t, inner.Memory.AddRecipe(ctx, "u1", repotest.NewRecipe("r1")))

			done := make(chan error, 1)
			go func() {
				_, err := c.GetByUserID(ctx, "u1")
				done <- err
			}()

			<-inner.read
			require.NoError(t, tt.write(c))
			close(inner.release)
			require.NoError(t, <-done)

			assert.False(t, mr.Exists("saved_recipes:u1"), "the pre-write document must not be cached")

			doc, err := c.GetByUserID(ctx, "u1")
			require.NoError(t, err)
			got := []string{}
			for _, r := range doc.Recipes {
				got = append(got, r.RecipeID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCache_ResaveAfterUnsaveDuringFill(t *testing.T) {
	client, _ := setupTestRedis(t)
	inner := &pausingRepo{
		Memory:  repotest.NewMemory(),
		read:    make(chan struct{}),
		release: make(chan struct{}),
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	c := New(inner, client, time.Minute, logger)
	ctx := context.Background()
	require.NoError(t, inner.Memory.AddRecipe(ctx, "u1", repotest.NewRecipe("r1")))

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.GetByUserID(ctx, "u1")
	}()
	<-inner.read
	require.NoError(t, c.RemoveRecipe(ctx, "u1", "r1"))
	close(inner.release)
	<-done

	doc, err := c.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, doc.Contains("r1"))
	assert.NoError(t, c.AddRecipe(ctx, "u1", repotest.NewRecipe("r1")))
}

func TestCache_WritesBumpGeneration(t *testing.T) {
	c, _, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.AddRecipe(ctx, "u1", repotest.NewRecipe("r1")))
	require.NoError(t, c.RemoveRecipe(ctx, "u1", "r1"))

	gen, err := mr.Get("saved_recipes_gen:u1")
	require.NoError(t, err)
	assert.Equal(t, "2", gen)
	assert.True(t, mr.TTL("saved_recipes_gen:u1") > 0)
}

func TestCache_NotFoundIsNotCached(t *testing.T) {
	c, inner, mr := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := c.GetByUserID(ctx, "nobody")
		assert.True(t, errors.Is(err, apperror.ErrNotFound))
	}
	assert.Equal(t, 2, inner.Gets)
	assert.False(t, mr.Exists("saved_recipes:nobody"))
}

func TestCache_FailedWriteKeepsEntry(t *testing.T) {
	c, _, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.AddRecipe(ctx, "u1", repotest.NewRecipe("r1")))
	_, err := c.GetByUserID(ctx, "u1")
	require.NoError(t, err)

	err = c.AddRecipe(ctx, "u1", repotest.NewRecipe("r1"))
	assert.True(t, errors.Is(err, apperror.ErrConflict))
	assert.True(t, mr.Exists("saved_recipes:u1"), "a rejected save changes nothing")
}

func TestCache_RedisDown(t *testing.T) {
	c, inner, mr := newTestCache(t)
	ctx := context.Background()
	mr.Close()

	require.NoError(t, c.AddRecipe(ctx, "u1", repotest.NewRecipe("r1")))
	doc, err := c.GetByUserID(ctx, "u1")
	require.NoError(t, err, "redis failures must fall through to the store")
	assert.Len(t, doc.Recipes, 1)
	assert.Equal(t, 1, inner.Gets)
}

func TestCache_CorruptEntry(t *testing.T) {
	c, inner, mr := newTestCache(t)
	ctx := context.Background()
	require.NoError(t, c.AddRecipe(ctx, "u1", repotest.NewRecipe("r1")))
	require.NoError(t, mr.Set("saved_recipes:u1", "{not json"))

	doc, err := c.GetByUserID(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, doc.Recipes, 1)
	assert.Equal(t, 1, inner.Gets)
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = Connect(context.Background(), "not-a-url")
	assert.Error(t, err)
}
