package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisStoreFromClient(rdb), mr
}

func TestRedisStore_SetGetResult(t *testing.T) {
	t.Parallel()
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	_, ok, err := s.GetResult(ctx, "essay-1")
	require.NoError(t, err)
	assert.False(t, ok)

	res := domain.AnalysisResult{FormattedText: "cached text"}
	require.NoError(t, s.SetResult(ctx, "essay-1", res, 5*time.Minute))

	got, ok, err := s.GetResult(ctx, "essay-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cached text", got.FormattedText)
}

func TestRedisStore_ResultExpires(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetResult(ctx, "essay-1", domain.AnalysisResult{}, 5*time.Minute))
	mr.FastForward(5*time.Minute + time.Second)

	_, ok, err := s.GetResult(ctx, "essay-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_TryLockIsExclusive(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := s.TryLock(ctx, "essay-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second replica sharing the same Redis must lose the race.
	other := NewRedisStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	ok, err = other.TryLock(ctx, "essay-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Unlock(ctx, "essay-1"))
	ok, err = other.TryLock(ctx, "essay-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_LockExpires(t *testing.T) {
	t.Parallel()
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	ok, err := s.TryLock(ctx, "essay-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = s.TryLock(ctx, "essay-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisStore_DeleteResultAlsoDropsLock(t *testing.T) {
	t.Parallel()
	s, _ := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetResult(ctx, "essay-1", domain.AnalysisResult{}, time.Minute))
	ok, err := s.TryLock(ctx, "essay-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.DeleteResult(ctx, "essay-1"))

	_, found, err := s.GetResult(ctx, "essay-1")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err = s.TryLock(ctx, "essay-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
