package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

func TestMemoryStore_SetGetResult(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.GetResult(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	res := domain.AnalysisResult{FormattedText: "text", CompletedAt: time.Now()}
	require.NoError(t, s.SetResult(ctx, "k", res, time.Minute))

	got, ok, err := s.GetResult(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "text", got.FormattedText)
}

func TestMemoryStore_ResultExpires(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.SetResult(ctx, "k", domain.AnalysisResult{}, 5*time.Minute))

	now = now.Add(5*time.Minute + time.Second)
	_, ok, err := s.GetResult(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry past its TTL must not be served")
}

func TestMemoryStore_TryLock(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquisition must fail while held")

	require.NoError(t, s.Unlock(ctx, "k"))
	ok, err = s.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_LockExpires(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }

	ok, err := s.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = s.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a dead job's expired lock must be reclaimable")
}

func TestMemoryStore_DeleteResultAlsoDropsLock(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetResult(ctx, "k", domain.AnalysisResult{}, time.Minute))
	ok, err := s.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.DeleteResult(ctx, "k"))

	_, found, err := s.GetResult(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	ok, err = s.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryStore_SweepRemovesExpired(t *testing.T) {
	t.Parallel()
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.now = func() time.Time { return now }
	require.NoError(t, s.SetResult(ctx, "old", domain.AnalysisResult{}, time.Minute))
	require.NoError(t, s.SetResult(ctx, "fresh", domain.AnalysisResult{}, time.Hour))

	now = now.Add(2 * time.Minute)
	s.sweepOnce()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.NotContains(t, s.results, "old")
	assert.Contains(t, s.results, "fresh")
}
