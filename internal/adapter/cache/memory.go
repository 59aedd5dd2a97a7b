// Package cache provides the analysis result store behind the essay
// analysis coordinator. The in-memory store is the default; the Redis
// store extends the single-flight guarantee across instances.
package cache

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

type memoryEntry struct {
	result    domain.AnalysisResult
	expiresAt time.Time
}

// MemoryStore keeps analysis results and single-flight locks in process
// memory. Entries expire lazily on read and eagerly via Run.
type MemoryStore struct {
	mu      sync.Mutex
	results map[string]memoryEntry
	locks   map[string]time.Time

	sweepInterval time.Duration
	now           func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results:       make(map[string]memoryEntry),
		locks:         make(map[string]time.Time),
		sweepInterval: time.Minute,
		now:           time.Now,
	}
}

// GetResult returns the cached result for key when present and fresh.
func (s *MemoryStore) GetResult(_ context.Context, key string) (domain.AnalysisResult, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.results[key]
	if !ok {
		return domain.AnalysisResult{}, false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.results, key)
		return domain.AnalysisResult{}, false, nil
	}
	return e.result, true, nil
}

// SetResult caches a result for key with the given TTL.
func (s *MemoryStore) SetResult(_ context.Context, key string, res domain.AnalysisResult, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[key] = memoryEntry{result: res, expiresAt: s.now().Add(ttl)}
	return nil
}

// DeleteResult drops the cached result and any lock for key.
func (s *MemoryStore) DeleteResult(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.results, key)
	delete(s.locks, key)
	return nil
}

// TryLock acquires the single-flight lock for key. It reports false when
// another job already holds a fresh lock. The TTL guards against jobs
// that die without unlocking.
func (s *MemoryStore) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, held := s.locks[key]; held && s.now().Before(exp) {
		return false, nil
	}
	s.locks[key] = s.now().Add(ttl)
	return true, nil
}

// Unlock releases the single-flight lock for key.
func (s *MemoryStore) Unlock(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, key)
	return nil
}

// Run sweeps expired entries until ctx is cancelled. Lazy expiry keeps
// reads correct without it; the sweep only bounds memory growth.
func (s *MemoryStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("analysis cache sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *MemoryStore) sweepOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, e := range s.results {
		if now.After(e.expiresAt) {
			delete(s.results, k)
			removed++
		}
	}
	for k, exp := range s.locks {
		if now.After(exp) {
			delete(s.locks, k)
		}
	}
	if removed > 0 {
		slog.Debug("analysis cache swept", slog.Int("removed", removed))
	}
}
