// Package ratelimit implements fixed-window request counting per client and
// endpoint category. Counters live in redis when configured, with an
// in-process fallback so limiting degrades to best-effort per process
// rather than failing the request.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Store counts requests in a window. Keys already encode the client,
// category and aligned window start, so Incr only needs to count and expire.
type Store interface {
	// Incr atomically increments the counter behind key and returns the
	// post-increment count. The entry expires after ttl.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// MemoryStore is the in-process fallback store. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

type memoryBucket struct {
	count     int64
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: map[string]*memoryBucket{}}
}

func (s *MemoryStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[key]
	if !ok || now.After(bucket.expiresAt) {
		bucket = &memoryBucket{expiresAt: now.Add(ttl)}
		s.buckets[key] = bucket
		s.prune(now)
	}
	bucket.count++
	return bucket.count, nil
}

// prune drops expired buckets. Called under the lock on bucket creation so
// the map does not grow with dead windows.
func (s *MemoryStore) prune(now time.Time) {
	for key, bucket := range s.buckets {
		if now.After(bucket.expiresAt) {
			delete(s.buckets, key)
		}
	}
}
