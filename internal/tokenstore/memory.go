package tokenstore

import (
	"context"
	"sync"
	"time"

	"github.com/sellerdesk/seller-front/internal/log"
)

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

// MemoryStore is an in-process KeyedStore for development and tests.
// Sessions are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

var _ KeyedStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Record, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, nil
	}
	record := entry.record
	return &record, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, record *Record, ttl time.Duration) error {
	s.mu.Lock()
	s.entries[key] = memoryEntry{record: *record, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Cleanup drops entries past their TTL and returns how many were removed
func (s *MemoryStore) Cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs periodic expiry sweeps until ctx is canceled
func (s *MemoryStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if removed := s.Cleanup(now); removed > 0 {
					log.LogDebugWithFields("tokenstore", "Swept expired sessions", map[string]any{
						"removed": removed,
					})
				}
			}
		}
	}()
}
