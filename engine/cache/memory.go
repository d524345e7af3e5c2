package cache

import (
	"context"
	"sync"
	"time"

	"github.com/SILVESTRIKE/document-to-quiz/engine/domain"
)

// MemoryStore is an in-process Store for tests and single-node setups.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[[2]string]domain.CachedAnswer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[[2]string]domain.CachedAnswer)}
}

func (s *MemoryStore) Get(ctx context.Context, stemHash, choicesHash string) (domain.CachedAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := [2]string{stemHash, choicesHash}
	ans, ok := s.entries[key]
	if !ok {
		return domain.CachedAnswer{}, domain.ErrAnswerNotCached
	}
	ans.HitCount++
	ans.LastHitAt = time.Now().UTC()
	s.entries[key] = ans
	return ans, nil
}

func (s *MemoryStore) Put(ctx context.Context, entries []domain.CachedAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		key := [2]string{e.StemHash, e.ChoicesHash}
		if _, exists := s.entries[key]; exists {
			continue
		}
		s.entries[key] = e
	}
	return nil
}

// Len reports the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
