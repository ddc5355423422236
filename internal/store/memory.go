package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/heritagectl/internal/heritage"
)

// MemoryStore keeps contributions for the lifetime of the process.
type MemoryStore struct {
	mu    sync.RWMutex
	items []heritage.Contribution
	index map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make([]heritage.Contribution, 0),
		index: make(map[string]int),
	}
}

func (s *MemoryStore) Add(_ context.Context, c heritage.Contribution) error {
	if err := heritage.Validate(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.ID)
	}
	s.index[c.ID] = len(s.items)
	s.items = append(s.items, clone(c))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (heritage.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return heritage.Contribution{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(s.items[i]), nil
}

func (s *MemoryStore) List(_ context.Context, q Query) ([]heritage.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]heritage.Contribution, 0)
	skipped := 0
	for _, c := range s.items {
		if !q.matches(c) {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		out = append(out, clone(c))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Recent(_ context.Context, n int) ([]heritage.Contribution, error) {
	n = normalizeRecent(n)
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := len(s.items) - n
	if start < 0 {
		start = 0
	}
	out := make([]heritage.Contribution, 0, len(s.items)-start)
	for _, c := range s.items[start:] {
		out = append(out, clone(c))
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].ID] = j
	}
	return nil
}

func (s *MemoryStore) Count(_ context.Context) (map[heritage.Kind]int, error) {
	out := emptyCounts()
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.items {
		out[c.Kind]++
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

func clone(c heritage.Contribution) heritage.Contribution {
	if c.Ingredients != nil {
		c.Ingredients = append([]string(nil), c.Ingredients...)
	}
	return c
}
