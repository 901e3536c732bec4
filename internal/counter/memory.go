package counter

import (
	"context"
	"path"
	"sort"
	"sync"
)

// MemoryStore is a single-process Store. Every operation holds one mutex, so
// it gives the same linearizable behaviour as Redis within a process.
type MemoryStore struct {
	mu      sync.Mutex
	counts  map[string]int64
	members map[string]map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counts:  make(map[string]int64),
		members: make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Increment(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key]++
	return s.counts[key], nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(key), nil
}

func (s *MemoryStore) deleteLocked(key string) bool {
	if _, ok := s.counts[key]; ok {
		delete(s.counts, key)
		return true
	}
	if _, ok := s.members[key]; ok {
		delete(s.members, key)
		return true
	}
	return false
}

func (s *MemoryStore) Peek(ctx context.Context, key string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.peekLocked(key)
	return n, ok, nil
}

func (s *MemoryStore) peekLocked(key string) (int64, bool) {
	if n, ok := s.counts[key]; ok {
		return n, true
	}
	if set, ok := s.members[key]; ok {
		return int64(len(set)), true
	}
	return 0, false
}

func (s *MemoryStore) AddMember(ctx context.Context, key, member string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[key]
	if !ok {
		set = make(map[string]struct{})
		s.members[key] = set
	}
	_, exists := set[member]
	set[member] = struct{}{}
	return int64(len(set)), !exists, nil
}

func (s *MemoryStore) CompareAndDelete(ctx context.Context, key string, expected int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.peekLocked(key)
	if !ok || n != expected {
		return false, nil
	}
	return s.deleteLocked(key), nil
}

// Scan matches keys with path.Match, which covers the "*" globs used here.
func (s *MemoryStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for key := range s.counts {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	for key := range s.members {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Set overwrites a count key. Intended for tests and manual repair.
func (s *MemoryStore) Set(key string, value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[key] = value
}
