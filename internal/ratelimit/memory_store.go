package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = time.Minute

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a process-local Store guarded by a single mutex.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*Entry)}
}

func (s *MemoryStore) Check(_ context.Context, key string, _ time.Time) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return Entry{}, nil
	}
	return *entry, nil
}

func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || !now.Before(entry.ResetAt) {
		entry = &Entry{ResetAt: now.Add(window), BlockedUntil: blockedUntil(entry)}
		s.entries[key] = entry
	}
	entry.Count++
	return *entry, nil
}

func (s *MemoryStore) Block(_ context.Context, key string, d time.Duration, now time.Time) error {
	until := now.Add(d)

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		entry = &Entry{ResetAt: until}
		s.entries[key] = entry
	}
	entry.BlockedUntil = until
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Sweep removes entries whose window and block have both elapsed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.ResetAt) && !now.Before(entry.BlockedUntil) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Run sweeps expired entries every interval until ctx is done.
func (s *MemoryStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

func blockedUntil(entry *Entry) time.Time {
	if entry == nil {
		return time.Time{}
	}
	return entry.BlockedUntil
}
