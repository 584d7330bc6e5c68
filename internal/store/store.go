package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/partyield/internal/compute"
)

// Entry is a result together with the time it was last stored.
type Entry struct {
	Result    *compute.Result
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory result store, keyed by scenario id.
// A zero TTL keeps entries forever.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the configured retention.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put stores or replaces the result for res.ScenarioID.
// Callers must not modify res after calling Put.
func (s *Store) Put(res *compute.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[res.ScenarioID] = &Entry{Result: res, UpdatedAt: s.now()}
}

// Get returns the live entry for a scenario. Stale entries are reported as
// missing.
func (s *Store) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[id]
	if !ok || s.stale(e, s.now()) {
		return nil, false
	}
	return e, true
}

// List returns all live entries ordered by scenario id.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if !s.stale(e, now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Result.ScenarioID < out[j].Result.ScenarioID
	})
	return out
}

// Delete removes a scenario's entry, e.g. after a config reload dropped it.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
}

// Count returns the number of entries held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes stale entries as of now and returns how many were removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.data {
		if s.stale(e, now) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run evicts stale entries every half TTL (minimum 1 second) until ctx is
// cancelled. With a zero TTL it only waits for cancellation.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale results", "count", n)
			}
		}
	}
}

func (s *Store) stale(e *Entry, now time.Time) bool {
	return s.ttl > 0 && !e.UpdatedAt.After(now.Add(-s.ttl))
}
