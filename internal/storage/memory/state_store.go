// Package memory provides in-process storage backends for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

// StateStore implements crawler.StateStore with a map. State does not survive
// the process, so every run behaves like a first run.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]crawler.CrawlState
}

// NewStateStore constructs a StateStore.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]crawler.CrawlState)}
}

// Get returns the state for url or crawler.ErrStateNotFound.
func (s *StateStore) Get(_ context.Context, url string) (crawler.CrawlState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[url]
	if !ok {
		return crawler.CrawlState{}, crawler.ErrStateNotFound
	}
	return st, nil
}

// Put upserts the state keyed by its URL.
func (s *StateStore) Put(_ context.Context, state crawler.CrawlState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.URL] = state
	return nil
}

// Len reports the number of stored URLs.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Close is a no-op.
func (s *StateStore) Close() error { return nil }
