// Package badger persists crawl state in an embedded Badger database.
package badger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/timshannon/badgerhold/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

// StateStore implements crawler.StateStore on badgerhold, keyed by URL.
type StateStore struct {
	store  *badgerhold.Store
	logger *zap.Logger
}

// Open opens (or creates) the database directory at path.
func Open(path string, logger *zap.Logger) (*StateStore, error) {
	if path == "" {
		return nil, errors.New("state path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Clean(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	logger.Debug("badger state store opened", zap.String("path", path))
	return &StateStore{store: store, logger: logger}, nil
}

// Get returns the state for url or crawler.ErrStateNotFound.
func (s *StateStore) Get(_ context.Context, url string) (crawler.CrawlState, error) {
	var st crawler.CrawlState
	if err := s.store.Get(url, &st); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return crawler.CrawlState{}, crawler.ErrStateNotFound
		}
		return crawler.CrawlState{}, fmt.Errorf("get crawl state: %w", err)
	}
	return st, nil
}

// Put upserts the state keyed by its URL.
func (s *StateStore) Put(_ context.Context, state crawler.CrawlState) error {
	if state.URL == "" {
		return errors.New("crawl state url is required")
	}
	if err := s.store.Upsert(state.URL, &state); err != nil {
		return fmt.Errorf("upsert crawl state: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *StateStore) Close() error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	return nil
}
