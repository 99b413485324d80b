package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

const (
	selectStateSQL = `
SELECT url, sitemap_lastmod, etag, last_modified, content_hash, chunk_count, last_crawled_at
FROM crawl_state
WHERE url = $1`

	upsertStateSQL = `
INSERT INTO crawl_state (url, sitemap_lastmod, etag, last_modified, content_hash, chunk_count, last_crawled_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (url) DO UPDATE SET
	sitemap_lastmod = EXCLUDED.sitemap_lastmod,
	etag = EXCLUDED.etag,
	last_modified = EXCLUDED.last_modified,
	content_hash = EXCLUDED.content_hash,
	chunk_count = EXCLUDED.chunk_count,
	last_crawled_at = EXCLUDED.last_crawled_at`
)

// StateStore implements crawler.StateStore on the crawl_state table.
type StateStore struct {
	pool   pool
	logger *zap.Logger
}

// OpenStateStore migrates the schema and connects a pool.
func OpenStateStore(ctx context.Context, cfg PoolConfig, logger *zap.Logger) (*StateStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := Migrate(cfg.DSN, logger); err != nil {
		return nil, err
	}
	p, err := newPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &StateStore{pool: p, logger: logger}, nil
}

// NewStateStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStateStoreWithPool(p pool, logger *zap.Logger) (*StateStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateStore{pool: p, logger: logger}, nil
}

// Get returns the state for url or crawler.ErrStateNotFound.
func (s *StateStore) Get(ctx context.Context, url string) (crawler.CrawlState, error) {
	var st crawler.CrawlState
	err := s.pool.QueryRow(ctx, selectStateSQL, url).Scan(
		&st.URL,
		&st.SitemapLastMod,
		&st.ETag,
		&st.LastModified,
		&st.ContentHash,
		&st.ChunkCount,
		&st.LastCrawledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.CrawlState{}, crawler.ErrStateNotFound
	}
	if err != nil {
		return crawler.CrawlState{}, fmt.Errorf("select crawl state: %w", err)
	}
	return st, nil
}

// Put upserts the state keyed by its URL.
func (s *StateStore) Put(ctx context.Context, st crawler.CrawlState) error {
	if st.URL == "" {
		return errors.New("crawl state url is required")
	}
	_, err := s.pool.Exec(ctx, upsertStateSQL,
		st.URL,
		st.SitemapLastMod,
		st.ETag,
		st.LastModified,
		st.ContentHash,
		st.ChunkCount,
		st.LastCrawledAt,
	)
	if err != nil {
		return fmt.Errorf("upsert crawl state: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *StateStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
