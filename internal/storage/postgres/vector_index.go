package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

// maxHNSWDimensions is the largest vector pgvector can index with HNSW.
const maxHNSWDimensions = 2000

// ErrDimensionMismatch is returned by Provision when the existing table was
// created for a different embedding size.
var ErrDimensionMismatch = errors.New("vector index dimension mismatch")

// VectorIndexConfig names the table and embedding size.
type VectorIndexConfig struct {
	Table     string
	Dimension int
}

// VectorIndex implements crawler.VectorIndex on a pgvector table.
type VectorIndex struct {
	pool      pool
	table     string
	dimension int
	logger    *zap.Logger
}

// OpenVectorIndex connects a pool for the index.
func OpenVectorIndex(ctx context.Context, poolCfg PoolConfig, cfg VectorIndexConfig, logger *zap.Logger) (*VectorIndex, error) {
	if err := validateIndexConfig(&cfg); err != nil {
		return nil, err
	}
	p, err := newPool(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	return NewVectorIndexWithPool(p, cfg, logger)
}

// NewVectorIndexWithPool constructs an index from an existing pool (primarily for testing).
func NewVectorIndexWithPool(p pool, cfg VectorIndexConfig, logger *zap.Logger) (*VectorIndex, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if err := validateIndexConfig(&cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VectorIndex{pool: p, table: cfg.Table, dimension: cfg.Dimension, logger: logger}, nil
}

func validateIndexConfig(cfg *VectorIndexConfig) error {
	if cfg.Table == "" {
		cfg.Table = "page_chunks"
	}
	if !validTableName.MatchString(cfg.Table) {
		return fmt.Errorf("invalid table name %q", cfg.Table)
	}
	if cfg.Dimension <= 0 {
		return fmt.Errorf("vector dimension must be positive, got %d", cfg.Dimension)
	}
	return nil
}

// Provision creates the extension, table, and indexes if missing. An existing
// table with a different dimension is an error; it is never dropped.
func (v *VectorIndex) Provision(ctx context.Context) error {
	if _, err := v.pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	var existing int32
	err := v.pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = to_regclass($1) AND attname = 'embedding'`,
		v.table,
	).Scan(&existing)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("inspect vector table: %w", err)
	case int(existing) != v.dimension:
		return fmt.Errorf("%w: table %s has %d, configured %d", ErrDimensionMismatch, v.table, existing, v.dimension)
	}

	create := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id          TEXT PRIMARY KEY,
	url         TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	embedding   vector(%d) NOT NULL,
	metadata    JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, v.table, v.dimension)
	if _, err := v.pool.Exec(ctx, create); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}
	urlIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_url_idx ON %s (url)`, v.table, v.table)
	if _, err := v.pool.Exec(ctx, urlIndex); err != nil {
		return fmt.Errorf("create url index: %w", err)
	}

	if v.dimension > maxHNSWDimensions {
		v.logger.Warn("dimension too large for an hnsw index, queries will scan",
			zap.String("table", v.table),
			zap.Int("dimension", v.dimension),
		)
		return nil
	}
	hnsw := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, v.table, v.table)
	if _, err := v.pool.Exec(ctx, hnsw); err != nil {
		return fmt.Errorf("create hnsw index: %w", err)
	}
	return nil
}

// Upsert writes all records in one multi-row statement keyed by id.
func (v *VectorIndex) Upsert(ctx context.Context, records []crawler.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	const cols = 5
	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (id, url, chunk_index, embedding, metadata) VALUES ", v.table)
	args := make([]any, 0, len(records)*cols)
	for i, r := range records {
		if len(r.Values) != v.dimension {
			return fmt.Errorf("record %s has dimension %d, index expects %d", r.ID, len(r.Values), v.dimension)
		}
		meta, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", r.ID, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * cols
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5)
		args = append(args, r.ID, r.Metadata.URL, r.Metadata.ChunkIndex, pgvector.NewVector(r.Values), meta)
	}
	sb.WriteString(` ON CONFLICT (id) DO UPDATE SET
	url = EXCLUDED.url,
	chunk_index = EXCLUDED.chunk_index,
	embedding = EXCLUDED.embedding,
	metadata = EXCLUDED.metadata,
	updated_at = now()`)

	if _, err := v.pool.Exec(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

// Delete removes the given ids.
func (v *VectorIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, v.table)
	if _, err := v.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	return nil
}

// Close releases the pool.
func (v *VectorIndex) Close() error {
	if v == nil || v.pool == nil {
		return nil
	}
	v.pool.Close()
	return nil
}
