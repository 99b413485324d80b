// Package embed batches texts into calls against an embedding provider.
//
// A single Batcher is shared by every worker in a run so that its semaphore
// caps simultaneous provider calls across the whole run, independently of the
// fetch gate.
package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/sitemap-indexer/internal/metrics"
)

// Provider embeds one batch of texts in a single call.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Config controls batching.
type Config struct {
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
	Dimension   int
}

// Batcher implements crawler.Embedder.
type Batcher struct {
	provider Provider
	cfg      Config
	gate     *semaphore.Weighted
	logger   *zap.Logger
}

// ErrLengthMismatch reports a provider that returned the wrong number of vectors.
var ErrLengthMismatch = errors.New("embedding count mismatch")

// NewBatcher wires a provider behind the batch size and concurrency gate.
func NewBatcher(provider Provider, cfg Config, logger *zap.Logger) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{
		provider: provider,
		cfg:      cfg,
		gate:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:   logger,
	}
}

// Embed returns one vector per text in input order. Batches for a single
// call run concurrently, still bounded by the shared gate.
func (b *Batcher) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vectors, err := b.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Batcher) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if err := b.gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire embed slot: %w", err)
	}
	defer b.gate.Release(1)

	callCtx := ctx
	if b.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	vectors, err := b.provider.EmbedBatch(callCtx, batch)
	if err == nil {
		err = b.check(batch, vectors)
	}
	metrics.ObserveEmbed(len(batch), time.Since(start), err)
	if err != nil {
		b.logger.Warn("embedding batch failed", zap.Int("texts", len(batch)), zap.Error(err))
		return nil, err
	}
	return vectors, nil
}

func (b *Batcher) check(batch []string, vectors [][]float32) error {
	if len(vectors) != len(batch) {
		return fmt.Errorf("%w: sent %d texts, got %d vectors", ErrLengthMismatch, len(batch), len(vectors))
	}
	if b.cfg.Dimension <= 0 {
		return nil
	}
	for i, v := range vectors {
		if len(v) != b.cfg.Dimension {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), b.cfg.Dimension)
		}
	}
	return nil
}
