// Package index writes vector records to the index in bounded, timed batches.
package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
	"github.com/JakeFAU/sitemap-indexer/internal/metrics"
)

// Config controls batching.
type Config struct {
	BatchSize int
	Timeout   time.Duration
}

// Sink implements crawler.VectorSink over a crawler.VectorIndex.
type Sink struct {
	index  crawler.VectorIndex
	cfg    Config
	logger *zap.Logger
}

// NewSink wraps an index.
func NewSink(index crawler.VectorIndex, cfg Config, logger *zap.Logger) *Sink {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{index: index, cfg: cfg, logger: logger}
}

// Upsert writes records batch by batch. The first failing or timed-out batch
// aborts the rest; earlier batches stay written.
func (s *Sink) Upsert(ctx context.Context, records []crawler.VectorRecord) error {
	for start := 0; start < len(records); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(records))
		batch := records[start:end]

		began := time.Now()
		err := s.withTimeout(ctx, func(callCtx context.Context) error {
			return s.index.Upsert(callCtx, batch)
		})
		metrics.ObserveUpsert(len(batch), time.Since(began), err)
		if err != nil {
			s.logger.Warn("upsert batch failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			return err
		}
	}
	return nil
}

// Delete removes ids in batches under the same per-batch timeout.
func (s *Sink) Delete(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(ids))
		batch := ids[start:end]
		err := s.withTimeout(ctx, func(callCtx context.Context) error {
			return s.index.Delete(callCtx, batch)
		})
		if err != nil {
			return err
		}
		metrics.ObservePruned(len(batch))
	}
	return nil
}

// withTimeout runs call in its own goroutine so a backend that ignores
// context cancellation still cannot hold the worker past the deadline.
func (s *Sink) withTimeout(ctx context.Context, call func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- call(callCtx)
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return crawler.ErrUpsertTimeout
		}
		return fmt.Errorf("vector index: %w", err)
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("vector index: %w", ctx.Err())
		}
		return crawler.ErrUpsertTimeout
	}
}
