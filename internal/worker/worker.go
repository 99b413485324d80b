// Package worker implements the per-URL state machine: state lookup, change
// detection, fetch, extraction, chunking, embedding, and upsert.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
	"github.com/JakeFAU/sitemap-indexer/internal/detect"
	"github.com/JakeFAU/sitemap-indexer/internal/metrics"
)

const chunkContentType = "text/structured"

// Services is the bundle of collaborators every worker shares. Headless,
// Detector, Limiter, and Robots are optional.
type Services struct {
	State     crawler.StateStore
	Fetcher   crawler.Fetcher
	Headless  crawler.Fetcher
	Detector  crawler.HeadlessDetector
	Extractor crawler.Extractor
	Chunker   crawler.Chunker
	Embedder  crawler.Embedder
	Sink      crawler.VectorSink
	Hasher    crawler.Hasher
	Clock     crawler.Clock
	Limiter   crawler.Limiter
	Robots    crawler.RobotsPolicy
	Recorder  crawler.Recorder
	// FetchGate bounds concurrent page fetches across all workers.
	FetchGate *semaphore.Weighted
}

// Config controls Worker behavior.
type Config struct {
	// TextLimit caps the stored chunk text in runes.
	TextLimit  int
	PruneStale bool
}

// Worker consumes sitemap entries and records one Outcome per URL.
type Worker struct {
	queue  crawler.Queue
	svc    Services
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue crawler.Queue, svc Services, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TextLimit <= 0 {
		cfg.TextLimit = 8000
	}
	return &Worker{queue: queue, svc: svc, cfg: cfg, logger: logger}
}

// Run blocks, consuming entries until the queue is drained or the context ends.
func (w *Worker) Run(ctx context.Context) {
	for {
		entry, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, crawler.ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued url", zap.String("url", entry.URL))

		metrics.IncActiveWorkers()
		outcome := w.Process(ctx, entry)
		metrics.DecActiveWorkers()

		w.record(outcome)
	}
}

// Process runs one entry to a terminal outcome. Panics are converted into
// errored outcomes so the worker can move on.
func (w *Worker) Process(ctx context.Context, entry crawler.SitemapEntry) (outcome crawler.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while processing url",
				zap.String("url", entry.URL),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			outcome = crawler.Errored(entry.URL, fmt.Sprintf("%s: %v", crawler.ErrTextPanic, r))
		}
	}()
	return w.process(ctx, entry)
}

func (w *Worker) process(ctx context.Context, entry crawler.SitemapEntry) crawler.Outcome {
	prev, err := w.loadState(ctx, entry.URL)
	if err != nil {
		return crawler.Errored(entry.URL, fmt.Sprintf("%s: %v", crawler.ErrTextStateFailed, err))
	}

	if detect.SitemapUnchanged(prev, entry.LastMod) {
		return crawler.Skipped(entry.URL, crawler.ReasonSitemapUnchanged)
	}
	if w.svc.Robots != nil && !w.svc.Robots.Allowed(ctx, entry.URL) {
		return crawler.Skipped(entry.URL, crawler.ReasonRobotsDisallowed)
	}

	res, fetchErr := w.fetch(ctx, entry.URL, prev)
	if reason, skip := detect.FetchSkip(res, fetchErr); skip {
		if fetchErr != nil {
			w.logger.Warn("fetch failed", zap.String("url", entry.URL), zap.Error(fetchErr))
		}
		if reason == crawler.ReasonNotModified {
			if err := w.putState(ctx, detect.NotModifiedState(prev, entry, w.now())); err != nil {
				return crawler.Errored(entry.URL, fmt.Sprintf("%s: %v", crawler.ErrTextStateFailed, err))
			}
		}
		return crawler.Skipped(entry.URL, reason)
	}

	extraction, res := w.extract(ctx, entry.URL, res)
	if extraction.Incomplete {
		if err := w.putState(ctx, detect.IncompleteState(prev, entry, res, w.now())); err != nil {
			return crawler.Errored(entry.URL, fmt.Sprintf("%s: %v", crawler.ErrTextStateFailed, err))
		}
		return crawler.Skipped(entry.URL, crawler.ReasonIncomplete)
	}

	fingerprint, err := w.svc.Hasher.Hash(strings.NewReader(extraction.Text))
	if err != nil {
		return crawler.Errored(entry.URL, fmt.Sprintf("%s: %v", crawler.ErrTextHashFailed, err))
	}
	if detect.ContentUnchanged(prev, fingerprint) {
		if err := w.putState(ctx, detect.FreshState(entry, res, fingerprint, prevChunks(prev), w.now())); err != nil {
			return crawler.Errored(entry.URL, fmt.Sprintf("%s: %v", crawler.ErrTextStateFailed, err))
		}
		return crawler.Skipped(entry.URL, crawler.ReasonHashUnchanged)
	}

	chunks := w.svc.Chunker.Chunk(extraction.Text)
	if len(chunks) == 0 {
		w.prune(ctx, entry.URL, 0, prevChunks(prev))
		if err := w.putState(ctx, detect.FreshState(entry, res, fingerprint, 0, w.now())); err != nil {
			return crawler.Errored(entry.URL, fmt.Sprintf("%s: %v", crawler.ErrTextStateFailed, err))
		}
		return crawler.Skipped(entry.URL, crawler.ReasonNoChunks)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.EmbedText()
	}
	vectors, err := w.svc.Embedder.Embed(ctx, texts)
	if err != nil {
		return crawler.Errored(entry.URL, fmt.Sprintf("%s: %v", crawler.ErrTextEmbedFailed, err))
	}
	if len(vectors) != len(chunks) {
		return crawler.Errored(entry.URL, fmt.Sprintf("%s: got %d vectors for %d chunks",
			crawler.ErrTextEmbedFailed, len(vectors), len(chunks)))
	}

	records := w.buildRecords(entry, res, extraction.Meta, fingerprint, chunks, texts, vectors)
	if err := w.svc.Sink.Upsert(ctx, records); err != nil {
		if errors.Is(err, crawler.ErrUpsertTimeout) {
			return crawler.Errored(entry.URL, crawler.ErrTextUpsertTimeout)
		}
		return crawler.Errored(entry.URL, fmt.Sprintf("%s: %v", crawler.ErrTextUpsertFailed, err))
	}

	w.prune(ctx, entry.URL, len(records), prevChunks(prev))

	if err := w.putState(ctx, detect.FreshState(entry, res, fingerprint, len(records), w.now())); err != nil {
		return crawler.Errored(entry.URL, fmt.Sprintf("%s: %v", crawler.ErrTextStateFailed, err))
	}
	return crawler.Updated(entry.URL, len(records))
}

func (w *Worker) loadState(ctx context.Context, pageURL string) (*crawler.CrawlState, error) {
	st, err := w.svc.State.Get(ctx, pageURL)
	if errors.Is(err, crawler.ErrStateNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return &st, nil
}

func (w *Worker) putState(ctx context.Context, st crawler.CrawlState) error {
	if err := w.svc.State.Put(ctx, st); err != nil {
		return fmt.Errorf("store state: %w", err)
	}
	return nil
}

func (w *Worker) fetch(ctx context.Context, pageURL string, prev *crawler.CrawlState) (crawler.FetchResult, error) {
	req := crawler.FetchRequest{URL: pageURL}
	if prev != nil {
		req.ETag = prev.ETag
		req.LastModified = prev.LastModified
	}

	if w.svc.Limiter != nil {
		if err := w.svc.Limiter.Wait(ctx, pageURL); err != nil {
			return crawler.FetchResult{URL: pageURL}, err
		}
	}
	if w.svc.FetchGate != nil {
		if err := w.svc.FetchGate.Acquire(ctx, 1); err != nil {
			return crawler.FetchResult{URL: pageURL}, fmt.Errorf("acquire fetch slot: %w", err)
		}
		defer w.svc.FetchGate.Release(1)
	}
	return w.svc.Fetcher.Fetch(ctx, req)
}

// extract parses the static response and, when it looks like an unrendered
// application shell, retries once through the headless renderer.
func (w *Worker) extract(ctx context.Context, pageURL string, res crawler.FetchResult) (crawler.Extraction, crawler.FetchResult) {
	extraction := w.parse(pageURL, res)
	if !extraction.Incomplete || w.svc.Headless == nil || w.svc.Detector == nil {
		return extraction, res
	}
	if !w.svc.Detector.ShouldPromote(res) {
		return extraction, res
	}

	rendered, err := w.svc.Headless.Fetch(ctx, crawler.FetchRequest{URL: pageURL})
	if err != nil || rendered.StatusCode != 200 {
		w.logger.Warn("headless promotion failed",
			zap.String("url", pageURL),
			zap.Int("status", rendered.StatusCode),
			zap.Error(err),
		)
		return extraction, res
	}
	// Validators belong to the static response used for conditional GETs.
	rendered.ETag = res.ETag
	rendered.LastModified = res.LastModified
	w.logger.Info("headless promotion applied", zap.String("url", pageURL))
	return w.parse(pageURL, rendered), rendered
}

func (w *Worker) parse(pageURL string, res crawler.FetchResult) crawler.Extraction {
	// Canonical links resolve against the sitemap URL, not the redirect target.
	extraction, err := w.svc.Extractor.Extract(res.Body, pageURL)
	if err != nil {
		w.logger.Warn("html extraction failed", zap.String("url", pageURL), zap.Error(err))
		return crawler.Extraction{Incomplete: true}
	}
	return extraction
}

func (w *Worker) buildRecords(
	entry crawler.SitemapEntry,
	res crawler.FetchResult,
	meta crawler.PageMetadata,
	fingerprint string,
	chunks []crawler.Chunk,
	texts []string,
	vectors [][]float32,
) []crawler.VectorRecord {
	crawledAt := w.now().Format(time.RFC3339)
	source, path := "", ""
	if u, err := url.Parse(entry.URL); err == nil {
		source, path = u.Host, u.Path
	}
	canonical := meta.CanonicalURL
	if canonical == "" {
		canonical = entry.URL
	}
	finalURL := res.FinalURL
	if finalURL == "" {
		finalURL = entry.URL
	}

	records := make([]crawler.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = crawler.VectorRecord{
			ID:     crawler.ChunkID(entry.URL, c.Index),
			Values: vectors[i],
			Metadata: crawler.ChunkMetadata{
				URL:            entry.URL,
				CanonicalURL:   canonical,
				PageTitle:      meta.Title,
				H1:             meta.H1,
				SectionHeading: c.Heading,
				Source:         source,
				URLPath:        path,
				ChunkIndex:     c.Index,
				TotalChunks:    c.Total,
				ContentType:    chunkContentType,
				CrawledAt:      crawledAt,
				SitemapLastMod: entry.LastMod,
				HTTPStatus:     res.StatusCode,
				FinalURL:       finalURL,
				ETag:           res.ETag,
				LastModified:   res.LastModified,
				ContentHash:    fingerprint,
				Text:           truncateRunes(texts[i], w.cfg.TextLimit),
				DownloadLinks:  meta.DownloadLinks,
			},
		}
	}
	return records
}

// prune deletes ids [from, to) left over from a previous, larger version of
// the page. Failures are logged only; the fresh chunk set is already written.
func (w *Worker) prune(ctx context.Context, pageURL string, from, to int) {
	if !w.cfg.PruneStale {
		return
	}
	ids := crawler.ChunkIDs(pageURL, from, to)
	if len(ids) == 0 {
		return
	}
	if err := w.svc.Sink.Delete(ctx, ids); err != nil {
		w.logger.Warn("stale chunk prune failed",
			zap.String("url", pageURL),
			zap.Int("stale", len(ids)),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("pruned stale chunks", zap.String("url", pageURL), zap.Int("stale", len(ids)))
}

func (w *Worker) record(outcome crawler.Outcome) {
	switch outcome.Status {
	case crawler.OutcomeUpdated:
		w.logger.Info("url updated", zap.String("url", outcome.URL), zap.Int("chunks", outcome.Chunks))
	case crawler.OutcomeSkipped:
		w.logger.Info("url skipped", zap.String("url", outcome.URL), zap.String("reason", outcome.Reason))
	case crawler.OutcomeErrored:
		w.logger.Error("url failed", zap.String("url", outcome.URL), zap.String("error", outcome.Error))
	}
	metrics.ObservePage(outcome.URL, string(outcome.Status), outcome.Reason)
	if w.svc.Recorder != nil {
		w.svc.Recorder.Record(outcome)
	}
}

func (w *Worker) now() time.Time {
	if w.svc.Clock == nil {
		return time.Now().UTC()
	}
	return w.svc.Clock.Now()
}

func prevChunks(prev *crawler.CrawlState) int {
	if prev == nil {
		return 0
	}
	return prev.ChunkCount
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
