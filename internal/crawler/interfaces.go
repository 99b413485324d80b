package crawler

import (
	"context"
	"io"
	"time"
)

// StateStore persists CrawlState keyed by URL. Get returns ErrStateNotFound
// when the URL has never been recorded.
type StateStore interface {
	Get(ctx context.Context, url string) (CrawlState, error)
	Put(ctx context.Context, state CrawlState) error
	Close() error
}

// Fetcher performs a (conditional) GET. A non-nil error means the request
// never produced an HTTP response.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResult, error)
}

// HeadlessDetector decides whether a static response should be re-rendered.
type HeadlessDetector interface {
	ShouldPromote(result FetchResult) bool
}

// Extractor turns an HTML body into structured text and metadata.
type Extractor interface {
	Extract(body []byte, pageURL string) (Extraction, error)
}

// Chunker splits structured text into embeddable chunks.
type Chunker interface {
	Chunk(text string) []Chunk
}

// Embedder turns texts into vectors, one per input and in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorIndex is a vector database backend.
type VectorIndex interface {
	Provision(ctx context.Context) error
	Upsert(ctx context.Context, records []VectorRecord) error
	Delete(ctx context.Context, ids []string) error
	Close() error
}

// VectorSink writes records to the index in bounded batches.
type VectorSink interface {
	Upsert(ctx context.Context, records []VectorRecord) error
	Delete(ctx context.Context, ids []string) error
}

// Queue provides enqueue/dequeue semantics for sitemap entries.
type Queue interface {
	Enqueue(ctx context.Context, entry SitemapEntry) error
	Dequeue(ctx context.Context) (SitemapEntry, error)
}

// Recorder accumulates per-URL outcomes.
type Recorder interface {
	Record(outcome Outcome)
}

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// RobotsPolicy decides whether a URL may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, url string) bool
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content fingerprints.
type Hasher interface {
	Hash(data io.Reader) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
