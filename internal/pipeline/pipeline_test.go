package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/sitemap-indexer/internal/chunk"
	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
	"github.com/JakeFAU/sitemap-indexer/internal/extract"
	"github.com/JakeFAU/sitemap-indexer/internal/hash/sha256"
	"github.com/JakeFAU/sitemap-indexer/internal/index"
	pubmem "github.com/JakeFAU/sitemap-indexer/internal/publisher/memory"
	"github.com/JakeFAU/sitemap-indexer/internal/report"
	storemem "github.com/JakeFAU/sitemap-indexer/internal/storage/memory"
	"github.com/JakeFAU/sitemap-indexer/internal/worker"
)

const (
	sitemapURL = "https://example.org/sitemap.xml"
	dimension  = 4
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

type fakeResolver struct {
	entries []crawler.SitemapEntry
	err     error
}

func (r fakeResolver) Resolve(context.Context, string) ([]crawler.SitemapEntry, error) {
	return r.entries, r.err
}

type pageFetcher struct {
	mu    sync.Mutex
	calls int
	pages map[string]string
}

func (f *pageFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	body, ok := f.pages[req.URL]
	if !ok {
		return crawler.FetchResult{URL: req.URL, FinalURL: req.URL, StatusCode: 404}, nil
	}
	return crawler.FetchResult{
		URL:        req.URL,
		FinalURL:   req.URL,
		StatusCode: 200,
		Body:       []byte(body),
		ETag:       `"v1"`,
	}, nil
}

type fakeEmbedder struct {
	mu    sync.Mutex
	texts int
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texts += len(texts)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{float32(i), 1, 0, 0}
	}
	return out, nil
}

type failingProvisioner struct{}

func (failingProvisioner) Provision(context.Context) error { return errors.New("extension missing") }

type harness struct {
	state    *storemem.StateStore
	index    *storemem.VectorIndex
	blobs    *storemem.BlobStore
	pub      *pubmem.Publisher
	fetcher  *pageFetcher
	embedder *fakeEmbedder
	summary  *bytes.Buffer
	resolver fakeResolver
}

func newHarness(entries []crawler.SitemapEntry, pages map[string]string) *harness {
	return &harness{
		state:    storemem.NewStateStore(),
		index:    storemem.NewVectorIndex(dimension),
		blobs:    storemem.NewBlobStore(),
		pub:      pubmem.New(),
		fetcher:  &pageFetcher{pages: pages},
		embedder: &fakeEmbedder{},
		summary:  &bytes.Buffer{},
		resolver: fakeResolver{entries: entries},
	}
}

func (h *harness) pipeline(topic string) *Pipeline {
	svc := worker.Services{
		State:     h.state,
		Fetcher:   h.fetcher,
		Extractor: extract.New(extract.Config{}),
		Chunker:   chunk.New(chunk.Config{MaxChars: 3500, OverlapChars: 200, MinChars: 250}),
		Embedder:  h.embedder,
		Sink:      index.NewSink(h.index, index.Config{BatchSize: 100, Timeout: time.Second}, nil),
		Hasher:    sha256.New(),
		Clock:     &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		FetchGate: semaphore.NewWeighted(2),
	}
	return New(Config{
		SitemapURL:  sitemapURL,
		Workers:     3,
		Worker:      worker.Config{TextLimit: 8000, PruneStale: true},
		NotifyTopic: topic,
	}, Deps{
		Resolver:  h.resolver,
		Services:  svc,
		Index:     h.index,
		Reports:   report.NewWriter(h.blobs, "reports"),
		Publisher: h.pub,
		IDs:       &seqIDs{},
		Clock:     &fakeClock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
		Summary:   h.summary,
	}, nil)
}

func page(words int) string {
	parts := make([]string, words)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%04d", i)
	}
	return "<html><head><title>Page</title></head><body><main><p>" +
		strings.Join(parts, " ") + "</p></main></body></html>"
}

func TestRunIndexesThenSkipsUnchangedSitemap(t *testing.T) {
	t.Parallel()
	entries := []crawler.SitemapEntry{{URL: "https://example.org/a", LastMod: "2024-05-01"}}
	h := newHarness(entries, map[string]string{"https://example.org/a": page(667)})
	p := h.pipeline("")

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.Updated)
	assert.Equal(t, 0, first.Stats.Errors)
	assert.Equal(t, 1, first.SitemapURLCount)
	assert.NotEmpty(t, h.index.IDs())

	st, err := h.state.Get(context.Background(), "https://example.org/a")
	require.NoError(t, err)
	assert.Equal(t, len(h.index.IDs()), st.ChunkCount)
	assert.Equal(t, "2024-05-01", st.SitemapLastMod)

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Stats.Updated)
	assert.Equal(t, 1, second.Stats.Skipped)
	assert.Equal(t, 1, second.Stats.Reasons[crawler.ReasonSitemapUnchanged])
	assert.Equal(t, 1, h.fetcher.calls)
	require.Len(t, second.Skipped, 1)
	assert.Equal(t, crawler.ReasonSitemapUnchanged, second.Skipped[0].Reason)
}

func TestRunReportsEveryURL(t *testing.T) {
	t.Parallel()
	entries := []crawler.SitemapEntry{
		{URL: "https://example.org/a"},
		{URL: "https://example.org/b"},
		{URL: "https://example.org/missing"},
		{URL: "https://example.org/thin"},
	}
	h := newHarness(entries, map[string]string{
		"https://example.org/a":    page(400),
		"https://example.org/b":    page(300),
		"https://example.org/thin": page(3),
	})

	rep, err := h.pipeline("").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Stats.Total())
	assert.Equal(t, 2, rep.Stats.Updated)
	assert.Equal(t, 2, rep.Stats.Skipped)
	assert.Equal(t, 1, rep.Stats.Reasons["http_404"])
	assert.Equal(t, 1, rep.Stats.Reasons[crawler.ReasonIncomplete])
	assert.Equal(t, "run-1", rep.RunID)
	assert.Contains(t, h.summary.String(), "run-1")
}

func TestRunWritesReportAndNotifies(t *testing.T) {
	t.Parallel()
	entries := []crawler.SitemapEntry{{URL: "https://example.org/a"}}
	h := newHarness(entries, map[string]string{"https://example.org/a": page(400)})

	rep, err := h.pipeline("crawl-runs").Run(context.Background())
	require.NoError(t, err)

	data, ok := h.blobs.Object("reports/crawl_report_run-1.json")
	require.True(t, ok)
	var saved report.RunReport
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, rep.RunID, saved.RunID)
	assert.Equal(t, 1, saved.Stats.Updated)

	msgs := h.pub.Topic("crawl-runs")
	require.Len(t, msgs, 1)
	var note Notification
	require.NoError(t, json.Unmarshal(msgs[0].Data, &note))
	assert.Equal(t, "run-1", note.RunID)
	assert.Equal(t, 1, note.Updated)
	assert.NotEmpty(t, note.ReportURI)
}

func TestRunWithoutTopicPublishesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(nil, nil)

	rep, err := h.pipeline("").Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Stats.Total())
	assert.NotNil(t, rep.Failed)
	assert.Empty(t, h.pub.Messages())
}

func TestRunFailsWhenProvisioningFails(t *testing.T) {
	t.Parallel()
	h := newHarness([]crawler.SitemapEntry{{URL: "https://example.org/a"}}, nil)
	p := h.pipeline("")
	p.deps.Index = failingProvisioner{}

	_, err := p.Run(context.Background())
	require.ErrorContains(t, err, "provision vector index")
	assert.Zero(t, h.fetcher.calls)
}

func TestRunFailsOnResolveError(t *testing.T) {
	t.Parallel()
	h := newHarness(nil, nil)
	h.resolver.err = errors.New("invalid sitemap url")

	_, err := h.pipeline("").Run(context.Background())
	require.ErrorContains(t, err, "invalid sitemap url")
	assert.Empty(t, h.blobs.Paths())
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()
	h := newHarness([]crawler.SitemapEntry{{URL: "https://example.org/a"}}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline("").Run(ctx)
	require.Error(t, err)
}
