package crawler

import (
	"net/http"
	"time"
)

// SitemapEntry is a page URL discovered in a sitemap together with its optional
// last-modified hint. LastMod is the raw string from the sitemap and is only
// ever compared lexically.
type SitemapEntry struct {
	URL     string `json:"url"`
	LastMod string `json:"lastmod,omitempty"`
}

// CrawlState is the persisted record for a URL across runs.
type CrawlState struct {
	URL            string    `json:"url"`
	SitemapLastMod string    `json:"sitemap_lastmod,omitempty"`
	ETag           string    `json:"etag,omitempty"`
	LastModified   string    `json:"last_modified,omitempty"`
	ContentHash    string    `json:"content_hash,omitempty"`
	ChunkCount     int       `json:"chunk_count"`
	LastCrawledAt  time.Time `json:"last_crawled_at"`
}

// FetchRequest describes a single conditional GET.
type FetchRequest struct {
	URL          string
	ETag         string
	LastModified string
}

// FetchResult captures the response of a page fetch. StatusCode is 0 when the
// request failed at the transport level.
type FetchResult struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	ETag         string
	LastModified string
	Duration     time.Duration
	UsedHeadless bool
	InsecureTLS  bool
}

// PageMetadata is the descriptive data pulled from a page.
type PageMetadata struct {
	Title         string   `json:"title,omitempty"`
	H1            string   `json:"h1,omitempty"`
	CanonicalURL  string   `json:"canonical_url"`
	DownloadLinks []string `json:"download_links,omitempty"`
}

// Extraction is the structured text and metadata of a page. Incomplete is set
// when the text is too thin to be worth indexing.
type Extraction struct {
	Text       string
	Meta       PageMetadata
	WordCount  int
	Incomplete bool
}

// Section is a heading plus the body text under it.
type Section struct {
	Heading string
	Body    string
}

// Chunk is a bounded piece of a section. Index and Total are page-wide.
type Chunk struct {
	Heading string
	Text    string
	Index   int
	Total   int
}

// EmbedText returns the text sent to the embedding provider for the chunk.
func (c Chunk) EmbedText() string {
	return "Section: " + c.Heading + "\n\n" + c.Text
}

// ChunkMetadata is stored next to each vector.
type ChunkMetadata struct {
	URL            string   `json:"url"`
	CanonicalURL   string   `json:"canonical_url,omitempty"`
	PageTitle      string   `json:"page_title,omitempty"`
	H1             string   `json:"h1,omitempty"`
	SectionHeading string   `json:"section_heading,omitempty"`
	Source         string   `json:"source,omitempty"`
	URLPath        string   `json:"url_path,omitempty"`
	ChunkIndex     int      `json:"chunk_index"`
	TotalChunks    int      `json:"total_chunks"`
	ContentType    string   `json:"content_type"`
	CrawledAt      string   `json:"crawled_at"`
	SitemapLastMod string   `json:"sitemap_lastmod,omitempty"`
	HTTPStatus     int      `json:"http_status"`
	FinalURL       string   `json:"final_url,omitempty"`
	ETag           string   `json:"etag,omitempty"`
	LastModified   string   `json:"last_modified,omitempty"`
	ContentHash    string   `json:"content_hash"`
	Text           string   `json:"text"`
	DownloadLinks  []string `json:"download_links,omitempty"`
}

// VectorRecord is the unit written to the vector index.
type VectorRecord struct {
	ID       string
	Values   []float32
	Metadata ChunkMetadata
}

// OutcomeStatus classifies how a URL finished.
type OutcomeStatus string

// Outcome statuses counted in the run report.
const (
	OutcomeUpdated OutcomeStatus = "updated"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeErrored OutcomeStatus = "errored"
)

// Outcome is the result of processing one URL. Reason is set for skips and
// Error for failures.
type Outcome struct {
	URL    string
	Status OutcomeStatus
	Reason string
	Error  string
	Chunks int
}

// Updated builds an updated outcome.
func Updated(url string, chunks int) Outcome {
	return Outcome{URL: url, Status: OutcomeUpdated, Chunks: chunks}
}

// Skipped builds a skipped outcome.
func Skipped(url, reason string) Outcome {
	return Outcome{URL: url, Status: OutcomeSkipped, Reason: reason}
}

// Errored builds an errored outcome.
func Errored(url, errText string) Outcome {
	return Outcome{URL: url, Status: OutcomeErrored, Error: errText}
}
