package crawler

import (
	"errors"
	"strconv"
)

// Skip reasons recorded in the run report.
const (
	ReasonSitemapUnchanged = "sitemap_lastmod_unchanged"
	ReasonNotModified      = "http_304"
	ReasonIncomplete       = "incomplete_extraction"
	ReasonHashUnchanged    = "hash_unchanged"
	ReasonNoChunks         = "no_chunks"
	ReasonRobotsDisallowed = "robots_disallowed"
)

// Error prefixes recorded for failed URLs.
const (
	ErrTextUpsertTimeout = "upsert_timeout"
	ErrTextUpsertFailed  = "upsert_failed"
	ErrTextEmbedFailed   = "embed_failed"
	ErrTextStateFailed   = "state_failed"
	ErrTextHashFailed    = "hash_failed"
	ErrTextPanic         = "panic"
)

// ErrStateNotFound is returned by state stores when a URL has no record.
var ErrStateNotFound = errors.New("crawl state not found")

// ErrUpsertTimeout is returned when a vector batch does not complete in time.
var ErrUpsertTimeout = errors.New("vector upsert timed out")

// HTTPStatusReason formats the skip reason for a non-200, non-304 response.
// Transport failures use status 0.
func HTTPStatusReason(status int) string {
	return "http_" + strconv.Itoa(status)
}

// ErrQueueClosed is returned by Dequeue once a closed queue has drained.
var ErrQueueClosed = errors.New("queue closed")
