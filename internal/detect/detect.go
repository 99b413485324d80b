// Package detect holds the skip decisions applied to each URL and the rules
// for how crawl state is refreshed after each decision.
package detect

import (
	"net/http"
	"time"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

// SitemapUnchanged reports whether the sitemap hint is lexically at or before
// the hint recorded last time. Missing hints on either side never match.
func SitemapUnchanged(prev *crawler.CrawlState, hint string) bool {
	if prev == nil || prev.SitemapLastMod == "" || hint == "" {
		return false
	}
	return hint <= prev.SitemapLastMod
}

// FetchSkip classifies a fetch. It returns the skip reason and true when
// processing should stop, or "" and false for a fresh 200 response.
func FetchSkip(res crawler.FetchResult, err error) (string, bool) {
	if err != nil {
		return crawler.HTTPStatusReason(0), true
	}
	switch res.StatusCode {
	case http.StatusOK:
		return "", false
	case http.StatusNotModified:
		return crawler.ReasonNotModified, true
	default:
		return crawler.HTTPStatusReason(res.StatusCode), true
	}
}

// ContentUnchanged reports whether the fingerprint matches the stored one.
func ContentUnchanged(prev *crawler.CrawlState, fingerprint string) bool {
	return prev != nil && prev.ContentHash != "" && prev.ContentHash == fingerprint
}

// NotModifiedState keeps every cached validator and fingerprint and only
// advances the sitemap hint.
func NotModifiedState(prev *crawler.CrawlState, entry crawler.SitemapEntry, now time.Time) crawler.CrawlState {
	next := carry(prev, entry.URL)
	next.SitemapLastMod = entry.LastMod
	next.LastCrawledAt = now
	return next
}

// IncompleteState records fresh validators but keeps the cached fingerprint
// and chunk count, since nothing was indexed.
func IncompleteState(
	prev *crawler.CrawlState,
	entry crawler.SitemapEntry,
	res crawler.FetchResult,
	now time.Time,
) crawler.CrawlState {
	next := carry(prev, entry.URL)
	next.SitemapLastMod = entry.LastMod
	next.ETag = res.ETag
	next.LastModified = res.LastModified
	next.LastCrawledAt = now
	return next
}

// FreshState records the fetch validators, the new fingerprint, and the
// number of chunks now held in the index for the URL.
func FreshState(
	entry crawler.SitemapEntry,
	res crawler.FetchResult,
	fingerprint string,
	chunks int,
	now time.Time,
) crawler.CrawlState {
	return crawler.CrawlState{
		URL:            entry.URL,
		SitemapLastMod: entry.LastMod,
		ETag:           res.ETag,
		LastModified:   res.LastModified,
		ContentHash:    fingerprint,
		ChunkCount:     chunks,
		LastCrawledAt:  now,
	}
}

func carry(prev *crawler.CrawlState, url string) crawler.CrawlState {
	if prev == nil {
		return crawler.CrawlState{URL: url}
	}
	next := *prev
	next.URL = url
	return next
}
