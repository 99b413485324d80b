// Package crawler defines the domain types and service interfaces shared by
// the sitemap indexer: sitemap entries, per-URL crawl state, fetch results,
// extracted pages, chunks, vector records, and the outcome of processing a URL.
package crawler
