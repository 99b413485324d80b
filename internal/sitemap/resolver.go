// Package sitemap flattens a sitemap tree into the list of pages to crawl.
package sitemap

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

const maxSitemapFetches = 1000

// Resolver fetches a root sitemap and every nested sitemap index beneath it.
type Resolver struct {
	fetcher crawler.Fetcher
	filter  *crawler.URLFilter
	timeout time.Duration
	logger  *zap.Logger
}

// New constructs a Resolver. Page URLs are normalized and screened by filter.
func New(fetcher crawler.Fetcher, filter *crawler.URLFilter, timeout time.Duration, logger *zap.Logger) *Resolver {
	if filter == nil {
		filter = crawler.NewURLFilter(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		fetcher: fetcher,
		filter:  filter,
		timeout: timeout,
		logger:  logger,
	}
}

// document matches both <sitemapindex> and <urlset> roots.
type document struct {
	XMLName  xml.Name
	Sitemaps []sitemapEntry `xml:"sitemap"`
	URLs     []urlEntry     `xml:"url"`
}

type sitemapEntry struct {
	Location string `xml:"loc"`
}

type urlEntry struct {
	Location string `xml:"loc"`
	LastMod  string `xml:"lastmod"`
}

// Resolve returns deduplicated entries in discovery order. A sitemap that
// cannot be fetched or parsed contributes nothing; only an unusable root URL
// or a canceled context is an error.
func (r *Resolver) Resolve(ctx context.Context, rootURL string) ([]crawler.SitemapEntry, error) {
	root, err := crawler.NormalizeURL(rootURL)
	if err != nil {
		return nil, fmt.Errorf("sitemap root: %w", err)
	}

	var (
		pending = []string{root}
		visited = make(map[string]struct{})
		index   = make(map[string]int)
		entries []crawler.SitemapEntry
	)

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("resolve sitemap: %w", err)
		}
		if len(visited) >= maxSitemapFetches {
			r.logger.Warn("sitemap fetch limit reached", zap.Int("limit", maxSitemapFetches))
			break
		}
		current := pending[0]
		pending = pending[1:]
		if _, seen := visited[current]; seen {
			continue
		}
		visited[current] = struct{}{}

		doc, err := r.load(ctx, current)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("resolve sitemap: %w", ctx.Err())
			}
			r.logger.Warn("sitemap skipped", zap.String("sitemap", current), zap.Error(err))
			continue
		}

		switch doc.XMLName.Local {
		case "sitemapindex":
			for _, sm := range doc.Sitemaps {
				child, err := crawler.NormalizeURL(sm.Location)
				if err != nil {
					r.logger.Debug("nested sitemap rejected", zap.String("loc", sm.Location), zap.Error(err))
					continue
				}
				pending = append(pending, child)
			}
		case "urlset":
			for _, u := range doc.URLs {
				pageURL, ok := r.filter.Accept(u.Location)
				if !ok {
					continue
				}
				entry := crawler.SitemapEntry{URL: pageURL, LastMod: strings.TrimSpace(u.LastMod)}
				if pos, dup := index[pageURL]; dup {
					entries[pos].LastMod = entry.LastMod
					continue
				}
				index[pageURL] = len(entries)
				entries = append(entries, entry)
			}
		default:
			r.logger.Warn("unrecognized sitemap root element",
				zap.String("sitemap", current),
				zap.String("element", doc.XMLName.Local),
			)
		}
	}

	r.logger.Info("sitemap resolved",
		zap.String("root", root),
		zap.Int("sitemaps", len(visited)),
		zap.Int("urls", len(entries)),
	)
	return entries, nil
}

func (r *Resolver) load(ctx context.Context, sitemapURL string) (document, error) {
	fetchCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	res, err := r.fetcher.Fetch(fetchCtx, crawler.FetchRequest{URL: sitemapURL})
	if err != nil {
		return document{}, fmt.Errorf("fetch: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return document{}, fmt.Errorf("fetch: unexpected status %d", res.StatusCode)
	}
	return parse(res.Body)
}

func parse(body []byte) (document, error) {
	data, err := maybeGunzip(body)
	if err != nil {
		return document{}, err
	}
	var doc document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("parse xml: %w", err)
	}
	return doc, nil
}

func maybeGunzip(body []byte) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gunzip sitemap: %w", err)
	}
	defer zr.Close() //nolint:errcheck // read-only
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("gunzip sitemap: %w", err)
	}
	return data, nil
}
