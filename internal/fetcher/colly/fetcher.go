// Package collyfetcher implements Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
	"github.com/JakeFAU/sitemap-indexer/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent           string
	Timeout             time.Duration
	InsecureTLSFallback bool
	MaxBodyBytes        int
}

// Fetcher implements crawler.Fetcher using the Colly collector. Every status
// code is surfaced to the caller; only transport failures return an error.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 80 * time.Second
	}
	opts := []colly.CollectorOption{
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.IgnoreRobotsTxt(),
	}
	if cfg.MaxBodyBytes > 0 {
		opts = append(opts, colly.MaxBodySize(cfg.MaxBodyBytes))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, colly.UserAgent(cfg.UserAgent))
	}
	c := colly.NewCollector(opts...)

	base := newHTTPTransport()
	var transport http.RoundTripper = base
	if cfg.InsecureTLSFallback {
		transport = &tlsFallbackTransport{
			secure:   base,
			insecure: newInsecureTransport(base),
			logger:   logger,
		}
	}
	// Clones share the backend, so transport and timeout are set once here.
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single conditional GET using Colly.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResult, error) {
	var (
		result   crawler.FetchResult
		fetchErr error
	)
	start := time.Now()
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		metrics.ObserveFetch(request.URL, 0, 0, time.Since(start))
		return crawler.FetchResult{
			URL:      request.URL,
			FinalURL: request.URL,
			Duration: time.Since(start),
		}, err
	}
	metrics.ObserveFetch(request.URL, result.StatusCode, len(result.Body), result.Duration)
	if result.InsecureTLS {
		f.logger.Warn("fetched without certificate verification", zap.String("url", request.URL))
	}
	return result, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request crawler.FetchRequest,
	start time.Time,
	result *crawler.FetchResult,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		applyValidators(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		headers := r.Headers.Clone()
		insecure := headers.Get(insecureMarkerHeader) != ""
		headers.Del(insecureMarkerHeader)
		*result = crawler.FetchResult{
			URL:          request.URL,
			FinalURL:     r.Request.URL.String(),
			StatusCode:   r.StatusCode,
			Headers:      headers,
			Body:         append([]byte(nil), r.Body...),
			ETag:         headers.Get("ETag"),
			LastModified: headers.Get("Last-Modified"),
			Duration:     time.Since(start),
			InsecureTLS:  insecure,
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func applyValidators(request crawler.FetchRequest, r *colly.Request) {
	if r.Headers == nil {
		r.Headers = &http.Header{}
	}
	if request.ETag != "" {
		r.Headers.Set("If-None-Match", request.ETag)
	}
	if request.LastModified != "" {
		r.Headers.Set("If-Modified-Since", request.LastModified)
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
	}
}
