// Package server builds the indexer's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/sitemap-indexer/internal/chunk"
	"github.com/JakeFAU/sitemap-indexer/internal/clock/system"
	"github.com/JakeFAU/sitemap-indexer/internal/config"
	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
	"github.com/JakeFAU/sitemap-indexer/internal/embed"
	"github.com/JakeFAU/sitemap-indexer/internal/embed/gemini"
	"github.com/JakeFAU/sitemap-indexer/internal/extract"
	collyfetcher "github.com/JakeFAU/sitemap-indexer/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/sitemap-indexer/internal/fetcher/headless"
	"github.com/JakeFAU/sitemap-indexer/internal/hash/sha256"
	"github.com/JakeFAU/sitemap-indexer/internal/headless/detector"
	"github.com/JakeFAU/sitemap-indexer/internal/id/uuid"
	"github.com/JakeFAU/sitemap-indexer/internal/index"
	"github.com/JakeFAU/sitemap-indexer/internal/metrics"
	"github.com/JakeFAU/sitemap-indexer/internal/pipeline"
	"github.com/JakeFAU/sitemap-indexer/internal/policy/ratelimit"
	"github.com/JakeFAU/sitemap-indexer/internal/policy/robots"
	memorypublisher "github.com/JakeFAU/sitemap-indexer/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/sitemap-indexer/internal/publisher/pubsub"
	"github.com/JakeFAU/sitemap-indexer/internal/report"
	"github.com/JakeFAU/sitemap-indexer/internal/sitemap"
	badgerstore "github.com/JakeFAU/sitemap-indexer/internal/storage/badger"
	gcsstorage "github.com/JakeFAU/sitemap-indexer/internal/storage/gcs"
	localstorage "github.com/JakeFAU/sitemap-indexer/internal/storage/local"
	memorystorage "github.com/JakeFAU/sitemap-indexer/internal/storage/memory"
	pgstore "github.com/JakeFAU/sitemap-indexer/internal/storage/postgres"
	"github.com/JakeFAU/sitemap-indexer/internal/worker"
)

// App holds the wired pipeline and every resource it must release.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	pipeline *pipeline.Pipeline
	closers  []closer
}

type closer struct {
	name string
	fn   func() error
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Run executes one indexing pass. When metrics.port is set the Prometheus
// endpoint is served for the duration of the run.
func (a *App) Run(ctx context.Context) (report.RunReport, error) {
	var srv *http.Server
	if a.cfg.Metrics.Port > 0 {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
			Handler:           Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("metrics server started", zap.Int("port", a.cfg.Metrics.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	rep, err := a.pipeline.Run(ctx)

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			a.logger.Warn("metrics server shutdown error", zap.Error(serr))
		}
	}
	return rep, err
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}

// Handler serves /metrics and /healthz.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Build creates the application's dependencies. On failure everything
// opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	logger.Info("building application dependencies",
		zap.String("sitemap", cfg.Sitemap.URL),
		zap.Int("workers", cfg.Crawler.Workers),
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("state_backend", cfg.State.Backend),
		zap.String("report_backend", cfg.Report.Backend),
	)

	state, err := setupState(ctx, app)
	if err != nil {
		return nil, err
	}
	vectors, err := setupIndex(ctx, app)
	if err != nil {
		return nil, err
	}
	embedder, err := setupEmbedder(ctx, app)
	if err != nil {
		return nil, err
	}
	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	svc := setupServices(app)
	svc.State = state
	svc.Embedder = embedder
	svc.Sink = index.NewSink(vectors, index.Config{
		BatchSize: cfg.Index.BatchSize,
		Timeout:   cfg.UpsertTimeout(),
	}, logger.Named("sink"))

	sitemapFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:           cfg.Crawler.UserAgent,
		Timeout:             cfg.SitemapTimeout(),
		InsecureTLSFallback: cfg.HTTP.InsecureTLSFallback,
		MaxBodyBytes:        cfg.HTTP.MaxBodyBytes,
	}, logger.Named("sitemap_fetcher"))
	resolver := sitemap.New(
		sitemapFetcher,
		crawler.NewURLFilter(cfg.Crawler.BlockedSubstrings).WithBlockedHosts(cfg.Crawler.BlockedHosts),
		cfg.SitemapTimeout(),
		logger.Named("sitemap"),
	)

	app.pipeline = pipeline.New(pipeline.Config{
		SitemapURL: cfg.Sitemap.URL,
		Workers:    cfg.Crawler.Workers,
		Worker: worker.Config{
			TextLimit:  cfg.Index.TextLimit,
			PruneStale: cfg.Index.PruneStale,
		},
		NotifyTopic: cfg.Notify.Topic,
	}, pipeline.Deps{
		Resolver:  resolver,
		Services:  svc,
		Index:     vectors,
		Reports:   report.NewWriter(blobStore, cfg.Report.Prefix),
		Publisher: publisher,
		IDs:       uuid.New(),
		Clock:     system.New(),
		Summary:   os.Stdout,
	}, logger.Named("pipeline"))
	return app, nil
}

func setupState(ctx context.Context, app *App) (crawler.StateStore, error) {
	var (
		state crawler.StateStore
		err   error
	)
	switch app.cfg.State.Backend {
	case "badger":
		state, err = badgerstore.Open(app.cfg.State.Path, app.logger.Named("state"))
		if err != nil {
			return nil, fmt.Errorf("badger state store init failed: %w", err)
		}
		app.logger.Info("using badger state store", zap.String("path", app.cfg.State.Path))
	case "postgres":
		state, err = pgstore.OpenStateStore(ctx, pgstore.PoolConfig{DSN: app.cfg.State.DSN}, app.logger.Named("state"))
		if err != nil {
			return nil, fmt.Errorf("postgres state store init failed: %w", err)
		}
		app.logger.Info("using postgres state store")
	default:
		app.logger.Warn("using in-memory state store; change detection will not survive restarts")
		state = memorystorage.NewStateStore()
	}
	app.onClose("state store", state.Close)
	return state, nil
}

func setupIndex(ctx context.Context, app *App) (crawler.VectorIndex, error) {
	var vectors crawler.VectorIndex
	switch app.cfg.Index.Backend {
	case "pgvector":
		pg, err := pgstore.OpenVectorIndex(ctx, pgstore.PoolConfig{DSN: app.cfg.Index.DSN}, pgstore.VectorIndexConfig{
			Table:     app.cfg.Index.Table,
			Dimension: app.cfg.Embed.Dimension,
		}, app.logger.Named("index"))
		if err != nil {
			return nil, fmt.Errorf("pgvector index init failed: %w", err)
		}
		vectors = pg
		app.logger.Info("using pgvector index",
			zap.String("table", app.cfg.Index.Table),
			zap.Int("dimension", app.cfg.Embed.Dimension),
		)
	default:
		app.logger.Warn("using in-memory vector index")
		vectors = memorystorage.NewVectorIndex(app.cfg.Embed.Dimension)
	}
	app.onClose("vector index", vectors.Close)
	return vectors, nil
}

func setupEmbedder(ctx context.Context, app *App) (crawler.Embedder, error) {
	provider, err := gemini.New(ctx, gemini.Config{
		APIKey:    app.cfg.Embed.APIKey,
		Model:     app.cfg.Embed.Model,
		Dimension: app.cfg.Embed.Dimension,
	}, app.logger.Named("gemini"))
	if err != nil {
		return nil, fmt.Errorf("embedding provider init failed: %w", err)
	}
	app.logger.Info("embedding provider initialized",
		zap.String("model", app.cfg.Embed.Model),
		zap.Int("batch_size", app.cfg.Embed.BatchSize),
		zap.Int("concurrency", app.cfg.Embed.Concurrency),
	)
	return embed.NewBatcher(provider, embed.Config{
		BatchSize:   app.cfg.Embed.BatchSize,
		Concurrency: app.cfg.Embed.Concurrency,
		Timeout:     app.cfg.EmbedTimeout(),
		Dimension:   app.cfg.Embed.Dimension,
	}, app.logger.Named("embed")), nil
}

func setupStorage(ctx context.Context, app *App) (crawler.BlobStore, error) {
	switch app.cfg.Report.Backend {
	case "gcs":
		store, err := gcsstorage.Dial(ctx, gcsstorage.Config{Bucket: app.cfg.Report.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.onClose("gcs client", store.Close)
		app.logger.Info("using GCS report storage", zap.String("bucket", app.cfg.Report.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Report.Dir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local report storage", zap.String("dir", app.cfg.Report.Dir))
		return store, nil
	default:
		app.logger.Info("using in-memory report storage")
		return memorystorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (crawler.Publisher, error) {
	if app.cfg.Notify.Topic == "" || app.cfg.Notify.ProjectID == "" {
		app.logger.Debug("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	publisher, err := gcppublisher.NewFromProject(ctx, app.cfg.Notify.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.onClose("pubsub client", publisher.Close)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.Notify.ProjectID),
		zap.String("topic", app.cfg.Notify.Topic),
	)
	return publisher, nil
}

// setupServices wires the stateless per-page collaborators.
func setupServices(app *App) worker.Services {
	cfg := app.cfg
	svc := worker.Services{
		Fetcher: collyfetcher.New(collyfetcher.Config{
			UserAgent:           cfg.Crawler.UserAgent,
			Timeout:             cfg.HTTPTimeout(),
			InsecureTLSFallback: cfg.HTTP.InsecureTLSFallback,
			MaxBodyBytes:        cfg.HTTP.MaxBodyBytes,
		}, app.logger.Named("fetcher")),
		Extractor: extract.New(extract.Config{
			MainSelectors:    cfg.Extract.MainSelectors,
			RemoveSelectors:  cfg.Extract.RemoveSelectors,
			MinWords:         cfg.Extract.MinWords,
			MaxDownloadLinks: cfg.Extract.MaxDownloadLinks,
		}),
		Chunker: chunk.New(chunk.Config{
			MaxChars:     cfg.Chunk.MaxChars,
			OverlapChars: cfg.Chunk.OverlapChars,
			MinChars:     cfg.Chunk.MinChars,
		}),
		Hasher:    sha256.New(),
		Clock:     system.New(),
		FetchGate: semaphore.NewWeighted(int64(cfg.Crawler.FetchConcurrency)),
	}
	app.logger.Info("using colly fetcher",
		zap.String("user_agent", cfg.Crawler.UserAgent),
		zap.Int("fetch_concurrency", cfg.Crawler.FetchConcurrency),
	)

	if cfg.Crawler.RequestsPerSecond > 0 {
		svc.Limiter = ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
			Burst:             cfg.Crawler.Burst,
		})
		app.logger.Info("rate limiter enabled",
			zap.Float64("requests_per_second", cfg.Crawler.RequestsPerSecond),
			zap.Int("burst", cfg.Crawler.Burst),
		)
	}

	if cfg.Crawler.RespectRobots {
		svc.Robots = robots.New(robots.Config{
			UserAgent: cfg.Crawler.UserAgent,
			Timeout:   cfg.HTTPTimeout(),
		}, app.logger.Named("robots"))
		app.logger.Info("robots.txt enforcement enabled")
	}

	if cfg.Headless.Enabled {
		renderer, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
		}, app.logger.Named("headless"))
		if err != nil {
			app.logger.Warn("headless fetcher init failed, continuing without it", zap.Error(err))
		} else {
			svc.Headless = renderer
			svc.Detector = detector.NewHeuristic(cfg.Headless.PromotionThresh)
			app.onClose("headless renderer", func() error {
				renderer.Close()
				return nil
			})
			app.logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}
	return svc
}
