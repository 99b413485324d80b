// Package pipeline runs one indexing pass: resolve the sitemap, seed the
// work queue, drain it with a worker pool, then build, persist, and announce
// the run report.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
	"github.com/JakeFAU/sitemap-indexer/internal/dispatcher"
	"github.com/JakeFAU/sitemap-indexer/internal/queue/memory"
	"github.com/JakeFAU/sitemap-indexer/internal/report"
	"github.com/JakeFAU/sitemap-indexer/internal/worker"
)

// Resolver expands a sitemap root into page entries.
type Resolver interface {
	Resolve(ctx context.Context, rootURL string) ([]crawler.SitemapEntry, error)
}

// Provisioner prepares the vector index before any page is processed.
type Provisioner interface {
	Provision(ctx context.Context) error
}

// Config controls a run.
type Config struct {
	SitemapURL  string
	Workers     int
	Worker      worker.Config
	NotifyTopic string
}

// Deps are the collaborators of a run. Index, Reports, Publisher, and
// Summary are optional.
type Deps struct {
	Resolver  Resolver
	Services  worker.Services
	Index     Provisioner
	Reports   *report.Writer
	Publisher crawler.Publisher
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	Summary   io.Writer
}

// Pipeline runs indexing passes.
type Pipeline struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// Notification is the compact run summary published after a run.
type Notification struct {
	RunID      string         `json:"run_id"`
	SitemapURL string         `json:"sitemap_url"`
	URLCount   int            `json:"sitemap_url_count"`
	Updated    int            `json:"updated"`
	Skipped    int            `json:"skipped"`
	Errors     int            `json:"errors"`
	Reasons    map[string]int `json:"reasons"`
	ReportURI  string         `json:"report_uri,omitempty"`
}

// New builds a Pipeline.
func New(cfg Config, deps Deps, logger *zap.Logger) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 12
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: logger}
}

// Run executes one pass. Per-URL failures never fail the run; only an
// unusable sitemap root, index provisioning, or cancellation returns an error.
func (p *Pipeline) Run(ctx context.Context) (report.RunReport, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return report.RunReport{}, fmt.Errorf("run id: %w", err)
	}
	logger := p.logger.With(zap.String("run_id", runID))
	started := p.deps.Clock.Now()

	if p.deps.Index != nil {
		if err := p.deps.Index.Provision(ctx); err != nil {
			return report.RunReport{}, fmt.Errorf("provision vector index: %w", err)
		}
	}

	entries, err := p.deps.Resolver.Resolve(ctx, p.cfg.SitemapURL)
	if err != nil {
		return report.RunReport{}, err
	}
	logger.Info("sitemap loaded", zap.Int("urls", len(entries)))

	recorder := report.NewRecorder()
	queue := memory.NewQueue(len(entries))
	svc := p.deps.Services
	svc.Recorder = recorder

	runners := make([]dispatcher.Runner, p.cfg.Workers)
	for i := range runners {
		runners[i] = worker.New(queue, svc, p.cfg.Worker, logger.Named("worker").With(zap.Int("index", i)))
	}
	d := dispatcher.New(queue, runners, logger.Named("dispatcher"))
	for _, entry := range entries {
		if err := d.Enqueue(ctx, entry); err != nil {
			return report.RunReport{}, err
		}
	}
	queue.Close()

	d.Run(ctx)
	if err := ctx.Err(); err != nil {
		return report.RunReport{}, fmt.Errorf("run interrupted: %w", err)
	}

	rep := recorder.Build(runID, p.cfg.SitemapURL, len(entries), started, p.deps.Clock.Now())
	logger.Info("crawl finished",
		zap.Int("updated", rep.Stats.Updated),
		zap.Int("skipped", rep.Stats.Skipped),
		zap.Int("errors", rep.Stats.Errors),
		zap.Any("reasons", rep.Stats.Reasons),
	)

	reportURI := p.persist(ctx, logger, rep)
	p.notify(ctx, logger, rep, reportURI)
	if p.deps.Summary != nil {
		if err := report.WriteSummary(p.deps.Summary, rep, reportURI); err != nil {
			logger.Warn("summary not printed", zap.Error(err))
		}
	}
	return rep, nil
}

// persist writes the report. A failure is logged; the crawl itself succeeded.
func (p *Pipeline) persist(ctx context.Context, logger *zap.Logger, rep report.RunReport) string {
	if p.deps.Reports == nil {
		return ""
	}
	uri, err := p.deps.Reports.Write(ctx, rep)
	if err != nil {
		logger.Error("failed to save crawl report", zap.Error(err))
		return ""
	}
	logger.Info("crawl report saved", zap.String("uri", uri))
	return uri
}

func (p *Pipeline) notify(ctx context.Context, logger *zap.Logger, rep report.RunReport, reportURI string) {
	if p.cfg.NotifyTopic == "" || p.deps.Publisher == nil {
		return
	}
	msg := Notification{
		RunID:      rep.RunID,
		SitemapURL: rep.SitemapURL,
		URLCount:   rep.SitemapURLCount,
		Updated:    rep.Stats.Updated,
		Skipped:    rep.Stats.Skipped,
		Errors:     rep.Stats.Errors,
		Reasons:    rep.Stats.Reasons,
		ReportURI:  reportURI,
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.NotifyTopic, msg)
	if err != nil {
		logger.Error("run notification failed", zap.String("topic", p.cfg.NotifyTopic), zap.Error(err))
		return
	}
	logger.Info("run notification published", zap.String("topic", p.cfg.NotifyTopic), zap.String("message_id", id))
}
