// Package report accumulates per-URL outcomes into the run report and
// persists it.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"path"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

// Stats are the run counters. Reasons counts skips by reason.
type Stats struct {
	Updated int            `json:"updated"`
	Skipped int            `json:"skipped"`
	Errors  int            `json:"errors"`
	Reasons map[string]int `json:"reasons"`
}

// Failure is one errored URL.
type Failure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// Skip is one skipped URL.
type Skip struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// RunReport is the persisted record of a run.
type RunReport struct {
	RunID           string    `json:"run_id"`
	RunAtUTC        time.Time `json:"run_at_utc"`
	SitemapURL      string    `json:"sitemap_url"`
	SitemapURLCount int       `json:"sitemap_url_count"`
	DurationSeconds float64   `json:"duration_seconds"`
	Stats           Stats     `json:"stats"`
	Failed          []Failure `json:"failed"`
	Skipped         []Skip    `json:"skipped"`
}

// Recorder implements crawler.Recorder. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	stats   Stats
	failed  []Failure
	skipped []Skip
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{stats: Stats{Reasons: map[string]int{}}}
}

// Record counts one outcome.
func (r *Recorder) Record(o crawler.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch o.Status {
	case crawler.OutcomeUpdated:
		r.stats.Updated++
	case crawler.OutcomeSkipped:
		reason := o.Reason
		if reason == "" {
			reason = "skipped"
		}
		r.stats.Skipped++
		r.stats.Reasons[reason]++
		r.skipped = append(r.skipped, Skip{URL: o.URL, Reason: reason})
	case crawler.OutcomeErrored:
		r.stats.Errors++
		r.failed = append(r.failed, Failure{URL: o.URL, Error: o.Error})
	}
}

// Stats returns a copy of the counters.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.stats
	out.Reasons = maps.Clone(r.stats.Reasons)
	return out
}

// Build snapshots the recorder into a report. Failed and skipped lists are
// sorted by URL so reports diff cleanly between runs.
func (r *Recorder) Build(runID, sitemapURL string, urlCount int, startedAt, finishedAt time.Time) RunReport {
	r.mu.Lock()
	failed := slices.Clone(r.failed)
	skipped := slices.Clone(r.skipped)
	r.mu.Unlock()

	slices.SortFunc(failed, func(a, b Failure) int { return strings.Compare(a.URL, b.URL) })
	slices.SortFunc(skipped, func(a, b Skip) int { return strings.Compare(a.URL, b.URL) })
	if failed == nil {
		failed = []Failure{}
	}
	if skipped == nil {
		skipped = []Skip{}
	}
	return RunReport{
		RunID:           runID,
		RunAtUTC:        finishedAt.UTC(),
		SitemapURL:      sitemapURL,
		SitemapURLCount: urlCount,
		DurationSeconds: finishedAt.Sub(startedAt).Seconds(),
		Stats:           r.Stats(),
		Failed:          failed,
		Skipped:         skipped,
	}
}

// Total is the number of recorded outcomes.
func (s Stats) Total() int {
	return s.Updated + s.Skipped + s.Errors
}

// WriteSummary prints the operator summary: the stats block and the counts
// of failed and skipped URLs.
func WriteSummary(w io.Writer, rep RunReport, reportURI string) error {
	stats, err := json.MarshalIndent(rep.Stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %d URLs from %s\n", rep.RunID, rep.SitemapURLCount, rep.SitemapURL)
	b.Write(stats)
	b.WriteString("\n")
	see := ""
	if reportURI != "" {
		see = " (see " + reportURI + ")"
	}
	if n := len(rep.Failed); n > 0 {
		fmt.Fprintf(&b, "Failed URLs: %d%s\n", n, see)
	}
	if n := len(rep.Skipped); n > 0 {
		fmt.Fprintf(&b, "Skipped URLs: %d%s\n", n, see)
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

// Writer persists reports through a blob store.
type Writer struct {
	store  crawler.BlobStore
	prefix string
}

// NewWriter builds a Writer that stores reports under prefix.
func NewWriter(store crawler.BlobStore, prefix string) *Writer {
	return &Writer{store: store, prefix: strings.Trim(prefix, "/")}
}

// ObjectPath is where a run's report is stored.
func (w *Writer) ObjectPath(runID string) string {
	name := "crawl_report_" + runID + ".json"
	if w.prefix == "" {
		return name
	}
	return path.Join(w.prefix, name)
}

// Write stores the report as indented JSON and returns its URI.
func (w *Writer) Write(ctx context.Context, rep RunReport) (string, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	uri, err := w.store.PutObject(ctx, w.ObjectPath(rep.RunID), "application/json", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	return uri, nil
}
