// Package detector decides when a statically fetched page should be
// re-rendered in a headless browser.
package detector

import (
	"bytes"
	"net/http"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

// Heuristic flags client-rendered shells: tiny script-heavy documents and
// pages carrying a known SPA mount point.
type Heuristic struct {
	BodyLengthThreshold int
	// ScriptPercent is the share of the document inside <script> blocks at
	// which a small page counts as script-heavy.
	ScriptPercent int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold, ScriptPercent: 25}
}

var spaMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="__nuxt"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
	[]byte("ng-app"),
}

var noscriptHints = [][]byte{
	[]byte("enable javascript"),
	[]byte("requires javascript"),
	[]byte("javascript is disabled"),
}

// ShouldPromote reports whether a headless render is likely to recover
// content that the static response lacks.
func (h *Heuristic) ShouldPromote(res crawler.FetchResult) bool {
	if res.StatusCode != http.StatusOK || res.UsedHeadless {
		return false
	}
	body := res.Body
	if len(body) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	if len(lower) < h.BodyLengthThreshold && scriptShare(lower) >= h.ScriptPercent {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(lower, bytes.ToLower(marker)) {
			return true
		}
	}
	for _, hint := range noscriptHints {
		if bytes.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// scriptShare returns the percentage of the lowercased document covered by
// <script> elements. An unterminated script runs to the end of the body.
func scriptShare(lower []byte) int {
	total := len(lower)
	if total == 0 {
		return 0
	}
	openTag := []byte("<script")
	closeTag := []byte("</script>")

	covered := 0
	pos := 0
	for pos < total {
		rel := bytes.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		end := total
		if gt := bytes.IndexByte(lower[start:], '>'); gt != -1 {
			contentStart := start + gt + 1
			if closeRel := bytes.Index(lower[contentStart:], closeTag); closeRel != -1 {
				end = contentStart + closeRel + len(closeTag)
			}
		}
		covered += end - start
		pos = end
	}
	return covered * 100 / total
}
