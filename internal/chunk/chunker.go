// Package chunk splits outline-structured page text into heading-scoped,
// length-bounded, overlapping chunks. Lengths are measured in runes.
package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
	"github.com/JakeFAU/sitemap-indexer/internal/extract"
)

// Config sets chunk sizing.
type Config struct {
	MaxChars     int
	OverlapChars int
	MinChars     int
}

const (
	introHeading    = "Introduction"
	untitledHeading = "Untitled"
)

var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

// Chunker implements crawler.Chunker.
type Chunker struct {
	cfg Config
}

// New builds a Chunker. Overlap is clamped below half of MaxChars so every
// window advances.
func New(cfg Config) *Chunker {
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 3500
	}
	if cfg.OverlapChars < 0 {
		cfg.OverlapChars = 0
	}
	if cfg.OverlapChars*2 >= cfg.MaxChars {
		cfg.OverlapChars = cfg.MaxChars/2 - 1
	}
	if cfg.MinChars < 0 {
		cfg.MinChars = 0
	}
	return &Chunker{cfg: cfg}
}

// Chunk splits text into sections, drops short sections, windows each
// section body, and drops short chunks. Index and Total span the page.
func (c *Chunker) Chunk(text string) []crawler.Chunk {
	var chunks []crawler.Chunk
	for _, sec := range Sections(text) {
		if runeLen(sec.Body) < c.cfg.MinChars {
			continue
		}
		for _, piece := range c.Window(sec.Body) {
			if runeLen(piece) < c.cfg.MinChars {
				continue
			}
			chunks = append(chunks, crawler.Chunk{Heading: sec.Heading, Text: piece})
		}
	}
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Total = len(chunks)
	}
	return chunks
}

// Sections splits text on "#"-prefixed heading lines. Text before the first
// heading belongs to an "Introduction" section. Blank lines are skipped and
// sections with empty bodies are dropped.
func Sections(text string) []crawler.Section {
	var (
		sections []crawler.Section
		heading  = introHeading
		body     []string
	)
	flush := func() {
		joined := extract.CleanWhitespace(strings.Join(body, "\n"))
		if joined != "" {
			sections = append(sections, crawler.Section{Heading: heading, Body: joined})
		}
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := headingPattern.FindStringSubmatch(trimmed); m != nil {
			flush()
			heading = strings.TrimSpace(m[2])
			if heading == "" {
				heading = untitledHeading
			}
			body = body[:0]
			continue
		}
		if trimmed == "" {
			continue
		}
		body = append(body, line)
	}
	flush()
	return sections
}

// Window cuts body into windows of at most MaxChars runes. A window ends at
// the last blank line inside it when that break lies past the window's
// midpoint; consecutive windows share OverlapChars runes.
func (c *Chunker) Window(body string) []string {
	runes := []rune(strings.TrimSpace(body))
	n := len(runes)
	maxChars, overlap := c.cfg.MaxChars, c.cfg.OverlapChars

	var pieces []string
	start := 0
	for start < n {
		end := min(start+maxChars, n)
		if lastBreak := lastIndex(runes[start:end], "\n\n"); lastBreak*2 > maxChars {
			end = start + lastBreak
		}
		if piece := strings.TrimSpace(string(runes[start:end])); piece != "" {
			pieces = append(pieces, piece)
		}
		if end >= n {
			break
		}
		next := max(0, end-overlap)
		if next <= start {
			next = end
		}
		start = next
	}
	return pieces
}

func lastIndex(window []rune, sep string) int {
	target := []rune(sep)
	for i := len(window) - len(target); i >= 0; i-- {
		match := true
		for j, r := range target {
			if window[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
