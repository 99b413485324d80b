// Package extract converts HTML pages into outline-structured text plus
// page-level metadata.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitemap-indexer/internal/crawler"
)

// Config tunes extraction. Zero values fall back to the defaults below.
type Config struct {
	MainSelectors      []string
	RemoveSelectors    []string
	MinWords           int
	MaxDownloadLinks   int
	DownloadExtensions []string
}

// Defaults used when Config leaves a field empty.
var (
	DefaultMainSelectors = []string{
		"main", "article", "#content", ".entry-content", ".page-content", ".content", ".entry",
	}
	DefaultRemoveSelectors = []string{
		"header", "nav", "footer", "aside", ".navbar", ".menu", ".site-header", ".site-footer",
		".cookie", ".cookies", ".popup", ".modal", ".breadcrumb", ".breadcrumbs",
	}
	DefaultDownloadExtensions = []string{
		".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
	}
)

const (
	defaultMinWords         = 10
	defaultMaxDownloadLinks = 50
	// Always stripped regardless of configuration.
	nonContentSelector = "script, style, noscript"
	blockSelector      = "h1, h2, h3, h4, h5, h6, p, li, table"
)

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// Extractor implements crawler.Extractor with goquery.
type Extractor struct {
	cfg Config
}

// New builds an Extractor.
func New(cfg Config) *Extractor {
	if len(cfg.MainSelectors) == 0 {
		cfg.MainSelectors = DefaultMainSelectors
	}
	if cfg.RemoveSelectors == nil {
		cfg.RemoveSelectors = DefaultRemoveSelectors
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = defaultMinWords
	}
	if cfg.MaxDownloadLinks <= 0 {
		cfg.MaxDownloadLinks = defaultMaxDownloadLinks
	}
	if len(cfg.DownloadExtensions) == 0 {
		cfg.DownloadExtensions = DefaultDownloadExtensions
	}
	return &Extractor{cfg: cfg}
}

// Extract parses body and returns structured text and metadata. Relative
// links are resolved against pageURL.
func (e *Extractor) Extract(body []byte, pageURL string) (crawler.Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("parse html: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return crawler.Extraction{}, fmt.Errorf("parse page url: %w", err)
	}

	// Metadata is read before boilerplate removal so header links still count.
	meta := crawler.PageMetadata{
		Title:         spacedText(doc.Find("title").First()),
		H1:            spacedText(doc.Find("h1").First()),
		CanonicalURL:  canonicalURL(doc, base, pageURL),
		DownloadLinks: e.downloadLinks(doc, base),
	}

	text := structure(e.mainContainer(doc))
	words := CountWords(text)
	return crawler.Extraction{
		Text:       text,
		Meta:       meta,
		WordCount:  words,
		Incomplete: words < e.cfg.MinWords,
	}, nil
}

func (e *Extractor) mainContainer(doc *goquery.Document) *goquery.Selection {
	for _, sel := range e.cfg.RemoveSelectors {
		doc.Find(sel).Remove()
	}
	doc.Find(nonContentSelector).Remove()

	for _, sel := range e.cfg.MainSelectors {
		node := doc.Find(sel).First()
		if node.Length() > 0 && strings.TrimSpace(node.Text()) != "" {
			return node
		}
	}
	if body := doc.Find("body").First(); body.Length() > 0 {
		return body
	}
	return doc.Selection
}

// structure renders headings as "#"-prefixed outline lines, table rows as
// pipe-joined cells, list items as "- " bullets, and paragraphs as plain lines.
func structure(container *goquery.Selection) string {
	var lines []string
	container.Find(blockSelector).Each(func(_ int, el *goquery.Selection) {
		name := goquery.NodeName(el)
		switch {
		case name == "table":
			el.Find("tr").Each(func(_ int, row *goquery.Selection) {
				var cells []string
				row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
					if t := spacedText(cell); t != "" {
						cells = append(cells, t)
					}
				})
				if len(cells) > 0 {
					lines = append(lines, strings.Join(cells, " | "))
				}
			})
		case len(name) == 2 && name[0] == 'h':
			if t := spacedText(el); t != "" {
				level := int(name[1] - '0')
				lines = append(lines, strings.Repeat("#", level)+" "+t)
			}
		case name == "li":
			if t := spacedText(el); t != "" {
				lines = append(lines, "- "+t)
			}
		default:
			if t := spacedText(el); t != "" {
				lines = append(lines, t)
			}
		}
	})
	return CleanWhitespace(strings.Join(lines, "\n"))
}

// spacedText joins the text nodes under sel with single spaces, collapsing
// whitespace inside each node.
func spacedText(sel *goquery.Selection) string {
	var parts []string
	collectText(sel, &parts)
	return strings.Join(parts, " ")
}

func collectText(sel *goquery.Selection, parts *[]string) {
	sel.Contents().Each(func(_ int, child *goquery.Selection) {
		if goquery.NodeName(child) == "#text" {
			if fields := strings.Fields(child.Text()); len(fields) > 0 {
				*parts = append(*parts, strings.Join(fields, " "))
			}
			return
		}
		collectText(child, parts)
	})
}

func canonicalURL(doc *goquery.Document, base *url.URL, pageURL string) string {
	href, ok := doc.Find(`link[rel~="canonical"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return pageURL
	}
	resolved, err := base.Parse(strings.TrimSpace(href))
	if err != nil {
		return pageURL
	}
	return resolved.String()
}

func (e *Extractor) downloadLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		resolved, err := base.Parse(strings.TrimSpace(href))
		if err != nil || !e.isDocument(resolved.Path) {
			return true
		}
		abs := resolved.String()
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
		return len(links) < e.cfg.MaxDownloadLinks
	})
	return links
}

func (e *Extractor) isDocument(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range e.cfg.DownloadExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// CountWords counts word tokens (letters, digits, underscore) in text.
func CountWords(text string) int {
	return len(wordPattern.FindAllStringIndex(text, -1))
}
