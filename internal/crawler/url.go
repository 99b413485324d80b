package crawler

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

const normalizeFlags = purell.FlagsSafe | purell.FlagRemoveFragment

// DefaultBlockedSubstrings lists URL fragments excluded from indexing.
var DefaultBlockedSubstrings = []string{
	"/ar/",
	"/news/",
	"/blog/",
	"/post/",
	"/article/",
	"news-item",
	"/events/",
}

// ErrUnsupportedScheme is returned for URLs that are not http or https.
var ErrUnsupportedScheme = errors.New("unsupported url scheme")

// NormalizeURL trims whitespace, drops the fragment, and applies safe purell
// normalizations. Only absolute http(s) URLs are accepted. The result is a
// fixed point: normalizing it again yields the same string.
func NormalizeURL(rawURL string) (string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("normalize url: empty")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("normalize url: missing host in %q", trimmed)
	}
	normalized, err := purell.NormalizeURLString(trimmed, normalizeFlags)
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	if u.RawPath == "" {
		return normalized, nil
	}
	// purell re-escapes the decoded path, which turns %2F into a separator.
	n, err := url.Parse(normalized)
	if err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	n.RawPath = normalizeEscapes(u.RawPath)
	if n.Path, err = url.PathUnescape(n.RawPath); err != nil {
		return "", fmt.Errorf("normalize url: %w", err)
	}
	return n.String(), nil
}

// normalizeEscapes decodes percent-escapes of unreserved characters and
// uppercases the rest, so reserved escapes like %2F keep their meaning.
func normalizeEscapes(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		if raw[i] == '%' && i+2 < len(raw) && isHex(raw[i+1]) && isHex(raw[i+2]) {
			c := unhex(raw[i+1])<<4 | unhex(raw[i+2])
			if isUnreserved(c) {
				b.WriteByte(c)
			} else {
				b.WriteString(strings.ToUpper(raw[i : i+3]))
			}
			i += 2
			continue
		}
		b.WriteByte(raw[i])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9' ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// URLFilter normalizes candidate URLs and rejects blocked ones.
type URLFilter struct {
	blocked []string
	hosts   *hostBlocklist
}

// NewURLFilter builds a filter. A nil list uses DefaultBlockedSubstrings.
func NewURLFilter(blocked []string) *URLFilter {
	if blocked == nil {
		blocked = DefaultBlockedSubstrings
	}
	cleaned := make([]string, 0, len(blocked))
	for _, b := range blocked {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			cleaned = append(cleaned, b)
		}
	}
	return &URLFilter{blocked: cleaned}
}

// Accept returns the normalized URL and whether it should be crawled.
func (f *URLFilter) Accept(rawURL string) (string, bool) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", false
	}
	if f.IsBlocked(normalized) {
		return "", false
	}
	return normalized, true
}

// IsBlocked reports whether the URL contains a blocked substring, ignoring
// case, or points at a blocked host.
func (f *URLFilter) IsBlocked(u string) bool {
	if f == nil {
		return false
	}
	if f.hostBlocked(u) {
		return true
	}
	lower := strings.ToLower(u)
	for _, b := range f.blocked {
		if strings.Contains(lower, b) {
			return true
		}
	}
	return false
}
