package crawler

import (
	"net/url"
	"strings"
)

// hostBlocklist matches exact hosts and suffix wildcards ("*.example.org"
// or ".example.org").
type hostBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostBlocklist(patterns []string) *hostBlocklist {
	b := &hostBlocklist{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			b.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			b.addSuffix(strings.TrimPrefix(value, "."))
		default:
			b.exact[value] = struct{}{}
		}
	}
	if len(b.exact) == 0 && len(b.suffixes) == 0 {
		return nil
	}
	return b
}

func (b *hostBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

func (b *hostBlocklist) blocks(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := b.exact[host]; ok {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// WithBlockedHosts returns a copy of the filter that also rejects URLs whose
// host matches one of patterns.
func (f *URLFilter) WithBlockedHosts(patterns []string) *URLFilter {
	out := &URLFilter{}
	if f != nil {
		out.blocked = f.blocked
	}
	out.hosts = newHostBlocklist(patterns)
	return out
}

func (f *URLFilter) hostBlocked(rawURL string) bool {
	if f == nil || f.hosts == nil {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return f.hosts.blocks(u.Hostname())
}
