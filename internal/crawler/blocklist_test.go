package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostBlocklist(t *testing.T) {
	t.Parallel()
	bl := newHostBlocklist([]string{"Example.org", "*.ru", ".internal.test", " "})
	require.NotNil(t, bl)

	cases := []struct {
		host    string
		blocked bool
	}{
		{"example.org", true},
		{"sub.example.org", false},
		{"example.ru", true},
		{"sub.domain.ru", true},
		{"ru", true},
		{"docs.internal.test", true},
		{"example.com", false},
		{"", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.blocked, bl.blocks(tc.host), tc.host)
	}
}

func TestHostBlocklistEmpty(t *testing.T) {
	t.Parallel()
	assert.Nil(t, newHostBlocklist([]string{"", "*."}))

	var bl *hostBlocklist
	assert.False(t, bl.blocks("anything"))
}

func TestURLFilterWithBlockedHosts(t *testing.T) {
	t.Parallel()
	f := NewURLFilter([]string{"/news/"}).WithBlockedHosts([]string{"*.cdn.example.org"})

	_, ok := f.Accept("https://assets.cdn.example.org/page")
	assert.False(t, ok)
	_, ok = f.Accept("https://www.example.org/news/today")
	assert.False(t, ok)
	got, ok := f.Accept("https://www.example.org/about")
	assert.True(t, ok)
	assert.Equal(t, "https://www.example.org/about", got)
}
