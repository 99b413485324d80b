package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "trims whitespace", raw: "  https://example.com/page  ", want: "https://example.com/page"},
		{name: "drops fragment", raw: "https://example.com/page#section", want: "https://example.com/page"},
		{name: "lowercases host", raw: "https://EXAMPLE.com/Page", want: "https://example.com/Page"},
		{name: "removes default port", raw: "http://example.com:80/a", want: "http://example.com/a"},
		{name: "keeps query", raw: "https://example.com/a?b=1", want: "https://example.com/a?b=1"},
		{name: "keeps encoded slash", raw: "https://example.org/a%2fb", want: "https://example.org/a%2Fb"},
		{name: "keeps encoded slash with query", raw: "https://example.org/docs/x%2Fy?p=1#top", want: "https://example.org/docs/x%2Fy?p=1"},
		{name: "decodes unreserved beside reserved", raw: "https://example.org/%7Eu/a%2fb%41", want: "https://example.org/~u/a%2FbA"},
		{name: "decodes unreserved escapes", raw: "https://example.com/%7Euser/", want: "https://example.com/~user/"},
		{name: "rejects mailto", raw: "mailto:someone@example.com", wantErr: true},
		{name: "rejects ftp", raw: "ftp://example.com/file", wantErr: true},
		{name: "rejects relative", raw: "/relative/path", wantErr: true},
		{name: "rejects empty", raw: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeURL(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeURLIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://Example.com:443/a/b/#top",
		" http://example.com/path?q=1&a=2 ",
		"https://example.com/%7Euser/",
		"https://example.org/a%2fb/c%3f",
		"https://example.com",
	}
	for _, raw := range inputs {
		once, err := NormalizeURL(raw)
		require.NoError(t, err, raw)
		twice, err := NormalizeURL(once)
		require.NoError(t, err, once)
		require.Equal(t, once, twice)
	}
}

func TestURLFilterAccept(t *testing.T) {
	t.Parallel()

	filter := NewURLFilter(nil)

	got, ok := filter.Accept("https://example.com/admissions/#apply")
	require.True(t, ok)
	require.Equal(t, "https://example.com/admissions/", got)

	for _, raw := range []string{
		"https://example.com/news/2024/open-day",
		"https://example.com/ar/admissions",
		"https://example.com/news-item-42",
		"https://example.com/events/",
		"https://example.org/News/today",
		"https://example.org/AR/page",
		"https://example.org/Events/x",
		"https://example.org/Blog/post",
		"javascript:void(0)",
	} {
		_, ok := filter.Accept(raw)
		require.False(t, ok, raw)
	}
}

func TestURLFilterCustomList(t *testing.T) {
	t.Parallel()

	filter := NewURLFilter([]string{" /Private/ ", ""})
	require.True(t, filter.IsBlocked("https://example.com/private/x"))
	require.True(t, filter.IsBlocked("https://example.com/PRIVATE/x"))
	require.False(t, filter.IsBlocked("https://example.com/news/x"))
}

func TestChunkID(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https_example.com_a_b_0", ChunkID("https://example.com/a/b", 0))
	require.Equal(t, ChunkID("https://example.com/x", 3), ChunkID("https://example.com/x", 3))
	require.Equal(t,
		[]string{"https_example.com_x_2", "https_example.com_x_3"},
		ChunkIDs("https://example.com/x", 2, 4),
	)
	require.Nil(t, ChunkIDs("https://example.com/x", 4, 4))
}

func TestChunkEmbedText(t *testing.T) {
	t.Parallel()

	c := Chunk{Heading: "Fees", Text: "Tuition is due in August."}
	require.Equal(t, "Section: Fees\n\nTuition is due in August.", c.EmbedText())
}
