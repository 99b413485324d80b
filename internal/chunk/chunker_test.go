package chunk

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%04d", i)
	}
	return strings.Join(parts, " ")
}

// tokens yields n distinct words sharing a prefix.
func tokens(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s-%03d", prefix, i)
	}
	return strings.Join(parts, " ")
}

func TestChunkSingleSectionProducesTwoOverlappingChunks(t *testing.T) {
	t.Parallel()

	body := words(667) // 667*6-1 = 4001 runes
	require.Equal(t, 4001, len(body))

	c := New(Config{MaxChars: 3500, OverlapChars: 200, MinChars: 250})
	chunks := c.Chunk(body)
	require.Len(t, chunks, 2)

	require.Equal(t, "Introduction", chunks[0].Heading)
	require.Equal(t, 0, chunks[0].Index)
	require.Equal(t, 1, chunks[1].Index)
	require.Equal(t, 2, chunks[0].Total)
	require.Equal(t, 2, chunks[1].Total)

	require.Equal(t, body[:3500], chunks[0].Text)
	require.Equal(t, body[3300:], chunks[1].Text)
}

func TestWindowPreservesContentModuloOverlap(t *testing.T) {
	t.Parallel()

	var paragraphs []string
	for i := 0; i < 12; i++ {
		paragraphs = append(paragraphs, tokens(fmt.Sprintf("p%02d", i), 40+i*7))
	}
	body := strings.Join(paragraphs, "\n\n")

	c := New(Config{MaxChars: 900, OverlapChars: 120, MinChars: 0})
	pieces := c.Window(body)
	require.Greater(t, len(pieces), 3)

	covered := 0
	for i, piece := range pieces {
		require.LessOrEqual(t, utf8.RuneCountInString(piece), 900)
		at := strings.Index(body, piece)
		require.GreaterOrEqual(t, at, 0, "chunk %d is not a slice of the body", i)
		if i == 0 {
			require.Equal(t, 0, at)
		}
		require.Empty(t, strings.TrimSpace(body[min(covered, at):at]), "gap before chunk %d", i)
		covered = max(covered, at+len(piece))
	}
	require.Empty(t, strings.TrimSpace(body[covered:]))
}

func TestWindowPrefersBlankLineBreakPastMidpoint(t *testing.T) {
	t.Parallel()

	first := strings.Repeat("a", 70)
	second := strings.Repeat("b", 60)
	body := first + "\n\n" + second

	c := New(Config{MaxChars: 100, OverlapChars: 10})
	pieces := c.Window(body)
	require.Equal(t, first, pieces[0])
	require.True(t, strings.HasSuffix(pieces[len(pieces)-1], second))
}

func TestWindowIgnoresEarlyBlankLine(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("a", 20) + "\n\n" + strings.Repeat("b", 150)

	c := New(Config{MaxChars: 100, OverlapChars: 10})
	pieces := c.Window(body)
	require.Equal(t, 100, utf8.RuneCountInString(pieces[0]))
}

func TestChunkDropsShortSectionsAndChunks(t *testing.T) {
	t.Parallel()

	text := strings.Join([]string{
		"Short intro.",
		"# Fees",
		words(100),
		"## Tiny",
		"Too small to keep.",
	}, "\n")

	c := New(Config{MaxChars: 3500, OverlapChars: 200, MinChars: 250})
	chunks := c.Chunk(text)
	require.Len(t, chunks, 1)
	require.Equal(t, "Fees", chunks[0].Heading)
	for _, ch := range chunks {
		require.GreaterOrEqual(t, utf8.RuneCountInString(ch.Text), 250)
	}
}

func TestChunkNeverEmitsBelowMinimum(t *testing.T) {
	t.Parallel()

	// The tail window would be a short remainder.
	body := words(600)
	c := New(Config{MaxChars: 1000, OverlapChars: 100, MinChars: 400})
	for _, ch := range c.Chunk(body) {
		require.GreaterOrEqual(t, utf8.RuneCountInString(ch.Text), 400)
	}
}

func TestSections(t *testing.T) {
	t.Parallel()

	text := "Welcome   text\n# Admissions\nApply now.\n\n\n\nDeadlines soon.\n### \n## Empty\n##   Contact  \nCall us."
	sections := Sections(text)
	require.Len(t, sections, 3)
	require.Equal(t, "Introduction", sections[0].Heading)
	require.Equal(t, "Welcome text", sections[0].Body)
	require.Equal(t, "Admissions", sections[1].Heading)
	require.Equal(t, "Apply now.\nDeadlines soon.\n###", sections[1].Body)
	require.Equal(t, "Contact", sections[2].Heading)
	require.Equal(t, "Call us.", sections[2].Body)
}

func TestSectionsSkipBlankLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "double blank", text: "# Fees\nTuition.\n\nHousing.", want: "Tuition.\nHousing."},
		{name: "whitespace only", text: "# Fees\nTuition.\n   \n\t\nHousing.", want: "Tuition.\nHousing."},
		{name: "leading and trailing", text: "# Fees\n\nTuition.\n\n", want: "Tuition."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sections := Sections(tc.text)
			require.Len(t, sections, 1)
			require.Equal(t, tc.want, sections[0].Body)
			require.NotContains(t, sections[0].Body, "\n\n")
		})
	}
}

func TestWindowCountsRunes(t *testing.T) {
	t.Parallel()

	body := strings.Repeat("ب", 250)
	c := New(Config{MaxChars: 100, OverlapChars: 20})
	pieces := c.Window(body)
	require.Len(t, pieces, 3)
	for _, p := range pieces {
		require.True(t, utf8.ValidString(p))
		require.LessOrEqual(t, utf8.RuneCountInString(p), 100)
	}
}

func TestNewClampsOverlap(t *testing.T) {
	t.Parallel()

	c := New(Config{MaxChars: 100, OverlapChars: 80})
	require.Equal(t, 49, c.cfg.OverlapChars)
	require.NotEmpty(t, c.Window(strings.Repeat("x ", 400)))
}
