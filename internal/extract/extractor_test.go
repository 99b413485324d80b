package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html>
<head>
  <title>  Admissions |   Example University </title>
  <link rel="canonical" href="/admissions/">
</head>
<body>
  <header><a href="/files/header-brochure.pdf">Brochure</a> Site header text</header>
  <nav><ul><li>Home</li><li>About</li></ul></nav>
  <div class="cookie">We use cookies</div>
  <main>
    <h1>Undergraduate   Admissions</h1>
    <p>Applications for the fall semester open in <b>September</b> and close in January.</p>
    <h2>Requirements</h2>
    <ul>
      <li>High school transcript</li>
      <li>Two recommendation letters</li>
    </ul>
    <table>
      <tr><th>Program</th><th>Deadline</th></tr>
      <tr><td>Engineering</td><td>Jan 15</td></tr>
      <tr><td></td><td></td></tr>
    </table>
    <p>Download the <a href="docs/Guide.PDF">guide</a> or the <a href="https://cdn.example.edu/form.docx?v=2">form</a>.</p>
    <p>Also the <a href="docs/Guide.PDF#page=2">guide again</a> and <a href="/about">about</a>.</p>
    <script>var tracking = true;</script>
  </main>
  <footer>Copyright</footer>
</body>
</html>`

func TestExtractStructuresMainContent(t *testing.T) {
	t.Parallel()

	e := New(Config{})
	ext, err := e.Extract([]byte(samplePage), "https://example.edu/admissions/index.html")
	require.NoError(t, err)

	want := strings.Join([]string{
		"# Undergraduate Admissions",
		"Applications for the fall semester open in September and close in January.",
		"## Requirements",
		"- High school transcript",
		"- Two recommendation letters",
		"Program | Deadline",
		"Engineering | Jan 15",
		"Download the guide or the form .",
		"Also the guide again and about .",
	}, "\n")
	require.Equal(t, want, ext.Text)
	require.False(t, ext.Incomplete)
	require.NotContains(t, ext.Text, "cookies")
	require.NotContains(t, ext.Text, "tracking")
}

func TestExtractListItemsBecomeBullets(t *testing.T) {
	t.Parallel()

	body := `<html><body><main><p>Intro paragraph words here.</p>` +
		`<ul><li>First item</li><li> Second   item </li><li> </li></ul></main></body></html>`
	ext, err := New(Config{}).Extract([]byte(body), "https://example.edu/list")
	require.NoError(t, err)
	require.Equal(t, "Intro paragraph words here.\n- First item\n- Second item", ext.Text)
}

func TestExtractMetadata(t *testing.T) {
	t.Parallel()

	ext, err := New(Config{}).Extract([]byte(samplePage), "https://example.edu/admissions/index.html")
	require.NoError(t, err)

	require.Equal(t, "Admissions | Example University", ext.Meta.Title)
	require.Equal(t, "Undergraduate Admissions", ext.Meta.H1)
	require.Equal(t, "https://example.edu/admissions/", ext.Meta.CanonicalURL)
	require.Equal(t, []string{
		"https://example.edu/files/header-brochure.pdf",
		"https://example.edu/admissions/docs/Guide.PDF",
		"https://cdn.example.edu/form.docx?v=2",
		"https://example.edu/admissions/docs/Guide.PDF#page=2",
	}, ext.Meta.DownloadLinks)
}

func TestExtractCanonicalDefaultsToPageURL(t *testing.T) {
	t.Parallel()

	ext, err := New(Config{}).Extract([]byte("<html><body><p>hi</p></body></html>"), "https://example.edu/x")
	require.NoError(t, err)
	require.Equal(t, "https://example.edu/x", ext.Meta.CanonicalURL)
	require.Empty(t, ext.Meta.DownloadLinks)
}

func TestExtractDownloadLinksAreCapped(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, `<a href="/files/doc-%d.pdf">doc</a>`, i)
		fmt.Fprintf(&b, `<a href="/files/doc-%d.pdf">dup</a>`, i)
	}
	b.WriteString("</body></html>")

	ext, err := New(Config{MaxDownloadLinks: 50}).Extract([]byte(b.String()), "https://example.edu/")
	require.NoError(t, err)
	require.Len(t, ext.Meta.DownloadLinks, 50)
	require.Equal(t, "https://example.edu/files/doc-0.pdf", ext.Meta.DownloadLinks[0])
	require.Equal(t, "https://example.edu/files/doc-49.pdf", ext.Meta.DownloadLinks[49])
}

func TestExtractFallsBackWhenMainIsEmpty(t *testing.T) {
	t.Parallel()

	page := `<html><body><main>   </main><div><h3>Contact</h3><p>Call the registrar office on weekdays between nine and five for help.</p></div></body></html>`
	ext, err := New(Config{}).Extract([]byte(page), "https://example.edu/contact")
	require.NoError(t, err)
	require.Equal(t, "### Contact\nCall the registrar office on weekdays between nine and five for help.", ext.Text)
}

func TestExtractFlagsThinPages(t *testing.T) {
	t.Parallel()

	page := `<html><body><main><p>Only six words live on here.</p></main></body></html>`
	ext, err := New(Config{MinWords: 10}).Extract([]byte(page), "https://example.edu/thin")
	require.NoError(t, err)
	require.Equal(t, 6, ext.WordCount)
	require.True(t, ext.Incomplete)
}

func TestCountWordsHandlesUnicode(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0, CountWords("  -- !! "))
	require.Equal(t, 3, CountWords("café naïve résumé"))
	require.Equal(t, 4, CountWords("snake_case 42 straße, ok"))
}

func TestCleanWhitespace(t *testing.T) {
	t.Parallel()

	require.Equal(t, "a b\n\nc", CleanWhitespace("\r\n a   b\n\n\n\nc \t \r\n"))
	require.Equal(t, "", CleanWhitespace(" \n\n "))
}
