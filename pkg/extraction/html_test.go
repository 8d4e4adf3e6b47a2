package extraction

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

func extractHTML(t *testing.T, page string) *model.ExtractedContent {
	t.Helper()
	content, err := (&HTMLExtractor{}).Extract([]byte(page))
	require.NoError(t, err)
	return content
}

const articlePage = `<!DOCTYPE html>
<html lang="en-US">
<head>
<title>Pension Fund Shortfall Analysis</title>
<meta name="description" content="A detailed look at municipal pension funding.">
<meta name="keywords" content="pensions, municipal finance">
<meta name="author" content="Jordan Blake">
<meta property="article:published_time" content="2019-03-14T09:30:00Z">
<script>var tracking = true;</script>
</head>
<body>
<!-- served by cache node 7 -->
<nav>Home | Reports | About</nav>
<div class="content">
  <h1>Pension Fund Shortfall</h1>
  <p>The municipal pension fund faces a projected shortfall over the coming decade.</p>
  <div class="ads">Subscribe now!</div>
  <blockquote>Funding ratios declined for the eighth straight year.</blockquote>
</div>
<footer>Copyright 2019</footer>
</body>
</html>`

func TestHTMLExtractMetadata(t *testing.T) {
	content := extractHTML(t, articlePage)

	assert.Equal(t, "Pension Fund Shortfall Analysis", content.Title)
	assert.Equal(t, "A detailed look at municipal pension funding.", content.MetaDescription)
	assert.Equal(t, "pensions, municipal finance", content.MetaKeywords)
	assert.Equal(t, "Jordan Blake", content.Author)
	assert.Equal(t, "2019-03-14T09:30:00Z", content.PublishedDate)
	assert.Equal(t, "en", content.Language)
	assert.Equal(t, "html", content.ExtractionMethod)
	assert.Positive(t, content.WordCount)
	assert.Positive(t, content.CharCount)
}

func TestHTMLExtractDropsChrome(t *testing.T) {
	content := extractHTML(t, articlePage)

	assert.Contains(t, content.Text, "projected shortfall")
	assert.Contains(t, content.Text, "eighth straight year")
	assert.NotContains(t, content.Text, "Home | Reports")
	assert.NotContains(t, content.Text, "Subscribe now")
	assert.NotContains(t, content.Text, "Copyright")
	assert.NotContains(t, content.Text, "tracking")
	assert.NotContains(t, content.Text, "cache node")
}

func TestHTMLExtractMarkdown(t *testing.T) {
	content := extractHTML(t, articlePage)

	assert.Contains(t, content.Markdown, "# Pension Fund Shortfall")
	assert.Contains(t, content.Markdown, "> Funding ratios declined")
	assert.NotContains(t, content.Markdown, "\n\n\n")
	assert.NotContains(t, content.Markdown, "Subscribe now")
}

func TestMainContentPrefersLargestCandidate(t *testing.T) {
	page := `<html><body>
<div id="content">Short teaser.</div>
<article>` + strings.Repeat("Long body copy about the archived subject. ", 20) + `</article>
</body></html>`

	content := extractHTML(t, page)
	assert.Contains(t, content.Text, "Long body copy")
	assert.NotContains(t, content.Text, "Short teaser")
}

func TestMainContentFallsBackToBody(t *testing.T) {
	page := `<html><body>
<p>Plain page without any recognized container, still worth indexing.</p>
<div class="sidebar">sidebar junk</div>
</body></html>`

	content := extractHTML(t, page)
	assert.Contains(t, content.Text, "without any recognized container")
	assert.NotContains(t, content.Text, "sidebar junk")
}

func TestHTMLExtractEmptyDocument(t *testing.T) {
	content := extractHTML(t, "<html><body></body></html>")
	assert.Empty(t, content.Text)
	assert.Zero(t, content.WordCount)
}

func TestHTMLExtractReplacesInvalidUTF8(t *testing.T) {
	raw := append([]byte("<html><body><main>valid prefix "), 0xff, 0xfe)
	raw = append(raw, []byte(" and suffix</main></body></html>")...)

	content, err := (&HTMLExtractor{}).Extract(raw)
	require.NoError(t, err)
	assert.Contains(t, content.Text, "valid prefix")
	assert.Contains(t, content.Text, "and suffix")
}

func TestParsePublishedDate(t *testing.T) {
	for _, tc := range []struct {
		in, want string
	}{
		{"2019-03-14", "2019-03-14T00:00:00Z"},
		{"2019-03-14T09:30:00", "2019-03-14T09:30:00Z"},
		{"2019-03-14T09:30:00Z", "2019-03-14T09:30:00Z"},
		{"2019-03-14T09:30:00.123Z", "2019-03-14T09:30:00Z"},
		{"2019-03-14T09:30:00+02:00", "2019-03-14T07:30:00Z"},
		{"March 14, 2019", "2019-03-14T00:00:00Z"},
		{"not a date", ""},
		{"", ""},
	} {
		assert.Equal(t, tc.want, parsePublishedDate(tc.in), "input %q", tc.in)
	}
}

func TestDocumentLanguageSubtag(t *testing.T) {
	content := extractHTML(t, `<html lang="pt-BR"><body><p>Olá, mundo.</p></body></html>`)
	assert.Equal(t, "pt", content.Language)
}

func TestLanguageDetectionFallback(t *testing.T) {
	body := strings.Repeat("The committee published its annual report on municipal finances today. ", 5)
	content := extractHTML(t, "<html><body><article>"+body+"</article></body></html>")
	assert.Equal(t, "en", content.Language)
}

func TestLanguageDetectionSkipsShortText(t *testing.T) {
	content := extractHTML(t, "<html><body><p>too short</p></body></html>")
	assert.Empty(t, content.Language)
}

func TestFallbackMarkdown(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<div><h2>Findings</h2><p>Body text.</p><blockquote>Quoted line.</blockquote></div>`))
	require.NoError(t, err)

	md := fallbackMarkdown(doc.Find("div"))
	assert.Contains(t, md, "## Findings")
	assert.Contains(t, md, "Body text.")
	assert.Contains(t, md, "> Quoted line.")
}

func TestCollapseHelpers(t *testing.T) {
	assert.Equal(t, "a b c", collapseWhitespace("  a\n\tb   c "))
	assert.Equal(t, "a\n\nb", collapseBlankLines("a\n\n\n\n\nb"))
}
