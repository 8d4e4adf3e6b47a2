package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

func TestIsListPage(t *testing.T) {
	tcs := []struct {
		url  string
		list bool
	}{
		{url: "https://example.com/blog/", list: true},
		{url: "https://example.com/blog/2020/03/15/post-title", list: false},
		{url: "https://example.com/tag/politics/", list: true},
		{url: "https://example.com/about/our-mission-and-team", list: false},
		{url: "https://example.com/category/economy", list: true},
		{url: "https://example.com/news/page/42", list: true},
		{url: "https://example.com/archive/2019/", list: true},
		{url: "https://example.com/2021/07/", list: true},
		{url: "https://example.com/feed/", list: true},
		{url: "https://example.com/sitemap.xml", list: true},
		{url: "https://example.com/wp-admin/options.php", list: true},
		{url: "https://example.com/articles?page=3", list: true},
		{url: "https://example.com/search?q=term", list: true},
		{url: "https://example.com/story?a=1&b=2&c=3&d=4", list: true},
		{url: "https://example.com/research/long-form-investigation-report", list: false},
		{url: "https://example.com/2020/03/15/hurricane-response-investigated", list: false},
	}

	for _, tc := range tcs {
		assert.Equal(t, tc.list, IsListPage(tc.url), "url %s", tc.url)
	}
}

func TestIsListPageIsIdempotent(t *testing.T) {
	in := []model.Capture{
		capture("D1", "https://example.com/blog/2020/03/15/post-title", 9000),
		capture("D2", "https://example.com/tag/politics/", 9000),
		capture("D3", "https://example.com/about/our-mission-and-team", 9000),
	}

	once := NewPipeline(Options{}, nil).Apply(in)
	twice := NewPipeline(Options{}, nil).Apply(once)
	require.Equal(t, once, twice)
}

func TestSizeFilter(t *testing.T) {
	p := NewPipeline(Options{MinSize: 1000, MaxSize: 100000}, nil)
	kept := p.Apply([]model.Capture{
		capture("D1", "https://example.com/reports/annual-accountability-review", 500),
		capture("D2", "https://example.com/reports/quarterly-budget-breakdown", 50000),
		capture("D3", "https://example.com/reports/oversized-database-dump-page", 5000000),
		capture("D4", "https://example.com/reports/length-unknown-capture-here", 0),
	})

	require.Len(t, kept, 2)
	assert.Equal(t, "D2", kept[0].Digest)
	assert.Equal(t, "D4", kept[1].Digest, "unknown length passes the size window")
	assert.Equal(t, 2, p.Stats().SizeFiltered)

	for _, c := range kept {
		if c.Length != 0 {
			assert.GreaterOrEqual(t, c.Length, int64(1000))
			assert.LessOrEqual(t, c.Length, int64(100000))
		}
	}
}

func TestAttachmentFilter(t *testing.T) {
	in := []model.Capture{
		capture("D1", "https://example.com/docs/foia-response-2020-full.pdf", 9000),
		capture("D2", "https://example.com/downloads/press-kit-materials.zip", 9000),
		capture("D3", "https://example.com/reports/final-investigation-summary", 9000),
	}

	p := NewPipeline(Options{IncludeAttachments: false}, nil)
	kept := p.Apply(in)
	require.Len(t, kept, 1)
	assert.Equal(t, "D3", kept[0].Digest)
	assert.Equal(t, 2, p.Stats().AttachmentFiltered)

	p = NewPipeline(Options{IncludeAttachments: true}, nil)
	kept = p.Apply(in)
	require.Len(t, kept, 3, "attachments kept when the domain opts in")
	assert.Zero(t, p.Stats().AttachmentFiltered)
}

func TestAttachmentByMimeType(t *testing.T) {
	// A PDF served from an extensionless URL is still an attachment.
	c := capture("D1", "https://example.com/documents/serve-attachment-inline", 9000)
	c.MimeType = "application/pdf"

	p := NewPipeline(Options{IncludeAttachments: false}, nil)
	require.Empty(t, p.Apply([]model.Capture{c}))
	assert.Equal(t, 1, p.Stats().AttachmentFiltered)
}

func TestDigestDeduplication(t *testing.T) {
	pageOne := []model.Capture{
		capture("D1", "https://example.com/blog/2020/03/15/first-article-posted", 9000),
		capture("D2", "https://example.com/blog/2020/04/02/second-article-posted", 9000),
	}
	pageTwo := []model.Capture{
		capture("D2", "https://example.com/blog/2020/04/02/second-article-posted", 9000),
		capture("D5", "https://example.com/blog/2020/05/19/a-third-article-posted", 9000),
	}

	p := NewPipeline(Options{}, map[string]struct{}{"D0": {}})

	var kept []model.Capture
	kept = append(kept, p.Apply(pageOne)...)
	kept = append(kept, p.Apply(pageTwo)...)

	digests := make([]string, 0, len(kept))
	for _, c := range kept {
		digests = append(digests, c.Digest)
	}
	require.Equal(t, []string{"D1", "D2", "D5"}, digests)
	assert.Equal(t, 1, p.Stats().DuplicateFiltered)
	assert.Equal(t, 3, p.Stats().Kept)
}

func TestDedupAgainstExistingDigests(t *testing.T) {
	p := NewPipeline(Options{}, map[string]struct{}{"D1": {}})
	kept := p.Apply([]model.Capture{
		capture("D1", "https://example.com/blog/2020/03/15/already-ingested-page", 9000),
	})
	require.Empty(t, kept)
	assert.Equal(t, 1, p.Stats().DuplicateFiltered)
}

func TestFiltersPreserveOrder(t *testing.T) {
	in := []model.Capture{
		capture("D1", "https://example.com/blog/2020/03/15/breaking-news-report", 9000),
		capture("D2", "https://example.com/tag/politics/", 9000),
		capture("D3", "https://example.com/blog/2020/06/20/follow-up-reporting", 9000),
		capture("D4", "https://example.com/blog/2021/01/05/the-year-in-review-x", 9000),
	}

	kept := NewPipeline(Options{}, nil).Apply(in)
	require.Len(t, kept, 3)
	assert.Equal(t, []string{"D1", "D3", "D4"}, []string{kept[0].Digest, kept[1].Digest, kept[2].Digest})
}

func TestIsStaticAsset(t *testing.T) {
	assert.True(t, IsStaticAsset("https://example.com/assets/site.css"))
	assert.True(t, IsStaticAsset("https://example.com/js/app.js?v=12"))
	assert.True(t, IsStaticAsset("https://example.com/fonts/body.woff2"))
	assert.False(t, IsStaticAsset("https://example.com/blog/2020/03/15/post-title"))
	assert.False(t, IsStaticAsset("https://example.com/docs/report.pdf"))
}

func capture(digest, url string, length int64) model.Capture {
	return model.Capture{
		Timestamp:   "20200315120000",
		OriginalURL: url,
		MimeType:    "text/html",
		StatusCode:  200,
		Digest:      digest,
		Length:      length,
	}
}
