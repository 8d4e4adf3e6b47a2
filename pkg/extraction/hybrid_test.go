package extraction

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grafana/dskit/flagext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hindsightlabs/hindsight/pkg/model"
	"github.com/hindsightlabs/hindsight/pkg/util/test"
)

type stubFetcher struct {
	body        []byte
	contentType string
	err         error
	calls       atomic.Int32
}

func (s *stubFetcher) Fetch(_ context.Context, _ string) ([]byte, string, error) {
	s.calls.Inc()
	if s.err != nil {
		return nil, "", s.err
	}
	return s.body, s.contentType, nil
}

func defaultExtractionConfig() Config {
	var cfg Config
	cfg.RegisterFlagsAndApplyDefaults("", nil)
	return cfg
}

func newTestHybrid(t *testing.T, cfg Config, fetcher contentFetcher) *HybridExtractor {
	t.Helper()
	h, err := NewHybridExtractor(cfg, test.NewTestingLogger(t))
	require.NoError(t, err)
	if fetcher != nil {
		h.fetcher = fetcher
	}
	return h
}

func TestShouldUseStructured(t *testing.T) {
	h := newTestHybrid(t, defaultExtractionConfig(), nil)

	for _, tc := range []struct {
		name    string
		capture model.Capture
		want    bool
	}{
		{"pdf mime", model.Capture{MimeType: "application/pdf", OriginalURL: "http://example.com/flyer"}, true},
		{"gov tld", model.Capture{OriginalURL: "https://records.example.gov/minutes-2019"}, true},
		{"academic infix tld", model.Capture{OriginalURL: "https://library.example.ac.uk/holdings"}, true},
		{"high value substring in host", model.Capture{OriginalURL: "http://citygovwatch.com/front"}, true},
		{"large advertised body", model.Capture{OriginalURL: "http://example.com/front", Length: 5000}, true},
		{"keyword in path", model.Capture{OriginalURL: "http://example.com/annual-report-2019"}, true},
		{"path pattern", model.Capture{OriginalURL: "http://example.com/news/city-budget"}, true},
		{"ordinary small page", model.Capture{OriginalURL: "http://example.com/contact", Length: 400}, false},
	} {
		assert.Equal(t, tc.want, h.shouldUseStructured(tc.capture), tc.name)
	}
}

func TestHybridStructuredPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))

		var req structuredRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"markdown", "html"}, req.Formats)
		assert.True(t, req.OnlyMainContent)
		assert.Contains(t, req.URL, "web.archive.org")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {
				"content": "Budget report body text.",
				"markdown": "# Budget\n\nreport body",
				"metadata": {"title": "Budget Report"}
			}
		}`))
	}))
	defer srv.Close()

	cfg := defaultExtractionConfig()
	cfg.Hybrid.Enabled = true
	cfg.Hybrid.StructuredURL = srv.URL
	cfg.Hybrid.APIKey = flagext.SecretWithValue("sekrit")

	fetcher := &stubFetcher{}
	h := newTestHybrid(t, cfg, fetcher)

	content, err := h.Extract(context.Background(), model.Capture{
		Timestamp:   "20190314093000",
		OriginalURL: "https://city.example.gov/budget",
		MimeType:    "text/html",
		StatusCode:  200,
	})
	require.NoError(t, err)

	assert.Equal(t, "firecrawl", content.ExtractionMethod)
	assert.Equal(t, "Budget Report", content.Title)
	assert.Contains(t, content.Text, "Budget report body")
	assert.Contains(t, content.Markdown, "# Budget")
	assert.Greater(t, content.ExtractionSeconds, 0.0)
	assert.Equal(t, int32(0), fetcher.calls.Load(), "structured success must not touch the fetcher")
}

func TestHybridFallsBackToLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := defaultExtractionConfig()
	cfg.Hybrid.Enabled = true
	cfg.Hybrid.StructuredURL = srv.URL

	fetcher := &stubFetcher{
		body:        []byte(`<html><body><article>Locally extracted municipal budget analysis.</article></body></html>`),
		contentType: "text/html",
	}
	h := newTestHybrid(t, cfg, fetcher)

	content, err := h.Extract(context.Background(), model.Capture{
		Timestamp:   "20190314093000",
		OriginalURL: "https://city.example.gov/budget",
		MimeType:    "text/html",
	})
	require.NoError(t, err)

	assert.Equal(t, "hybrid_fallback", content.ExtractionMethod)
	assert.Contains(t, content.Text, "municipal budget analysis")
	assert.Equal(t, int32(1), fetcher.calls.Load())
}

func TestHybridStructuredEmptyTextFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "data": {"content": "", "metadata": {"title": "Empty"}}}`))
	}))
	defer srv.Close()

	cfg := defaultExtractionConfig()
	cfg.Hybrid.Enabled = true
	cfg.Hybrid.StructuredURL = srv.URL

	fetcher := &stubFetcher{
		body:        []byte(`<html><body><article>Recovered locally after the service came back empty.</article></body></html>`),
		contentType: "text/html",
	}
	h := newTestHybrid(t, cfg, fetcher)

	content, err := h.Extract(context.Background(), model.Capture{
		OriginalURL: "https://city.example.gov/budget",
		MimeType:    "text/html",
	})
	require.NoError(t, err)
	assert.Equal(t, "hybrid_fallback", content.ExtractionMethod)
	assert.Contains(t, content.Text, "Recovered locally")
}

func TestHybridFallbackDisabledSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := defaultExtractionConfig()
	cfg.Hybrid.Enabled = true
	cfg.Hybrid.StructuredURL = srv.URL
	cfg.Hybrid.FallbackEnabled = false

	fetcher := &stubFetcher{}
	h := newTestHybrid(t, cfg, fetcher)

	_, err := h.Extract(context.Background(), model.Capture{
		OriginalURL: "https://city.example.gov/budget",
		MimeType:    "text/html",
	})

	var ce *ContentExtractionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusInternalServerError, ce.StatusCode)
	assert.Equal(t, int32(0), fetcher.calls.Load())
}

func TestHybridLocalHTMLPath(t *testing.T) {
	cfg := defaultExtractionConfig() // structured path stays off

	fetcher := &stubFetcher{
		body:        []byte(`<html><body><article>Ordinary page content, parsed in process.</article></body></html>`),
		contentType: "text/html",
	}
	h := newTestHybrid(t, cfg, fetcher)

	content, err := h.Extract(context.Background(), model.Capture{
		OriginalURL: "http://example.com/contact",
		MimeType:    "text/html",
		Length:      400,
	})
	require.NoError(t, err)
	assert.Equal(t, "hybrid_beautifulsoup", content.ExtractionMethod)
	assert.Contains(t, content.Text, "parsed in process")
}

func TestHybridPDFGarbageReported(t *testing.T) {
	cfg := defaultExtractionConfig()

	fetcher := &stubFetcher{body: []byte("not a pdf"), contentType: "application/pdf"}
	h := newTestHybrid(t, cfg, fetcher)

	_, err := h.Extract(context.Background(), model.Capture{
		OriginalURL: "http://example.com/contact",
		MimeType:    "application/pdf",
	})
	require.Error(t, err)
	assert.Equal(t, "content_extraction", ErrorType(err))
}
