package cdx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

func TestQueryValues(t *testing.T) {
	q := NewQuery("example.com")
	q.From = "20200101"
	q.To = "20200131"
	q.MatchType = model.MatchDomain
	q.PageSize = 500
	q.Page = 3
	q.MimeTypes = []string{"text/html", "application/pdf"}
	q.MinLength = 1000
	q.MaxLength = 100000

	v := q.Values()
	assert.Equal(t, "example.com", v.Get("url"))
	assert.Equal(t, "json", v.Get("output"))
	assert.Equal(t, "digest", v.Get("collapse"))
	assert.Equal(t, "domain", v.Get("matchType"))
	assert.Equal(t, FieldOrder, v.Get("fl"))
	assert.Equal(t, "500", v.Get("pageSize"))
	assert.Equal(t, "3", v.Get("page"))
	assert.Equal(t, []string{
		"statuscode:200",
		"mimetype:text/html|application/pdf",
		"length:[1000 TO 100000]",
	}, v["filter"])
	assert.Empty(t, v.Get("showNumPages"))
}

func TestQueryValuesUnsetPage(t *testing.T) {
	q := NewQuery("example.com")
	v := q.Values()
	_, hasPage := v["page"]
	assert.False(t, hasPage)

	q.ShowNumPages = true
	assert.Equal(t, "true", q.Values().Get("showNumPages"))
}

func TestQueryURLParses(t *testing.T) {
	q := NewQuery("example.com/path")
	u := q.URL("https://web.archive.org/cdx/search/cdx")
	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "web.archive.org", parsed.Host)
	assert.Equal(t, "example.com/path", parsed.Query().Get("url"))
}

func TestParseRows(t *testing.T) {
	body := `[
		["timestamp","original","mimetype","statuscode","digest","length"],
		["20200315120000","https://example.com/a","text/html","200","D1","2048"],
		["20200316130000","https://example.com/b","application/pdf","200","D2","1536"]
	]`

	captures, err := ParseRows([]byte(body))
	require.NoError(t, err)
	require.Len(t, captures, 2)
	assert.Equal(t, model.Capture{
		Timestamp:   "20200315120000",
		OriginalURL: "https://example.com/a",
		MimeType:    "text/html",
		StatusCode:  200,
		Digest:      "D1",
		Length:      2048,
	}, captures[0])
	assert.Equal(t, "D2", captures[1].Digest)
}

func TestParseRowsNoHeader(t *testing.T) {
	body := `[["20200315120000","https://example.com/a","text/html","200","D1","2048"]]`
	captures, err := ParseRows([]byte(body))
	require.NoError(t, err)
	require.Len(t, captures, 1)
}

func TestParseRowsEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		count   int
		wantErr bool
	}{
		{"empty body", "", 0, false},
		{"empty array", "[]", 0, false},
		{"short row dropped", `[["20200315120000","https://example.com/a"]]`, 0, false},
		{"bad status dropped", `[["20200315120000","u","text/html","abc","D1","10"]]`, 0, false},
		{"not json", "<html>", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			captures, err := ParseRows([]byte(tc.body))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, captures, tc.count)
		})
	}
}

func TestParseNumPages(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		pages   int
		wantErr bool
	}{
		{"bare int", "42", 42, false},
		{"bare int with newline", "7\n", 7, false},
		{"zero", "0", 0, false},
		{"empty body", "", 0, false},
		{"empty array", "[]", 0, false},
		{"data array means one page", `[["timestamp","original"],["2020","u"]]`, 1, false},
		{"negative", "-3", 0, true},
		{"garbage", "whoops", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pages, err := ParseNumPages([]byte(tc.body))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.pages, pages)
		})
	}
}

func TestParseCDXJLine(t *testing.T) {
	line := `com,example)/post 20200315120000 {"url": "https://example.com/post", "mime": "text/html", "status": "200", "digest": "D9", "length": "4096"}`

	c, ok := ParseCDXJLine(line)
	require.True(t, ok)
	assert.Equal(t, "20200315120000", c.Timestamp)
	assert.Equal(t, "https://example.com/post", c.OriginalURL)
	assert.Equal(t, 200, c.StatusCode)
	assert.Equal(t, "D9", c.Digest)
	assert.Equal(t, int64(4096), c.Length)

	_, ok = ParseCDXJLine("not a cdxj line")
	assert.False(t, ok)

	_, ok = ParseCDXJLine(`com,example)/ 2020 not-json`)
	assert.False(t, ok)
}

func TestClientRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Inc() == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("3"))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Timeout: 5 * time.Second, MaxRetries: 2, UserAgent: "test"}, log.NewNopLogger())
	require.NoError(t, err)

	body, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "3", string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientDoesNotRetryServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Timeout: 5 * time.Second, MaxRetries: 3, UserAgent: "test"}, log.NewNopLogger())
	require.NoError(t, err)

	_, err = client.Get(context.Background(), server.URL)
	require.Error(t, err)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadGateway, httpErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Equal(t, time.Duration(0), parseRetryAfter(""))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon"))

	future := time.Now().Add(1 * time.Minute).UTC().Format(http.TimeFormat)
	d := parseRetryAfter(future)
	assert.Greater(t, d, 45*time.Second)
}
