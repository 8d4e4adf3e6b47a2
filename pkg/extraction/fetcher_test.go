package extraction

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/grafana/dskit/backoff"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hindsightlabs/hindsight/pkg/util/test"
)

func testFetcher(t *testing.T, maxSize int64) *Fetcher {
	t.Helper()

	var cfg FetcherConfig
	cfg.RegisterFlagsAndApplyDefaults("", nil)
	cfg.Timeout = 5 * time.Second
	if maxSize > 0 {
		cfg.MaxContentSize = maxSize
	}

	f, err := NewFetcher(cfg, test.NewTestingLogger(t))
	require.NoError(t, err)
	return f
}

func fastFetchBackoff(t *testing.T) {
	t.Helper()
	orig := fetchBackoff
	fetchBackoff = backoff.Config{MinBackoff: time.Millisecond, MaxBackoff: 4 * time.Millisecond, MaxRetries: 4}
	t.Cleanup(func() { fetchBackoff = orig })
}

func TestFetchReturnsBodyAndContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, fetchUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>archived page</body></html>"))
	}))
	defer srv.Close()

	body, contentType, err := testFetcher(t, 0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, string(body), "archived page")
	assert.Contains(t, contentType, "text/html")
}

func TestFetchRejectsAdvertisedOversize(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()
		_, _ = w.Write(bytes.Repeat([]byte("x"), 256))
	}))
	defer srv.Close()

	_, _, err := testFetcher(t, 16).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrContentTooLarge)
	assert.Equal(t, int32(1), hits.Load(), "size rejections must not retry")
}

func TestFetchRejectsOversizeStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Flush forces chunked encoding so no Content-Length is advertised.
		fl := w.(http.Flusher)
		for i := 0; i < 8; i++ {
			_, _ = w.Write(bytes.Repeat([]byte("y"), 8))
			fl.Flush()
		}
	}))
	defer srv.Close()

	_, _, err := testFetcher(t, 16).Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrContentTooLarge)
}

func TestFetchDoesNotRetryStatusErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, _, err := testFetcher(t, 0).Fetch(context.Background(), srv.URL)

	var ce *ContentExtractionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, http.StatusNotFound, ce.StatusCode)
	assert.Equal(t, "http_404", ErrorType(err))
	assert.False(t, Recoverable(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchRetriesTransportErrors(t *testing.T) {
	fastFetchBackoff(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Inc() == 1 {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	body, _, err := testFetcher(t, 0).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", string(body))
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetchGivesUpAfterRetries(t *testing.T) {
	fastFetchBackoff(t)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()
		hj := w.(http.Hijacker)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	_, _, err := testFetcher(t, 0).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, int32(4), hits.Load())
}

func TestErrorClassification(t *testing.T) {
	for _, tc := range []struct {
		name        string
		err         error
		kind        string
		recoverable bool
	}{
		{"deadline", context.DeadlineExceeded, "timeout", true},
		{"too large", errors.Wrap(ErrContentTooLarge, "advertised 99 bytes"), "content_too_large", false},
		{"unsupported", ErrUnsupportedContentType, "unsupported_content_type", false},
		{"parse failure", NewContentExtractionError("parsing html"), "content_extraction", true},
		{"client status", &ContentExtractionError{Reason: "HTTP 404", StatusCode: 404}, "http_404", false},
		{"server status", &ContentExtractionError{Reason: "HTTP 502", StatusCode: 502}, "http_502", true},
		{"anything else", errors.New("boom"), "unexpected", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, ErrorType(tc.err))
			assert.Equal(t, tc.recoverable, Recoverable(tc.err))
		})
	}
}
