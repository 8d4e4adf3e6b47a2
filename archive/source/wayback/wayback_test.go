package wayback

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hindsightlabs/hindsight/archive/paginator"
	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/pkg/cdx"
	"github.com/hindsightlabs/hindsight/pkg/circuitbreaker"
	"github.com/hindsightlabs/hindsight/pkg/model"
	"github.com/hindsightlabs/hindsight/pkg/util/test"
)

func testSource(t *testing.T, endpoint string) *Source {
	t.Helper()

	cfg := source.Config{
		Enabled:    true,
		Endpoint:   endpoint,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		PageSize:   1000,
	}
	pagCfg := paginator.Config{BatchSize: 10, MaxWorkers: 4, InterBatchDelay: time.Millisecond}

	var bcfg circuitbreaker.Config
	bcfg.RegisterFlagsAndApplyDefaults("", nil)
	breaker := circuitbreaker.New(source.NameWayback, bcfg, test.NewTestingLogger(t))

	s, err := New(cfg, pagCfg, breaker, nil, test.NewTestingLogger(t))
	require.NoError(t, err)
	return s
}

func testDomain() model.Domain {
	return model.Domain{
		Name:      "example.com",
		MatchType: model.MatchDomain,
		FromDate:  "20200101",
		ToDate:    "20201231",
		PageSize:  500,
	}
}

func TestQueryCaptures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "example.com", q.Get("url"))
		assert.Equal(t, "domain", q.Get("matchType"))
		assert.Equal(t, "20200101", q.Get("from"))
		assert.Equal(t, "20201231", q.Get("to"))

		if q.Get("showNumPages") == "true" {
			_, _ = w.Write([]byte("1"))
			return
		}

		assert.Equal(t, "0", q.Get("page"))
		_, _ = w.Write([]byte(`[
			["timestamp","original","mimetype","statuscode","digest","length"],
			["20200315120000","https://example.com/blog/2020/03/15/deep-dive-report","text/html","200","D1","4096"],
			["20200316130000","https://example.com/assets/site.css","text/css","200","D2","1024"]
		]`))
	}))
	defer server.Close()

	s := testSource(t, server.URL)

	res, err := s.QueryCaptures(context.Background(), source.QueryRequest{Domain: testDomain()})
	require.NoError(t, err)
	require.Len(t, res.Captures, 1, "static assets are dropped at the strategy boundary")
	assert.Equal(t, "D1", res.Captures[0].Digest)
	assert.Equal(t, source.NameWayback, res.Stats.Source)
	assert.Equal(t, 1, res.Stats.PagesFetched)
}

func TestRegexMatchTypeWidensToDomain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "domain", q.Get("matchType"), "no native regex match type")
		assert.Contains(t, q["filter"], "original:.*/investigations/.*")
		_, _ = w.Write([]byte("0"))
	}))
	defer server.Close()

	s := testSource(t, server.URL)

	d := testDomain()
	d.MatchType = model.MatchRegex
	d.URLPath = ".*/investigations/.*"

	res, err := s.QueryCaptures(context.Background(), source.QueryRequest{Domain: d})
	require.NoError(t, err)
	assert.Empty(t, res.Captures)
}

func TestAttachmentsWidenMimeFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query()["filter"], "mimetype:text/html|application/pdf")
		_, _ = w.Write([]byte("0"))
	}))
	defer server.Close()

	s := testSource(t, server.URL)

	d := testDomain()
	d.IncludeAttachments = true

	_, err := s.QueryCaptures(context.Background(), source.QueryRequest{Domain: d})
	require.NoError(t, err)
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	s := testSource(t, server.URL)
	req := source.QueryRequest{Domain: testDomain()}

	for i := 0; i < 10; i++ {
		_, err := s.QueryCaptures(context.Background(), req)
		require.Error(t, err)
		if s.Breaker().IsOpen() {
			break
		}
	}
	require.True(t, s.Breaker().IsOpen())

	before := calls.Load()
	_, err := s.QueryCaptures(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, before, calls.Load(), "no provider calls while the breaker is open")
}

func TestClassification(t *testing.T) {
	s := testSource(t, "http://unused.example")

	rateLimited := &cdx.HTTPError{StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"}
	assert.Equal(t, source.KindRateLimit, s.ClassifyError(rateLimited))
	assert.True(t, s.IsRetriable(rateLimited))

	auth := &cdx.HTTPError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"}
	assert.Equal(t, source.KindAuth, s.ClassifyError(auth))
	assert.False(t, s.IsRetriable(auth))
}
