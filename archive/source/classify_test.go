package source

import (
	"context"
	"io"
	"net/http"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/hindsightlabs/hindsight/pkg/cdx"
	"github.com/hindsightlabs/hindsight/pkg/circuitbreaker"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

func TestClassify(t *testing.T) {
	tcs := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{
			name: "rate limit",
			err:  &cdx.HTTPError{StatusCode: http.StatusTooManyRequests, Status: "429 Too Many Requests"},
			kind: KindRateLimit,
		},
		{
			name: "proxy auth",
			err:  &cdx.HTTPError{StatusCode: http.StatusProxyAuthRequired, Status: "407 Proxy Authentication Required"},
			kind: KindAuth,
		},
		{
			name: "unauthorized",
			err:  &cdx.HTTPError{StatusCode: http.StatusUnauthorized, Status: "401 Unauthorized"},
			kind: KindAuth,
		},
		{
			name: "server error",
			err:  &cdx.HTTPError{StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway"},
			kind: KindProviderUnavailable,
		},
		{
			name: "open breaker",
			err:  circuitbreaker.ErrCircuitOpen,
			kind: KindProviderUnavailable,
		},
		{
			name: "wrapped open breaker",
			err:  errors.Wrap(circuitbreaker.ErrCircuitOpen, "querying wayback"),
			kind: KindProviderUnavailable,
		},
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			kind: KindTransport,
		},
		{
			name: "connection reset",
			err:  syscall.ECONNRESET,
			kind: KindTransport,
		},
		{
			name: "truncated body",
			err:  io.ErrUnexpectedEOF,
			kind: KindTransport,
		},
		{
			name: "unknown",
			err:  errors.New("some provider quirk"),
			kind: KindUnexpected,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, Classify(tc.err))
		})
	}
}

func TestRetriable(t *testing.T) {
	assert.True(t, Retriable(&cdx.HTTPError{StatusCode: http.StatusTooManyRequests}))
	assert.True(t, Retriable(&cdx.HTTPError{StatusCode: http.StatusServiceUnavailable}))
	assert.True(t, Retriable(context.DeadlineExceeded))
	assert.True(t, Retriable(syscall.ECONNRESET))
	assert.True(t, Retriable(errors.New("proxy pool exhausted, rotating")))

	assert.False(t, Retriable(nil))
	assert.False(t, Retriable(&cdx.HTTPError{StatusCode: http.StatusProxyAuthRequired}))
	assert.False(t, Retriable(&cdx.HTTPError{StatusCode: http.StatusNotFound}))
	assert.False(t, Retriable(circuitbreaker.ErrCircuitOpen))
	assert.False(t, Retriable(context.Canceled))
}

func TestDropStaticAssets(t *testing.T) {
	captures := []model.Capture{
		{OriginalURL: "https://example.com/blog/2020/03/15/post-title", Digest: "D1"},
		{OriginalURL: "https://example.com/assets/site.css", Digest: "D2"},
		{OriginalURL: "https://example.com/js/app.js", Digest: "D3"},
		{OriginalURL: "https://example.com/about/our-mission-and-team", Digest: "D4"},
	}

	kept := DropStaticAssets(captures)
	assert.Len(t, kept, 2)
	assert.Equal(t, "D1", kept[0].Digest)
	assert.Equal(t, "D4", kept[1].Digest)
}
