package httpclient

import (
	"bytes"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hindsightlabs/hindsight/archive/router"
)

type MockRoundTripper func(r *http.Request) *http.Response

func (f MockRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r), nil
}

func TestStartScrape(t *testing.T) {
	t.Run("returns the ack when the project exists", func(t *testing.T) {
		mockTransport := MockRoundTripper(func(req *http.Request) *http.Response {
			assert.Equal(t, http.MethodPost, req.Method)
			assert.Equal(t, "/ops/scrape/news-archive", req.URL.Path)
			return &http.Response{
				StatusCode: http.StatusAccepted,
				Body:       io.NopCloser(bytes.NewReader([]byte(`{"project_id":"news-archive","status":"accepted"}`))),
			}
		})

		client := New("http://hindsight.local")
		client.WithTransport(mockTransport)
		ack, err := client.StartScrape("news-archive")

		assert.NoError(t, err)
		assert.Equal(t, &ScrapeAccepted{ProjectID: "news-archive", Status: "accepted"}, ack)
	})

	t.Run("returns ErrNotFound on 404", func(t *testing.T) {
		mockTransport := MockRoundTripper(func(_ *http.Request) *http.Response {
			return &http.Response{
				StatusCode: http.StatusNotFound,
				Body:       io.NopCloser(bytes.NewReader([]byte("project not found"))),
			}
		})

		client := New("http://hindsight.local")
		client.WithTransport(mockTransport)
		ack, err := client.StartScrape("missing")

		assert.ErrorIs(t, err, ErrNotFound)
		assert.Nil(t, ack)
	})
}

func TestSourcesStatus(t *testing.T) {
	mockTransport := MockRoundTripper(func(req *http.Request) *http.Response {
		assert.Equal(t, PathStatusSources, req.URL.Path)
		assert.Equal(t, applicationJSON, req.Header.Get(acceptHeader))
		body := `{"health":"degraded","sources":[{"source":"wayback","total_requests":10,"successes":7,"failures":3,"success_rate":70,"breaker_state":"closed","healthy":false}]}`
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		}
	})

	client := New("http://hindsight.local")
	client.WithTransport(mockTransport)
	status, err := client.SourcesStatus()

	assert.NoError(t, err)
	assert.Equal(t, router.HealthDegraded, status.Health)
	assert.Len(t, status.Sources, 1)
	assert.Equal(t, "wayback", status.Sources[0].Source)
	assert.Equal(t, int64(7), status.Sources[0].Successes)
	assert.False(t, status.Sources[0].Healthy)
}

func TestReady(t *testing.T) {
	t.Run("nil on 200", func(t *testing.T) {
		mockTransport := MockRoundTripper(func(req *http.Request) *http.Response {
			assert.Equal(t, PathReady, req.URL.Path)
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewReader([]byte("ready"))),
			}
		})

		client := New("http://hindsight.local")
		client.WithTransport(mockTransport)
		assert.NoError(t, client.Ready())
	})

	t.Run("error while services are starting", func(t *testing.T) {
		mockTransport := MockRoundTripper(func(_ *http.Request) *http.Response {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Body:       io.NopCloser(bytes.NewReader([]byte("orchestrator not running"))),
			}
		})

		client := New("http://hindsight.local")
		client.WithTransport(mockTransport)
		err := client.Ready()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "orchestrator not running")
	})
}

func TestVersion(t *testing.T) {
	mockTransport := MockRoundTripper(func(req *http.Request) *http.Response {
		assert.Equal(t, PathStatusVersion, req.URL.Path)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"version":"2.1.0","revision":"abc123","branch":"main","go_version":"go1.26"}`))),
		}
	})

	client := New("http://hindsight.local")
	client.WithTransport(mockTransport)
	v, err := client.Version()

	assert.NoError(t, err)
	assert.Equal(t, "2.1.0", v.Version)
	assert.Equal(t, "abc123", v.Revision)
}
