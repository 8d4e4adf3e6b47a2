package cdx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSURT(t *testing.T) {
	assert.Equal(t, "com,example)/", SURT("example.com", ""))
	assert.Equal(t, "com,example)/blog/post", SURT("example.com", "/blog/post"))
	assert.Equal(t, "com,example,sub)/", SURT("sub.example.com", "/"))
	assert.Equal(t, "com,example)/", SURT("EXAMPLE.COM.", ""))
}

func TestSURTPrefixes(t *testing.T) {
	assert.Equal(t, []string{"com,example)"}, SURTPrefixes("example.com", false))
	assert.Equal(t, []string{"com,example)", "com,example,"}, SURTPrefixes("example.com", true))
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "example.com", HostOf("https://example.com/blog/post"))
	assert.Equal(t, "example.com", HostOf("example.com/blog/post"))
	assert.Equal(t, "sub.example.com", HostOf("http://Sub.Example.com:8080/x"))
	assert.Equal(t, "", HostOf("://not a url"))
}

func TestClientGetRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=10-19", r.Header.Get("Range"))
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Timeout: 5 * time.Second, UserAgent: "test"}, log.NewNopLogger())
	require.NoError(t, err)

	body, err := client.GetRange(context.Background(), server.URL, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(body))
}

func TestClientGetStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("line one\nline two\n"))
	}))
	defer server.Close()

	client, err := NewClient(ClientConfig{Timeout: 5 * time.Second, UserAgent: "test"}, log.NewNopLogger())
	require.NoError(t, err)

	rc, err := client.GetStream(context.Background(), server.URL)
	require.NoError(t, err)
	defer rc.Close()

	buf := make([]byte, 64)
	n, _ := rc.Read(buf)
	assert.Contains(t, string(buf[:n]), "line one")
}
