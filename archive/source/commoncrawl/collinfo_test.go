package commoncrawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/hindsightlabs/hindsight/pkg/cdx"
	"github.com/hindsightlabs/hindsight/pkg/util/test"
)

// fakeCache is a map-backed cache for tests.
type fakeCache struct {
	mtx  sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Fetch(_ context.Context, key string) ([]byte, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) Store(_ context.Context, key string, val []byte) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.data[key] = append([]byte(nil), val...)
}

func (c *fakeCache) Stop() {}

func testClient(t *testing.T) *cdx.Client {
	t.Helper()

	client, err := cdx.NewClient(cdx.ClientConfig{Timeout: 5 * time.Second}, test.NewTestingLogger(t))
	require.NoError(t, err)
	return client
}

const testCollinfo = `[
	{"id":"CC-MAIN-2020-05","name":"January 2020","cdx-api":"https://index.example/CC-MAIN-2020-05-index"},
	{"id":"CC-MAIN-2023-50","name":"December 2023","cdx-api":"https://index.example/CC-MAIN-2023-50-index"},
	{"id":"CC-MAIN-2024-10","name":"March 2024","cdx-api":"https://index.example/CC-MAIN-2024-10-index"},
	{"id":"CC-MAIN-backfill","name":"odd one out","cdx-api":"https://index.example/backfill-index"}
]`

func TestCrawlWindow(t *testing.T) {
	start, end, ok := crawlWindow("CC-MAIN-2020-05")
	require.True(t, ok)
	assert.Equal(t, time.Date(2020, time.January, 27, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2020, time.February, 10, 0, 0, 0, 0, time.UTC), end)

	for _, id := range []string{"", "CC-MAIN-2020", "CC-MAIN-2020-00", "CC-MAIN-2020-99", "weekly-2020-05"} {
		_, _, ok := crawlWindow(id)
		assert.False(t, ok, id)
	}
}

func TestISOWeekStart(t *testing.T) {
	for _, tc := range []struct{ year, week int }{
		{2015, 53}, // 53-week year
		{2020, 1},
		{2020, 5},
		{2023, 52},
		{2024, 1},
	} {
		monday := isoWeekStart(tc.year, tc.week)
		assert.Equal(t, time.Monday, monday.Weekday())

		y, w := monday.ISOWeek()
		assert.Equal(t, tc.year, y)
		assert.Equal(t, tc.week, w)
	}
}

func TestCrawlsInWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collinfo.json", r.URL.Path)
		_, _ = w.Write([]byte(testCollinfo))
	}))
	defer server.Close()

	c := newCatalog(server.URL, testClient(t), nil, test.NewTestingLogger(t))

	crawls, err := c.crawlsInWindow(context.Background(), "20231201", "20240401")
	require.NoError(t, err)
	require.Len(t, crawls, 2)
	assert.Equal(t, "CC-MAIN-2024-10", crawls[0].ID, "newest first")
	assert.Equal(t, "CC-MAIN-2023-50", crawls[1].ID)

	// open-ended from
	crawls, err = c.crawlsInWindow(context.Background(), "", "20200301")
	require.NoError(t, err)
	require.Len(t, crawls, 1)
	assert.Equal(t, "CC-MAIN-2020-05", crawls[0].ID)
}

func TestCatalogServedFromCache(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Inc()
		_, _ = w.Write([]byte(testCollinfo))
	}))
	defer server.Close()

	c := newCatalog(server.URL, testClient(t), newFakeCache(), test.NewTestingLogger(t))

	first, err := c.crawls(context.Background())
	require.NoError(t, err)
	second, err := c.crawls(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load(), "second call is served from cache")
}

func TestCatalogDiscardsCorruptCacheEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testCollinfo))
	}))
	defer server.Close()

	backend := newFakeCache()
	backend.Store(context.Background(), collinfoCacheKey, []byte("{not json"))

	c := newCatalog(server.URL, testClient(t), backend, test.NewTestingLogger(t))

	crawls, err := c.crawls(context.Background())
	require.NoError(t, err)
	assert.Len(t, crawls, 4)
}
