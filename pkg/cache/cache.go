package cache

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "cache_fetches_total",
		Help:      "Total cache fetches by cache name and result.",
	}, []string{"name", "result"})
	metricStores = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hindsight",
		Name:      "cache_stores_total",
		Help:      "Total cache stores by cache name.",
	}, []string{"name"})
)

// Role names what a cache is used for. One backend may serve several roles.
type Role string

const (
	// RoleCDXPages caches raw CDX page bodies keyed by request URL.
	RoleCDXPages Role = "cdx_pages"
	// RoleCrawlCatalog caches the Common Crawl collection catalog.
	RoleCrawlCatalog Role = "crawl_catalog"
)

// Cache is a byte cache. Implementations are safe for concurrent use and
// treat failures as misses; callers never see backend errors.
type Cache interface {
	Fetch(ctx context.Context, key string) ([]byte, bool)
	Store(ctx context.Context, key string, val []byte)
	Stop()
}

// Provider hands out caches by role.
type Provider interface {
	CacheFor(role Role) Cache
}

func observeFetch(name string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	metricFetches.WithLabelValues(name, result).Inc()
}

func observeStore(name string) {
	metricStores.WithLabelValues(name).Inc()
}
