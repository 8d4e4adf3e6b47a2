package cache

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/cache"
)

// Provider is the cache service handed to the rest of the process. All
// roles share one backend; CacheFor returns nil when caching is disabled,
// which callers treat as a pass-through.
type Provider interface {
	services.Service

	CacheFor(role cache.Role) cache.Cache
}

type provider struct {
	services.Service

	caches map[cache.Role]cache.Cache
}

// NewProvider builds the configured cache backend and claims every role
// with it.
func NewProvider(cfg *Config, logger log.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid cache config")
	}

	p := &provider{
		caches: map[cache.Role]cache.Cache{},
	}

	roles := []cache.Role{cache.RoleCDXPages, cache.RoleCrawlCatalog}

	switch cfg.Backend {
	case BackendMemory:
		level.Info(logger).Log("msg", "configuring memory cache", "max_items", cfg.Memory.MaxItems, "ttl", cfg.Memory.TTL)
		c := cache.NewMemoryCache(cfg.Memory, "shared")
		for _, role := range roles {
			p.caches[role] = c
		}
	case BackendRedis:
		level.Info(logger).Log("msg", "configuring redis cache", "endpoint", cfg.Redis.Endpoint)
		c := cache.NewRedisCache(cfg.Redis, "shared", logger)
		for _, role := range roles {
			p.caches[role] = c
		}
	case BackendNone:
		level.Info(logger).Log("msg", "caching disabled")
	}

	p.Service = services.NewIdleService(p.starting, p.stopping)
	return p, nil
}

// CacheFor retrieves the cache claimed for a role, or nil when none is.
func (p *provider) CacheFor(role cache.Role) cache.Cache {
	return p.caches[role]
}

func (p *provider) starting(_ context.Context) error {
	return nil
}

func (p *provider) stopping(_ error) error {
	// all roles may share one backend. only stop each cache once.
	stopped := map[cache.Cache]struct{}{}

	for _, c := range p.caches {
		if _, ok := stopped[c]; ok {
			continue
		}

		stopped[c] = struct{}{}
		c.Stop()
	}

	return nil
}
