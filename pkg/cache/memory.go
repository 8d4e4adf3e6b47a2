package cache

import (
	"context"
	"flag"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

type MemoryConfig struct {
	MaxItems int           `yaml:"max_items"`
	TTL      time.Duration `yaml:"ttl"`
}

func (cfg *MemoryConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.IntVar(&cfg.MaxItems, prefix+".max-items", 10000, "Maximum number of entries held in memory.")
	f.DurationVar(&cfg.TTL, prefix+".ttl", time.Hour, "How long entries stay valid.")
}

// MemoryCache is an in-process LRU with per-entry TTL.
type MemoryCache struct {
	name string
	lru  *lru.LRU[string, []byte]
}

func NewMemoryCache(cfg MemoryConfig, name string) *MemoryCache {
	maxItems := cfg.MaxItems
	if maxItems <= 0 {
		maxItems = 10000
	}
	return &MemoryCache{
		name: name,
		lru:  lru.NewLRU[string, []byte](maxItems, nil, cfg.TTL),
	}
}

func (c *MemoryCache) Fetch(_ context.Context, key string) ([]byte, bool) {
	val, ok := c.lru.Get(key)
	observeFetch(c.name, ok)
	return val, ok
}

func (c *MemoryCache) Store(_ context.Context, key string, val []byte) {
	c.lru.Add(key, val)
	observeStore(c.name)
}

func (c *MemoryCache) Stop() {
	c.lru.Purge()
}
