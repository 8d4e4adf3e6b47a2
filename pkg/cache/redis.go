package cache

import (
	"context"
	"flag"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	"github.com/grafana/dskit/flagext"
)

type RedisConfig struct {
	Endpoint string         `yaml:"endpoint"`
	Password flagext.Secret `yaml:"password"`
	DB       int            `yaml:"db"`
	TTL      time.Duration  `yaml:"ttl"`
	Timeout  time.Duration  `yaml:"timeout"`
}

func (cfg *RedisConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Endpoint, prefix+".endpoint", "", "Redis endpoint (host:port).")
	f.IntVar(&cfg.DB, prefix+".db", 0, "Redis database index.")
	f.DurationVar(&cfg.TTL, prefix+".ttl", time.Hour, "How long entries stay valid.")
	f.DurationVar(&cfg.Timeout, prefix+".timeout", 500*time.Millisecond, "Per-operation redis timeout.")
}

// RedisCache caches bytes in a redis instance. Backend errors log at debug
// and read as misses so an unavailable redis never fails a query.
type RedisCache struct {
	name   string
	cfg    RedisConfig
	client *redis.Client
	logger log.Logger
}

func NewRedisCache(cfg RedisConfig, name string, logger log.Logger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Endpoint,
		Password:     cfg.Password.String(),
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	return &RedisCache{
		name:   name,
		cfg:    cfg,
		client: client,
		logger: log.With(logger, "cache", name),
	}
}

func (c *RedisCache) Fetch(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			level.Debug(c.logger).Log("msg", "redis fetch failed", "key", key, "err", err)
		}
		observeFetch(c.name, false)
		return nil, false
	}
	observeFetch(c.name, true)
	return val, true
}

func (c *RedisCache) Store(ctx context.Context, key string, val []byte) {
	if err := c.client.Set(ctx, key, val, c.cfg.TTL).Err(); err != nil {
		level.Debug(c.logger).Log("msg", "redis store failed", "key", key, "err", err)
		return
	}
	observeStore(c.name)
}

func (c *RedisCache) Stop() {
	if err := c.client.Close(); err != nil {
		level.Debug(c.logger).Log("msg", "redis close failed", "err", err)
	}
}
