package cache

import (
	"flag"

	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/cache"
	"github.com/hindsightlabs/hindsight/pkg/util"
)

const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Backend string             `yaml:"backend"`
	Memory  cache.MemoryConfig `yaml:"memory"`
	Redis   cache.RedisConfig  `yaml:"redis"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Backend, util.PrefixConfig(prefix, "backend"), BackendMemory, "Cache backend to use. (memory, redis, none)")
	cfg.Memory.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "memory"), f)
	cfg.Redis.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "redis"), f)
}

func (cfg *Config) Validate() error {
	switch cfg.Backend {
	case BackendNone, BackendMemory:
	case BackendRedis:
		if cfg.Redis.Endpoint == "" {
			return errors.New("redis cache requires an endpoint")
		}
	default:
		return errors.Errorf("unknown cache backend %q", cfg.Backend)
	}
	return nil
}
