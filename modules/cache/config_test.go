package cache

import (
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/require"

	"github.com/hindsightlabs/hindsight/pkg/cache"
)

func newTestLogger() log.Logger {
	return log.NewNopLogger()
}

func TestConfigValidation(t *testing.T) {
	tcs := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name: "no caching is valid",
			cfg:  &Config{Backend: BackendNone},
		},
		{
			name: "memory is valid",
			cfg:  &Config{Backend: BackendMemory},
		},
		{
			name:    "redis requires an endpoint",
			cfg:     &Config{Backend: BackendRedis},
			wantErr: true,
		},
		{
			name: "redis with endpoint",
			cfg: &Config{
				Backend: BackendRedis,
				Redis:   cache.RedisConfig{Endpoint: "localhost:6379"},
			},
		},
		{
			name:    "unknown backend rejected",
			cfg:     &Config{Backend: "memcached"},
			wantErr: true,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestProviderSharesOneBackend(t *testing.T) {
	p, err := NewProvider(&Config{Backend: BackendMemory}, newTestLogger())
	require.NoError(t, err)

	a := p.CacheFor(cache.RoleCDXPages)
	b := p.CacheFor(cache.RoleCrawlCatalog)
	require.NotNil(t, a)
	require.Same(t, a, b)
}

func TestProviderNoneBackend(t *testing.T) {
	p, err := NewProvider(&Config{Backend: BackendNone}, newTestLogger())
	require.NoError(t, err)
	require.Nil(t, p.CacheFor(cache.RoleCDXPages))
}
