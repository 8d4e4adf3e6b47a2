package keymanager

import (
	"flag"
	"time"

	"github.com/grafana/dskit/flagext"
	"github.com/pkg/errors"
)

type Config struct {
	URL                string         `yaml:"url"`
	MasterKey          flagext.Secret `yaml:"master_key"`
	KeyRotationDays    int            `yaml:"key_rotation_days"`
	TenantTokenExpiry  time.Duration  `yaml:"tenant_token_expiry"`
	PublicKeyRateLimit int            `yaml:"public_key_rate_limit"`
	CleanupInterval    time.Duration  `yaml:"cleanup_interval"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.KeyRotationDays = 90
	cfg.TenantTokenExpiry = 24 * time.Hour
	cfg.PublicKeyRateLimit = 1000
	cfg.CleanupInterval = 12 * time.Hour
}

func (cfg *Config) Validate() error {
	if cfg.URL != "" && cfg.MasterKey.String() == "" {
		return errors.New("key manager requires a master key when a url is set")
	}
	if cfg.KeyRotationDays <= 0 {
		return errors.New("key_rotation_days must be positive")
	}
	if cfg.TenantTokenExpiry <= 0 {
		return errors.New("tenant_token_expiry must be positive")
	}
	return nil
}
