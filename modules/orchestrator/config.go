package orchestrator

import (
	"flag"
	"time"

	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/pool"
	"github.com/hindsightlabs/hindsight/pkg/util"
)

type Config struct {
	MaxRetries        int           `yaml:"max_retries"`
	ExtractBatchSize  int           `yaml:"extract_batch_size"`
	DomainConcurrency int           `yaml:"domain_concurrency"`
	SoftDeadline      time.Duration `yaml:"soft_deadline"`
	HardDeadline      time.Duration `yaml:"hard_deadline"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	RetentionDays     int           `yaml:"retention_days"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`

	Pool pool.Config `yaml:"pool,omitempty"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.MaxRetries = 3
	cfg.ExtractBatchSize = 50
	cfg.DomainConcurrency = 4
	cfg.SoftDeadline = time.Hour + 50*time.Minute
	cfg.HardDeadline = 2 * time.Hour
	cfg.CleanupInterval = 24 * time.Hour
	cfg.RetentionDays = 30
	cfg.RetryBaseDelay = 300 * time.Second
	cfg.RetryMaxDelay = 1800 * time.Second
	cfg.Pool.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "pool"), f)
}

func (cfg *Config) Validate() error {
	if cfg.MaxRetries < 0 {
		return errors.New("max_retries cannot be negative")
	}
	if cfg.ExtractBatchSize <= 0 {
		return errors.New("extract_batch_size must be positive")
	}
	if cfg.DomainConcurrency <= 0 {
		return errors.New("domain_concurrency must be positive")
	}
	if cfg.SoftDeadline <= 0 || cfg.HardDeadline <= 0 {
		return errors.New("deadlines must be positive")
	}
	if cfg.SoftDeadline >= cfg.HardDeadline {
		return errors.New("soft_deadline must be shorter than hard_deadline")
	}
	if cfg.RetentionDays <= 0 {
		return errors.New("retention_days must be positive")
	}
	if cfg.RetryBaseDelay <= 0 {
		return errors.New("retry_base_delay must be positive")
	}
	if cfg.RetryMaxDelay < cfg.RetryBaseDelay {
		return errors.New("retry_max_delay must be at least retry_base_delay")
	}
	return nil
}
