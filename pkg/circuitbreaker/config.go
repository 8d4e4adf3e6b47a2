package circuitbreaker

import (
	"flag"
	"time"
)

const (
	defaultFailureThreshold  = 5
	defaultSuccessThreshold  = 3
	defaultTimeout           = 60 * time.Second
	defaultMaxTimeout        = 600 * time.Second
	defaultSlidingWindowSize = 10
)

type Config struct {
	FailureThreshold   int           `yaml:"failure_threshold"`
	SuccessThreshold   int           `yaml:"success_threshold"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxTimeout         time.Duration `yaml:"max_timeout"`
	ExponentialBackoff bool          `yaml:"exponential_backoff"`
	SlidingWindowSize  int           `yaml:"sliding_window_size"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.FailureThreshold = defaultFailureThreshold
	cfg.SuccessThreshold = defaultSuccessThreshold
	cfg.Timeout = defaultTimeout
	cfg.MaxTimeout = defaultMaxTimeout
	cfg.ExponentialBackoff = true
	cfg.SlidingWindowSize = defaultSlidingWindowSize
}
