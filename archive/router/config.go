package router

import (
	"flag"
	"time"

	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/archive/paginator"
	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/archive/source/commoncrawl"
	"github.com/hindsightlabs/hindsight/pkg/circuitbreaker"
	"github.com/hindsightlabs/hindsight/pkg/util"
)

// Primary source selection.
const (
	SourceWayback     = "wayback"
	SourceCommonCrawl = "common_crawl"
	SourceHybrid      = "hybrid"
)

// Fallback policies.
const (
	FallbackImmediate         = "immediate"
	FallbackRetryThenFallback = "retry_then_fallback"
	FallbackCircuitBreaker    = "circuit_breaker"
)

type Config struct {
	Source              string        `yaml:"source"`
	FallbackEnabled     bool          `yaml:"fallback_enabled"`
	FallbackStrategy    string        `yaml:"fallback_strategy"`
	FallbackDelay       time.Duration `yaml:"fallback_delay"`
	ExponentialBackoff  bool          `yaml:"exponential_backoff"`
	MaxFallbackDelay    time.Duration `yaml:"max_fallback_delay"`
	MaxFallbackAttempts int           `yaml:"max_fallback_attempts"`
	PerStrategyTimeout  time.Duration `yaml:"per_strategy_timeout"`

	EnableSmartproxyFallback bool `yaml:"enable_smartproxy_fallback"`
	EnableProxyFallback      bool `yaml:"enable_proxy_fallback"`
	EnableDirectFallback     bool `yaml:"enable_direct_fallback"`
	EnableIAFallback         bool `yaml:"enable_ia_fallback"`

	Wayback         source.Config `yaml:"wayback"`
	CommonCrawl     source.Config `yaml:"common_crawl"`
	InternetArchive source.Config `yaml:"internet_archive"`

	Smartproxy commoncrawl.SmartproxyConfig `yaml:"smartproxy"`
	Proxy      commoncrawl.ProxyPoolConfig  `yaml:"proxy"`
	Direct     commoncrawl.DirectConfig     `yaml:"direct"`

	Breaker   circuitbreaker.Config `yaml:"breaker"`
	Paginator paginator.Config      `yaml:"paginator"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Source = SourceWayback
	cfg.FallbackEnabled = true
	cfg.FallbackStrategy = FallbackRetryThenFallback
	cfg.FallbackDelay = 2 * time.Second
	cfg.ExponentialBackoff = true
	cfg.MaxFallbackDelay = 30 * time.Second
	cfg.MaxFallbackAttempts = 5
	cfg.PerStrategyTimeout = 75 * time.Second
	cfg.EnableSmartproxyFallback = true
	cfg.EnableProxyFallback = true
	cfg.EnableDirectFallback = true
	cfg.EnableIAFallback = true

	cfg.Wayback.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "wayback"), f)
	cfg.CommonCrawl.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "common-crawl"), f)
	cfg.InternetArchive.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "internet-archive"), f)
	cfg.Smartproxy.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "smartproxy"), f)
	cfg.Proxy.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "proxy"), f)
	cfg.Direct.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "direct"), f)
	cfg.Breaker.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "breaker"), f)
	cfg.Paginator.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "paginator"), f)

	// lowest number wins; the crawl family shares common_crawl's slot
	cfg.Wayback.Priority = 1
	cfg.CommonCrawl.Priority = 2
	cfg.InternetArchive.Priority = 3
}

func (cfg *Config) Validate() error {
	switch cfg.Source {
	case SourceWayback, SourceCommonCrawl, SourceHybrid:
	default:
		return errors.Errorf("unknown archive source %q", cfg.Source)
	}

	switch cfg.FallbackStrategy {
	case FallbackImmediate, FallbackRetryThenFallback, FallbackCircuitBreaker:
	default:
		return errors.Errorf("unknown fallback strategy %q", cfg.FallbackStrategy)
	}

	if cfg.Source == SourceWayback && !cfg.Wayback.Enabled {
		return errors.New("wayback selected as primary source but disabled")
	}
	if cfg.Source == SourceCommonCrawl && !cfg.CommonCrawl.Enabled {
		return errors.New("common_crawl selected as primary source but disabled")
	}
	if cfg.MaxFallbackAttempts < 1 {
		return errors.New("max_fallback_attempts must be at least 1")
	}

	return nil
}
