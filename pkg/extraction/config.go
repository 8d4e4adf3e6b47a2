package extraction

import (
	"flag"
	"time"

	"github.com/grafana/dskit/flagext"

	"github.com/hindsightlabs/hindsight/pkg/util"
)

// FetcherConfig tunes the raw content HTTP client.
type FetcherConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxContentSize    int64         `yaml:"max_content_size"`
	HedgeRequestsAt   time.Duration `yaml:"hedge_requests_at"`
	HedgeRequestsUpTo int           `yaml:"hedge_requests_up_to"`
}

func (cfg *FetcherConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Timeout = 60 * time.Second
	cfg.MaxContentSize = 50 * 1024 * 1024
	cfg.HedgeRequestsUpTo = 2
}

// HybridConfig controls routing between the structured extraction service and
// the local extractors. StructuredURL empty means the structured path is off
// regardless of Enabled.
type HybridConfig struct {
	Enabled          bool           `yaml:"enabled"`
	StructuredURL    string         `yaml:"structured_url"`
	APIKey           flagext.Secret `yaml:"api_key"`
	Timeout          time.Duration  `yaml:"timeout"`
	MaxConcurrent    int64          `yaml:"max_concurrent"`
	FallbackEnabled  bool           `yaml:"fallback_enabled"`
	MinContentLength int64          `yaml:"min_content_length"`

	// Routing vocabulary. Domains are substring matches on the host,
	// keywords are substring matches on the URL path, TLDs match as
	// suffixes (a trailing dot matches infixes like ".ac." in ac.uk hosts).
	HighValueDomains  []string `yaml:"high_value_domains"`
	ImportantKeywords []string `yaml:"important_keywords"`
	QualityBoostTLDs  []string `yaml:"quality_boost_tlds"`
}

func (cfg *HybridConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Enabled = false
	cfg.Timeout = 90 * time.Second
	cfg.MaxConcurrent = 5
	cfg.FallbackEnabled = true
	cfg.MinContentLength = 1000
	cfg.HighValueDomains = []string{"gov", "edu", "org", "mil"}
	cfg.ImportantKeywords = []string{"research", "report", "analysis", "study", "whitepaper"}
	cfg.QualityBoostTLDs = []string{".gov", ".edu", ".org", ".mil", ".ac."}
}

type Config struct {
	Fetcher FetcherConfig `yaml:"fetcher"`
	Hybrid  HybridConfig  `yaml:"hybrid"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Fetcher.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "fetcher"), f)
	cfg.Hybrid.RegisterFlagsAndApplyDefaults(util.PrefixConfig(prefix, "hybrid"), f)
}
