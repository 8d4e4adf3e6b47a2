// Package source defines the archive source strategy contract shared by the
// concrete providers and the router: the query types, the error taxonomy and
// the classification helpers every strategy uses.
package source

import (
	"context"
	"flag"
	"time"

	"github.com/hindsightlabs/hindsight/archive/filter"
	"github.com/hindsightlabs/hindsight/pkg/circuitbreaker"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

// Registered strategy names, in default fallback order.
const (
	NameWayback         = "wayback_machine"
	NameCommonCrawl     = "common_crawl"
	NameSmartproxyCC    = "smartproxy_cc"
	NameProxyCC         = "proxy_cc"
	NameDirectCC        = "direct_cc"
	NameInternetArchive = "internet_archive"
)

// ErrorKind is the stable taxonomy used for metrics and fallback decisions.
type ErrorKind string

const (
	KindTransport           ErrorKind = "transport"
	KindRateLimit           ErrorKind = "rate_limit"
	KindAuth                ErrorKind = "auth"
	KindSmartproxyAuth      ErrorKind = "smartproxy_auth_error"
	KindProviderUnavailable ErrorKind = "provider_unavailable"
	KindStrategyTimeout     ErrorKind = "strategy_timeout"
	KindUnexpected          ErrorKind = "unexpected"
)

// QueryRequest asks a strategy for every capture of a domain within its date
// window. ResumeFromPage skips pages already ingested by an interrupted run;
// ResumeKey carries the provider cursor saved with it, for providers that
// support one. ExistingDigests seeds de-duplication with content already in
// the store.
type QueryRequest struct {
	Domain          model.Domain
	ResumeFromPage  int
	ResumeKey       string
	ExistingDigests map[string]struct{}
}

// QueryStats reports what one strategy run saw and kept.
type QueryStats struct {
	Source       string        `json:"source"`
	TotalPages   int           `json:"total_pages"`
	PagesFetched int           `json:"pages_fetched"`
	PagesFailed  int           `json:"pages_failed"`
	RecordsFound int           `json:"records_found"`
	Filter       filter.Stats  `json:"filter"`
	Duration     time.Duration `json:"duration"`
}

// QueryResult is the filtered capture set plus run statistics.
type QueryResult struct {
	Captures []model.Capture
	Stats    QueryStats
}

// Source is one archive provider strategy. Implementations run all provider
// I/O under their circuit breaker; the router never talks to a provider
// directly.
type Source interface {
	Name() string
	QueryCaptures(ctx context.Context, req QueryRequest) (*QueryResult, error)
	IsRetriable(err error) bool
	ClassifyError(err error) ErrorKind
	Breaker() *circuitbreaker.CircuitBreaker
}

// Config is the per-source block shared by the wayback, common crawl and
// internet archive configurations.
type Config struct {
	Enabled            bool          `yaml:"enabled"`
	Endpoint           string        `yaml:"endpoint"`
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	PageSize           int           `yaml:"page_size"`
	MaxPages           int           `yaml:"max_pages"`
	IncludeAttachments bool          `yaml:"include_attachments"`
	Priority           int           `yaml:"priority"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Enabled = true
	cfg.Timeout = 30 * time.Second
	cfg.MaxRetries = 3
	cfg.PageSize = 1000
	cfg.RateLimitPerSecond = 2
}

// DropStaticAssets removes captures whose URL names a stylesheet, script,
// image or font. Strategies apply this at the provider boundary so assets
// never reach the filter pipeline.
func DropStaticAssets(captures []model.Capture) []model.Capture {
	kept := captures[:0]
	for _, c := range captures {
		if filter.IsStaticAsset(c.OriginalURL) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}
