// Package internetarchive is the last resort fallback strategy. It speaks the
// Wayback CDX protocol against a separately configured endpoint, with its own
// breaker and health tracking, so it only absorbs traffic when every other
// strategy has failed.
package internetarchive

import (
	"github.com/go-kit/log"

	"github.com/hindsightlabs/hindsight/archive/paginator"
	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/archive/source/wayback"
	"github.com/hindsightlabs/hindsight/pkg/cache"
	"github.com/hindsightlabs/hindsight/pkg/circuitbreaker"
)

// DefaultEndpoint is the archive.org CDX server reached directly, bypassing
// the web.archive.org frontend the primary strategy uses.
const DefaultEndpoint = "https://web.archive.org/cdx/search/cdx"

// Source is the internet_archive strategy.
type Source = wayback.Source

// New builds the internet_archive strategy. Last resort queries tolerate a
// slower provider, so callers typically configure a longer timeout and a
// smaller page size than for the primary.
func New(cfg source.Config, pagCfg paginator.Config, breaker *circuitbreaker.CircuitBreaker, pages cache.Cache, logger log.Logger) (*Source, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	return wayback.NewNamed(source.NameInternetArchive, cfg, pagCfg, breaker, pages, logger)
}
