// Package commoncrawl implements the Common Crawl strategies: the index API
// engine (plain, through a residential proxy, or through a rotating proxy
// pool) and the direct segment reader that bypasses the index API entirely.
package commoncrawl

import (
	"context"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/archive/paginator"
	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/pkg/cache"
	"github.com/hindsightlabs/hindsight/pkg/cdx"
	"github.com/hindsightlabs/hindsight/pkg/circuitbreaker"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

// DefaultIndexEndpoint is the public Common Crawl index server.
const DefaultIndexEndpoint = "https://index.commoncrawl.org"

const userAgent = "hindsight"

// Caches are shared by role across the four Common Crawl strategies.
type Caches struct {
	Catalog cache.Cache // crawl catalog bodies
	Pages   cache.Cache // CDX page bodies
}

// Source is the Common Crawl index API engine. One monthly crawl at a time is
// queried through the shared paginator; results merge newest crawl first with
// digests deduplicated across crawls.
type Source struct {
	name     string
	cfg      source.Config
	client   *cdx.Client
	catalog  *catalog
	breaker  *circuitbreaker.CircuitBreaker
	runner   *paginator.Runner
	pages    cache.Cache
	authKind source.ErrorKind
	logger   log.Logger
}

var _ source.Source = (*Source)(nil)

// New builds the plain common_crawl strategy.
func New(cfg source.Config, pagCfg paginator.Config, breaker *circuitbreaker.CircuitBreaker, caches Caches, logger log.Logger) (*Source, error) {
	return newIndexSource(source.NameCommonCrawl, cfg, pagCfg, breaker, caches, nil, source.KindAuth, logger)
}

// NewSmartproxy builds the smartproxy_cc strategy: the same index engine with
// every request tunneled through a residential proxy. Authentication
// failures get their own error kind so the router can skip straight past the
// proxy tier.
func NewSmartproxy(cfg source.Config, proxyCfg SmartproxyConfig, pagCfg paginator.Config, breaker *circuitbreaker.CircuitBreaker, caches Caches, logger log.Logger) (*Source, error) {
	transport, err := proxyCfg.transport()
	if err != nil {
		return nil, err
	}
	return newIndexSource(source.NameSmartproxyCC, cfg, pagCfg, breaker, caches, transport, source.KindSmartproxyAuth, logger)
}

// NewProxyPool builds the proxy_cc strategy over a rotating pool of generic
// proxies.
func NewProxyPool(cfg source.Config, poolCfg ProxyPoolConfig, pagCfg paginator.Config, breaker *circuitbreaker.CircuitBreaker, caches Caches, logger log.Logger) (*Source, error) {
	transport, err := poolCfg.transport()
	if err != nil {
		return nil, err
	}
	return newIndexSource(source.NameProxyCC, cfg, pagCfg, breaker, caches, transport, source.KindAuth, logger)
}

func newIndexSource(name string, cfg source.Config, pagCfg paginator.Config, breaker *circuitbreaker.CircuitBreaker, caches Caches, transport http.RoundTripper, authKind source.ErrorKind, logger log.Logger) (*Source, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultIndexEndpoint
	}

	client, err := cdx.NewClientWithTransport(cdx.ClientConfig{
		Timeout:            cfg.Timeout,
		MaxRetries:         cfg.MaxRetries,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		UserAgent:          userAgent,
	}, transport, logger)
	if err != nil {
		return nil, errors.Wrap(err, "building cdx client")
	}

	logger = log.With(logger, "source", name)
	return &Source{
		name:     name,
		cfg:      cfg,
		client:   client,
		catalog:  newCatalog(cfg.Endpoint, client, caches.Catalog, logger),
		breaker:  breaker,
		runner:   paginator.NewRunner(pagCfg, name, logger),
		pages:    caches.Pages,
		authKind: authKind,
		logger:   logger,
	}, nil
}

func (s *Source) Name() string { return s.name }

func (s *Source) Breaker() *circuitbreaker.CircuitBreaker { return s.breaker }

func (s *Source) IsRetriable(err error) bool {
	if source.IsAuthStatus(err) {
		return false
	}
	return source.Retriable(err)
}

// ClassifyError reports auth failures under the strategy's own kind: a 407
// from the residential proxy means the credentials are bad, not that the
// index is down.
func (s *Source) ClassifyError(err error) source.ErrorKind {
	if source.IsAuthStatus(err) {
		return s.authKind
	}
	return source.Classify(err)
}

// QueryCaptures selects the crawls overlapping the domain's window and pages
// through each in turn, newest first. Digests deduplicate across crawls: a
// page unchanged between two crawls is kept once.
func (s *Source) QueryCaptures(ctx context.Context, req source.QueryRequest) (*source.QueryResult, error) {
	start := time.Now()

	var crawls []crawlInfo
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		crawls, err = s.catalog.crawlsInWindow(ctx, req.Domain.FromDate, req.Domain.ToDate)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &source.QueryResult{Stats: source.QueryStats{Source: s.name}}
	if len(crawls) == 0 {
		level.Info(s.logger).Log("msg", "no crawls overlap the requested window",
			"domain", req.Domain.Name, "from", req.Domain.FromDate, "to", req.Domain.ToDate)
		return result, nil
	}

	seen := make(map[string]struct{}, len(req.ExistingDigests))
	for d := range req.ExistingDigests {
		seen[d] = struct{}{}
	}

	var lastErr error
	for _, crawl := range crawls {
		crawlReq := req
		crawlReq.ExistingDigests = seen

		res, err := s.runner.Run(ctx, &crawlFetcher{source: s, api: crawl.CDXAPI}, crawlReq)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			level.Warn(s.logger).Log("msg", "crawl query failed", "crawl", crawl.ID, "err", err)
			continue
		}

		for _, c := range res.Captures {
			seen[c.Digest] = struct{}{}
		}
		result.Captures = append(result.Captures, res.Captures...)
		mergeStats(&result.Stats, res.Stats)
	}

	result.Stats.Duration = time.Since(start)
	if result.Stats.PagesFetched == 0 && lastErr != nil {
		return nil, errors.Wrap(lastErr, "querying crawls")
	}
	return result, nil
}

// NumPages probes the page count of every crawl overlapping the domain's
// window and sums them.
func (s *Source) NumPages(ctx context.Context, req source.QueryRequest) (int, error) {
	var crawls []crawlInfo
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		crawls, err = s.catalog.crawlsInWindow(ctx, req.Domain.FromDate, req.Domain.ToDate)
		return err
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, crawl := range crawls {
		n, err := (&crawlFetcher{source: s, api: crawl.CDXAPI}).NumPages(ctx, req)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// Tuner exposes per-domain pagination history.
func (s *Source) Tuner() *paginator.Tuner { return s.runner.Tuner() }

func (s *Source) get(ctx context.Context, url string) ([]byte, error) {
	if s.pages != nil {
		if body, ok := s.pages.Fetch(ctx, url); ok {
			return body, nil
		}
	}

	var body []byte
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		body, err = s.client.Get(ctx, url)
		return err
	})
	if err != nil {
		return nil, err
	}

	if s.pages != nil {
		s.pages.Store(ctx, url, body)
	}
	return body, nil
}

func (s *Source) pageSize(d model.Domain) int {
	if d.PageSize > 0 {
		return d.PageSize
	}
	if rec, ok := s.runner.Tuner().OptimalSettings(d.Name); ok {
		return rec.PageSize
	}
	return s.cfg.PageSize
}

// crawlFetcher pages one monthly crawl's CDX endpoint.
type crawlFetcher struct {
	source *Source
	api    string
}

var _ paginator.PageFetcher = (*crawlFetcher)(nil)

func (f *crawlFetcher) NumPages(ctx context.Context, req source.QueryRequest) (int, error) {
	q := source.BuildQuery(req.Domain, f.source.pageSize(req.Domain))
	q.ShowNumPages = true

	body, err := f.source.get(ctx, q.URL(f.api))
	if err != nil {
		return 0, err
	}
	return cdx.ParseNumPages(body)
}

func (f *crawlFetcher) FetchPage(ctx context.Context, req source.QueryRequest, page int) ([]model.Capture, error) {
	q := source.BuildQuery(req.Domain, f.source.pageSize(req.Domain))
	q.Page = page

	body, err := f.source.get(ctx, q.URL(f.api))
	if err != nil {
		return nil, err
	}

	captures, err := cdx.ParseRows(body)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing page %d", page)
	}

	kept := make([]model.Capture, 0, len(captures))
	for _, c := range captures {
		if c.StatusCode != http.StatusOK {
			continue
		}
		kept = append(kept, c)
	}
	return source.DropStaticAssets(kept), nil
}

func mergeStats(dst *source.QueryStats, src source.QueryStats) {
	dst.TotalPages += src.TotalPages
	dst.PagesFetched += src.PagesFetched
	dst.PagesFailed += src.PagesFailed
	dst.RecordsFound += src.RecordsFound
	dst.Filter.SizeFiltered += src.Filter.SizeFiltered
	dst.Filter.AttachmentFiltered += src.Filter.AttachmentFiltered
	dst.Filter.ListPagesFiltered += src.Filter.ListPagesFiltered
	dst.Filter.DuplicateFiltered += src.Filter.DuplicateFiltered
	dst.Filter.Kept += src.Filter.Kept
}
