// Package wayback queries the Wayback Machine CDX API. It is the primary
// archive strategy; the internet_archive last resort shares this
// implementation under a different name, endpoint and breaker.
package wayback

import (
	"context"
	"net/http"

	"github.com/go-kit/log"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/hindsightlabs/hindsight/archive/paginator"
	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/pkg/cache"
	"github.com/hindsightlabs/hindsight/pkg/cdx"
	"github.com/hindsightlabs/hindsight/pkg/circuitbreaker"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

// DefaultEndpoint is the public Wayback Machine CDX server.
const DefaultEndpoint = "https://web.archive.org/cdx/search/cdx"

const userAgent = "hindsight"

// Providers only honor resume cursors on queries that paginate widely.
const resumeKeyMinPages = 50

// Source is a paginated CDX strategy over the Wayback protocol.
type Source struct {
	name    string
	cfg     source.Config
	client  *cdx.Client
	breaker *circuitbreaker.CircuitBreaker
	runner  *paginator.Runner
	pages   cache.Cache // optional CDX page body cache
	logger  log.Logger

	lastNumPages atomic.Int32
}

var _ source.Source = (*Source)(nil)
var _ paginator.PageFetcher = (*Source)(nil)

// New builds the wayback_machine strategy. pages may be nil to disable
// response caching.
func New(cfg source.Config, pagCfg paginator.Config, breaker *circuitbreaker.CircuitBreaker, pages cache.Cache, logger log.Logger) (*Source, error) {
	return NewNamed(source.NameWayback, cfg, pagCfg, breaker, pages, logger)
}

// NewNamed builds the strategy under a custom registered name.
func NewNamed(name string, cfg source.Config, pagCfg paginator.Config, breaker *circuitbreaker.CircuitBreaker, pages cache.Cache, logger log.Logger) (*Source, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}

	client, err := cdx.NewClient(cdx.ClientConfig{
		Timeout:            cfg.Timeout,
		MaxRetries:         cfg.MaxRetries,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		UserAgent:          userAgent,
	}, logger)
	if err != nil {
		return nil, errors.Wrap(err, "building cdx client")
	}

	return &Source{
		name:    name,
		cfg:     cfg,
		client:  client,
		breaker: breaker,
		runner:  paginator.NewRunner(pagCfg, name, logger),
		pages:   pages,
		logger:  logger,
	}, nil
}

func (s *Source) Name() string { return s.name }

func (s *Source) Breaker() *circuitbreaker.CircuitBreaker { return s.breaker }

func (s *Source) IsRetriable(err error) bool { return source.Retriable(err) }

func (s *Source) ClassifyError(err error) source.ErrorKind { return source.Classify(err) }

// QueryCaptures runs the full paginated query for the domain through the
// shared paginator.
func (s *Source) QueryCaptures(ctx context.Context, req source.QueryRequest) (*source.QueryResult, error) {
	return s.runner.Run(ctx, s, req)
}

// Tuner exposes per-domain pagination history.
func (s *Source) Tuner() *paginator.Tuner { return s.runner.Tuner() }

// NumPages probes the total page count for the query.
func (s *Source) NumPages(ctx context.Context, req source.QueryRequest) (int, error) {
	q := s.query(req)
	q.ShowNumPages = true

	body, err := s.get(ctx, q)
	if err != nil {
		return 0, err
	}

	n, err := cdx.ParseNumPages(body)
	if err != nil {
		return 0, err
	}
	s.lastNumPages.Store(int32(n))
	return n, nil
}

// FetchPage retrieves one result page and normalizes it to captures.
func (s *Source) FetchPage(ctx context.Context, req source.QueryRequest, page int) ([]model.Capture, error) {
	q := s.query(req)
	q.Page = page
	if req.ResumeKey != "" && s.lastNumPages.Load() > resumeKeyMinPages {
		q.ResumeKey = req.ResumeKey
	}

	body, err := s.get(ctx, q)
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

func (s *Source) get(ctx context.Context, q cdx.Query) ([]byte, error) {
	url := q.URL(s.cfg.Endpoint)
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

// query maps the domain spec onto the provider grammar.
func (s *Source) query(req source.QueryRequest) cdx.Query {
	return source.BuildQuery(req.Domain, s.pageSize(req.Domain))
}

// pageSize prefers an explicit domain setting, then tuned history, then the
// configured default.
func (s *Source) pageSize(d model.Domain) int {
	if d.PageSize > 0 {
		return d.PageSize
	}
	if rec, ok := s.runner.Tuner().OptimalSettings(d.Name); ok {
		return rec.PageSize
	}
	return s.cfg.PageSize
}
