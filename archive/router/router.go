// Package router fans a capture query out over the configured archive
// strategies in priority order, falling back on classified failures until one
// succeeds or the chain is exhausted.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/archive/source/commoncrawl"
	"github.com/hindsightlabs/hindsight/archive/source/internetarchive"
	"github.com/hindsightlabs/hindsight/archive/source/wayback"
	"github.com/hindsightlabs/hindsight/pkg/cache"
	"github.com/hindsightlabs/hindsight/pkg/circuitbreaker"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

var tracer = otel.Tracer("archive/router")

// Attempt is one strategy call made while answering a query.
type Attempt struct {
	Source   string           `json:"source"`
	Kind     source.ErrorKind `json:"kind,omitempty"`
	Err      string           `json:"error,omitempty"`
	Records  int              `json:"records"`
	Duration time.Duration    `json:"duration"`
}

// Result is the first successful strategy answer plus the attempt trail that
// led to it.
type Result struct {
	Captures []model.Capture   `json:"captures"`
	Stats    source.QueryStats `json:"stats"`
	Attempts []Attempt         `json:"attempts"`
}

// AllSourcesFailedError reports a query no strategy could answer.
type AllSourcesFailedError struct {
	Attempts []Attempt
}

func (e *AllSourcesFailedError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Source, a.Kind))
	}
	return "all archive sources failed: " + strings.Join(parts, "; ")
}

type entry struct {
	src      source.Source
	priority int
}

// Router owns the strategy chain. Attempts are strictly sequential: one
// strategy in flight per query.
type Router struct {
	cfg     Config
	entries []entry
	metrics map[string]*SourceMetrics
	logger  log.Logger
}

// New builds every enabled strategy with its own circuit breaker and wires
// the shared caches by role.
func New(cfg Config, caches cache.Provider, logger log.Logger) (*Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		reg      []entry
		catalog  = cacheFor(caches, cache.RoleCrawlCatalog)
		cdxPages = cacheFor(caches, cache.RoleCDXPages)
		ccCaches = commoncrawl.Caches{Catalog: catalog, Pages: cdxPages}
		breaker  = func(name string) *circuitbreaker.CircuitBreaker {
			return circuitbreaker.New(name, cfg.Breaker, logger)
		}
	)

	if cfg.Wayback.Enabled {
		wb, err := wayback.New(cfg.Wayback, cfg.Paginator, breaker(source.NameWayback), cdxPages, logger)
		if err != nil {
			return nil, errors.Wrap(err, "building wayback source")
		}
		reg = append(reg, entry{wb, cfg.Wayback.Priority})
	}

	if cfg.CommonCrawl.Enabled {
		cc, err := commoncrawl.New(cfg.CommonCrawl, cfg.Paginator, breaker(source.NameCommonCrawl), ccCaches, logger)
		if err != nil {
			return nil, errors.Wrap(err, "building common crawl source")
		}
		reg = append(reg, entry{cc, cfg.CommonCrawl.Priority})

		if cfg.EnableSmartproxyFallback && cfg.Smartproxy.Enabled() {
			sp, err := commoncrawl.NewSmartproxy(cfg.CommonCrawl, cfg.Smartproxy, cfg.Paginator, breaker(source.NameSmartproxyCC), ccCaches, logger)
			if err != nil {
				return nil, errors.Wrap(err, "building smartproxy source")
			}
			reg = append(reg, entry{sp, cfg.CommonCrawl.Priority})
		}

		if cfg.EnableProxyFallback && cfg.Proxy.Enabled() {
			pp, err := commoncrawl.NewProxyPool(cfg.CommonCrawl, cfg.Proxy, cfg.Paginator, breaker(source.NameProxyCC), ccCaches, logger)
			if err != nil {
				return nil, errors.Wrap(err, "building proxy pool source")
			}
			reg = append(reg, entry{pp, cfg.CommonCrawl.Priority})
		}

		if cfg.EnableDirectFallback {
			d, err := commoncrawl.NewDirect(cfg.CommonCrawl, cfg.Direct, breaker(source.NameDirectCC), catalog, logger)
			if err != nil {
				return nil, errors.Wrap(err, "building direct source")
			}
			reg = append(reg, entry{d, cfg.CommonCrawl.Priority})
		}
	}

	if cfg.EnableIAFallback && cfg.InternetArchive.Enabled {
		ia, err := internetarchive.New(cfg.InternetArchive, cfg.Paginator, breaker(source.NameInternetArchive), cdxPages, logger)
		if err != nil {
			return nil, errors.Wrap(err, "building internet archive source")
		}
		reg = append(reg, entry{ia, cfg.InternetArchive.Priority})
	}

	return newRouter(cfg, reg, logger)
}

func newRouter(cfg Config, reg []entry, logger log.Logger) (*Router, error) {
	if len(reg) == 0 {
		return nil, errors.New("no archive sources enabled")
	}

	metrics := make(map[string]*SourceMetrics, len(reg))
	for _, e := range reg {
		metrics[e.src.Name()] = newSourceMetrics()
	}

	return &Router{
		cfg:     cfg,
		entries: reg,
		metrics: metrics,
		logger:  log.With(logger, "component", "archive-router"),
	}, nil
}

func cacheFor(p cache.Provider, role cache.Role) cache.Cache {
	if p == nil {
		return nil
	}
	return p.CacheFor(role)
}

// QueryUnified walks the strategy chain until one source answers. Each
// attempt runs under the per-strategy timeout; between attempts the router
// sleeps the fallback delay, doubled per failure when exponential backoff is
// on and capped at the max delay.
func (r *Router) QueryUnified(ctx context.Context, req source.QueryRequest) (*Result, error) {
	ctx, span := tracer.Start(ctx, "Router.QueryUnified", trace.WithAttributes(
		attribute.String("domain", req.Domain.Name),
	))
	defer span.End()

	sources := r.chain()
	if max := r.cfg.MaxFallbackAttempts; max > 0 && len(sources) > max {
		sources = sources[:max]
	}

	var (
		attempts []Attempt
		delay    = r.cfg.FallbackDelay
		first    = true
	)

	for i, src := range sources {
		retried := false

		for {
			if !first {
				if err := r.wait(ctx, delay); err != nil {
					return nil, err
				}
				if r.cfg.ExponentialBackoff {
					delay *= 2
					if max := r.cfg.MaxFallbackDelay; max > 0 && delay > max {
						delay = max
					}
				}
			}
			first = false

			res, dur, err := r.queryOne(ctx, src, req)
			metricAttemptSeconds.WithLabelValues(src.Name()).Observe(dur.Seconds())

			if err == nil {
				r.metrics[src.Name()].recordSuccess(dur)
				metricAttempts.WithLabelValues(src.Name(), "success").Inc()
				attempts = append(attempts, Attempt{Source: src.Name(), Records: len(res.Captures), Duration: dur})

				level.Info(r.logger).Log("msg", "archive query answered",
					"source", src.Name(), "records", len(res.Captures), "attempts", len(attempts), "duration", dur)
				return &Result{Captures: res.Captures, Stats: res.Stats, Attempts: attempts}, nil
			}

			kind := r.classify(ctx, src, err)
			r.metrics[src.Name()].recordFailure(dur, kind)
			metricAttempts.WithLabelValues(src.Name(), string(kind)).Inc()
			attempts = append(attempts, Attempt{Source: src.Name(), Kind: kind, Err: err.Error(), Duration: dur})

			level.Warn(r.logger).Log("msg", "archive source failed",
				"source", src.Name(), "kind", kind, "err", err)

			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if !r.retrySame(src, err, retried) {
				break
			}
			retried = true
		}

		if i < len(sources)-1 {
			metricFallbacks.Inc()
		}
	}

	return nil, &AllSourcesFailedError{Attempts: attempts}
}

func (r *Router) queryOne(ctx context.Context, src source.Source, req source.QueryRequest) (*source.QueryResult, time.Duration, error) {
	if r.cfg.PerStrategyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.PerStrategyTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := src.QueryCaptures(ctx, req)
	return res, time.Since(start), err
}

// classify folds the per-strategy deadline into its own kind: the provider
// did not fail, it ran out of its time slice.
func (r *Router) classify(ctx context.Context, src source.Source, err error) source.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return source.KindStrategyTimeout
	}
	return src.ClassifyError(err)
}

func (r *Router) retrySame(src source.Source, err error, retried bool) bool {
	switch r.cfg.FallbackStrategy {
	case FallbackRetryThenFallback:
		return !retried && src.IsRetriable(err) && !src.Breaker().IsOpen()
	case FallbackCircuitBreaker:
		return !src.Breaker().IsOpen()
	default:
		return false
	}
}

func (r *Router) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// chain returns the ordered strategies for one query. With fallback disabled
// only the primary runs. Hybrid re-orders per query on observed health.
func (r *Router) chain() []source.Source {
	if r.cfg.Source == SourceHybrid {
		return r.hybridChain()
	}

	if !r.cfg.FallbackEnabled {
		name := source.NameWayback
		if r.cfg.Source == SourceCommonCrawl {
			name = source.NameCommonCrawl
		}
		for _, e := range r.entries {
			if e.src.Name() == name {
				return []source.Source{e.src}
			}
		}
		return nil
	}

	out := make([]source.Source, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.src)
	}
	return out
}

func (r *Router) hybridChain() []source.Source {
	ordered := make([]entry, len(r.entries))
	copy(ordered, r.entries)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].priority != ordered[j].priority {
			return ordered[i].priority < ordered[j].priority
		}
		return r.metrics[ordered[i].src.Name()].SuccessRate() > r.metrics[ordered[j].src.Name()].SuccessRate()
	})

	out := make([]source.Source, 0, len(ordered))
	for _, e := range ordered {
		out = append(out, e.src)
	}
	return out
}

// Healthy grades the chain: healthy when every source has a closed breaker
// and a passing success rate, degraded when at least one does, otherwise
// unhealthy.
func (r *Router) Healthy() Health {
	healthy := 0
	for _, e := range r.entries {
		if !e.src.Breaker().IsOpen() && r.metrics[e.src.Name()].IsHealthy() {
			healthy++
		}
	}

	switch {
	case healthy == len(r.entries):
		return HealthHealthy
	case healthy > 0:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// Status reports every source's lifetime metrics and breaker state, in chain
// order.
func (r *Router) Status() []MetricsSnapshot {
	out := make([]MetricsSnapshot, 0, len(r.entries))
	for _, e := range r.entries {
		snap := r.metrics[e.src.Name()].snapshot(e.src.Name())
		st := e.src.Breaker().Status()
		snap.BreakerState = st.State.String()
		snap.Healthy = snap.Healthy && st.State != circuitbreaker.StateOpen
		out = append(out, snap)
	}
	return out
}

// Sources lists the configured strategy names in chain order.
func (r *Router) Sources() []string {
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.src.Name())
	}
	return out
}

// PageProbe is one source's answer to a page count probe.
type PageProbe struct {
	Source string `json:"source"`
	Pages  int    `json:"pages"`
	Error  string `json:"error,omitempty"`
}

type pageProber interface {
	NumPages(ctx context.Context, req source.QueryRequest) (int, error)
}

// ProbePages asks every strategy in the chain how many index pages the query
// spans, without fetching any captures. Sources that cannot answer the probe
// are skipped; a failing probe is reported, not fatal.
func (r *Router) ProbePages(ctx context.Context, req source.QueryRequest) []PageProbe {
	var out []PageProbe
	for _, src := range r.chain() {
		prober, ok := src.(pageProber)
		if !ok {
			continue
		}

		probe := PageProbe{Source: src.Name()}
		n, err := prober.NumPages(ctx, req)
		if err != nil {
			probe.Error = err.Error()
		} else {
			probe.Pages = n
		}
		out = append(out, probe)
	}
	return out
}
