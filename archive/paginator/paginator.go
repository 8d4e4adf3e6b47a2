// Package paginator fetches CDX result pages in parallel batches, merges them
// in page order and runs the capture filter pipeline over the merged stream.
// It is generic over the provider: each strategy supplies a PageFetcher.
package paginator

import (
	"context"
	"flag"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/archive/filter"
	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/pkg/boundedwaitgroup"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

// PageFetcher is the provider side of a paginated CDX query. NumPages probes
// the total page count for the request; FetchPage retrieves one page of
// captures. Both run under the strategy's circuit breaker. FetchPage is
// called from multiple goroutines.
type PageFetcher interface {
	NumPages(ctx context.Context, req source.QueryRequest) (int, error)
	FetchPage(ctx context.Context, req source.QueryRequest, page int) ([]model.Capture, error)
}

type Config struct {
	BatchSize       int           `yaml:"batch_size"`
	MaxWorkers      int           `yaml:"max_workers"`
	InterBatchDelay time.Duration `yaml:"inter_batch_delay"`
}

func (cfg *Config) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.BatchSize = 10
	cfg.MaxWorkers = 8
	cfg.InterBatchDelay = 500 * time.Millisecond
}

// Runner drives paginated queries for one strategy and remembers per-domain
// throughput so later runs can be tuned.
type Runner struct {
	cfg    Config
	source string
	tuner  *Tuner
	logger log.Logger
}

func NewRunner(cfg Config, sourceName string, logger log.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 8
	}
	return &Runner{
		cfg:    cfg,
		source: sourceName,
		tuner:  NewTuner(),
		logger: log.With(logger, "source", sourceName),
	}
}

// Tuner exposes the per-domain performance history for this runner.
func (r *Runner) Tuner() *Tuner {
	return r.tuner
}

type pageResult struct {
	captures []model.Capture
	err      error
}

// Run probes the page count, fetches every requested page in bounded parallel
// batches and returns the filtered captures in (page, line) order. Individual
// page failures are tolerated; Run fails only when the probe fails, the
// context is done, or no page could be fetched at all.
func (r *Runner) Run(ctx context.Context, fetcher PageFetcher, req source.QueryRequest) (*source.QueryResult, error) {
	start := time.Now()

	total, err := fetcher.NumPages(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "probing page count")
	}

	stats := source.QueryStats{Source: r.source, TotalPages: total}
	if total == 0 {
		stats.Duration = time.Since(start)
		return &source.QueryResult{Stats: stats}, nil
	}

	pages := total
	if req.Domain.MaxPages > 0 && req.Domain.MaxPages < pages {
		pages = req.Domain.MaxPages
	}
	pagesToFetch := pages - req.ResumeFromPage
	if pagesToFetch <= 0 {
		stats.Duration = time.Since(start)
		return &source.QueryResult{Stats: stats}, nil
	}

	level.Debug(r.logger).Log("msg", "paginating", "domain", req.Domain.Name, "total_pages", total,
		"pages_to_fetch", pagesToFetch, "resume_from", req.ResumeFromPage)

	results := make([]pageResult, pagesToFetch)
	for batchStart := 0; batchStart < pagesToFetch; batchStart += r.cfg.BatchSize {
		if batchStart > 0 {
			select {
			case <-time.After(r.cfg.InterBatchDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		batchEnd := batchStart + r.cfg.BatchSize
		if batchEnd > pagesToFetch {
			batchEnd = pagesToFetch
		}

		bwg := boundedwaitgroup.New(uint(r.cfg.MaxWorkers))
		for i := batchStart; i < batchEnd; i++ {
			bwg.Add(1)
			go func(i int) {
				defer bwg.Done()
				captures, err := fetcher.FetchPage(ctx, req, req.ResumeFromPage+i)
				results[i] = pageResult{captures: captures, err: err}
			}(i)
		}
		bwg.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	pipeline := filter.NewPipeline(filter.Options{
		MinSize:            req.Domain.MinPageSize,
		MaxSize:            req.Domain.MaxPageSize,
		IncludeAttachments: req.Domain.IncludeAttachments,
	}, req.ExistingDigests)

	var (
		kept     []model.Capture
		firstErr error
	)
	for i, res := range results {
		if res.err != nil {
			stats.PagesFailed++
			if firstErr == nil {
				firstErr = res.err
			}
			metricPageFailures.WithLabelValues(r.source).Inc()
			level.Warn(r.logger).Log("msg", "page fetch failed", "domain", req.Domain.Name,
				"page", req.ResumeFromPage+i, "err", res.err)
			continue
		}
		stats.PagesFetched++
		stats.RecordsFound += len(res.captures)
		// results iterate page-ascending and the pipeline preserves
		// relative order, so kept stays in (page, line) order.
		kept = append(kept, pipeline.Apply(res.captures)...)
	}

	stats.Filter = pipeline.Stats()
	stats.Duration = time.Since(start)

	if stats.PagesFetched == 0 && firstErr != nil {
		return nil, errors.Wrapf(firstErr, "all %d pages failed", pagesToFetch)
	}

	perf := performanceFrom(stats, pagesToFetch)
	r.tuner.Record(req.Domain.Name, perf)
	observeRun(r.source, stats)

	level.Info(r.logger).Log("msg", "pagination complete", "domain", req.Domain.Name,
		"pages_fetched", stats.PagesFetched, "pages_failed", stats.PagesFailed,
		"records_found", stats.RecordsFound, "kept", stats.Filter.Kept,
		"records_per_second", perf.RecordsPerSecond, "duration", stats.Duration)

	return &source.QueryResult{Captures: kept, Stats: stats}, nil
}
