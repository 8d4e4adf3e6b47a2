// Package orchestrator turns archive captures into indexed documents. It
// owns the scrape session workflow, the per-page extraction state machine
// and the retention cleanup loop, and is the only writer of Domain, Session,
// ScrapePage and ResumeState rows.
package orchestrator

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/archive/router"
	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/pkg/indexer"
	"github.com/hindsightlabs/hindsight/pkg/model"
	"github.com/hindsightlabs/hindsight/pkg/pool"
	"github.com/hindsightlabs/hindsight/pkg/store"
)

// CaptureQuerier is the slice of the archive router the orchestrator needs.
type CaptureQuerier interface {
	QueryUnified(ctx context.Context, req source.QueryRequest) (*router.Result, error)
}

// Extractor turns one archived capture into content.
type Extractor interface {
	Extract(ctx context.Context, capture model.Capture) (*model.ExtractedContent, error)
}

// Orchestrator runs scrape sessions on demand and a retention cleanup loop
// on a timer.
type Orchestrator struct {
	services.Service

	cfg         Config
	store       store.Store
	querier     CaptureQuerier
	extractor   Extractor
	indexer     indexer.Indexer
	indexPrefix string

	pool   *pool.Pool
	logger log.Logger

	now func() time.Time
}

func New(cfg Config, st store.Store, querier CaptureQuerier, extractor Extractor, idx indexer.Indexer, indexPrefix string, logger log.Logger) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid orchestrator config")
	}

	o := &Orchestrator{
		cfg:         cfg,
		store:       st,
		querier:     querier,
		extractor:   extractor,
		indexer:     idx,
		indexPrefix: indexPrefix,
		pool:        pool.NewPool(&cfg.Pool),
		logger:      log.With(logger, "component", "orchestrator"),
		now:         time.Now,
	}
	o.Service = services.NewTimerService(cfg.CleanupInterval, nil, o.cleanupIteration, o.stopping)
	return o, nil
}

func (o *Orchestrator) stopping(_ error) error {
	o.pool.Shutdown()
	return nil
}

// cleanupIteration enforces retention: resolved page error logs and completed
// resume cursors older than the retention window are dropped. Store failures
// are logged and retried next interval, never fatal to the service.
func (o *Orchestrator) cleanupIteration(ctx context.Context) error {
	cutoff := o.now().Add(-time.Duration(o.cfg.RetentionDays) * 24 * time.Hour)

	errorLogs, err := o.store.DeletePageErrorLogsOlderThan(ctx, cutoff)
	if err != nil {
		level.Warn(o.logger).Log("msg", "error log cleanup failed", "err", err)
	} else {
		metricCleanupDeleted.WithLabelValues("error_logs").Add(float64(errorLogs))
	}

	cursors, err := o.store.DeleteResumeStatesOlderThan(ctx, cutoff)
	if err != nil {
		level.Warn(o.logger).Log("msg", "resume state cleanup failed", "err", err)
	} else {
		metricCleanupDeleted.WithLabelValues("resume_states").Add(float64(cursors))
	}

	if errorLogs+cursors > 0 {
		level.Info(o.logger).Log("msg", "retention cleanup done", "error_logs", errorLogs, "resume_states", cursors, "cutoff", cutoff)
	}
	return nil
}

// retryDelay grows linearly with the attempt count and is capped.
func (o *Orchestrator) retryDelay(retryCount int) time.Duration {
	d := o.cfg.RetryBaseDelay * time.Duration(retryCount+1)
	if d > o.cfg.RetryMaxDelay {
		d = o.cfg.RetryMaxDelay
	}
	return d
}
