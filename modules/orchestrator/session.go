package orchestrator

import (
	"context"

	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hindsightlabs/hindsight/archive/source"
	"github.com/hindsightlabs/hindsight/pkg/boundedwaitgroup"
	"github.com/hindsightlabs/hindsight/pkg/model"
	"github.com/hindsightlabs/hindsight/pkg/store"
)

var tracer = otel.Tracer("modules/orchestrator")

// StartProjectScrape runs one scrape session across the project's active
// domains and blocks until every domain has finished. The returned session
// carries the outcome; an error return means the run itself could not be
// driven, not that pages failed.
func (o *Orchestrator) StartProjectScrape(ctx context.Context, projectID string) (*model.Session, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.StartProjectScrape", trace.WithAttributes(
		attribute.String("project", projectID),
	))
	defer span.End()

	project, err := o.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, errors.Wrap(err, "loading project")
	}

	sess := &model.Session{
		ID:        uuid.NewString(),
		ProjectID: project.ID,
		Status:    model.SessionRunning,
		StartedAt: o.now(),
	}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return nil, errors.Wrap(err, "creating session")
	}
	metricActiveSessions.Inc()
	defer metricActiveSessions.Dec()

	level.Info(o.logger).Log("msg", "scrape session started", "session", sess.ID, "project", project.ID)

	domains, err := o.store.ListActiveDomains(ctx, project.ID)
	if err != nil {
		ferr := errors.Wrap(err, "listing active domains")
		if _, serr := o.finalizeSession(ctx, sess.ID, ferr); serr != nil {
			level.Warn(o.logger).Log("msg", "failed to finalize session", "session", sess.ID, "err", serr)
		}
		return nil, ferr
	}

	// Domains run concurrently but bounded; each failure is terminal for its
	// domain only. The session keeps going so healthy domains finish.
	domainErrs := make([]error, len(domains))
	bwg := boundedwaitgroup.New(uint(o.cfg.DomainConcurrency))
	for i := range domains {
		bwg.Add(1)
		go func(i int) {
			defer bwg.Done()
			domainErrs[i] = o.runDomain(ctx, sess.ID, domains[i].ID)
		}(i)
	}
	bwg.Wait()

	var firstErr error
	for i, derr := range domainErrs {
		if derr == nil {
			continue
		}
		if firstErr == nil {
			firstErr = errors.Wrapf(derr, "domain %s", domains[i].ID)
		}
		level.Error(o.logger).Log("msg", "domain scrape failed", "session", sess.ID, "domain", domains[i].ID, "err", derr)
	}

	return o.finalizeSession(ctx, sess.ID, firstErr)
}

func (o *Orchestrator) finalizeSession(ctx context.Context, sessionID string, runErr error) (*model.Session, error) {
	completedAt := o.now()
	status := model.SessionCompleted
	if runErr != nil {
		status = model.SessionFailed
	}

	if err := o.store.UpdateSession(ctx, sessionID, func(s *model.Session) error {
		s.Status = status
		s.CompletedAt = &completedAt
		if runErr != nil {
			s.ErrorMessage = runErr.Error()
		}
		return nil
	}); err != nil {
		return nil, errors.Wrap(err, "finalizing session")
	}

	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := o.store.UpdateProject(ctx, sess.ProjectID, func(p *model.Project) error {
		p.LastScrapedAt = &completedAt
		return nil
	}); err != nil {
		level.Warn(o.logger).Log("msg", "failed to stamp project", "project", sess.ProjectID, "err", err)
	}

	metricSessions.WithLabelValues(string(status)).Inc()
	level.Info(o.logger).Log("msg", "scrape session finished", "session", sessionID, "status", status,
		"total", sess.TotalURLs, "completed", sess.CompletedURLs, "failed", sess.FailedURLs)
	return sess, nil
}

// runDomain drives one domain: discovery through the archive router, page
// rows for every new digest, then extraction on the worker pool.
func (o *Orchestrator) runDomain(ctx context.Context, sessionID, domainID string) error {
	domain, err := o.store.GetDomain(ctx, domainID)
	if err != nil {
		return errors.Wrap(err, "loading domain")
	}

	if err := o.store.UpdateDomain(ctx, domainID, func(d *model.Domain) error {
		d.Status = model.DomainActive
		return nil
	}); err != nil {
		return errors.Wrap(err, "marking domain active")
	}

	signature := model.QuerySignature(domain)
	cursor, err := o.store.GetOrCreateResumeState(ctx, domainID, sessionID, signature)
	if err != nil {
		return o.failDomain(ctx, domainID, "", errors.Wrap(err, "loading resume cursor"))
	}

	result, err := o.querier.QueryUnified(ctx, source.QueryRequest{
		Domain:         *domain,
		ResumeFromPage: cursor.CurrentPage,
	})
	if err != nil {
		return o.failDomain(ctx, domainID, cursor.ID, errors.Wrap(err, "querying captures"))
	}

	stats := result.Stats
	if err := o.store.UpdateResumeState(ctx, cursor.ID, func(rs *model.ResumeState) error {
		rs.TotalPages = stats.TotalPages
		rs.TotalRecordsFound += stats.RecordsFound
		if stats.PagesFailed == 0 {
			rs.CurrentPage = stats.TotalPages
			rs.Status = model.ResumeCompleted
		}
		// a partial fetch keeps the cursor in place so the next run covers
		// the window again; digest dedup keeps that cheap
		return nil
	}); err != nil {
		return errors.Wrap(err, "advancing resume cursor")
	}

	pageIDs, duplicates, err := o.enqueueCaptures(ctx, domain, sessionID, result.Captures)
	if err != nil {
		return o.failDomain(ctx, domainID, "", err)
	}

	if err := o.store.UpdateDomain(ctx, domainID, func(d *model.Domain) error {
		d.TotalPages += len(result.Captures)
		d.PendingPages += len(pageIDs)
		d.DuplicatePages += stats.Filter.DuplicateFiltered + duplicates
		d.ListPagesFiltered += stats.Filter.ListPagesFiltered
		return nil
	}); err != nil {
		return errors.Wrap(err, "recording discovery counters")
	}
	if err := o.store.UpdateSession(ctx, sessionID, func(s *model.Session) error {
		s.TotalURLs += len(pageIDs)
		return nil
	}); err != nil {
		return errors.Wrap(err, "recording session totals")
	}

	level.Info(o.logger).Log("msg", "discovery done", "session", sessionID, "domain", domainID,
		"source", stats.Source, "captures", len(result.Captures), "enqueued", len(pageIDs),
		"duplicates", stats.Filter.DuplicateFiltered+duplicates, "cdx_pages", stats.PagesFetched)

	o.extractPages(ctx, domain.ProjectID, pageIDs)

	lastScraped := o.now()
	if err := o.store.UpdateDomain(ctx, domainID, func(d *model.Domain) error {
		if done := d.ScrapedPages + d.FailedPages; done > 0 {
			d.SuccessRate = float64(d.ScrapedPages) / float64(done)
		}
		d.Status = model.DomainCompleted
		d.LastScraped = &lastScraped
		return nil
	}); err != nil {
		return errors.Wrap(err, "finalizing domain")
	}
	return nil
}

// failDomain records a terminal domain failure and passes the cause through.
func (o *Orchestrator) failDomain(ctx context.Context, domainID, cursorID string, cause error) error {
	if cursorID != "" {
		if err := o.store.UpdateResumeState(ctx, cursorID, func(rs *model.ResumeState) error {
			rs.Status = model.ResumeFailed
			return nil
		}); err != nil {
			level.Warn(o.logger).Log("msg", "failed to mark resume cursor", "cursor", cursorID, "err", err)
		}
	}
	if err := o.store.UpdateDomain(ctx, domainID, func(d *model.Domain) error {
		d.Status = model.DomainError
		return nil
	}); err != nil {
		level.Warn(o.logger).Log("msg", "failed to mark domain", "domain", domainID, "err", err)
	}
	return cause
}

// enqueueCaptures inserts a pending page row per capture whose digest the
// domain has not seen. Captures already present count as duplicates.
func (o *Orchestrator) enqueueCaptures(ctx context.Context, domain *model.Domain, sessionID string, captures []model.Capture) ([]string, int, error) {
	var (
		ids        []string
		duplicates int
	)
	for _, c := range captures {
		_, err := o.store.FindScrapePageByDigest(ctx, domain.ID, c.Digest)
		switch {
		case err == nil:
			duplicates++
			metricPages.WithLabelValues("duplicate").Inc()
			continue
		case !errors.Is(err, store.ErrNotFound):
			return nil, 0, errors.Wrap(err, "digest lookup")
		}

		page := &model.ScrapePage{
			ID:            uuid.NewString(),
			DomainID:      domain.ID,
			SessionID:     sessionID,
			URL:           c.OriginalURL,
			ArchiveURL:    c.ArchiveURL(),
			Timestamp:     c.Timestamp,
			MimeType:      c.MimeType,
			StatusCode:    c.StatusCode,
			ContentLength: c.Length,
			Digest:        c.Digest,
			Status:        model.PagePending,
			MaxRetries:    o.cfg.MaxRetries,
		}
		if err := o.store.InsertScrapePage(ctx, page); err != nil {
			if errors.Is(err, store.ErrDuplicateDigest) {
				duplicates++
				metricPages.WithLabelValues("duplicate").Inc()
				continue
			}
			return nil, 0, errors.Wrap(err, "inserting page")
		}
		ids = append(ids, page.ID)
	}
	return ids, duplicates, nil
}

// extractPages runs page tasks on the pool in batches. Page failures live in
// the page rows; only infrastructure errors surface here, and they are logged
// rather than failing the domain.
func (o *Orchestrator) extractPages(ctx context.Context, projectID string, pageIDs []string) {
	for start := 0; start < len(pageIDs); start += o.cfg.ExtractBatchSize {
		if ctx.Err() != nil {
			return
		}
		end := start + o.cfg.ExtractBatchSize
		if end > len(pageIDs) {
			end = len(pageIDs)
		}

		batch := pageIDs[start:end]
		payloads := make([]interface{}, len(batch))
		for i, id := range batch {
			payloads[i] = &pageTask{PageID: id, ProjectID: projectID}
		}
		if err := o.pool.RunJobs(ctx, payloads, o.extractJob); err != nil {
			level.Warn(o.logger).Log("msg", "extraction batch finished with errors", "batch_size", len(batch), "err", err)
		}
	}
}
