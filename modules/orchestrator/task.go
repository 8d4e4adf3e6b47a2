package orchestrator

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/extraction"
	"github.com/hindsightlabs/hindsight/pkg/indexer"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

type pageTask struct {
	PageID    string
	ProjectID string
}

func (o *Orchestrator) extractJob(ctx context.Context, payload interface{}) error {
	task, ok := payload.(*pageTask)
	if !ok {
		return errors.Errorf("unexpected payload type %T", payload)
	}
	return o.runTask(ctx, task)
}

// runTask drives one page through the state machine until it reaches a
// terminal status or the context dies:
//
//	pending → in_progress → completed
//	                     ↘ failed
//	                     ↘ retry → in_progress …
func (o *Orchestrator) runTask(ctx context.Context, task *pageTask) error {
	page, err := o.store.GetScrapePage(ctx, task.PageID)
	if err != nil {
		return errors.Wrap(err, "loading page")
	}
	if page.Status.Terminal() {
		return nil
	}

	start := o.now()
	defer func() {
		metricTaskDuration.Observe(o.now().Sub(start).Seconds())
	}()

	// The hard deadline is the backstop for a wedged attempt; the soft
	// deadline below fails the page cleanly before it is reached.
	taskCtx, cancel := context.WithTimeout(ctx, o.cfg.HardDeadline)
	defer cancel()

	capture := model.Capture{
		Timestamp:   page.Timestamp,
		OriginalURL: page.URL,
		MimeType:    page.MimeType,
		StatusCode:  page.StatusCode,
		Digest:      page.Digest,
		Length:      page.ContentLength,
	}

	for {
		if o.now().Sub(start) >= o.cfg.SoftDeadline {
			return o.failPage(ctx, page, "timeout", errors.New("page task exceeded deadline"))
		}

		attemptAt := o.now()
		if err := o.store.UpdateScrapePage(ctx, page.ID, func(p *model.ScrapePage) error {
			p.Status = model.PageInProgress
			p.LastAttemptAt = &attemptAt
			return nil
		}); err != nil {
			return errors.Wrap(err, "marking page in progress")
		}

		content, xerr := o.extractor.Extract(taskCtx, capture)
		if xerr == nil {
			return o.completePage(ctx, task, page, content)
		}

		if ctx.Err() != nil {
			// shutdown or session cancel: leave the row non-terminal for the
			// next run, discard the attempt
			return ctx.Err()
		}
		if taskCtx.Err() != nil {
			return o.failPage(ctx, page, "timeout", xerr)
		}

		errType := extraction.ErrorType(xerr)
		recoverable := extraction.Recoverable(xerr)
		delay := o.retryDelay(page.RetryCount)

		if err := o.store.InsertPageErrorLog(ctx, &model.PageErrorLog{
			PageID:                     page.ID,
			ErrorType:                  errType,
			ErrorMessage:               xerr.Error(),
			IsRecoverable:              recoverable,
			SuggestedRetryDelaySeconds: int(delay.Seconds()),
			OccurredAt:                 o.now(),
		}); err != nil {
			level.Warn(o.logger).Log("msg", "failed to record page error", "page", page.ID, "err", err)
		}

		if !recoverable || page.RetryCount >= page.MaxRetries {
			return o.failPage(ctx, page, errType, xerr)
		}

		page.RetryCount++
		nextAttempt := o.now().Add(delay)
		if err := o.store.UpdateScrapePage(ctx, page.ID, func(p *model.ScrapePage) error {
			p.Status = model.PageRetry
			p.RetryCount = page.RetryCount
			p.ErrorMessage = xerr.Error()
			p.ErrorType = errType
			p.NextAttemptAt = &nextAttempt
			return nil
		}); err != nil {
			return errors.Wrap(err, "scheduling retry")
		}
		metricRetries.Inc()

		select {
		case <-time.After(delay):
		case <-taskCtx.Done():
			return taskCtx.Err()
		}
	}
}

// completePage persists the extracted fields, settles the counters and hands
// the document to the indexer. Indexing is best effort: a refused document
// logs and counts, the page still completes.
func (o *Orchestrator) completePage(ctx context.Context, task *pageTask, page *model.ScrapePage, content *model.ExtractedContent) error {
	quality := extraction.QualityScore(content)
	completedAt := o.now()

	if err := o.store.UpdateScrapePage(ctx, page.ID, func(p *model.ScrapePage) error {
		p.Status = model.PageCompleted
		p.CompletedAt = &completedAt
		p.RetryCount = page.RetryCount
		p.ErrorMessage = ""
		p.ErrorType = ""
		p.Title = content.Title
		p.ExtractedText = content.Text
		p.Markdown = content.Markdown
		p.MetaDescription = content.MetaDescription
		p.MetaKeywords = content.MetaKeywords
		p.Author = content.Author
		p.PublishedDate = content.PublishedDate
		p.Language = content.Language
		p.WordCount = content.WordCount
		p.QualityScore = quality
		p.ProcessingSeconds = content.ExtractionSeconds
		p.ExtractionMethod = content.ExtractionMethod
		return nil
	}); err != nil {
		return errors.Wrap(err, "completing page")
	}

	if err := o.store.UpdateDomain(ctx, page.DomainID, func(d *model.Domain) error {
		d.ScrapedPages++
		d.PendingPages--
		return nil
	}); err != nil {
		return errors.Wrap(err, "crediting domain")
	}
	if err := o.store.UpdateSession(ctx, page.SessionID, func(s *model.Session) error {
		s.CompletedURLs++
		return nil
	}); err != nil {
		return errors.Wrap(err, "crediting session")
	}
	metricPages.WithLabelValues("completed").Inc()

	doc := indexer.Document{
		"id":             page.ID,
		"url":            page.URL,
		"archive_url":    page.ArchiveURL,
		"timestamp":      page.Timestamp,
		"domain_id":      page.DomainID,
		"session_id":     page.SessionID,
		"title":          content.Title,
		"content":        content.Text,
		"markdown":       content.Markdown,
		"author":         content.Author,
		"published_date": content.PublishedDate,
		"language":       content.Language,
		"word_count":     content.WordCount,
		"quality_score":  quality,
		"review_status":  "pending",
	}
	if err := o.indexer.Index(ctx, o.indexPrefix+task.ProjectID, []indexer.Document{doc}); err != nil {
		metricIndexFailures.Inc()
		level.Warn(o.logger).Log("msg", "indexing failed", "page", page.ID, "err", err)
	}
	return nil
}

// failPage records a terminal failure and settles the counters.
func (o *Orchestrator) failPage(ctx context.Context, page *model.ScrapePage, errType string, cause error) error {
	if err := o.store.UpdateScrapePage(ctx, page.ID, func(p *model.ScrapePage) error {
		p.Status = model.PageFailed
		p.RetryCount = page.RetryCount
		p.ErrorMessage = cause.Error()
		p.ErrorType = errType
		return nil
	}); err != nil {
		return errors.Wrap(err, "failing page")
	}

	if err := o.store.UpdateDomain(ctx, page.DomainID, func(d *model.Domain) error {
		d.FailedPages++
		d.PendingPages--
		return nil
	}); err != nil {
		return errors.Wrap(err, "debiting domain")
	}
	if err := o.store.UpdateSession(ctx, page.SessionID, func(s *model.Session) error {
		s.FailedURLs++
		return nil
	}); err != nil {
		return errors.Wrap(err, "debiting session")
	}

	metricPages.WithLabelValues("failed").Inc()
	level.Warn(o.logger).Log("msg", "page failed", "page", page.ID, "url", page.URL,
		"error_type", errType, "retries", page.RetryCount, "err", cause)
	return nil
}
