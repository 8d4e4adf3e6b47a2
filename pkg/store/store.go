// Package store declares the durable state the pipeline depends on. The
// orchestrator is the only writer for domains, sessions, pages and resume
// cursors; the key manager owns the project key references. Implementations
// guarantee that a single mutate call is atomic.
package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

// ErrNotFound is returned when a row does not exist. Callers branch on it
// with errors.Is.
var ErrNotFound = errors.New("not found")

// Store is the transactional persistence boundary. Every Update* method
// applies the mutate function to the current row under the store's write
// lock; returning an error from the function aborts the update without
// writing. Implementations hand copies to callers, never shared rows.
type Store interface {
	// Projects.
	GetProject(ctx context.Context, id string) (*model.Project, error)
	UpdateProject(ctx context.Context, id string, mutate func(*model.Project) error) error

	// Domains.
	GetDomain(ctx context.Context, id string) (*model.Domain, error)
	UpdateDomain(ctx context.Context, id string, mutate func(*model.Domain) error) error
	ListActiveDomains(ctx context.Context, projectID string) ([]model.Domain, error)

	// Sessions.
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	UpdateSession(ctx context.Context, id string, mutate func(*model.Session) error) error

	// Resume cursors. GetOrCreateResumeState returns the existing row for
	// the (domain, session, signature) triple when there is one, so at most
	// one active cursor ever exists per triple.
	GetOrCreateResumeState(ctx context.Context, domainID, sessionID, signature string) (*model.ResumeState, error)
	UpdateResumeState(ctx context.Context, id string, mutate func(*model.ResumeState) error) error
	DeleteResumeStatesOlderThan(ctx context.Context, cutoff time.Time) (int, error)

	// Scrape pages. Digest is unique within a domain; InsertScrapePage
	// fails with ErrDuplicateDigest when the (domain, digest) pair exists.
	FindScrapePageByDigest(ctx context.Context, domainID, digest string) (*model.ScrapePage, error)
	GetScrapePage(ctx context.Context, id string) (*model.ScrapePage, error)
	InsertScrapePage(ctx context.Context, p *model.ScrapePage) error
	UpdateScrapePage(ctx context.Context, id string, mutate func(*model.ScrapePage) error) error

	// Page error log.
	InsertPageErrorLog(ctx context.Context, e *model.PageErrorLog) error
	DeletePageErrorLogsOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// ErrDuplicateDigest rejects a page insert whose (domain, digest) pair is
// already present.
var ErrDuplicateDigest = errors.New("duplicate digest for domain")
