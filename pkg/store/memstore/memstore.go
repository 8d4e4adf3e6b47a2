// Package memstore is the in-memory reference Store: mutex-guarded maps with
// single-writer transactional semantics. It backs the default server wiring
// and the package tests; a relational implementation can replace it without
// touching the pipeline.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hindsightlabs/hindsight/pkg/model"
	"github.com/hindsightlabs/hindsight/pkg/store"
)

type Store struct {
	mtx sync.Mutex

	projects     map[string]model.Project
	domains      map[string]model.Domain
	sessions     map[string]model.Session
	resumeStates map[string]model.ResumeState
	pages        map[string]model.ScrapePage
	errorLogs    map[string]model.PageErrorLog

	pageByDigest map[string]string // (domainID, digest) -> pageID
	resumeByKey  map[string]string // (domainID, sessionID, signature) -> resumeID
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		projects:     map[string]model.Project{},
		domains:      map[string]model.Domain{},
		sessions:     map[string]model.Session{},
		resumeStates: map[string]model.ResumeState{},
		pages:        map[string]model.ScrapePage{},
		errorLogs:    map[string]model.PageErrorLog{},
		pageByDigest: map[string]string{},
		resumeByKey:  map[string]string{},
	}
}

func digestKey(domainID, digest string) string {
	return domainID + "\x00" + digest
}

func resumeKey(domainID, sessionID, signature string) string {
	return domainID + "\x00" + sessionID + "\x00" + signature
}

// PutProject seeds a project row. Test and bootstrap helper, not part of the
// Store contract.
func (s *Store) PutProject(p model.Project) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.projects[p.ID] = p
}

// PutDomain seeds a domain row.
func (s *Store) PutDomain(d model.Domain) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.domains[d.ID] = d
}

func (s *Store) GetProject(_ context.Context, id string) (*model.Project, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) UpdateProject(_ context.Context, id string, mutate func(*model.Project) error) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("project %s: %w", id, store.ErrNotFound)
	}
	if err := mutate(&p); err != nil {
		return err
	}
	s.projects[id] = p
	return nil
}

func (s *Store) GetDomain(_ context.Context, id string) (*model.Domain, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	d, ok := s.domains[id]
	if !ok {
		return nil, fmt.Errorf("domain %s: %w", id, store.ErrNotFound)
	}
	return &d, nil
}

func (s *Store) UpdateDomain(_ context.Context, id string, mutate func(*model.Domain) error) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	d, ok := s.domains[id]
	if !ok {
		return fmt.Errorf("domain %s: %w", id, store.ErrNotFound)
	}
	if err := mutate(&d); err != nil {
		return err
	}
	s.domains[id] = d
	return nil
}

func (s *Store) ListActiveDomains(_ context.Context, projectID string) ([]model.Domain, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []model.Domain
	for _, d := range s.domains {
		if d.ProjectID != projectID {
			continue
		}
		if d.Status == model.DomainPaused {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *Store) CreateSession(_ context.Context, sess *model.Session) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*model.Session, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return &sess, nil
}

func (s *Store) UpdateSession(_ context.Context, id string, mutate func(*model.Session) error) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err := mutate(&sess); err != nil {
		return err
	}
	s.sessions[id] = sess
	return nil
}

func (s *Store) GetOrCreateResumeState(_ context.Context, domainID, sessionID, signature string) (*model.ResumeState, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	key := resumeKey(domainID, sessionID, signature)
	if id, ok := s.resumeByKey[key]; ok {
		rs := s.resumeStates[id]
		return &rs, nil
	}

	now := time.Now()
	rs := model.ResumeState{
		ID:             uuid.NewString(),
		DomainID:       domainID,
		SessionID:      sessionID,
		QuerySignature: signature,
		Status:         model.ResumeActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.resumeStates[rs.ID] = rs
	s.resumeByKey[key] = rs.ID
	return &rs, nil
}

func (s *Store) UpdateResumeState(_ context.Context, id string, mutate func(*model.ResumeState) error) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	rs, ok := s.resumeStates[id]
	if !ok {
		return fmt.Errorf("resume state %s: %w", id, store.ErrNotFound)
	}
	if err := mutate(&rs); err != nil {
		return err
	}
	rs.UpdatedAt = time.Now()
	s.resumeStates[id] = rs
	return nil
}

func (s *Store) DeleteResumeStatesOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	deleted := 0
	for id, rs := range s.resumeStates {
		if rs.Status != model.ResumeCompleted || !rs.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(s.resumeStates, id)
		delete(s.resumeByKey, resumeKey(rs.DomainID, rs.SessionID, rs.QuerySignature))
		deleted++
	}
	return deleted, nil
}

func (s *Store) FindScrapePageByDigest(_ context.Context, domainID, digest string) (*model.ScrapePage, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	id, ok := s.pageByDigest[digestKey(domainID, digest)]
	if !ok {
		return nil, fmt.Errorf("page digest %s: %w", digest, store.ErrNotFound)
	}
	p := s.pages[id]
	return &p, nil
}

func (s *Store) GetScrapePage(_ context.Context, id string) (*model.ScrapePage, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	p, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("page %s: %w", id, store.ErrNotFound)
	}
	return &p, nil
}

func (s *Store) InsertScrapePage(_ context.Context, p *model.ScrapePage) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	key := digestKey(p.DomainID, p.Digest)
	if _, ok := s.pageByDigest[key]; ok {
		return fmt.Errorf("domain %s digest %s: %w", p.DomainID, p.Digest, store.ErrDuplicateDigest)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.pages[p.ID] = *p
	s.pageByDigest[key] = p.ID
	return nil
}

func (s *Store) UpdateScrapePage(_ context.Context, id string, mutate func(*model.ScrapePage) error) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	p, ok := s.pages[id]
	if !ok {
		return fmt.Errorf("page %s: %w", id, store.ErrNotFound)
	}
	if err := mutate(&p); err != nil {
		return err
	}
	s.pages[id] = p
	return nil
}

func (s *Store) InsertPageErrorLog(_ context.Context, e *model.PageErrorLog) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	s.errorLogs[e.ID] = *e
	return nil
}

func (s *Store) DeletePageErrorLogsOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	deleted := 0
	for id, e := range s.errorLogs {
		if e.ResolvedAt == nil || !e.OccurredAt.Before(cutoff) {
			continue
		}
		delete(s.errorLogs, id)
		deleted++
	}
	return deleted, nil
}

// PageErrorLogs returns every stored error row for a page, for tests and the
// CLI.
func (s *Store) PageErrorLogs(pageID string) []model.PageErrorLog {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []model.PageErrorLog
	for _, e := range s.errorLogs {
		if e.PageID == pageID {
			out = append(out, e)
		}
	}
	return out
}

// ResumeStates returns every cursor for a domain, for tests.
func (s *Store) ResumeStates(domainID string) []model.ResumeState {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []model.ResumeState
	for _, rs := range s.resumeStates {
		if rs.DomainID == domainID {
			out = append(out, rs)
		}
	}
	return out
}

// Pages returns every page row for a domain, for tests.
func (s *Store) Pages(domainID string) []model.ScrapePage {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var out []model.ScrapePage
	for _, p := range s.pages {
		if p.DomainID == domainID {
			out = append(out, p)
		}
	}
	return out
}
