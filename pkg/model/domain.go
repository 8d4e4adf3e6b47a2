package model

import "time"

// MatchType selects how a domain name is matched against capture URLs.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchPrefix MatchType = "prefix"
	MatchDomain MatchType = "domain"
	MatchRegex  MatchType = "regex"
)

// DomainStatus is the lifecycle state of a domain within a project.
type DomainStatus string

const (
	DomainActive    DomainStatus = "active"
	DomainPaused    DomainStatus = "paused"
	DomainCompleted DomainStatus = "completed"
	DomainError     DomainStatus = "error"
)

// Domain is a capture query specification plus its lifecycle counters. A
// domain is owned by exactly one project and mutated only by the
// orchestrator.
type Domain struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`

	// Query specification.
	Name               string    `json:"name"`
	MatchType          MatchType `json:"match_type"`
	URLPath            string    `json:"url_path,omitempty"`
	FromDate           string    `json:"from_date"` // YYYYMMDD
	ToDate             string    `json:"to_date"`   // YYYYMMDD
	MinPageSize        int64     `json:"min_page_size"`
	MaxPageSize        int64     `json:"max_page_size"` // 0 means unbounded
	PageSize           int       `json:"page_size"`
	MaxPages           int       `json:"max_pages"` // 0 means all pages
	IncludeAttachments bool      `json:"include_attachments"`

	// Lifecycle counters.
	TotalPages        int          `json:"total_pages"`
	ScrapedPages      int          `json:"scraped_pages"`
	FailedPages       int          `json:"failed_pages"`
	PendingPages      int          `json:"pending_pages"`
	DuplicatePages    int          `json:"duplicate_pages"`
	ListPagesFiltered int          `json:"list_pages_filtered"`
	SuccessRate       float64      `json:"success_rate"`
	LastScraped       *time.Time   `json:"last_scraped,omitempty"`
	Status            DomainStatus `json:"status"`
}

// Project holds the per-project state the pipeline needs: the search index
// owner key reference and the archive routing configuration selector.
type Project struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	IndexKeyUID   string     `json:"index_key_uid,omitempty"`
	PublicKeyUID  string     `json:"public_key_uid,omitempty"`
	ArchiveSource string     `json:"archive_source"`
	CreatedAt     time.Time  `json:"created_at"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
}
