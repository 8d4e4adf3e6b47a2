package model

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

// ResumeStatus is the lifecycle state of a pagination cursor.
type ResumeStatus string

const (
	ResumeActive    ResumeStatus = "active"
	ResumeCompleted ResumeStatus = "completed"
	ResumeFailed    ResumeStatus = "failed"
)

// ResumeState is a durable pagination cursor. At most one active row exists
// per (domain, session, query signature).
type ResumeState struct {
	ID                string       `json:"id"`
	DomainID          string       `json:"domain_id"`
	SessionID         string       `json:"session_id"`
	QuerySignature    string       `json:"query_signature"`
	CurrentPage       int          `json:"current_page"`
	TotalPages        int          `json:"total_pages"`
	TotalRecordsFound int          `json:"total_records_found"`
	Status            ResumeStatus `json:"status"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// QuerySignature derives a stable identifier for a domain query so a resumed
// run only reuses a cursor when the query is byte-for-byte the same.
func QuerySignature(d *Domain) string {
	h := sha1.New()
	h.Write([]byte(strings.Join([]string{
		d.Name,
		string(d.MatchType),
		d.URLPath,
		d.FromDate,
		d.ToDate,
	}, "|")))
	return hex.EncodeToString(h.Sum(nil))
}
