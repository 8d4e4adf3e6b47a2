package model

import "time"

// SessionStatus is the lifecycle state of a scrape session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
	SessionFailed    SessionStatus = "failed"
)

// Session is one end-to-end scrape run across a project's active domains.
// A session completes iff every active domain completes; any terminally
// failed domain fails the session.
type Session struct {
	ID            string        `json:"id"`
	ProjectID     string        `json:"project_id"`
	Status        SessionStatus `json:"status"`
	TotalURLs     int           `json:"total_urls"`
	CompletedURLs int           `json:"completed_urls"`
	FailedURLs    int           `json:"failed_urls"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`
}
