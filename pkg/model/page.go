package model

import "time"

// PageStatus is the per-capture state machine:
//
//	pending → in_progress → completed
//	                     ↘ failed
//	                     ↘ retry → in_progress …
//
// completed and failed are terminal.
type PageStatus string

const (
	PagePending    PageStatus = "pending"
	PageInProgress PageStatus = "in_progress"
	PageRetry      PageStatus = "retry"
	PageCompleted  PageStatus = "completed"
	PageFailed     PageStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s PageStatus) Terminal() bool {
	return s == PageCompleted || s == PageFailed
}

// ScrapePage is the durable per-capture row. Digest is unique within a
// domain; retryCount never exceeds maxRetries.
type ScrapePage struct {
	ID        string `json:"id"`
	DomainID  string `json:"domain_id"`
	SessionID string `json:"session_id"`

	// Capture identity.
	URL           string `json:"url"`
	ArchiveURL    string `json:"archive_url"`
	Timestamp     string `json:"timestamp"`
	MimeType      string `json:"mime_type"`
	StatusCode    int    `json:"status_code"`
	ContentLength int64  `json:"content_length"`
	Digest        string `json:"digest"`

	// State machine.
	Status        PageStatus `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	ErrorType     string     `json:"error_type,omitempty"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	// Extracted fields, populated on completion.
	Title             string  `json:"title,omitempty"`
	ExtractedText     string  `json:"extracted_text,omitempty"`
	Markdown          string  `json:"markdown,omitempty"`
	MetaDescription   string  `json:"meta_description,omitempty"`
	MetaKeywords      string  `json:"meta_keywords,omitempty"`
	Author            string  `json:"author,omitempty"`
	PublishedDate     string  `json:"published_date,omitempty"`
	Language          string  `json:"language,omitempty"`
	WordCount         int     `json:"word_count,omitempty"`
	QualityScore      float64 `json:"quality_score,omitempty"`
	ProcessingSeconds float64 `json:"processing_seconds,omitempty"`
	ExtractionMethod  string  `json:"extraction_method,omitempty"`
}

// PageErrorLog is a durable record of one failed extraction attempt.
type PageErrorLog struct {
	ID                         string     `json:"id"`
	PageID                     string     `json:"page_id"`
	ErrorType                  string     `json:"error_type"`
	ErrorMessage               string     `json:"error_message"`
	IsRecoverable              bool       `json:"is_recoverable"`
	SuggestedRetryDelaySeconds int        `json:"suggested_retry_delay_seconds"`
	OccurredAt                 time.Time  `json:"occurred_at"`
	ResolvedAt                 *time.Time `json:"resolved_at,omitempty"`
}
