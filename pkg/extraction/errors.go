package extraction

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// ErrContentTooLarge rejects bodies over the configured cap, either from the
// advertised Content-Length or from counting actual bytes.
var ErrContentTooLarge = errors.New("content too large")

// ErrUnsupportedContentType rejects captures whose bytes no extractor can
// turn into text.
var ErrUnsupportedContentType = errors.New("unsupported content type")

// ContentExtractionError is a page-level extraction failure. StatusCode is
// set when an HTTP status caused it, which narrows the error type reported
// to the page log.
type ContentExtractionError struct {
	Reason     string
	StatusCode int
	Cause      error
}

func NewContentExtractionError(reason string) *ContentExtractionError {
	return &ContentExtractionError{Reason: reason}
}

func (e *ContentExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("content extraction failed: %s: %v", e.Reason, e.Cause)
	}
	return "content extraction failed: " + e.Reason
}

func (e *ContentExtractionError) Unwrap() error { return e.Cause }

// ErrorType names the failure for durable page error records:
// http_<code>, timeout, content_too_large, unsupported_content_type,
// content_extraction, or unexpected.
func ErrorType(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrContentTooLarge) {
		return "content_too_large"
	}
	if errors.Is(err, ErrUnsupportedContentType) {
		return "unsupported_content_type"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var ce *ContentExtractionError
	if errors.As(err, &ce) {
		if ce.StatusCode > 0 {
			return fmt.Sprintf("http_%d", ce.StatusCode)
		}
		return "content_extraction"
	}
	return "unexpected"
}

// Recoverable reports whether a later attempt on the same page could
// plausibly succeed. Oversized and unsupported content never recovers, nor
// do 4xx statuses; timeouts, 5xx and parse-level failures may.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContentTooLarge) || errors.Is(err, ErrUnsupportedContentType) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ce *ContentExtractionError
	if errors.As(err, &ce) {
		if ce.StatusCode >= 400 && ce.StatusCode < 500 {
			return false
		}
		return true
	}
	return false
}
