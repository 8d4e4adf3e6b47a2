package model

import (
	"fmt"
	"strings"
	"time"
)

// CaptureTimestampLayout is the 14 digit UTC timestamp used by CDX records.
const CaptureTimestampLayout = "20060102150405"

// playbackBase is the replay endpoint used to derive fetchable URLs for a
// capture. The `id_` flavor returns the original bytes without replay chrome.
const playbackBase = "https://web.archive.org/web"

// Capture is a single CDX record: one archived snapshot of a URL at an
// instant, identified by a content digest. Only status 200 captures enter the
// pipeline; upstream queries filter on statuscode.
type Capture struct {
	Timestamp   string `json:"timestamp"`
	OriginalURL string `json:"original_url"`
	MimeType    string `json:"mime_type"`
	StatusCode  int    `json:"status_code"`
	Digest      string `json:"digest"`
	Length      int64  `json:"length"`
}

// ArchiveURL returns the playback URL for the capture.
func (c Capture) ArchiveURL() string {
	return fmt.Sprintf("%s/%s/%s", playbackBase, c.Timestamp, c.OriginalURL)
}

// RawContentURL returns the raw byte stream URL for the capture, bypassing
// the replay banner and link rewriting.
func (c Capture) RawContentURL() string {
	return fmt.Sprintf("%s/%sid_/%s", playbackBase, c.Timestamp, c.OriginalURL)
}

// CaptureInstant parses the CDX timestamp as UTC.
func (c Capture) CaptureInstant() (time.Time, error) {
	return time.ParseInLocation(CaptureTimestampLayout, c.Timestamp, time.UTC)
}

// IsPDF reports whether the capture's MIME type indicates a PDF document.
func (c Capture) IsPDF() bool {
	return strings.Contains(strings.ToLower(c.MimeType), "pdf")
}
