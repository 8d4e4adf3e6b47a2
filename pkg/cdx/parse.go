package cdx

import (
	"bytes"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ParseRows parses a CDX JSON response body (array of rows in FieldOrder)
// into captures. A leading header row is skipped. Malformed rows are dropped.
func ParseRows(body []byte) ([]model.Capture, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var rows [][]string
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, errors.Wrap(err, "parsing cdx rows")
	}

	captures := make([]model.Capture, 0, len(rows))
	for i, row := range rows {
		if i == 0 && len(row) > 0 && row[0] == "timestamp" {
			continue // header row
		}
		if c, ok := captureFromRow(row); ok {
			captures = append(captures, c)
		}
	}
	return captures, nil
}

func captureFromRow(row []string) (model.Capture, bool) {
	if len(row) < 6 {
		return model.Capture{}, false
	}

	status, err := strconv.Atoi(row[3])
	if err != nil {
		return model.Capture{}, false
	}
	// length is best effort: some providers omit it
	length, _ := strconv.ParseInt(row[5], 10, 64)

	return model.Capture{
		Timestamp:   row[0],
		OriginalURL: row[1],
		MimeType:    row[2],
		StatusCode:  status,
		Digest:      row[4],
		Length:      length,
	}, true
}

// ParseNumPages parses a showNumPages probe response. Providers answer with a
// bare integer; some return the first result page instead, in which case a
// non-empty array means at least one page exists.
func ParseNumPages(body []byte) (int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return 0, nil
	}

	if trimmed[0] == '[' {
		var rows []jsoniter.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return 0, errors.Wrap(err, "parsing numpages array")
		}
		if len(rows) == 0 {
			return 0, nil
		}
		return 1, nil
	}

	n, err := strconv.Atoi(string(trimmed))
	if err != nil {
		return 0, errors.Errorf("unexpected numpages body %q", truncateForError(trimmed))
	}
	if n < 0 {
		return 0, errors.Errorf("negative page count %d", n)
	}
	return n, nil
}

// ParseCDXJLine parses one line of a cc-index cdx segment:
// "<surt> <timestamp> <json metadata>".
func ParseCDXJLine(line string) (model.Capture, bool) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) != 3 {
		return model.Capture{}, false
	}

	var meta struct {
		URL    string `json:"url"`
		Mime   string `json:"mime"`
		Status string `json:"status"`
		Digest string `json:"digest"`
		Length string `json:"length"`
	}
	if err := json.Unmarshal([]byte(parts[2]), &meta); err != nil {
		return model.Capture{}, false
	}
	if meta.URL == "" {
		return model.Capture{}, false
	}

	status, err := strconv.Atoi(meta.Status)
	if err != nil {
		return model.Capture{}, false
	}
	length, _ := strconv.ParseInt(meta.Length, 10, 64)

	return model.Capture{
		Timestamp:   parts[1],
		OriginalURL: meta.URL,
		MimeType:    meta.Mime,
		StatusCode:  status,
		Digest:      meta.Digest,
		Length:      length,
	}, true
}

func truncateForError(b []byte) string {
	const max = 64
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
