package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCaptureDerivedURLs(t *testing.T) {
	c := Capture{
		Timestamp:   "20200315120000",
		OriginalURL: "https://example.com/post",
		MimeType:    "text/html",
		StatusCode:  200,
		Digest:      "AAAA",
		Length:      2048,
	}

	require.Equal(t, "https://web.archive.org/web/20200315120000/https://example.com/post", c.ArchiveURL())
	require.Equal(t, "https://web.archive.org/web/20200315120000id_/https://example.com/post", c.RawContentURL())
}

func TestCaptureInstant(t *testing.T) {
	c := Capture{Timestamp: "20200315120030"}
	instant, err := c.CaptureInstant()
	require.NoError(t, err)
	require.Equal(t, time.Date(2020, 3, 15, 12, 0, 30, 0, time.UTC), instant)

	_, err = Capture{Timestamp: "garbage"}.CaptureInstant()
	require.Error(t, err)
}

func TestCaptureIsPDF(t *testing.T) {
	tests := []struct {
		mime string
		pdf  bool
	}{
		{"application/pdf", true},
		{"application/PDF", true},
		{"text/html", false},
		{"", false},
	}
	for _, tc := range tests {
		require.Equal(t, tc.pdf, Capture{MimeType: tc.mime}.IsPDF(), "mime %q", tc.mime)
	}
}

func TestQuerySignatureStable(t *testing.T) {
	d := &Domain{Name: "example.com", MatchType: MatchDomain, FromDate: "20200101", ToDate: "20200131"}
	sigA := QuerySignature(d)
	sigB := QuerySignature(d)
	require.Equal(t, sigA, sigB)

	d2 := *d
	d2.ToDate = "20200201"
	require.NotEqual(t, sigA, QuerySignature(&d2))
}
