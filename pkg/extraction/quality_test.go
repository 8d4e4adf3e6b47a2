package extraction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

func TestQualityScore(t *testing.T) {
	longText := strings.TrimSpace(strings.Repeat("word ", 600))

	for _, tc := range []struct {
		name string
		c    model.ExtractedContent
		want float64
	}{
		{
			name: "everything present via structured service",
			c: model.ExtractedContent{
				Title:            "Quarterly Budget Report",
				Text:             longText,
				Markdown:         longText,
				Author:           "Jordan Blake",
				MetaDescription:  "Budget analysis.",
				MetaKeywords:     "budget",
				Language:         "en",
				PublishedDate:    "2019-03-14T00:00:00Z",
				ExtractionMethod: "firecrawl",
			},
			want: 9, // 3 text + 1 title + 2 metadata + 1 markdown + 1 structured + 1 success
		},
		{
			name: "everything present via local extractor",
			c: model.ExtractedContent{
				Title:            "Quarterly Budget Report",
				Text:             longText,
				Markdown:         longText,
				Author:           "Jordan Blake",
				MetaDescription:  "Budget analysis.",
				MetaKeywords:     "budget",
				Language:         "en",
				PublishedDate:    "2019-03-14T00:00:00Z",
				ExtractionMethod: "hybrid_beautifulsoup",
			},
			want: 8,
		},
		{
			name: "bare text only",
			c: model.ExtractedContent{
				Text:             "one two three",
				ExtractionMethod: "pdf",
			},
			want: 1.015, // 3/200 words + 1 success
		},
		{
			name: "short title earns nothing",
			c: model.ExtractedContent{
				Title:            "News",
				Text:             "one two three",
				ExtractionMethod: "pdf",
			},
			want: 1.015,
		},
		{
			name: "metadata bonus caps at two",
			c: model.ExtractedContent{
				Text:             "one two three",
				Author:           "a",
				MetaDescription:  "b",
				MetaKeywords:     "c",
				Language:         "d",
				PublishedDate:    "e",
				ExtractionMethod: "pdf",
			},
			want: 3.015,
		},
		{
			name: "empty text scores zero",
			c: model.ExtractedContent{
				Title:            "Quarterly Budget Report",
				ExtractionMethod: "firecrawl",
			},
			want: 0,
		},
		{
			name: "error method scores zero",
			c: model.ExtractedContent{
				Text:             longText,
				ExtractionMethod: "hybrid_error",
			},
			want: 0,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := QualityScore(model.NewExtractedContent(tc.c))
			assert.InDelta(t, tc.want, got, 0.001)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 10.0)
		})
	}
}

func TestQualityScoreNil(t *testing.T) {
	assert.Zero(t, QualityScore(nil))
}
