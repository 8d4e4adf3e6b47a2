package extraction

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

// QualityScore grades extracted content on a 0-10 scale. Text volume earns up
// to 3 points, a real title 1, metadata presence up to 2, markdown that kept
// most of the structure 1, the structured service 1, and any successful
// extraction 1. Empty text or an extractor that errored scores zero.
func QualityScore(c *model.ExtractedContent) float64 {
	if c == nil || strings.TrimSpace(c.Text) == "" {
		return 0
	}
	method := strings.ToLower(c.ExtractionMethod)
	if strings.Contains(method, "error") {
		return 0
	}

	score := math.Min(float64(c.WordCount)/200, 3)

	if utf8.RuneCountInString(strings.TrimSpace(c.Title)) >= 5 {
		score++
	}

	meta := 0.0
	for _, field := range []string{c.Author, c.MetaDescription, c.MetaKeywords, c.Language, c.PublishedDate} {
		if strings.TrimSpace(field) != "" {
			meta += 0.4
		}
	}
	score += math.Min(meta, 2)

	if float64(len(c.Markdown)) >= 0.5*float64(len(c.Text)) {
		score++
	}
	if strings.Contains(method, "firecrawl") || strings.Contains(method, "structured") {
		score++
	}
	score++ // extraction succeeded at all

	return math.Min(score, 10)
}
