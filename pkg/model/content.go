package model

import (
	"strings"
	"unicode/utf8"
)

// ExtractedContent is the canonical output of every extractor. Word and
// character counts are computed on construction and hold for the Text field
// as built.
type ExtractedContent struct {
	Title             string  `json:"title"`
	Text              string  `json:"text"`
	Markdown          string  `json:"markdown"`
	HTML              string  `json:"html,omitempty"`
	MetaDescription   string  `json:"meta_description,omitempty"`
	MetaKeywords      string  `json:"meta_keywords,omitempty"`
	Author            string  `json:"author,omitempty"`
	PublishedDate     string  `json:"published_date,omitempty"`
	Language          string  `json:"language,omitempty"`
	WordCount         int     `json:"word_count"`
	CharCount         int     `json:"char_count"`
	ExtractionMethod  string  `json:"extraction_method"`
	ExtractionSeconds float64 `json:"extraction_seconds"`
}

// NewExtractedContent fills in the derived counts and returns the content.
func NewExtractedContent(c ExtractedContent) *ExtractedContent {
	c.WordCount = len(strings.Fields(c.Text))
	c.CharCount = utf8.RuneCountInString(c.Text)
	return &c
}
