package extraction

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

// PDFExtractor pulls plain text out of archived PDF captures. The underlying
// parser panics on malformed input, which archived PDFs frequently are, so
// extraction recovers and reports those as extraction failures.
type PDFExtractor struct{}

func (e *PDFExtractor) Extract(raw []byte) (content *model.ExtractedContent, err error) {
	defer func() {
		if r := recover(); r != nil {
			content = nil
			err = &ContentExtractionError{Reason: fmt.Sprintf("pdf parser panic: %v", r)}
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, &ContentExtractionError{Reason: "opening pdf", Cause: err}
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		sb.WriteString(strings.TrimSpace(text))
		sb.WriteString("\n\n")
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, NewContentExtractionError("pdf has no extractable text")
	}

	return model.NewExtractedContent(model.ExtractedContent{
		Title:            pdfTitle(reader),
		Text:             text,
		ExtractionMethod: "pdf",
	}), nil
}

func pdfTitle(reader *pdf.Reader) string {
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return ""
	}
	title := info.Key("Title")
	if title.Kind() != pdf.String {
		return ""
	}
	return strings.TrimSpace(title.RawString())
}
