package extraction

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/semaphore"

	"github.com/hindsightlabs/hindsight/pkg/model"
)

// Path shapes that mark a capture as worth the structured service.
var importantPathPatterns = []string{
	"/research/", "/report/", "/paper/", "/publication/", "/document/",
	"/study/", "/analysis/", "/whitepaper/", "/press-release/", "/news/",
	"/article/", "/blog/",
}

type contentFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// HybridExtractor routes each capture to the cheapest extractor likely to do
// it justice: the external structured service for high-value pages, local
// HTML or PDF parsing for the rest. Structured failures fall back to the
// local path so a flaky service degrades quality, not coverage.
type HybridExtractor struct {
	cfg        HybridConfig
	fetcher    contentFetcher
	html       *HTMLExtractor
	pdf        *PDFExtractor
	structured *StructuredExtractor
	sem        *semaphore.Weighted
	logger     log.Logger
}

func NewHybridExtractor(cfg Config, logger log.Logger) (*HybridExtractor, error) {
	fetcher, err := NewFetcher(cfg.Fetcher, logger)
	if err != nil {
		return nil, err
	}

	maxConcurrent := cfg.Hybrid.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}

	h := &HybridExtractor{
		cfg:     cfg.Hybrid,
		fetcher: fetcher,
		html:    &HTMLExtractor{},
		pdf:     &PDFExtractor{},
		sem:     semaphore.NewWeighted(maxConcurrent),
		logger:  log.With(logger, "component", "hybrid-extractor"),
	}

	if cfg.Hybrid.Enabled && cfg.Hybrid.StructuredURL != "" {
		h.structured, err = NewStructuredExtractor(cfg.Hybrid, logger)
		if err != nil {
			return nil, err
		}
	}

	return h, nil
}

// Extract produces canonical content for one capture. ExtractionSeconds is
// wall-clock time over the whole flow, fallbacks included.
func (h *HybridExtractor) Extract(ctx context.Context, capture model.Capture) (*model.ExtractedContent, error) {
	start := time.Now()

	content, err := h.extract(ctx, capture)
	if err != nil {
		metricExtractionsTotal.WithLabelValues("none", "error").Inc()
		return nil, err
	}

	content.ExtractionSeconds = time.Since(start).Seconds()
	metricExtractionsTotal.WithLabelValues(content.ExtractionMethod, "success").Inc()
	metricExtractionSeconds.WithLabelValues(content.ExtractionMethod).Observe(content.ExtractionSeconds)
	metricQualityScore.Observe(QualityScore(content))
	return content, nil
}

func (h *HybridExtractor) extract(ctx context.Context, capture model.Capture) (*model.ExtractedContent, error) {
	if h.structured != nil && h.shouldUseStructured(capture) {
		content, err := h.extractStructured(ctx, capture)
		if err == nil && strings.TrimSpace(content.Text) != "" {
			return content, nil
		}

		if !h.cfg.FallbackEnabled {
			if err == nil {
				err = NewContentExtractionError("structured service returned no text")
			}
			return nil, err
		}

		level.Debug(h.logger).Log("msg", "structured extraction failed, using local fallback", "url", capture.OriginalURL, "err", err)
		content, err = h.extractLocal(ctx, capture)
		if err != nil {
			return nil, err
		}
		content.ExtractionMethod = "hybrid_fallback"
		return content, nil
	}

	content, err := h.extractLocal(ctx, capture)
	if err != nil {
		return nil, err
	}
	if content.ExtractionMethod == "html" {
		content.ExtractionMethod = "hybrid_beautifulsoup"
	}
	return content, nil
}

func (h *HybridExtractor) extractStructured(ctx context.Context, capture model.Capture) (*model.ExtractedContent, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer h.sem.Release(1)
	return h.structured.Extract(ctx, capture.RawContentURL())
}

func (h *HybridExtractor) extractLocal(ctx context.Context, capture model.Capture) (*model.ExtractedContent, error) {
	body, contentType, err := h.fetcher.Fetch(ctx, capture.RawContentURL())
	if err != nil {
		return nil, err
	}
	if capture.IsPDF() || strings.Contains(strings.ToLower(contentType), "pdf") {
		return h.pdf.Extract(body)
	}
	return h.html.Extract(body)
}

// shouldUseStructured decides whether a capture earns the expensive path.
func (h *HybridExtractor) shouldUseStructured(capture model.Capture) bool {
	if capture.IsPDF() {
		return true
	}

	host, path := hostAndPath(capture.OriginalURL)

	for _, tld := range h.cfg.QualityBoostTLDs {
		// ".gov" also matches country variants like data.gov.uk, and a
		// trailing-dot entry like ".ac." matches as an infix.
		if strings.HasSuffix(host, tld) || strings.Contains(host, strings.TrimSuffix(tld, ".")+".") {
			return true
		}
	}
	for _, hv := range h.cfg.HighValueDomains {
		if strings.Contains(host, hv) {
			return true
		}
	}
	if h.cfg.MinContentLength > 0 && capture.Length >= h.cfg.MinContentLength {
		return true
	}
	for _, kw := range h.cfg.ImportantKeywords {
		if strings.Contains(path, kw) {
			return true
		}
	}
	for _, p := range importantPathPatterns {
		if strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func hostAndPath(rawURL string) (string, string) {
	raw := strings.ToLower(rawURL)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", strings.ToLower(rawURL)
	}
	return u.Hostname(), u.Path
}
