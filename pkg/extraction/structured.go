package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cristalhq/hedgedhttp"
	"github.com/go-kit/log"
	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzhttp"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/archive/instrumentation"
	"github.com/hindsightlabs/hindsight/pkg/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxStructuredResponse = 64 * 1024 * 1024

// StructuredExtractor delegates extraction to an external rendering service
// that runs the page through a real browser and returns markdown. Used for
// high-value captures where local parsing leaves too much behind.
type StructuredExtractor struct {
	cfg    HybridConfig
	client *http.Client
	logger log.Logger
}

func NewStructuredExtractor(cfg HybridConfig, logger log.Logger) (*StructuredExtractor, error) {
	transport := http.RoundTripper(instrumentation.NewTransport(gzhttp.Transport(http.DefaultTransport.(*http.Transport).Clone())))
	if cfg.Timeout > 0 {
		var (
			stats *hedgedhttp.Stats
			err   error
		)
		transport, stats, err = hedgedhttp.NewRoundTripperAndStats(cfg.Timeout/2, 1, transport)
		if err != nil {
			return nil, err
		}
		instrumentation.PublishHedgedMetrics(stats)
	}

	return &StructuredExtractor{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

type structuredRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type structuredResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Content  string `json:"content"`
		HTML     string `json:"html"`
		Markdown string `json:"markdown"`
		Metadata struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			Language    string `json:"language"`
		} `json:"metadata"`
	} `json:"data"`
}

func (e *StructuredExtractor) Extract(ctx context.Context, pageURL string) (*model.ExtractedContent, error) {
	payload, err := json.Marshal(structuredRequest{
		URL:             pageURL,
		Formats:         []string{"markdown", "html"},
		OnlyMainContent: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding structured request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.StructuredURL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "building structured request")
	}
	req.Header.Set("Content-Type", "application/json")
	if key := e.cfg.APIKey.String(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "calling structured service")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &ContentExtractionError{
			Reason:     fmt.Sprintf("structured service HTTP %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStructuredResponse))
	if err != nil {
		return nil, errors.Wrap(err, "reading structured response")
	}

	var sr structuredResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, &ContentExtractionError{Reason: "decoding structured response", Cause: err}
	}
	if !sr.Success {
		return nil, NewContentExtractionError("structured service reported failure")
	}

	text := sr.Data.Content
	if text == "" {
		// Some deployments only return markdown.
		text = sr.Data.Markdown
	}

	return model.NewExtractedContent(model.ExtractedContent{
		Title:            sr.Data.Metadata.Title,
		Text:             collapseWhitespace(text),
		Markdown:         sr.Data.Markdown,
		HTML:             sr.Data.HTML,
		MetaDescription:  sr.Data.Metadata.Description,
		Language:         sr.Data.Metadata.Language,
		ExtractionMethod: "firecrawl",
	}), nil
}
