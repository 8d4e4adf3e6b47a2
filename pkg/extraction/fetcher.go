package extraction

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cristalhq/hedgedhttp"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/backoff"
	"github.com/klauspost/compress/gzhttp"
	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/archive/instrumentation"
)

const fetchUserAgent = "hindsight"

// Initial try plus three retries for transport-level failures.
var fetchBackoff = backoff.Config{
	MinBackoff: 5 * time.Second,
	MaxBackoff: 30 * time.Second,
	MaxRetries: 4,
}

// Fetcher retrieves raw capture bytes from archive playback endpoints.
// Replay hosts routinely stall mid-body, so every response is read through a
// size guard and transport errors are retried with backoff. HTTP statuses
// are never retried; the orchestrator decides what a 404 means for the page.
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client
	logger log.Logger
}

func NewFetcher(cfg FetcherConfig, logger log.Logger) (*Fetcher, error) {
	transport := instrumentation.NewTransport(gzhttp.Transport(http.DefaultTransport.(*http.Transport).Clone()))
	if cfg.HedgeRequestsAt != 0 {
		var (
			stats *hedgedhttp.Stats
			err   error
		)
		transport, stats, err = hedgedhttp.NewRoundTripperAndStats(cfg.HedgeRequestsAt, cfg.HedgeRequestsUpTo, transport)
		if err != nil {
			return nil, err
		}
		instrumentation.PublishHedgedMetrics(stats)
	}

	return &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		logger: logger,
	}, nil
}

// Fetch returns the body and Content-Type of the URL. Bodies over
// MaxContentSize fail with ErrContentTooLarge, checked against the
// advertised Content-Length before any bytes are read and again while
// reading.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	var lastErr error

	boff := backoff.New(ctx, fetchBackoff)
	for boff.Ongoing() {
		body, contentType, err := f.fetchOnce(ctx, url)
		if err == nil {
			metricFetchesTotal.WithLabelValues("success").Inc()
			metricFetchBytes.Observe(float64(len(body)))
			return body, contentType, nil
		}
		lastErr = err
		if !retriableFetch(err) {
			metricFetchesTotal.WithLabelValues("error").Inc()
			return nil, "", err
		}
		level.Debug(f.logger).Log("msg", "content fetch failed, will retry", "url", url, "retries", boff.NumRetries(), "err", err)
		boff.Wait()
	}

	metricFetchesTotal.WithLabelValues("error").Inc()
	if lastErr == nil {
		lastErr = boff.Err()
	}
	return nil, "", lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", errors.Wrap(err, "building content request")
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, "", &ContentExtractionError{
			Reason:     fmt.Sprintf("HTTP %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	if resp.ContentLength > f.cfg.MaxContentSize {
		return nil, "", errors.Wrapf(ErrContentTooLarge, "advertised %d bytes, cap %d", resp.ContentLength, f.cfg.MaxContentSize)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxContentSize+1))
	if err != nil {
		return nil, "", errors.Wrap(err, "reading content body")
	}
	if int64(len(body)) > f.cfg.MaxContentSize {
		return nil, "", errors.Wrapf(ErrContentTooLarge, "body exceeds cap %d", f.cfg.MaxContentSize)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// Only transport-level failures retry. Statuses, size rejections and caller
// cancellation all surface immediately.
func retriableFetch(err error) bool {
	var ce *ContentExtractionError
	switch {
	case errors.As(err, &ce):
		return false
	case errors.Is(err, ErrContentTooLarge):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}
