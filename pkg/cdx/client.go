package cdx

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cristalhq/hedgedhttp"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/klauspost/compress/gzhttp"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/hindsightlabs/hindsight/archive/instrumentation"
)

var metricRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "hindsight",
	Name:      "cdx_request_retries_total",
	Help:      "Total CDX request retries by reason.",
}, []string{"reason"})

const (
	retryBaseDelay = 1 * time.Second
	retryMaxDelay  = 10 * time.Second
)

// HTTPError is a non-2xx response from a CDX endpoint. RetryAfter is only
// set on 429 responses that carried a Retry-After header.
type HTTPError struct {
	StatusCode int
	Status     string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

type ClientConfig struct {
	Timeout            time.Duration `yaml:"timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	UserAgent          string        `yaml:"user_agent"`
	HedgeRequestsAt    time.Duration `yaml:"hedge_requests_at"`
	HedgeRequestsUpTo  int           `yaml:"hedge_requests_up_to"`
}

func (cfg *ClientConfig) RegisterFlagsAndApplyDefaults(prefix string, f *flag.FlagSet) {
	cfg.Timeout = 30 * time.Second
	cfg.MaxRetries = 3
	cfg.RateLimitPerSecond = 2
	cfg.UserAgent = "hindsight"
	cfg.HedgeRequestsUpTo = 2
}

// Client is a rate limited HTTP client for CDX endpoints. It retries
// transport failures and 429 responses (honoring Retry-After) up to
// MaxRetries; other non-2xx statuses are returned to the caller for
// classification.
type Client struct {
	cfg     ClientConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  log.Logger
}

// NewClient builds a client on the default transport.
func NewClient(cfg ClientConfig, logger log.Logger) (*Client, error) {
	return NewClientWithTransport(cfg, nil, logger)
}

// NewClientWithTransport builds a client on the given base transport.
// Strategies that route through proxies pass their own transport here.
func NewClientWithTransport(cfg ClientConfig, base http.RoundTripper, logger log.Logger) (*Client, error) {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}

	transport := instrumentation.NewTransport(gzhttp.Transport(base))
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

	var limiter *rate.Limiter
	if cfg.RateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), 1)
	}

	return &Client{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: limiter,
		logger:  logger,
	}, nil
}

// Get fetches the URL and returns the response body.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.getWithRetry(ctx, url, "")
}

// GetRange fetches length bytes of the URL starting at offset. Index segment
// blocks are read this way: each block is an independently decompressable
// gzip member addressed by (offset, length).
func (c *Client) GetRange(ctx context.Context, url string, offset, length int64) ([]byte, error) {
	return c.getWithRetry(ctx, url, fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
}

// GetStream issues a single GET and hands back the response body for
// streaming reads. The caller owns closing it. No retries: streaming callers
// restart the scan themselves.
func (c *Client) GetStream(ctx context.Context, url string) (io.ReadCloser, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building cdx request")
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return resp.Body, nil
}

func (c *Client) getWithRetry(ctx context.Context, url, rangeHeader string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		body, err := c.get(ctx, url, rangeHeader)
		if err == nil {
			return body, nil
		}
		lastErr = err

		wait, reason, retriable := c.retryDelay(err, attempt)
		if !retriable || attempt == c.cfg.MaxRetries {
			break
		}

		metricRetries.WithLabelValues(reason).Inc()
		level.Debug(c.logger).Log("msg", "retrying cdx request", "url", url, "attempt", attempt+1, "wait", wait, "err", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (c *Client) get(ctx context.Context, url, rangeHeader string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building cdx request")
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode == http.StatusTooManyRequests {
			httpErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		}
		return nil, httpErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading cdx response")
	}
	return body, nil
}

// retryDelay decides whether the error warrants another attempt and how long
// to wait first. 429 honors Retry-After when present, other statuses are the
// caller's problem, everything else is a transport failure.
func (c *Client) retryDelay(err error, attempt int) (time.Duration, string, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests {
			if httpErr.RetryAfter > 0 {
				return httpErr.RetryAfter, "rate_limit", true
			}
			return backoffDelay(attempt), "rate_limit", true
		}
		return 0, "", false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, "", false
	}
	return backoffDelay(attempt), "transport", true
}

func backoffDelay(attempt int) time.Duration {
	d := retryBaseDelay << uint(attempt)
	if d > retryMaxDelay {
		d = retryMaxDelay
	}
	return d
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
