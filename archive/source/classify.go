package source

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"github.com/hindsightlabs/hindsight/pkg/cdx"
	"github.com/hindsightlabs/hindsight/pkg/circuitbreaker"
)

// Classify maps a strategy error onto the shared taxonomy. Strategies with
// provider-specific kinds (smartproxy auth) wrap this with their own checks.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return KindProviderUnavailable
	}

	var httpErr *cdx.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests:
			return KindRateLimit
		case httpErr.StatusCode == http.StatusUnauthorized,
			httpErr.StatusCode == http.StatusForbidden,
			httpErr.StatusCode == http.StatusProxyAuthRequired:
			return KindAuth
		case httpErr.StatusCode >= 500:
			return KindProviderUnavailable
		}
		return KindUnexpected
	}

	if isTransport(err) {
		return KindTransport
	}
	return KindUnexpected
}

// Retriable reports whether retrying the same strategy can reasonably
// succeed. Auth failures and open breakers are not retriable: the former
// won't heal on their own and the latter is handled by the fallback policy.
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}

	switch Classify(err) {
	case KindTransport, KindRateLimit, KindProviderUnavailable:
		return true
	}

	// Proxy pool errors are worth one more try: the next request rotates
	// to a different exit.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "proxy") && !strings.Contains(msg, "authentication")
}

// IsAuthStatus reports whether the error is an HTTP auth failure (401, 403
// or 407).
func IsAuthStatus(err error) bool {
	var httpErr *cdx.HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	switch httpErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusProxyAuthRequired:
		return true
	}
	return false
}

func isTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"connection reset", "connection refused", "broken pipe", "no such host", "timeout", "timed out"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
