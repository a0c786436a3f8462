package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the upstream throttled the request (HTTP 429).
type ErrRateLimited struct {
	RetryAfter time.Duration
	Err        error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited (retry after %s): %w", e.RetryAfter, e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// ErrUpstreamUnavailable indicates a transient failure: HTTP 5xx or a
// network error. It is retried.
type ErrUpstreamUnavailable struct {
	StatusCode int
	Err        error
}

func (e ErrUpstreamUnavailable) Error() string {
	return fmt.Errorf("upstream_unavailable: %w", e.Err).Error()
}

func (e ErrUpstreamUnavailable) Unwrap() error {
	return e.Err
}

// ErrRequestRejected indicates a client-side fault (HTTP 4xx other than 429
// or a request colly refused to send). It is never retried.
type ErrRequestRejected struct {
	StatusCode int
	Err        error
}

func (e ErrRequestRejected) Error() string {
	return fmt.Errorf("request_rejected: %w", e.Err).Error()
}

func (e ErrRequestRejected) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var rejected ErrRequestRejected
	if errors.As(err, &rejected) {
		return "rejected"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var unavailable ErrUpstreamUnavailable
	if errors.As(err, &unavailable) {
		return "upstream_unavailable"
	}
	return "other"
}

// collyRefusals are errors colly returns before any byte is sent.
var collyRefusals = []error{
	colly.ErrForbiddenDomain,
	colly.ErrMissingURL,
	colly.ErrForbiddenURL,
	colly.ErrNoURLFiltersMatch,
}

// classifyError maps a request failure onto the retry taxonomy. header may be
// nil; fallbackWait is used when a 429 carries no usable Retry-After.
func classifyError(err error, statusCode int, header http.Header, fallbackWait time.Duration) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		} else {
			wrapped = fmt.Errorf("http status %d: %w", statusCode, err)
		}
		switch {
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{RetryAfter: retryAfter(header, fallbackWait, time.Now()), Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrUpstreamUnavailable{StatusCode: statusCode, Err: wrapped}
		case statusCode >= http.StatusBadRequest:
			return ErrRequestRejected{StatusCode: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}

	for _, refusal := range collyRefusals {
		if errors.Is(err, refusal) {
			return ErrRequestRejected{Err: err}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUpstreamUnavailable{Err: ErrTimeout{Err: err}}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrUpstreamUnavailable{Err: ErrTimeout{Err: err}}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrUpstreamUnavailable{Err: ErrConnection{Err: err}}
	}
	return ErrUpstreamUnavailable{StatusCode: statusCode, Err: err}
}

// retryAfter reads the Retry-After header as delay-seconds or an HTTP date.
func retryAfter(header http.Header, fallback time.Duration, now time.Time) time.Duration {
	if header == nil {
		return fallback
	}
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(raw); err == nil {
		if d := when.Sub(now); d > 0 {
			return d
		}
	}
	return fallback
}
