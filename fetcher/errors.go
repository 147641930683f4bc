package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrNotFound reports that the catalogue answered with a redirect where an
// existing resource would have been served directly.
type ErrNotFound struct {
	URL      string
	Status   int
	Location string
}

func (e ErrNotFound) Error() string {
	if e.Location == "" {
		return fmt.Sprintf("not_found: %s redirected (%d)", e.URL, e.Status)
	}
	return fmt.Sprintf("not_found: %s redirected to %s (%d)", e.URL, e.Location, e.Status)
}

// ErrRetriesExhausted is returned once every attempt hit a transient failure.
type ErrRetriesExhausted struct {
	URL      string
	Attempts int
	Status   int
	Err      error
}

func (e ErrRetriesExhausted) Error() string {
	return fmt.Errorf("retries_exhausted: %s after %d attempts: %w", e.URL, e.Attempts, e.Err).Error()
}

func (e ErrRetriesExhausted) Unwrap() error {
	return e.Err
}

// ErrStatus is an HTTP status the client does not retry.
type ErrStatus struct {
	URL  string
	Code int
}

func (e ErrStatus) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Code, e.URL)
}

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

// ErrForbidden indicates a forbidden response (HTTP 403).
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string {
	return fmt.Errorf("forbidden: %w", e.Err).Error()
}

func (e ErrForbidden) Unwrap() error {
	return e.Err
}

// ErrRateLimited indicates the target rate-limited the request.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string {
	return fmt.Errorf("rate_limited: %w", e.Err).Error()
}

func (e ErrRateLimited) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err carries a redirect-signalled absence.
func IsNotFound(err error) bool {
	var notFound ErrNotFound
	return errors.As(err, &notFound)
}

// IsExhausted reports whether err is a transient failure that outlived the retry budget.
func IsExhausted(err error) bool {
	var exhausted ErrRetriesExhausted
	return errors.As(err, &exhausted)
}

// ErrorTypeLabel maps an error onto a short metric/log label.
func ErrorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var exhausted ErrRetriesExhausted
	if errors.As(err, &exhausted) {
		return "retries_exhausted"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var status ErrStatus
	if errors.As(err, &status) {
		return "status"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "other"
}

func classifyError(err error, statusCode int, rawURL string) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := ErrStatus{URL: rawURL, Code: statusCode}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		return wrapped
	}

	return err
}

// transient reports whether a classified transport error is worth another attempt.
func transient(err error) bool {
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return true
	}
	var conn ErrConnection
	return errors.As(err, &conn)
}
