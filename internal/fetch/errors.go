package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError marks a 404-equivalent response: a definitive negative
// signal that is never retried. Discovery treats it as end-of-pages; the
// pool treats it as an immediate per-URL failure.
type NotFoundError struct {
	URL        string
	StatusCode int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("fetch %s: not found (status %d)", e.URL, e.StatusCode)
}

// TransientError wraps timeouts, connection failures, and retryable HTTP
// statuses. The pool retries these with backoff up to the attempt limit.
type TransientError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Classify maps a failed fetch to its taxonomy type.
func Classify(url string, statusCode int, err error) error {
	if statusCode == http.StatusNotFound || statusCode == http.StatusGone {
		return &NotFoundError{URL: url, StatusCode: statusCode}
	}
	return &TransientError{URL: url, StatusCode: statusCode, Err: err}
}

// IsNotFound reports whether err is a definitive not-found failure.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsRetryable reports whether another attempt could succeed. Any
// TransientError qualifies: the HTTP client's per-request timeout wraps
// context.DeadlineExceeded, and that is a retryable timeout, not the
// caller giving up. The pool checks the caller's own context separately.
func IsRetryable(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
