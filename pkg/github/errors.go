package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
)

var (
	// ErrNotFound means the repository or commit does not exist or is hidden.
	ErrNotFound = errors.New("github: not found")
	// ErrAuth means the token is missing, invalid or lacks access.
	ErrAuth = errors.New("github: authentication failed")
	// ErrRateLimited means the primary or secondary rate limit was hit.
	ErrRateLimited = errors.New("github: rate limited")
	// ErrTransient covers 5xx responses and transport failures.
	ErrTransient = errors.New("github: transient failure")
)

// APIError is a classified GitHub failure. It matches both its Kind and the
// underlying error with errors.Is / errors.As.
type APIError struct {
	Op         string
	Kind       error
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

func classify(op string, resp *github.Response, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	var kind error
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		kind = ErrRateLimited
	case status == http.StatusTooManyRequests:
		kind = ErrRateLimited
	case status == http.StatusNotFound:
		kind = ErrNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		kind = ErrAuth
	case status >= 500, status == 0:
		kind = ErrTransient
	default:
		return &APIError{Op: op, Kind: errors.New("github: request failed"), StatusCode: status, Err: err}
	}
	return &APIError{Op: op, Kind: kind, StatusCode: status, Err: err}
}
