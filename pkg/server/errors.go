package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/saint0x/ggchangelog/pkg/github"
	"github.com/saint0x/ggchangelog/pkg/lock"
	"github.com/saint0x/ggchangelog/pkg/pipeline"
	"github.com/saint0x/ggchangelog/pkg/store"
)

// StatusFor maps an error to the HTTP status returned to the caller.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest), errors.Is(err, pipeline.ErrInvalidWindow):
		return http.StatusBadRequest
	case errors.Is(err, github.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lock.ErrLocked):
		return http.StatusConflict
	case errors.Is(err, github.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, github.ErrAuth):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
