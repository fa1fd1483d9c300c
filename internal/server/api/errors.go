package api

import (
	"errors"
	"net/http"

	"finsight/internal/chat/schema"
	"finsight/internal/user"
)

// statusFromError maps pipeline and auth errors onto HTTP statuses.
// Anything unrecognized becomes a generic 500; raw error text from
// upstream providers never reaches a client.
func statusFromError(err error) (int, string) {
	switch {
	case errors.Is(err, schema.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, user.ErrInvalidToken), errors.Is(err, schema.ErrIdentityNotFound):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, schema.ErrForbidden):
		return http.StatusForbidden, "access to this company is not allowed"
	case errors.Is(err, schema.ErrCompanyNotFound):
		return http.StatusNotFound, "company not found"
	case errors.Is(err, schema.ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests, try again later"
	case errors.Is(err, schema.ErrRetrievalUnavailable), errors.Is(err, schema.ErrServiceUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	case errors.Is(err, schema.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout, "the answer took too long to produce"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
