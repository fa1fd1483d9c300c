package schema

import "errors"

// Error taxonomy for the answering pipeline. The web layer maps these to
// HTTP statuses; everything else is surfaced as a generic internal error.
var (
	// ErrInvalidRequest means the caller's input is malformed (empty
	// question, missing company) and can be corrected by the caller.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrForbidden means the target company is outside the identity's
	// authorized scope. The message must never reveal what data exists
	// for the denied company.
	ErrForbidden = errors.New("forbidden")

	// ErrIdentityNotFound means the authenticated user could not be
	// resolved in the organization directory.
	ErrIdentityNotFound = errors.New("identity not found")

	// ErrCompanyNotFound means the requested company does not exist.
	ErrCompanyNotFound = errors.New("company not found")

	// ErrRetrievalUnavailable means the embedding or vector index
	// capability failed; callers surface a degraded response.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")

	// ErrRateLimited is the retryable signal from the generation
	// capability. The composer retries it with backoff; it never
	// escapes the composer.
	ErrRateLimited = errors.New("generation rate limited")

	// ErrGenerationFailed is a non-retryable upstream generation error.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrUpstreamTimeout means a bounded upstream call exceeded its
	// deadline. No conversation turn is persisted.
	ErrUpstreamTimeout = errors.New("upstream timeout")

	// ErrServiceUnavailable means the generation capability was never
	// initialized (missing credential or config).
	ErrServiceUnavailable = errors.New("service unavailable")
)
