package apperrors

import "fmt"

// ValidationError reports malformed or incomplete caller input. Handlers map
// it to a 400 response.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("Missing field: %s", e.Field)
}

func NewValidationError(field string) *ValidationError {
	return &ValidationError{Field: field}
}

// UpstreamServiceError wraps a failure from an external provider (embedding,
// search, chat completion). Handlers map it to a 502 response when it is not
// already absorbed by a degraded path.
type UpstreamServiceError struct {
	Provider string
	Err      error
}

func (e *UpstreamServiceError) Error() string {
	return fmt.Sprintf("%s service failure: %v", e.Provider, e.Err)
}

func (e *UpstreamServiceError) Unwrap() error {
	return e.Err
}

func NewUpstreamServiceError(provider string, err error) *UpstreamServiceError {
	return &UpstreamServiceError{Provider: provider, Err: err}
}

// RateLimitError marks a 429 from a provider or from our own limiter, kept
// distinct so clients can back off.
type RateLimitError struct {
	Provider string
}

func (e *RateLimitError) Error() string {
	if e.Provider == "" {
		return "rate limit exceeded"
	}
	return fmt.Sprintf("%s rate limit exceeded", e.Provider)
}

// PersistenceError reports a relational or index write failure during
// ingestion. Whether it surfaces to the caller depends on the pipeline's
// fail-fast setting.
type PersistenceError struct {
	Store string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s write failure: %v", e.Store, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func NewPersistenceError(store string, err error) *PersistenceError {
	return &PersistenceError{Store: store, Err: err}
}
