package domain

import "errors"

var (
	// ErrNotFound signals a missing record.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateRecord signals a dedupe key collision on a forced insert.
	ErrDuplicateRecord = errors.New("duplicate record")
	// ErrValidation signals a malformed record before write-through.
	ErrValidation = errors.New("validation failed")
	// ErrProviderUnavailable signals that the external provider could not be
	// reached (circuit open or retries exhausted).
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrIndexDegraded signals that the fast search tier could not serve a
	// query. Not fatal: callers fall back to the record store.
	ErrIndexDegraded = errors.New("search index degraded")
	// ErrQuotaExceeded signals an exhausted daily provider call quota.
	ErrQuotaExceeded = errors.New("daily provider quota exceeded")
)
