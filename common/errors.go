package common

import "errors"

// ErrNotFound is returned when a requested item (e.g., cache key, remote row) is not found.
var ErrNotFound = errors.New("heartsync: requested item not found")

// Additional package-level errors
var (
	// ErrDisabled indicates a query was invoked without its required identity
	// parameter (e.g. no authenticated user yet). It marks a no-op state, not
	// a failure, and is never retried.
	ErrDisabled        = errors.New("heartsync: query disabled, required identity parameter missing")
	ErrStoreNotSet     = errors.New("heartsync: remote store not set")
	ErrFeedNotSet      = errors.New("heartsync: change feed not set")
	ErrNilContext      = errors.New("heartsync: nil context provided")
	ErrUnsubscribed    = errors.New("heartsync: subscription already torn down")
	ErrInvalidPageSize = errors.New("heartsync: invalid page size, must be >= 1")
	// ErrFreshnessWindow indicates a configured staleness window exceeding its
	// retention window.
	ErrFreshnessWindow = errors.New("heartsync: staleness window must not exceed retention window")
)
