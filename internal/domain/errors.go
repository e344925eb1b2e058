package domain

import "github.com/storesync/storesync/pkg/errors"

const (
	// ErrNotFound is returned on point lookups that matched nothing.
	ErrNotFound = errors.Sentinel("not found")
	// ErrNotConfigured rejects sync attempts for stores or entity types
	// without an enabled configuration or rule.
	ErrNotConfigured = errors.Sentinel("sync not configured")
	// ErrStaleState signals a lost race on a conditional state transition.
	ErrStaleState = errors.Sentinel("stale state")
	// ErrInvalidTransition guards the queue/batch state machines.
	ErrInvalidTransition = errors.Sentinel("invalid state transition")
	// ErrAlreadyResolved rejects resolving a conflict twice.
	ErrAlreadyResolved = errors.Sentinel("conflict already resolved")
	// ErrBatchInProgress enforces one batch per (store, entity type).
	ErrBatchInProgress = errors.Sentinel("batch already in progress")
	// ErrChecksumMismatch fails a batch whose payload did not verify.
	ErrChecksumMismatch = errors.Sentinel("payload checksum mismatch")
	// ErrValidation rejects malformed input without partial state change.
	ErrValidation = errors.Sentinel("validation failed")
	// ErrCancelled reports that a batch stopped on an operator request.
	ErrCancelled = errors.Sentinel("sync cancelled")
)
