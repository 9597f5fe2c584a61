package task

import "errors"

// Sentinel errors shared across the store, graph, and engine layers.
// Callers discriminate with errors.Is; messages wrapped around these carry
// the operation-specific detail.
var (
	// ErrNotFound indicates the referenced task does not exist or was deleted.
	ErrNotFound = errors.New("task not found")

	// ErrValidation indicates malformed caller input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrCycleDetected indicates the requested edge would close a dependency cycle.
	ErrCycleDetected = errors.New("dependency cycle detected")

	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrCriteriaUnmet indicates completion was refused because success
	// criteria did not pass and force was not set.
	ErrCriteriaUnmet = errors.New("success criteria unmet")

	// ErrStoreBusy indicates lock contention that persisted past the retry budget.
	ErrStoreBusy = errors.New("store busy")

	// ErrStoreCorrupt indicates the database file is unreadable or inconsistent.
	// Never auto-repaired.
	ErrStoreCorrupt = errors.New("store corrupt")

	// ErrNoBackupAvailable indicates a rollback was requested with no backup on disk.
	ErrNoBackupAvailable = errors.New("no backup available")
)
