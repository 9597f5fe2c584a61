package engine

import (
	"fmt"

	"github.com/metalagman/tm/internal/task"
)

// userTransitions enumerates the status changes a caller may request
// directly. Blocked is never a legal target here: it is only ever forced by
// the engine when a dependency on an incomplete prerequisite is added.
// Leaving blocked happens only through the cascade. Completion and deletion
// have their own operations.
var userTransitions = map[task.Status][]task.Status{
	task.StatusPending:    {task.StatusInProgress},
	task.StatusInProgress: {task.StatusPending},
}

// checkTransition validates a caller-requested status change.
func checkTransition(from, to task.Status) error {
	if !to.Valid() {
		return fmt.Errorf("unknown status %q: %w", to, task.ErrValidation)
	}
	if from == to {
		return nil
	}
	for _, allowed := range userTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%s -> %s: %w", from, to, task.ErrInvalidTransition)
}
