// Package engine is the orchestration API: the only entry point allowed to
// mutate tasks and dependency edges. Every invariant is enforced here before
// anything reaches the store, and transient store contention is retried with
// bounded backoff before surfacing to the caller.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/metalagman/tm/internal/criteria"
	"github.com/metalagman/tm/internal/db"
	"github.com/metalagman/tm/internal/graph"
	"github.com/metalagman/tm/internal/task"
	"github.com/metalagman/tm/internal/telemetry"
	"github.com/rs/zerolog/log"
)

// Orchestrator coordinates the store, graph analysis, and state machine.
// The store handle is constructor-injected so tests can run against isolated
// databases.
type Orchestrator struct {
	store *task.Store
	tel   *telemetry.Capture
}

// New creates an orchestrator. tel may be nil.
func New(store *task.Store, tel *telemetry.Capture) *Orchestrator {
	return &Orchestrator{store: store, tel: tel}
}

// Draft carries the caller-supplied fields for a new task.
type Draft struct {
	Title           string
	Priority        task.Priority
	Assignee        string
	EstimatedHours  *float64
	Deadline        *string // RFC3339; parsed and validated here
	SuccessCriteria []task.SuccessCriterion
	DependsOn       []string
}

// Add validates a draft, computes its initial status from its prerequisites,
// and persists the task with its edges in one transaction.
func (o *Orchestrator) Add(ctx context.Context, draft Draft) (task.Task, error) {
	if !task.ValidateTitle(draft.Title) {
		return task.Task{}, fmt.Errorf("title must not be empty: %w", task.ErrValidation)
	}
	if draft.Priority == "" {
		draft.Priority = task.PriorityMedium
	}
	if !draft.Priority.Valid() {
		return task.Task{}, fmt.Errorf("unknown priority %q: %w", draft.Priority, task.ErrValidation)
	}
	if err := checkHours(draft.EstimatedHours); err != nil {
		return task.Task{}, err
	}
	deadline, err := parseDeadline(draft.Deadline)
	if err != nil {
		return task.Task{}, err
	}
	for _, c := range draft.SuccessCriteria {
		if strings.TrimSpace(c.Criterion) == "" {
			return task.Task{}, fmt.Errorf("success criterion must not be empty: %w", task.ErrValidation)
		}
	}

	t := task.Task{
		ID:              newID(),
		Title:           strings.TrimSpace(draft.Title),
		Priority:        draft.Priority,
		Assignee:        draft.Assignee,
		EstimatedHours:  draft.EstimatedHours,
		Deadline:        deadline,
		SuccessCriteria: draft.SuccessCriteria,
	}

	var created task.Task
	err = db.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		created, err = o.store.CreateTask(ctx, t, draft.DependsOn)
		return err
	})
	if err != nil {
		return task.Task{}, err
	}
	o.tel.TaskCreated(created.ID, len(created.SuccessCriteria) > 0, created.Deadline != nil, created.EstimatedHours != nil)
	log.Debug().Str("task_id", created.ID).Str("status", string(created.Status)).Msg("task added")
	return created, nil
}

// Link adds dependency edges from an existing task to prerequisites,
// rejecting unknown endpoints and cycles before any write. When a
// prerequisite is incomplete the task is forced to blocked, overriding
// caller intent.
func (o *Orchestrator) Link(ctx context.Context, id string, prereqIDs []string) (task.Status, error) {
	if len(prereqIDs) == 0 {
		return "", fmt.Errorf("at least one prerequisite is required: %w", task.ErrValidation)
	}
	snap, err := o.store.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	g := graph.New(snap)
	if !g.Has(id) {
		return "", fmt.Errorf("task %s: %w", id, task.ErrNotFound)
	}
	for _, prereq := range prereqIDs {
		if !g.Has(prereq) {
			return "", fmt.Errorf("dependency %s: %w", prereq, task.ErrValidation)
		}
		if g.WouldCycle(id, prereq) {
			return "", fmt.Errorf("dependency %s -> %s: %w", id, prereq, task.ErrCycleDetected)
		}
	}

	var status task.Status
	err = db.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		status, err = o.store.LinkDependencies(ctx, id, prereqIDs)
		return err
	})
	return status, err
}

// UpdateStatus applies a caller-requested transition. Requesting completed
// routes through Complete so the cascade can never be bypassed; requesting
// blocked or deleted is always rejected.
func (o *Orchestrator) UpdateStatus(ctx context.Context, id string, to task.Status) error {
	if to == task.StatusCompleted {
		_, err := o.Complete(ctx, id, CompleteOptions{})
		return err
	}
	current, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := checkTransition(current.Status, to); err != nil {
		return err
	}
	if current.Status == to {
		return nil
	}
	return db.WithRetry(ctx, func(ctx context.Context) error {
		return o.store.SetStatus(ctx, id, current.Status, to)
	})
}

// Assign sets the task assignee.
func (o *Orchestrator) Assign(ctx context.Context, id, assignee string) error {
	return db.WithRetry(ctx, func(ctx context.Context) error {
		return o.store.Assign(ctx, id, assignee)
	})
}

// CompleteOptions controls completion behavior.
type CompleteOptions struct {
	// Validate evaluates success criteria before completing.
	Validate bool
	// Force completes even when validation fails; the unmet criteria are
	// recorded in the completion summary.
	Force bool
	// Context supplies values for measurable expressions.
	Context     map[string]any
	Summary     string
	ActualHours *float64
}

// CompleteOutcome reports what Complete did.
type CompleteOutcome struct {
	AlreadyCompleted bool
	Unblocked        []string
	CriteriaResults  []criteria.Result
}

// Complete marks a task completed and cascades to its dependents: every
// dependent whose last incomplete prerequisite this was moves from blocked
// to pending, inside one transaction. Completing an already-completed task
// is a no-op, not an error.
func (o *Orchestrator) Complete(ctx context.Context, id string, opts CompleteOptions) (CompleteOutcome, error) {
	if err := checkHours(opts.ActualHours); err != nil {
		return CompleteOutcome{}, err
	}
	current, err := o.store.Get(ctx, id)
	if err != nil {
		return CompleteOutcome{}, err
	}

	var outcome CompleteOutcome
	summary := opts.Summary
	if opts.Validate && len(current.SuccessCriteria) > 0 {
		allPassed, results := criteria.Evaluate(current.SuccessCriteria, opts.Context)
		outcome.CriteriaResults = results
		o.tel.CriteriaValidated(id, len(results)-len(criteria.Unmet(results)), len(results))
		if !allPassed {
			unmet := criteria.Unmet(results)
			if !opts.Force {
				return outcome, fmt.Errorf("unmet criteria [%s]: %w", strings.Join(unmet, "; "), task.ErrCriteriaUnmet)
			}
			note := "forced completion; unmet criteria: " + strings.Join(unmet, "; ")
			if summary != "" {
				summary += "\n" + note
			} else {
				summary = note
			}
		}
	}

	var result task.CompleteResult
	err = db.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		result, err = o.store.CompleteTask(ctx, id, summary, opts.ActualHours)
		return err
	})
	if err != nil {
		return outcome, err
	}
	outcome.AlreadyCompleted = result.AlreadyCompleted
	outcome.Unblocked = result.Unblocked
	if !result.AlreadyCompleted {
		o.tel.TaskCompleted(id, opts.Validate, len(result.Unblocked))
		log.Debug().Str("task_id", id).Strs("unblocked", result.Unblocked).Msg("task completed")
	}
	return outcome, nil
}

// Delete removes a task and every edge touching it, re-evaluating former
// dependents as if those edges never existed.
func (o *Orchestrator) Delete(ctx context.Context, id string) ([]string, error) {
	var unblocked []string
	err := db.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		unblocked, err = o.store.DeleteTask(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("task_id", id).Strs("unblocked", unblocked).Msg("task deleted")
	return unblocked, nil
}

// Get fetches a task by id.
func (o *Orchestrator) Get(ctx context.Context, id string) (task.Task, error) {
	return o.store.Get(ctx, id)
}

// List returns tasks matching the filter.
func (o *Orchestrator) List(ctx context.Context, f task.Filter) ([]task.Task, error) {
	return o.store.List(ctx, f)
}

// Export returns a consistent snapshot of all live tasks and edges.
func (o *Orchestrator) Export(ctx context.Context) (task.Snapshot, error) {
	return o.store.Snapshot(ctx)
}

// Prerequisites returns the direct prerequisite ids of a task.
func (o *Orchestrator) Prerequisites(ctx context.Context, id string) ([]string, error) {
	return o.store.Prerequisites(ctx, id)
}

// Dependents returns the direct dependent ids of a task.
func (o *Orchestrator) Dependents(ctx context.Context, id string) ([]string, error) {
	return o.store.Dependents(ctx, id)
}

// CriticalPath computes the maximum-weight prerequisite chain over the
// incomplete subgraph from a fresh snapshot.
func (o *Orchestrator) CriticalPath(ctx context.Context) ([]string, float64, error) {
	snap, err := o.store.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	path, total := graph.New(snap).CriticalPath()
	return path, total, nil
}

// TopBlockers ranks tasks by blocking score and returns the top n.
func (o *Orchestrator) TopBlockers(ctx context.Context, n int) ([]graph.Score, error) {
	snap, err := o.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	scores := graph.New(snap).BlockingScores()
	if n > 0 && len(scores) > n {
		scores = scores[:n]
	}
	return scores, nil
}

// Watch returns unread notifications for the agent, marking them read.
func (o *Orchestrator) Watch(ctx context.Context, agentID string, limit int) ([]task.Notification, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []task.Notification
	err := db.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		out, err = o.store.UnreadNotifications(ctx, agentID, limit)
		return err
	})
	return out, err
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func parseDeadline(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*raw))
	if err != nil {
		return nil, fmt.Errorf("deadline must be RFC3339: %w", task.ErrValidation)
	}
	return &ts, nil
}

func checkHours(hours *float64) error {
	if hours != nil && *hours < 0 {
		return fmt.Errorf("hours must not be negative: %w", task.ErrValidation)
	}
	return nil
}
