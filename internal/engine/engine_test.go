package engine_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/tm/internal/db"
	"github.com/metalagman/tm/internal/engine"
	"github.com/metalagman/tm/internal/migrate"
	"github.com/metalagman/tm/internal/task"
)

func newOrchestrator(t *testing.T) *engine.Orchestrator {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tasks.db")
	_, err := migrate.New(dir, dbPath).Apply(context.Background())
	require.NoError(t, err)
	handle, err := db.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = handle.Close() })
	return engine.New(task.NewStore(handle), nil)
}

func add(t *testing.T, orc *engine.Orchestrator, title string, deps ...string) task.Task {
	t.Helper()
	created, err := orc.Add(context.Background(), engine.Draft{Title: title, DependsOn: deps})
	require.NoError(t, err)
	return created
}

func TestAddValidation(t *testing.T) {
	orc := newOrchestrator(t)
	ctx := context.Background()

	_, err := orc.Add(ctx, engine.Draft{Title: "   "})
	assert.True(t, errors.Is(err, task.ErrValidation), "empty title")

	_, err = orc.Add(ctx, engine.Draft{Title: "x", Priority: "urgent"})
	assert.True(t, errors.Is(err, task.ErrValidation), "unknown priority")

	negative := -1.0
	_, err = orc.Add(ctx, engine.Draft{Title: "x", EstimatedHours: &negative})
	assert.True(t, errors.Is(err, task.ErrValidation), "negative estimate")

	_, err = orc.Add(ctx, engine.Draft{Title: "x", SuccessCriteria: []task.SuccessCriterion{{Criterion: "  "}}})
	assert.True(t, errors.Is(err, task.ErrValidation), "blank criterion")

	zero := 0.0
	created, err := orc.Add(ctx, engine.Draft{Title: "x", EstimatedHours: &zero})
	require.NoError(t, err, "zero estimate is allowed")
	require.NotNil(t, created.EstimatedHours)

	bad := "tomorrow"
	_, err = orc.Add(ctx, engine.Draft{Title: "y", Deadline: &bad})
	assert.True(t, errors.Is(err, task.ErrValidation), "non-RFC3339 deadline")
}

func TestAddDefaults(t *testing.T) {
	orc := newOrchestrator(t)
	created := add(t, orc, "defaults")
	assert.Equal(t, task.PriorityMedium, created.Priority)
	assert.Equal(t, task.StatusPending, created.Status)
	assert.Len(t, created.ID, 8)
}

func TestLinkRejectsCycleBeforeWrite(t *testing.T) {
	orc := newOrchestrator(t)
	ctx := context.Background()

	a := add(t, orc, "a")
	b := add(t, orc, "b", a.ID)
	c := add(t, orc, "c", b.ID)

	_, err := orc.Link(ctx, a.ID, []string{c.ID})
	assert.True(t, errors.Is(err, task.ErrCycleDetected))

	_, err = orc.Link(ctx, a.ID, []string{a.ID})
	assert.True(t, errors.Is(err, task.ErrCycleDetected))

	_, err = orc.Link(ctx, "nothere1", []string{a.ID})
	assert.True(t, errors.Is(err, task.ErrNotFound))

	_, err = orc.Link(ctx, a.ID, []string{"nothere1"})
	assert.True(t, errors.Is(err, task.ErrValidation))

	_, err = orc.Link(ctx, a.ID, nil)
	assert.True(t, errors.Is(err, task.ErrValidation))
}

func TestUpdateStatusTransitions(t *testing.T) {
	orc := newOrchestrator(t)
	ctx := context.Background()

	a := add(t, orc, "a")
	b := add(t, orc, "b", a.ID)

	require.NoError(t, orc.UpdateStatus(ctx, a.ID, task.StatusInProgress))
	require.NoError(t, orc.UpdateStatus(ctx, a.ID, task.StatusPending), "in_progress back to pending")

	err := orc.UpdateStatus(ctx, a.ID, task.StatusBlocked)
	assert.True(t, errors.Is(err, task.ErrInvalidTransition), "blocked is graph-managed")

	err = orc.UpdateStatus(ctx, b.ID, task.StatusInProgress)
	assert.True(t, errors.Is(err, task.ErrInvalidTransition), "blocked tasks cannot start")

	err = orc.UpdateStatus(ctx, a.ID, task.Status("bogus"))
	assert.True(t, errors.Is(err, task.ErrValidation))
}

func TestUpdateStatusCompletedRoutesThroughCascade(t *testing.T) {
	orc := newOrchestrator(t)
	ctx := context.Background()

	a := add(t, orc, "a")
	b := add(t, orc, "b", a.ID)

	require.NoError(t, orc.UpdateStatus(ctx, a.ID, task.StatusCompleted))

	got, err := orc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusPending, got.Status, "cascade ran even via update")
}

func TestCompleteWithCriteria(t *testing.T) {
	orc := newOrchestrator(t)
	ctx := context.Background()

	created, err := orc.Add(ctx, engine.Draft{
		Title: "guarded",
		SuccessCriteria: []task.SuccessCriterion{
			{Criterion: "coverage", Measurable: "coverage > 80"},
		},
	})
	require.NoError(t, err)

	_, err = orc.Complete(ctx, created.ID, engine.CompleteOptions{
		Validate: true,
		Context:  map[string]any{"coverage": 70},
	})
	assert.True(t, errors.Is(err, task.ErrCriteriaUnmet))

	got, err := orc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.NotEqual(t, task.StatusCompleted, got.Status, "failed validation does not complete")

	outcome, err := orc.Complete(ctx, created.ID, engine.CompleteOptions{
		Validate: true,
		Context:  map[string]any{"coverage": 90},
	})
	require.NoError(t, err)
	require.Len(t, outcome.CriteriaResults, 1)
	assert.True(t, outcome.CriteriaResults[0].Passed)
}

func TestCompleteForceRecordsUnmetCriteria(t *testing.T) {
	orc := newOrchestrator(t)
	ctx := context.Background()

	created, err := orc.Add(ctx, engine.Draft{
		Title: "guarded",
		SuccessCriteria: []task.SuccessCriterion{
			{Criterion: "coverage", Measurable: "coverage > 80"},
		},
	})
	require.NoError(t, err)

	_, err = orc.Complete(ctx, created.ID, engine.CompleteOptions{
		Validate: true,
		Force:    true,
		Summary:  "shipping anyway",
		Context:  map[string]any{"coverage": 70},
	})
	require.NoError(t, err)

	got, err := orc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, got.Status)
	assert.Contains(t, got.CompletionSummary, "shipping anyway")
	assert.Contains(t, got.CompletionSummary, "forced completion")
	assert.Contains(t, got.CompletionSummary, "coverage")
}

func TestCompleteIdempotentThroughEngine(t *testing.T) {
	orc := newOrchestrator(t)
	ctx := context.Background()

	a := add(t, orc, "a")
	first, err := orc.Complete(ctx, a.ID, engine.CompleteOptions{Summary: "done"})
	require.NoError(t, err)
	assert.False(t, first.AlreadyCompleted)

	second, err := orc.Complete(ctx, a.ID, engine.CompleteOptions{Summary: "again"})
	require.NoError(t, err)
	assert.True(t, second.AlreadyCompleted)
	assert.Empty(t, second.Unblocked)
}

func TestDeleteReevaluatesDependents(t *testing.T) {
	orc := newOrchestrator(t)
	ctx := context.Background()

	a := add(t, orc, "a")
	b := add(t, orc, "b", a.ID)

	unblocked, err := orc.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, unblocked)

	_, err = orc.Get(ctx, a.ID)
	assert.True(t, errors.Is(err, task.ErrNotFound))
}

func TestCriticalPathAndBlockers(t *testing.T) {
	orc := newOrchestrator(t)
	ctx := context.Background()

	two, five := 2.0, 5.0
	a, err := orc.Add(ctx, engine.Draft{Title: "a", EstimatedHours: &two})
	require.NoError(t, err)
	b, err := orc.Add(ctx, engine.Draft{Title: "b", EstimatedHours: &five, DependsOn: []string{a.ID}})
	require.NoError(t, err)

	path, total, err := orc.CriticalPath(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID, b.ID}, path)
	assert.Equal(t, 7.0, total)

	scores, err := orc.TopBlockers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, a.ID, scores[0].TaskID)
}

func TestWatchDeliversUnblockNotifications(t *testing.T) {
	orc := newOrchestrator(t)
	ctx := context.Background()

	a := add(t, orc, "a")
	b := add(t, orc, "b", a.ID)
	require.NoError(t, orc.Assign(ctx, b.ID, "alice"))

	_, err := orc.Complete(ctx, a.ID, engine.CompleteOptions{})
	require.NoError(t, err)

	notes, err := orc.Watch(ctx, "alice", 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, b.ID, notes[0].TaskID)

	notes, err = orc.Watch(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, notes)
}
