package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// reachableSQL reports whether :from transitively depends on :to by walking
// prerequisite links. Run inside the same transaction that inserts an edge so
// racing writers cannot slip a cycle past the pre-write check.
const reachableSQL = `
WITH RECURSIVE reach(id) AS (
  SELECT prerequisite_id FROM task_edges WHERE dependent_id = ?
  UNION
  SELECT e.prerequisite_id FROM task_edges e JOIN reach r ON e.dependent_id = r.id
)
SELECT 1 FROM reach WHERE id = ? LIMIT 1`

// CreateTask inserts the task row and its dependency edges in one
// transaction. Prerequisites must exist and be live; the initial status is
// computed inside the transaction: blocked when any prerequisite is
// incomplete, pending otherwise.
func (s *Store) CreateTask(ctx context.Context, t Task, prereqIDs []string) (Task, error) {
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	criteriaJSON, err := marshalCriteria(t.SuccessCriteria)
	if err != nil {
		return Task{}, err
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return Task{}, fmt.Errorf("begin create task: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	incomplete, err := checkPrerequisites(ctx, tx, prereqIDs)
	if err != nil {
		return Task{}, err
	}
	t.Status = StatusPending
	if incomplete > 0 {
		t.Status = StatusBlocked
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Title, string(t.Status), string(t.Priority), nullableString(t.Assignee),
		nullableFloat(t.EstimatedHours), nullableFloat(t.ActualHours), nullableTime(t.Deadline),
		criteriaJSON, nullableString(t.CompletionSummary),
		now.Format(time.RFC3339), now.Format(time.RFC3339))
	if err != nil {
		return Task{}, fmt.Errorf("insert task: %w", classify(err))
	}
	if err := insertEdges(ctx, tx, t.ID, prereqIDs, now); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, fmt.Errorf("commit create task: %w", classify(err))
	}
	return t, nil
}

// LinkDependencies adds edges from an existing live task to prerequisites.
// When any prerequisite is incomplete the task is forced to blocked; this is
// the one place a status is set against caller intent. Returns the resulting
// status.
func (s *Store) LinkDependencies(ctx context.Context, id string, prereqIDs []string) (Status, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return "", fmt.Errorf("begin link: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	current, err := rowStatus(ctx, tx, id)
	if err != nil {
		return "", err
	}
	if current == StatusCompleted || current == StatusDeleted {
		return "", fmt.Errorf("task %s is %s: %w", id, current, ErrInvalidTransition)
	}
	incomplete, err := checkPrerequisites(ctx, tx, prereqIDs)
	if err != nil {
		return "", err
	}

	// Reject-before-write ran against a snapshot in the engine; re-verify here
	// against the transaction's view to close the race with concurrent linkers.
	for _, prereq := range prereqIDs {
		if prereq == id {
			return "", fmt.Errorf("task %s cannot depend on itself: %w", id, ErrCycleDetected)
		}
		var one int
		err := tx.QueryRowContext(ctx, reachableSQL, prereq, id).Scan(&one)
		if err == nil {
			return "", fmt.Errorf("dependency %s -> %s: %w", id, prereq, ErrCycleDetected)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("cycle check: %w", classify(err))
		}
	}

	if err := insertEdges(ctx, tx, id, prereqIDs, now); err != nil {
		return "", err
	}
	result := current
	if incomplete > 0 && (current == StatusPending || current == StatusInProgress) {
		if err := setStatusTx(ctx, tx, id, StatusBlocked, now); err != nil {
			return "", err
		}
		result = StatusBlocked
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit link: %w", classify(err))
	}
	return result, nil
}

// SetStatus moves a task from one status to another as a compare-and-set:
// the write only lands when the row still carries the status the caller
// validated against, so a transition racing another process (say a cascade
// completing the task between read and write) fails instead of clobbering
// it. Transition legality is the engine's concern.
func (s *Store) SetStatus(ctx context.Context, id string, from, to Status) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(to), now.Format(time.RFC3339), id, string(from))
	if err != nil {
		return fmt.Errorf("update status: %w", classify(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("task %s is %s, not %s: %w", id, current.Status, from, ErrInvalidTransition)
	}
	return nil
}

// Assign sets the task assignee.
func (s *Store) Assign(ctx context.Context, id, assignee string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET assignee=?, updated_at=? WHERE id=? AND status != 'deleted'`,
		nullableString(assignee), now.Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("update assignee: %w", classify(err))
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return nil
}

// CompleteResult reports the outcome of CompleteTask.
type CompleteResult struct {
	// AlreadyCompleted is true when the task was completed before this call;
	// the call is then a no-op with no cascade side effects.
	AlreadyCompleted bool
	// Unblocked lists dependents whose last incomplete prerequisite this was.
	Unblocked []string
}

// CompleteTask marks a task completed and cascades: every direct dependent
// left with no incomplete prerequisite moves from blocked to pending, all
// inside one transaction so a crash mid-cascade cannot strand a dependent.
func (s *Store) CompleteTask(ctx context.Context, id, summary string, actualHours *float64) (CompleteResult, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return CompleteResult{}, fmt.Errorf("begin complete: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	current, err := rowStatus(ctx, tx, id)
	if err != nil {
		return CompleteResult{}, err
	}
	if current == StatusCompleted {
		return CompleteResult{AlreadyCompleted: true}, nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE tasks SET status='completed',
		completion_summary=COALESCE(?, completion_summary),
		actual_hours=COALESCE(?, actual_hours),
		updated_at=? WHERE id=?`,
		nullableString(summary), nullableFloat(actualHours), now.Format(time.RFC3339), id)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("complete task: %w", classify(err))
	}

	unblocked, err := unblockDependents(ctx, tx, id, now)
	if err != nil {
		return CompleteResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return CompleteResult{}, fmt.Errorf("commit complete: %w", classify(err))
	}
	return CompleteResult{Unblocked: unblocked}, nil
}

// DeleteTask soft-deletes a task, removes every edge touching it, and
// re-evaluates former dependents as if those edges never existed. Returns the
// dependents that became pending.
func (s *Store) DeleteTask(ctx context.Context, id string) ([]string, error) {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := rowStatus(ctx, tx, id); err != nil {
		return nil, err
	}

	dependents, err := queryIDs(ctx, tx, `SELECT dependent_id FROM task_edges WHERE prerequisite_id=?`, id)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_edges WHERE dependent_id=? OR prerequisite_id=?`, id, id); err != nil {
		return nil, fmt.Errorf("delete edges: %w", classify(err))
	}
	if err := setStatusTx(ctx, tx, id, StatusDeleted, now); err != nil {
		return nil, err
	}

	var unblocked []string
	for _, dep := range dependents {
		status, err := rowStatus(ctx, tx, dep)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if status != StatusBlocked {
			continue
		}
		var remaining int
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM task_edges e
			JOIN tasks p ON p.id = e.prerequisite_id
			WHERE e.dependent_id=? AND p.status != 'completed'`, dep).Scan(&remaining)
		if err != nil {
			return nil, fmt.Errorf("count prerequisites: %w", classify(err))
		}
		if remaining == 0 {
			if err := setStatusTx(ctx, tx, dep, StatusPending, now); err != nil {
				return nil, err
			}
			if err := insertNotification(ctx, tx, dep, "unblocked",
				fmt.Sprintf("task %s unblocked: prerequisite %s deleted", dep, id), "", now); err != nil {
				return nil, err
			}
			unblocked = append(unblocked, dep)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", classify(err))
	}
	return unblocked, nil
}

// unblockDependents moves every blocked dependent of prereqID with no other
// incomplete prerequisite to pending and records a notification for each.
func unblockDependents(ctx context.Context, tx *sql.Tx, prereqID string, now time.Time) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT t.id, COALESCE(t.assignee, '') FROM tasks t
		JOIN task_edges e ON e.dependent_id = t.id
		WHERE e.prerequisite_id = ? AND t.status = 'blocked'
		AND NOT EXISTS (
			SELECT 1 FROM task_edges e2
			JOIN tasks p ON p.id = e2.prerequisite_id
			WHERE e2.dependent_id = t.id
			AND e2.prerequisite_id != ?
			AND p.status != 'completed'
		)`, prereqID, prereqID)
	if err != nil {
		return nil, fmt.Errorf("query unblock candidates: %w", classify(err))
	}
	type candidate struct{ id, assignee string }
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.id, &c.assignee); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan unblock candidate: %w", classify(err))
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate unblock candidates: %w", classify(err))
	}
	rows.Close()

	var unblocked []string
	for _, c := range candidates {
		if err := setStatusTx(ctx, tx, c.id, StatusPending, now); err != nil {
			return nil, err
		}
		if err := insertNotification(ctx, tx, c.id, "unblocked",
			fmt.Sprintf("task %s unblocked: all prerequisites completed", c.id), c.assignee, now); err != nil {
			return nil, err
		}
		unblocked = append(unblocked, c.id)
	}
	return unblocked, nil
}

// checkPrerequisites verifies every id references a live task and returns how
// many of them are not yet completed.
func checkPrerequisites(ctx context.Context, tx *sql.Tx, prereqIDs []string) (int, error) {
	incomplete := 0
	seen := make(map[string]bool, len(prereqIDs))
	for _, prereq := range prereqIDs {
		if seen[prereq] {
			continue
		}
		seen[prereq] = true
		status, err := rowStatus(ctx, tx, prereq)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return 0, fmt.Errorf("dependency %s: %w", prereq, ErrValidation)
			}
			return 0, err
		}
		if status != StatusCompleted {
			incomplete++
		}
	}
	return incomplete, nil
}

func insertEdges(ctx context.Context, tx *sql.Tx, dependentID string, prereqIDs []string, now time.Time) error {
	for _, prereq := range prereqIDs {
		_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_edges(dependent_id, prerequisite_id, created_at)
			VALUES(?, ?, ?)`, dependentID, prereq, now.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("insert edge: %w", classify(err))
		}
	}
	return nil
}

// rowStatus reads a task status inside tx. Missing and deleted rows both
// report ErrNotFound.
func rowStatus(ctx context.Context, tx *sql.Tx, id string) (Status, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id=?`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return "", fmt.Errorf("read status: %w", classify(err))
	}
	if Status(status) == StatusDeleted {
		return "", fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return Status(status), nil
}

func setStatusTx(ctx context.Context, tx *sql.Tx, id string, status Status, now time.Time) error {
	if _, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, updated_at=? WHERE id=?`,
		string(status), now.Format(time.RFC3339), id); err != nil {
		return fmt.Errorf("set status %s: %w", status, classify(err))
	}
	return nil
}

func queryIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", classify(err))
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", classify(err))
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", classify(err))
	}
	return out, nil
}
