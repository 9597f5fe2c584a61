package task

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store manages task and edge persistence. All multi-row logical operations
// open their own transaction so a crash never leaves a partial write.
type Store struct {
	db *sql.DB
}

// NewStore creates a task store over an opened database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const taskColumns = `id, title, status, priority, assignee, estimated_hours, actual_hours, deadline, success_criteria, completion_summary, created_at, updated_at`

// classify maps sqlite driver errors onto the store error taxonomy. Busy and
// locked become ErrStoreBusy so callers can retry; corrupt or unreadable
// databases become ErrStoreCorrupt and are never retried.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %v", ErrStoreBusy, err)
	case sqlite3.SQLITE_CORRUPT, sqlite3.SQLITE_NOTADB:
		return fmt.Errorf("%w: %v", ErrStoreCorrupt, err)
	}
	return err
}

// Get fetches a task by id. Deleted tasks read as not found.
func (s *Store) Get(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return Task{}, classify(err)
	}
	if t.Status == StatusDeleted {
		return Task{}, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, nil
}

// List returns tasks matching the filter in insertion order. Deleted tasks
// are excluded unless explicitly requested by status.
func (s *Store) List(ctx context.Context, f Filter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	args := []any{}
	if f.Status != nil {
		query += " AND status=?"
		args = append(args, string(*f.Status))
	} else {
		query += " AND status != 'deleted'"
	}
	if f.Assignee != "" {
		query += " AND assignee=?"
		args = append(args, f.Assignee)
	}
	if f.HasDeps {
		query += " AND EXISTS (SELECT 1 FROM task_edges e WHERE e.dependent_id = tasks.id)"
	}
	query += " ORDER BY rowid"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", classify(err))
	}
	defer rows.Close()
	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", classify(err))
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", classify(err))
	}
	return out, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func edges(ctx context.Context, q querier) ([]Edge, error) {
	rows, err := q.QueryContext(ctx, `SELECT dependent_id, prerequisite_id FROM task_edges ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", classify(err))
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.DependentID, &e.PrerequisiteID); err != nil {
			return nil, fmt.Errorf("scan edge: %w", classify(err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edges: %w", classify(err))
	}
	return out, nil
}

// Prerequisites returns the direct prerequisite ids of a task.
func (s *Store) Prerequisites(ctx context.Context, id string) ([]string, error) {
	return s.neighborIDs(ctx, `SELECT prerequisite_id FROM task_edges WHERE dependent_id=? ORDER BY rowid`, id)
}

// Dependents returns the direct dependent ids of a task.
func (s *Store) Dependents(ctx context.Context, id string) ([]string, error) {
	return s.neighborIDs(ctx, `SELECT dependent_id FROM task_edges WHERE prerequisite_id=? ORDER BY rowid`, id)
}

func (s *Store) neighborIDs(ctx context.Context, query, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query neighbors: %w", classify(err))
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", classify(err))
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate neighbors: %w", classify(err))
	}
	return out, nil
}

// Snapshot reads all live tasks and edges inside one read transaction so the
// graph layer computes over a consistent point in time.
func (s *Store) Snapshot(ctx context.Context) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin snapshot: %w", classify(err))
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status != 'deleted' ORDER BY rowid`)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot tasks: %w", classify(err))
	}
	var snap Snapshot
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			rows.Close()
			return Snapshot{}, fmt.Errorf("scan snapshot task: %w", classify(err))
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Snapshot{}, fmt.Errorf("iterate snapshot tasks: %w", classify(err))
	}
	rows.Close()

	snap.Edges, err = edges(ctx, tx)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(sc scanner) (Task, error) {
	var t Task
	var status, priority, createdAt, updatedAt string
	var assignee, deadline, criteriaJSON, summary sql.NullString
	var estimated, actual sql.NullFloat64
	err := sc.Scan(&t.ID, &t.Title, &status, &priority, &assignee,
		&estimated, &actual, &deadline, &criteriaJSON, &summary, &createdAt, &updatedAt)
	if err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	if assignee.Valid {
		t.Assignee = assignee.String
	}
	if estimated.Valid {
		v := estimated.Float64
		t.EstimatedHours = &v
	}
	if actual.Valid {
		v := actual.Float64
		t.ActualHours = &v
	}
	if deadline.Valid {
		ts, err := time.Parse(time.RFC3339, deadline.String)
		if err != nil {
			return Task{}, fmt.Errorf("parse deadline: %w", err)
		}
		t.Deadline = &ts
	}
	if criteriaJSON.Valid && criteriaJSON.String != "" {
		if err := json.Unmarshal([]byte(criteriaJSON.String), &t.SuccessCriteria); err != nil {
			return Task{}, fmt.Errorf("parse success criteria: %w", err)
		}
	}
	if summary.Valid {
		t.CompletionSummary = summary.String
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Task{}, fmt.Errorf("parse created_at: %w", err)
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Task{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return t, nil
}

func marshalCriteria(criteria []SuccessCriterion) (any, error) {
	if len(criteria) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(criteria)
	if err != nil {
		return nil, fmt.Errorf("marshal success criteria: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339)
}
