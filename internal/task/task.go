// Package task defines the task domain model and its SQLite persistence.
package task

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusBlocked    Status = "blocked"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusDeleted    Status = "deleted"
)

// Valid reports whether s is one of the five known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusBlocked, StatusInProgress, StatusCompleted, StatusDeleted:
		return true
	}
	return false
}

// Terminal reports whether no further user-driven transitions apply.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusDeleted
}

// Priority orders tasks for presentation and filtering only.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// SuccessCriterion is a single completion criterion with an optional
// measurable expression evaluated at completion time.
type SuccessCriterion struct {
	Criterion  string `json:"criterion"`
	Measurable string `json:"measurable,omitempty"`
}

// Task is a unit of work tracked by the orchestrator.
type Task struct {
	ID                string
	Title             string
	Status            Status
	Priority          Priority
	Assignee          string
	EstimatedHours    *float64
	ActualHours       *float64
	Deadline          *time.Time
	SuccessCriteria   []SuccessCriterion
	CompletionSummary string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Edge is a directed dependency: the dependent cannot leave blocked until
// the prerequisite is completed.
type Edge struct {
	DependentID    string
	PrerequisiteID string
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status   *Status
	Assignee string
	HasDeps  bool
}

// Snapshot is a point-in-time read of all live tasks and edges, used by the
// graph analysis layer so computations never touch a mutating store.
type Snapshot struct {
	Tasks []Task
	Edges []Edge
}

// ValidateTitle rejects empty or whitespace-only titles.
func ValidateTitle(title string) bool {
	return strings.TrimSpace(title) != ""
}
