// Package export renders the task database for consumption outside tm,
// as machine-readable JSON or human-readable Markdown.
package export

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/metalagman/tm/internal/task"
)

// record is the stable JSON shape; it flattens dependencies onto each
// task so consumers do not need to join the edge list themselves.
type record struct {
	ID                string                  `json:"id"`
	Title             string                  `json:"title"`
	Status            task.Status             `json:"status"`
	Priority          task.Priority           `json:"priority"`
	Assignee          string                  `json:"assignee,omitempty"`
	EstimatedHours    *float64                `json:"estimated_hours,omitempty"`
	ActualHours       *float64                `json:"actual_hours,omitempty"`
	Deadline          *time.Time              `json:"deadline,omitempty"`
	SuccessCriteria   []task.SuccessCriterion `json:"success_criteria,omitempty"`
	CompletionSummary string                  `json:"completion_summary,omitempty"`
	DependsOn         []string                `json:"depends_on,omitempty"`
	CreatedAt         time.Time               `json:"created_at"`
	UpdatedAt         time.Time               `json:"updated_at"`
}

// JSON renders the snapshot as indented JSON, tasks in creation order.
func JSON(snap task.Snapshot) ([]byte, error) {
	records := toRecords(snap)
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return append(out, '\n'), nil
}

// statusOrder fixes the Markdown section order: actionable work first.
var statusOrder = []task.Status{
	task.StatusInProgress,
	task.StatusPending,
	task.StatusBlocked,
	task.StatusCompleted,
}

var statusHeadings = map[task.Status]string{
	task.StatusInProgress: "In Progress",
	task.StatusPending:    "Pending",
	task.StatusBlocked:    "Blocked",
	task.StatusCompleted:  "Completed",
}

// Markdown renders the snapshot grouped by status. Empty groups are
// omitted.
func Markdown(snap task.Snapshot) string {
	records := toRecords(snap)
	groups := make(map[task.Status][]record)
	for _, r := range records {
		groups[r.Status] = append(groups[r.Status], r)
	}

	var b strings.Builder
	b.WriteString("# Tasks\n")
	for _, st := range statusOrder {
		rs := groups[st]
		if len(rs) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%d)\n\n", statusHeadings[st], len(rs))
		for _, r := range rs {
			b.WriteString(markdownLine(r))
		}
	}
	return b.String()
}

func markdownLine(r record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- `%s` **%s**", r.ID, r.Title)
	details := []string{string(r.Priority)}
	if r.Assignee != "" {
		details = append(details, "@"+r.Assignee)
	}
	if r.EstimatedHours != nil {
		details = append(details, fmt.Sprintf("%gh", *r.EstimatedHours))
	}
	if r.Deadline != nil {
		details = append(details, "due "+r.Deadline.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
	if len(r.DependsOn) > 0 {
		fmt.Fprintf(&b, " depends on %s", strings.Join(r.DependsOn, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

func toRecords(snap task.Snapshot) []record {
	deps := make(map[string][]string)
	for _, e := range snap.Edges {
		deps[e.DependentID] = append(deps[e.DependentID], e.PrerequisiteID)
	}
	records := make([]record, 0, len(snap.Tasks))
	for _, t := range snap.Tasks {
		prereqs := deps[t.ID]
		sort.Strings(prereqs)
		records = append(records, record{
			ID:                t.ID,
			Title:             t.Title,
			Status:            t.Status,
			Priority:          t.Priority,
			Assignee:          t.Assignee,
			EstimatedHours:    t.EstimatedHours,
			ActualHours:       t.ActualHours,
			Deadline:          t.Deadline,
			SuccessCriteria:   t.SuccessCriteria,
			CompletionSummary: t.CompletionSummary,
			DependsOn:         prereqs,
			CreatedAt:         t.CreatedAt,
			UpdatedAt:         t.UpdatedAt,
		})
	}
	return records
}
