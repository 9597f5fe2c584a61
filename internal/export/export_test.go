package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/tm/internal/task"
)

func sampleSnapshot() task.Snapshot {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	hours := 4.0
	return task.Snapshot{
		Tasks: []task.Task{
			{ID: "aaa11111", Title: "Design schema", Status: task.StatusCompleted, Priority: task.PriorityHigh, CreatedAt: now, UpdatedAt: now},
			{ID: "bbb22222", Title: "Build API", Status: task.StatusInProgress, Priority: task.PriorityMedium, Assignee: "alice", EstimatedHours: &hours, CreatedAt: now, UpdatedAt: now},
			{ID: "ccc33333", Title: "Ship frontend", Status: task.StatusBlocked, Priority: task.PriorityLow, CreatedAt: now, UpdatedAt: now},
		},
		Edges: []task.Edge{
			{DependentID: "ccc33333", PrerequisiteID: "bbb22222"},
			{DependentID: "bbb22222", PrerequisiteID: "aaa11111"},
		},
	}
}

func TestJSONFlattensDependencies(t *testing.T) {
	out, err := JSON(sampleSnapshot())
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(out, &records))
	require.Len(t, records, 3)

	byID := make(map[string]map[string]any)
	for _, r := range records {
		byID[r["id"].(string)] = r
	}
	assert.Equal(t, []any{"bbb22222"}, byID["ccc33333"]["depends_on"])
	assert.Nil(t, byID["aaa11111"]["depends_on"])
	assert.Equal(t, "alice", byID["bbb22222"]["assignee"])
}

func TestMarkdownGroupsByStatus(t *testing.T) {
	out := Markdown(sampleSnapshot())

	assert.Contains(t, out, "# Tasks")
	assert.Contains(t, out, "## In Progress (1)")
	assert.Contains(t, out, "## Blocked (1)")
	assert.Contains(t, out, "## Completed (1)")
	assert.NotContains(t, out, "## Pending")

	// Actionable sections come before completed work.
	assert.Less(t, strings.Index(out, "## In Progress"), strings.Index(out, "## Completed"))

	assert.Contains(t, out, "`bbb22222` **Build API** (medium, @alice, 4h)")
	assert.Contains(t, out, "depends on bbb22222")
}

func TestMarkdownEmptySnapshot(t *testing.T) {
	out := Markdown(task.Snapshot{})
	assert.Equal(t, "# Tasks\n", out)
}
