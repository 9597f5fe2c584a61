package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/tm/internal/task"
)

func node(id string, status task.Status, hours float64) task.Task {
	t := task.Task{ID: id, Title: id, Status: status, Priority: task.PriorityMedium}
	if hours > 0 {
		t.EstimatedHours = &hours
	}
	return t
}

func edge(dependent, prerequisite string) task.Edge {
	return task.Edge{DependentID: dependent, PrerequisiteID: prerequisite}
}

func TestWouldCycle(t *testing.T) {
	g := New(task.Snapshot{
		Tasks: []task.Task{
			node("a", task.StatusPending, 0),
			node("b", task.StatusBlocked, 0),
			node("c", task.StatusBlocked, 0),
		},
		Edges: []task.Edge{edge("b", "a"), edge("c", "b")},
	})

	assert.True(t, g.WouldCycle("a", "a"), "self-loop")
	assert.True(t, g.WouldCycle("a", "c"), "c reaches a through b")
	assert.True(t, g.WouldCycle("a", "b"), "direct back edge")
	assert.False(t, g.WouldCycle("c", "a"), "redundant but acyclic")
	assert.False(t, g.WouldCycle("b", "c"), "forward edges only look at prerequisite chains")
}

func TestTopoOrder(t *testing.T) {
	g := New(task.Snapshot{
		Tasks: []task.Task{
			node("c", task.StatusBlocked, 0),
			node("a", task.StatusPending, 0),
			node("b", task.StatusBlocked, 0),
		},
		Edges: []task.Edge{edge("b", "a"), edge("c", "b")},
	})
	order, ok := g.TopoOrder()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestTopoOrderDetectsCycle(t *testing.T) {
	g := New(task.Snapshot{
		Tasks: []task.Task{node("a", task.StatusPending, 0), node("b", task.StatusPending, 0)},
		Edges: []task.Edge{edge("b", "a"), edge("a", "b")},
	})
	_, ok := g.TopoOrder()
	assert.False(t, ok)
}

func TestCriticalPathChain(t *testing.T) {
	// a(2) <- b(3) <- c(5) against a lighter branch a <- d(1).
	g := New(task.Snapshot{
		Tasks: []task.Task{
			node("a", task.StatusPending, 2),
			node("b", task.StatusBlocked, 3),
			node("c", task.StatusBlocked, 5),
			node("d", task.StatusBlocked, 1),
		},
		Edges: []task.Edge{edge("b", "a"), edge("c", "b"), edge("d", "a")},
	})
	path, total := g.CriticalPath()
	assert.Equal(t, []string{"a", "b", "c"}, path)
	assert.Equal(t, 10.0, total)
}

func TestCriticalPathSkipsCompleted(t *testing.T) {
	g := New(task.Snapshot{
		Tasks: []task.Task{
			node("a", task.StatusCompleted, 8),
			node("b", task.StatusPending, 3),
			node("c", task.StatusBlocked, 2),
		},
		Edges: []task.Edge{edge("b", "a"), edge("c", "b")},
	})
	path, total := g.CriticalPath()
	assert.Equal(t, []string{"b", "c"}, path, "completed work carries no remaining cost")
	assert.Equal(t, 5.0, total)
}

func TestCriticalPathDefaultWeight(t *testing.T) {
	g := New(task.Snapshot{
		Tasks: []task.Task{
			node("a", task.StatusPending, 0),
			node("b", task.StatusBlocked, 0),
		},
		Edges: []task.Edge{edge("b", "a")},
	})
	path, total := g.CriticalPath()
	assert.Equal(t, []string{"a", "b"}, path)
	assert.Equal(t, 2.0, total, "unset estimates count as 1.0 each")
}

func TestCriticalPathZeroEstimates(t *testing.T) {
	zero := 0.0
	a := node("a", task.StatusPending, 0)
	a.EstimatedHours = &zero
	b := node("b", task.StatusBlocked, 0)
	b.EstimatedHours = &zero
	g := New(task.Snapshot{
		Tasks: []task.Task{a, b},
		Edges: []task.Edge{edge("b", "a")},
	})
	path, total := g.CriticalPath()
	assert.Equal(t, []string{"a", "b"}, path, "explicit zero estimates still chain into a path")
	assert.Zero(t, total)
}

func TestCriticalPathTieBreaksByInsertionOrder(t *testing.T) {
	// c sees b first in edge order, but a was created first and the
	// weights tie, so a wins the predecessor slot.
	g := New(task.Snapshot{
		Tasks: []task.Task{
			node("a", task.StatusPending, 2),
			node("b", task.StatusPending, 2),
			node("c", task.StatusBlocked, 1),
		},
		Edges: []task.Edge{edge("c", "b"), edge("c", "a")},
	})
	path, total := g.CriticalPath()
	assert.Equal(t, []string{"a", "c"}, path)
	assert.Equal(t, 3.0, total)
}

func TestCriticalPathEmptyGraph(t *testing.T) {
	path, total := New(task.Snapshot{}).CriticalPath()
	assert.Empty(t, path)
	assert.Zero(t, total)
}

func TestBlockingScoresRanking(t *testing.T) {
	// a blocks b and c directly and d transitively; e blocks nothing.
	g := New(task.Snapshot{
		Tasks: []task.Task{
			node("a", task.StatusPending, 0),
			node("b", task.StatusBlocked, 0),
			node("c", task.StatusBlocked, 0),
			node("d", task.StatusBlocked, 0),
			node("e", task.StatusPending, 0),
		},
		Edges: []task.Edge{edge("b", "a"), edge("c", "a"), edge("d", "b"), edge("d", "c")},
	})

	scores := g.BlockingScores()
	require.Len(t, scores, 5)
	assert.Equal(t, "a", scores[0].TaskID, "the root of the fan-out ranks first")
	assert.Equal(t, "e", scores[len(scores)-1].TaskID, "a leaf blocking nothing ranks last")
	for i := 1; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i-1].Score, scores[i].Score, "descending order")
	}

	// a: 2 direct * 2.0 + 3 transitive * 1.5 + 1.0 weight + on-path bonus 2.0*3.0
	assert.Equal(t, 15.5, scores[0].Score)
}

func TestBlockingScoresExcludeCompleted(t *testing.T) {
	g := New(task.Snapshot{
		Tasks: []task.Task{
			node("a", task.StatusCompleted, 0),
			node("b", task.StatusPending, 0),
		},
		Edges: []task.Edge{edge("b", "a")},
	})
	scores := g.BlockingScores()
	require.Len(t, scores, 1)
	assert.Equal(t, "b", scores[0].TaskID)
}

func TestDuplicateEdgesIgnored(t *testing.T) {
	g := New(task.Snapshot{
		Tasks: []task.Task{node("a", task.StatusPending, 0), node("b", task.StatusBlocked, 0)},
		Edges: []task.Edge{edge("b", "a"), edge("b", "a")},
	})
	assert.Equal(t, []string{"a"}, g.Prerequisites("b"))
	assert.Equal(t, []string{"b"}, g.Dependents("a"))
}
