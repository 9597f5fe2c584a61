// Package graph provides read-only dependency analysis: cycle checks,
// critical-path computation, and blocking scores. A Graph is built from a
// store snapshot and never mutates state; stale in-memory graphs are avoided
// by rebuilding from a fresh snapshot per query.
package graph

import (
	"sort"

	"github.com/metalagman/tm/internal/task"
)

const defaultWeight = 1.0

// Graph is an adjacency view of tasks keyed by id.
type Graph struct {
	tasks    map[string]task.Task
	order    map[string]int // insertion index, used for deterministic tie-breaks
	ordered  []string
	prereqs  map[string][]string // dependent -> prerequisites
	depends  map[string][]string // prerequisite -> dependents
	edgeSeen map[[2]string]bool
}

// New builds a graph from a snapshot. Task order in the snapshot is taken as
// insertion order.
func New(snap task.Snapshot) *Graph {
	g := &Graph{
		tasks:    make(map[string]task.Task, len(snap.Tasks)),
		order:    make(map[string]int, len(snap.Tasks)),
		prereqs:  make(map[string][]string),
		depends:  make(map[string][]string),
		edgeSeen: make(map[[2]string]bool, len(snap.Edges)),
	}
	for i, t := range snap.Tasks {
		g.tasks[t.ID] = t
		g.order[t.ID] = i
		g.ordered = append(g.ordered, t.ID)
	}
	for _, e := range snap.Edges {
		g.addEdge(e.DependentID, e.PrerequisiteID)
	}
	return g
}

func (g *Graph) addEdge(dependent, prerequisite string) {
	key := [2]string{dependent, prerequisite}
	if g.edgeSeen[key] {
		return
	}
	g.edgeSeen[key] = true
	g.prereqs[dependent] = append(g.prereqs[dependent], prerequisite)
	g.depends[prerequisite] = append(g.depends[prerequisite], dependent)
}

// Has reports whether id is a node in the graph.
func (g *Graph) Has(id string) bool {
	_, ok := g.tasks[id]
	return ok
}

// Prerequisites returns the direct prerequisites of id.
func (g *Graph) Prerequisites(id string) []string {
	return append([]string(nil), g.prereqs[id]...)
}

// Dependents returns the direct dependents of id.
func (g *Graph) Dependents(id string) []string {
	return append([]string(nil), g.depends[id]...)
}

// WouldCycle reports whether adding dependent -> prerequisite closes a cycle:
// true when the prerequisite already reaches the dependent through its own
// prerequisite chain, or when the edge is a self-loop. Run before the edge is
// persisted, never after.
func (g *Graph) WouldCycle(dependent, prerequisite string) bool {
	if dependent == prerequisite {
		return true
	}
	stack := append([]string(nil), g.prereqs[prerequisite]...)
	seen := map[string]bool{prerequisite: true}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if current == dependent {
			return true
		}
		if seen[current] {
			continue
		}
		seen[current] = true
		stack = append(stack, g.prereqs[current]...)
	}
	return false
}

// TopoOrder returns the node ids in topological order (prerequisites first),
// or ok=false when the edge set contains a cycle. Ties resolve by insertion
// order.
func (g *Graph) TopoOrder() ([]string, bool) {
	inDegree := make(map[string]int, len(g.tasks))
	for id := range g.tasks {
		inDegree[id] = 0
	}
	for dependent, prereqs := range g.prereqs {
		for _, p := range prereqs {
			if _, ok := g.tasks[p]; ok {
				inDegree[dependent]++
			}
		}
	}
	var queue []string
	for _, id := range g.ordered {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	var out []string
	for len(queue) > 0 {
		sort.Slice(queue, func(i, j int) bool { return g.order[queue[i]] < g.order[queue[j]] })
		node := queue[0]
		queue = queue[1:]
		out = append(out, node)
		for _, dependent := range g.depends[node] {
			if _, ok := g.tasks[dependent]; !ok {
				continue
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if len(out) != len(g.tasks) {
		return nil, false
	}
	return out, true
}

// CriticalPath computes the maximum-weight prerequisite chain over the
// non-completed subgraph, weighting each task by estimated hours (1.0 when
// unset). Returns the path in prerequisite-first order with its total weight.
// A cyclic edge set, which the write path should have made impossible,
// reports an empty path rather than looping.
func (g *Graph) CriticalPath() ([]string, float64) {
	sub := g.incompleteSubgraph()
	order, ok := sub.TopoOrder()
	if !ok {
		return nil, 0
	}

	// Weight ties resolve toward the longer chain, then insertion order,
	// so zero-estimate tasks still form and extend paths.
	longest := make(map[string]float64, len(order))
	depth := make(map[string]int, len(order))
	predecessor := make(map[string]string, len(order))
	for _, id := range order {
		best := 0.0
		bestDepth := 0
		bestPred := ""
		for _, p := range sub.prereqs[id] {
			if _, live := sub.tasks[p]; !live {
				continue
			}
			better := bestPred == "" ||
				longest[p] > best ||
				(longest[p] == best && depth[p] > bestDepth) ||
				(longest[p] == best && depth[p] == bestDepth && sub.order[p] < sub.order[bestPred])
			if better {
				best = longest[p]
				bestDepth = depth[p]
				bestPred = p
			}
		}
		longest[id] = best + sub.weight(id)
		depth[id] = 1
		if bestPred != "" {
			depth[id] = bestDepth + 1
			predecessor[id] = bestPred
		}
	}

	end := ""
	total := 0.0
	endDepth := 0
	for _, id := range sub.ordered {
		if end == "" || longest[id] > total || (longest[id] == total && depth[id] > endDepth) {
			total = longest[id]
			endDepth = depth[id]
			end = id
		}
	}
	if end == "" {
		return nil, 0
	}
	var path []string
	for current := end; current != ""; current = predecessor[current] {
		path = append(path, current)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, total
}

func (g *Graph) weight(id string) float64 {
	t, ok := g.tasks[id]
	if !ok || t.EstimatedHours == nil {
		return defaultWeight
	}
	return *t.EstimatedHours
}

// incompleteSubgraph keeps only tasks still in play for the critical path.
func (g *Graph) incompleteSubgraph() *Graph {
	snap := task.Snapshot{}
	for _, id := range g.ordered {
		t := g.tasks[id]
		if t.Status == task.StatusCompleted || t.Status == task.StatusDeleted {
			continue
		}
		snap.Tasks = append(snap.Tasks, t)
	}
	live := make(map[string]bool, len(snap.Tasks))
	for _, t := range snap.Tasks {
		live[t.ID] = true
	}
	for dependent, prereqs := range g.prereqs {
		if !live[dependent] {
			continue
		}
		for _, p := range prereqs {
			if live[p] {
				snap.Edges = append(snap.Edges, task.Edge{DependentID: dependent, PrerequisiteID: p})
			}
		}
	}
	return New(snap)
}

// Score pairs a task id with its blocking score.
type Score struct {
	TaskID string
	Score  float64
}

// BlockingScores ranks how severely each task blocks the rest of the graph:
// direct dependents weigh double, transitive incomplete dependents weigh
// 1.5x, the task's own weight counts once, and critical-path membership adds
// a fixed bonus. Completed and deleted tasks score zero. Results sort by
// descending score, ties by insertion order.
func (g *Graph) BlockingScores() []Score {
	criticalPath, _ := g.CriticalPath()
	onPath := make(map[string]bool, len(criticalPath))
	for _, id := range criticalPath {
		onPath[id] = true
	}

	var scores []Score
	for _, id := range g.ordered {
		t := g.tasks[id]
		if t.Status == task.StatusCompleted || t.Status == task.StatusDeleted {
			continue
		}
		direct := 0
		for _, d := range g.depends[id] {
			if g.incomplete(d) {
				direct++
			}
		}
		transitive := 0
		for _, d := range g.transitiveDependents(id) {
			if g.incomplete(d) {
				transitive++
			}
		}
		pathBonus := 1.0
		if onPath[id] {
			pathBonus = 2.0
		}
		score := float64(direct)*2.0 + float64(transitive)*1.5 + g.weight(id) + pathBonus*3.0
		scores = append(scores, Score{TaskID: id, Score: score})
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	return scores
}

func (g *Graph) incomplete(id string) bool {
	t, ok := g.tasks[id]
	if !ok {
		return false
	}
	switch t.Status {
	case task.StatusPending, task.StatusBlocked, task.StatusInProgress:
		return true
	}
	return false
}

// transitiveDependents returns every task reachable from id over dependent
// links, id excluded.
func (g *Graph) transitiveDependents(id string) []string {
	var out []string
	seen := map[string]bool{id: true}
	stack := append([]string(nil), g.depends[id]...)
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[current] {
			continue
		}
		seen[current] = true
		out = append(out, current)
		stack = append(stack, g.depends[current]...)
	}
	return out
}
