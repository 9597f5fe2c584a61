package template

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

const featureTemplate = `
name: feature
description: standard feature rollout
variables:
  - name: feature
    required: true
  - name: owner
    default: alice
tasks:
  - title: "Design {{feature}}"
    priority: high
    assignee: "{{owner}}"
    estimated_hours: 4
  - title: "Implement {{feature}}"
    depends_on: [0]
    success_criteria:
      - "{{feature}} tests pass == true"
  - title: "Ship {{feature}}"
    depends_on: [1]
`

func TestParse(t *testing.T) {
	tpl, err := Parse([]byte(featureTemplate))
	require.NoError(t, err)
	assert.Equal(t, "feature", tpl.Name)
	require.Len(t, tpl.Tasks, 3)
	assert.Equal(t, []int{0}, tpl.Tasks[1].DependsOn)
	require.NotNil(t, tpl.Tasks[0].EstimatedHours)
	assert.Equal(t, 4.0, *tpl.Tasks[0].EstimatedHours)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("name: x\ntasks:\n  - title: a\n    prio: high\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, task.ErrValidation))
}

func TestParseRejectsForwardDependency(t *testing.T) {
	_, err := Parse([]byte("name: x\ntasks:\n  - title: a\n    depends_on: [1]\n  - title: b\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, task.ErrValidation))

	_, err = Parse([]byte("name: x\ntasks:\n  - title: a\n  - title: b\n    depends_on: [1]\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, task.ErrValidation))
}

func TestResolveVariables(t *testing.T) {
	tpl, err := Parse([]byte(featureTemplate))
	require.NoError(t, err)

	_, err = tpl.ResolveVariables(nil)
	require.Error(t, err, "required variable missing")
	assert.True(t, errors.Is(err, task.ErrValidation))

	vars, err := tpl.ResolveVariables(map[string]string{"feature": "search"})
	require.NoError(t, err)
	assert.Equal(t, "search", vars["feature"])
	assert.Equal(t, "alice", vars["owner"], "default applies")

	_, err = tpl.ResolveVariables(map[string]string{"feature": "search", "bogus": "x"})
	require.Error(t, err, "undeclared variable rejected")
}

func TestSubstituteLeavesUnknownPlaceholders(t *testing.T) {
	out := substitute("Build {{feature}} for {{ team }}", map[string]string{"feature": "search"})
	assert.Equal(t, "Build search for {{ team }}", out)
}

func newOrchestrator(t *testing.T) *engine.Orchestrator {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "tasks.db")
	_, err := migrate.New(dir, dbPath).Apply(context.Background())
	require.NoError(t, err)
	sqlDB, err := db.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return engine.New(task.NewStore(sqlDB), nil)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	orc := newOrchestrator(t)

	tpl, err := Parse([]byte(featureTemplate))
	require.NoError(t, err)

	created, err := Apply(ctx, orc, tpl, map[string]string{"feature": "search"})
	require.NoError(t, err)
	require.Len(t, created, 3)

	assert.Equal(t, "Design search", created[0].Title)
	assert.Equal(t, task.StatusPending, created[0].Status)
	assert.Equal(t, "alice", created[0].Assignee)

	assert.Equal(t, "Implement search", created[1].Title)
	assert.Equal(t, task.StatusBlocked, created[1].Status)

	prereqs, err := orc.Prerequisites(ctx, created[2].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{created[1].ID}, prereqs)
}
