package criteria

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/tm/internal/task"
)

func TestParse(t *testing.T) {
	out, err := Parse(`[{"criterion": "tests pass", "measurable": "passed == total"}]`)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "tests pass", out[0].Criterion)
	assert.Equal(t, "passed == total", out[0].Measurable)
}

func TestParseRejectsBadShapes(t *testing.T) {
	cases := []string{
		`{"criterion": "not an array"}`,
		`[{"measurable": "passed == total"}]`,
		`[{"criterion": ""}]`,
		`[{"criterion": "x", "extra": 1}]`,
	}
	for _, raw := range cases {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestEvaluateEquality(t *testing.T) {
	criteria := []task.SuccessCriterion{
		{Criterion: "coverage target", Measurable: "coverage == 80"},
	}

	ok, results := Evaluate(criteria, map[string]any{"coverage": 80})
	assert.True(t, ok)
	require.Len(t, results, 1)
	assert.True(t, results[0].Passed)

	ok, results = Evaluate(criteria, map[string]any{"coverage": 75})
	assert.False(t, ok)
	assert.False(t, results[0].Passed)
	assert.Contains(t, results[0].Reason, "!=")
}

func TestEvaluateNumericComparisons(t *testing.T) {
	ok, results := Evaluate([]task.SuccessCriterion{
		{Criterion: "fast enough", Measurable: "latency < 200"},
		{Criterion: "enough users", Measurable: "users > 100"},
	}, map[string]any{"latency": 150, "users": 250})
	assert.True(t, ok)
	assert.True(t, results[0].Passed)
	assert.True(t, results[1].Passed)

	ok, _ = Evaluate([]task.SuccessCriterion{
		{Criterion: "fast enough", Measurable: "latency < 200"},
	}, map[string]any{"latency": 350})
	assert.False(t, ok)
}

func TestEvaluateQuotedStrings(t *testing.T) {
	ok, _ := Evaluate([]task.SuccessCriterion{
		{Criterion: "deployed", Measurable: `env == "production"`},
	}, map[string]any{"env": "production"})
	assert.True(t, ok)
}

func TestEvaluateLiterals(t *testing.T) {
	ok, results := Evaluate([]task.SuccessCriterion{
		{Criterion: "always", Measurable: "true"},
		{Criterion: "never", Measurable: "false"},
	}, nil)
	assert.False(t, ok)
	assert.True(t, results[0].Passed)
	assert.False(t, results[1].Passed)
}

func TestEvaluateEmptyMeasurablePasses(t *testing.T) {
	ok, results := Evaluate([]task.SuccessCriterion{
		{Criterion: "judgement call"},
	}, nil)
	assert.True(t, ok)
	assert.Equal(t, "no measurable defined", results[0].Reason)
}

func TestEvaluateUnparsableNeedsManualValidation(t *testing.T) {
	ok, results := Evaluate([]task.SuccessCriterion{
		{Criterion: "vibes", Measurable: "ship it when ready"},
		{Criterion: "non-numeric compare", Measurable: "alpha < beta"},
	}, nil)
	assert.False(t, ok)
	assert.Equal(t, "requires manual validation", results[0].Reason)
	assert.Equal(t, "requires manual validation", results[1].Reason)
}

func TestUnmetAndReport(t *testing.T) {
	_, results := Evaluate([]task.SuccessCriterion{
		{Criterion: "a", Measurable: "true"},
		{Criterion: "b", Measurable: "false"},
	}, nil)

	assert.Equal(t, []string{"b"}, Unmet(results))

	report := FormatReport(results)
	assert.Contains(t, report, "[PASS] a")
	assert.Contains(t, report, "[FAIL] b")
}
