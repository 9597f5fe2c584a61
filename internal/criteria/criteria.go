// Package criteria parses and evaluates task success criteria. Criteria are
// declared as {criterion, measurable} pairs; the measurable is a small
// comparison expression evaluated against a completion context.
package criteria

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/metalagman/tm/internal/task"
	"github.com/xeipuuv/gojsonschema"
)

const schemaJSON = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["criterion"],
    "properties": {
      "criterion": {"type": "string", "minLength": 1},
      "measurable": {"type": "string"}
    },
    "additionalProperties": false
  }
}`

// Parse validates raw criteria JSON against the schema and decodes it.
func Parse(raw string) ([]task.SuccessCriterion, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schemaJSON),
		gojsonschema.NewStringLoader(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("criteria must be a JSON array of {criterion, measurable} objects: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, schemaErr := range result.Errors() {
			errs = append(errs, schemaErr.String())
		}
		sort.Strings(errs)
		return nil, fmt.Errorf("invalid criteria: %s", strings.Join(errs, "; "))
	}
	var out []task.SuccessCriterion
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	return out, nil
}

// Result is the evaluation outcome for a single criterion.
type Result struct {
	Criterion  string
	Measurable string
	Passed     bool
	Reason     string
}

// Evaluate checks each criterion's measurable expression against the context.
// Supported forms: "left == right", "left < right", "left > right", and the
// literals "true"/"false". Bare identifiers resolve through the context;
// anything unparsable counts as unmet and asks for manual validation.
func Evaluate(criteria []task.SuccessCriterion, context map[string]any) (bool, []Result) {
	allPassed := true
	results := make([]Result, 0, len(criteria))
	for _, c := range criteria {
		r := evaluateOne(c, context)
		if !r.Passed {
			allPassed = false
		}
		results = append(results, r)
	}
	return allPassed, results
}

func evaluateOne(c task.SuccessCriterion, context map[string]any) Result {
	r := Result{Criterion: c.Criterion, Measurable: c.Measurable}
	measurable := strings.TrimSpace(c.Measurable)
	if measurable == "" {
		r.Passed = true
		r.Reason = "no measurable defined"
		return r
	}
	switch {
	case strings.Contains(measurable, "=="):
		left, right, ok := splitExpr(measurable, "==", context)
		if !ok {
			break
		}
		r.Passed = left == right
		if r.Passed {
			r.Reason = fmt.Sprintf("%s == %s", left, right)
		} else {
			r.Reason = fmt.Sprintf("%s != %s", left, right)
		}
		return r
	case strings.Contains(measurable, "<") && !strings.Contains(measurable, "="):
		out := compareNumeric(measurable, "<", context, func(a, b float64) bool { return a < b })
		out.Criterion = c.Criterion
		return out
	case strings.Contains(measurable, ">") && !strings.Contains(measurable, "="):
		out := compareNumeric(measurable, ">", context, func(a, b float64) bool { return a > b })
		out.Criterion = c.Criterion
		return out
	case strings.EqualFold(measurable, "true"):
		r.Passed = true
		r.Reason = "literal true"
		return r
	case strings.EqualFold(measurable, "false"):
		r.Reason = "literal false"
		return r
	}
	r.Reason = "requires manual validation"
	return r
}

func compareNumeric(expr, op string, context map[string]any, cmp func(a, b float64) bool) Result {
	r := Result{Measurable: expr}
	left, right, ok := splitExpr(expr, op, context)
	if !ok {
		r.Reason = "requires manual validation"
		return r
	}
	lv, errL := strconv.ParseFloat(left, 64)
	rv, errR := strconv.ParseFloat(right, 64)
	if errL != nil || errR != nil {
		r.Reason = "requires manual validation"
		return r
	}
	r.Passed = cmp(lv, rv)
	if r.Passed {
		r.Reason = fmt.Sprintf("%s %s %s", left, op, right)
	} else {
		r.Reason = fmt.Sprintf("%s not %s %s", left, op, right)
	}
	return r
}

func splitExpr(expr, op string, context map[string]any) (string, string, bool) {
	parts := strings.SplitN(expr, op, 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return resolve(strings.TrimSpace(parts[0]), context), resolve(strings.TrimSpace(parts[1]), context), true
}

// resolve looks a bare identifier up in the context; quoted strings lose
// their quotes, everything else passes through.
func resolve(token string, context map[string]any) string {
	if len(token) >= 2 && (token[0] == '\'' || token[0] == '"') && token[len(token)-1] == token[0] {
		return token[1 : len(token)-1]
	}
	if v, ok := context[token]; ok {
		return fmt.Sprintf("%v", v)
	}
	return token
}

// FormatReport renders evaluation results for the CLI boundary.
func FormatReport(results []Result) string {
	var b strings.Builder
	b.WriteString("Success criteria:\n")
	for _, r := range results {
		mark := "FAIL"
		if r.Passed {
			mark = "PASS"
		}
		fmt.Fprintf(&b, "  [%s] %s", mark, r.Criterion)
		if r.Reason != "" {
			fmt.Fprintf(&b, " (%s)", r.Reason)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Unmet extracts the criterion names that did not pass.
func Unmet(results []Result) []string {
	var out []string
	for _, r := range results {
		if !r.Passed {
			out = append(out, r.Criterion)
		}
	}
	return out
}
