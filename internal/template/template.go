// Package template implements YAML bulk-task templates: a named set of
// task specs with {{variable}} placeholders and intra-template
// dependencies by index. Instantiation goes through the orchestrator so
// every graph and state invariant applies to templated tasks too.
package template

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/metalagman/tm/internal/engine"
	"github.com/metalagman/tm/internal/task"
)

// Template is a parsed template file.
type Template struct {
	Name        string     `mapstructure:"name"`
	Description string     `mapstructure:"description"`
	Variables   []Variable `mapstructure:"variables"`
	Tasks       []TaskSpec `mapstructure:"tasks"`
}

// Variable declares a substitution placeholder.
type Variable struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Default     string `mapstructure:"default"`
	Required    bool   `mapstructure:"required"`
}

// TaskSpec is one task inside a template. DependsOn holds zero-based
// indices of earlier tasks in the same template.
type TaskSpec struct {
	Title           string   `mapstructure:"title"`
	Priority        string   `mapstructure:"priority"`
	Assignee        string   `mapstructure:"assignee"`
	EstimatedHours  *float64 `mapstructure:"estimated_hours"`
	Deadline        string   `mapstructure:"deadline"`
	SuccessCriteria []string `mapstructure:"success_criteria"`
	DependsOn       []int    `mapstructure:"depends_on"`
}

// Parse decodes a template document. Decoding is strict: unknown keys
// are an error, so a typo in a template fails loudly instead of
// silently dropping a field.
func Parse(data []byte) (*Template, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse template yaml: %w", err)
	}

	var tpl Template
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &tpl,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, fmt.Errorf("build template decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode template: %v: %w", err, task.ErrValidation)
	}
	if err := tpl.validate(); err != nil {
		return nil, err
	}
	return &tpl, nil
}

func (t *Template) validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("template name is required: %w", task.ErrValidation)
	}
	if len(t.Tasks) == 0 {
		return fmt.Errorf("template %q has no tasks: %w", t.Name, task.ErrValidation)
	}
	for i, spec := range t.Tasks {
		if strings.TrimSpace(spec.Title) == "" {
			return fmt.Errorf("template task %d has no title: %w", i, task.ErrValidation)
		}
		for _, dep := range spec.DependsOn {
			// Only earlier tasks may be referenced, which rules out
			// cycles inside a template by construction.
			if dep < 0 || dep >= i {
				return fmt.Errorf("template task %d depends on invalid index %d: %w", i, dep, task.ErrValidation)
			}
		}
	}
	return nil
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// ResolveVariables merges caller-supplied values with declared defaults.
// Missing required variables and values for undeclared names are errors.
func (t *Template) ResolveVariables(supplied map[string]string) (map[string]string, error) {
	declared := make(map[string]Variable, len(t.Variables))
	for _, v := range t.Variables {
		declared[v.Name] = v
	}
	for name := range supplied {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("template %q does not declare variable %q: %w", t.Name, name, task.ErrValidation)
		}
	}

	resolved := make(map[string]string, len(declared))
	for name, v := range declared {
		if val, ok := supplied[name]; ok && val != "" {
			resolved[name] = val
			continue
		}
		if v.Required {
			return nil, fmt.Errorf("template variable %q is required: %w", name, task.ErrValidation)
		}
		resolved[name] = v.Default
	}
	return resolved, nil
}

func substitute(s string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		return m
	})
}

// Apply instantiates the template through the orchestrator, creating
// tasks in declaration order and wiring index dependencies to the ids
// of already-created tasks. Returns the created tasks in order.
func Apply(ctx context.Context, orc *engine.Orchestrator, tpl *Template, supplied map[string]string) ([]task.Task, error) {
	vars, err := tpl.ResolveVariables(supplied)
	if err != nil {
		return nil, err
	}

	created := make([]task.Task, 0, len(tpl.Tasks))
	for _, spec := range tpl.Tasks {
		draft := engine.Draft{
			Title:    substitute(spec.Title, vars),
			Priority: task.Priority(spec.Priority),
			Assignee: substitute(spec.Assignee, vars),
		}
		draft.EstimatedHours = spec.EstimatedHours
		if spec.Deadline != "" {
			deadline := substitute(spec.Deadline, vars)
			draft.Deadline = &deadline
		}
		for _, c := range spec.SuccessCriteria {
			draft.SuccessCriteria = append(draft.SuccessCriteria, task.SuccessCriterion{
				Criterion: substitute(c, vars),
			})
		}
		for _, dep := range spec.DependsOn {
			draft.DependsOn = append(draft.DependsOn, created[dep].ID)
		}

		tsk, err := orc.Add(ctx, draft)
		if err != nil {
			return created, fmt.Errorf("instantiate template task %q: %w", draft.Title, err)
		}
		created = append(created, tsk)
	}
	return created, nil
}
