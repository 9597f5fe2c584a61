// Package wizard implements the interactive add flow: a small bubbletea
// form that collects the fields of a new task and hands a draft to the
// orchestrator on confirm.
package wizard

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/metalagman/tm/internal/engine"
	"github.com/metalagman/tm/internal/task"
)

const (
	fieldTitle = iota
	fieldPriority
	fieldAssignee
	fieldEstimate
	fieldDeps
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"Title",
	"Priority (low/medium/high)",
	"Assignee",
	"Estimated hours",
	"Depends on (ids, comma separated)",
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	focusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

// Model is the form state. It implements tea.Model.
type Model struct {
	inputs    [fieldCount]textinput.Model
	focus     int
	errMsg    string
	confirmed bool
	cancelled bool
}

// New returns a form with the title field focused.
func New() Model {
	var m Model
	for i := range m.inputs {
		in := textinput.New()
		in.CharLimit = 200
		m.inputs[i] = in
	}
	m.inputs[fieldTitle].Placeholder = "what needs doing"
	m.inputs[fieldPriority].Placeholder = "medium"
	m.inputs[fieldEstimate].Placeholder = "e.g. 4"
	m.inputs[fieldDeps].Placeholder = "abc12345, def67890"
	m.inputs[fieldTitle].Focus()
	return m
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles key events: tab/enter advance, shift+tab goes back,
// enter on the last field validates and confirms.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit
		case "shift+tab", "up":
			return m.moveFocus(-1)
		case "tab", "down":
			return m.moveFocus(1)
		case "enter":
			if m.focus < fieldCount-1 {
				return m.moveFocus(1)
			}
			if err := m.validate(); err != nil {
				m.errMsg = err.Error()
				return m, nil
			}
			m.confirmed = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) moveFocus(delta int) (tea.Model, tea.Cmd) {
	m.errMsg = ""
	m.inputs[m.focus].Blur()
	m.focus = (m.focus + delta + fieldCount) % fieldCount
	return m, m.inputs[m.focus].Focus()
}

// View renders the form.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("New task"))
	b.WriteString("\n\n")
	for i, in := range m.inputs {
		label := labelStyle.Render(fieldLabels[i])
		if i == m.focus {
			label = focusStyle.Render(fieldLabels[i])
		}
		fmt.Fprintf(&b, "%s\n%s\n\n", label, in.View())
	}
	if m.errMsg != "" {
		b.WriteString(errStyle.Render(m.errMsg))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter: next/confirm • tab: move • esc: cancel"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) validate() error {
	if !task.ValidateTitle(m.inputs[fieldTitle].Value()) {
		return fmt.Errorf("title must not be empty")
	}
	if p := strings.TrimSpace(m.inputs[fieldPriority].Value()); p != "" && !task.Priority(p).Valid() {
		return fmt.Errorf("unknown priority %q", p)
	}
	if raw := strings.TrimSpace(m.inputs[fieldEstimate].Value()); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil || hours < 0 {
			return fmt.Errorf("estimated hours must be a non-negative number")
		}
	}
	return nil
}

// Draft converts the confirmed form into an orchestrator draft. ok is
// false when the form was cancelled.
func (m Model) Draft() (engine.Draft, bool) {
	if !m.confirmed {
		return engine.Draft{}, false
	}
	draft := engine.Draft{
		Title:    m.inputs[fieldTitle].Value(),
		Priority: task.Priority(strings.TrimSpace(m.inputs[fieldPriority].Value())),
		Assignee: strings.TrimSpace(m.inputs[fieldAssignee].Value()),
	}
	if raw := strings.TrimSpace(m.inputs[fieldEstimate].Value()); raw != "" {
		if hours, err := strconv.ParseFloat(raw, 64); err == nil {
			draft.EstimatedHours = &hours
		}
	}
	for _, id := range strings.Split(m.inputs[fieldDeps].Value(), ",") {
		if id = strings.TrimSpace(id); id != "" {
			draft.DependsOn = append(draft.DependsOn, id)
		}
	}
	return draft, true
}

// Run drives the form to completion and creates the task. A cancelled
// form returns (zero, false, nil).
func Run(ctx context.Context, orc *engine.Orchestrator) (task.Task, bool, error) {
	final, err := tea.NewProgram(New()).Run()
	if err != nil {
		return task.Task{}, false, fmt.Errorf("run wizard: %w", err)
	}
	m, ok := final.(Model)
	if !ok {
		return task.Task{}, false, fmt.Errorf("run wizard: unexpected model type %T", final)
	}
	draft, ok := m.Draft()
	if !ok {
		return task.Task{}, false, nil
	}
	created, err := orc.Add(ctx, draft)
	if err != nil {
		return task.Task{}, false, err
	}
	return created, true, nil
}
