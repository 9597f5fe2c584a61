// Package telemetry appends opt-in usage events to daily JSONL files.
// Capture is best-effort: failures are logged at debug level and never
// propagate to the caller.
package telemetry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Capture writes telemetry events under dir. A nil *Capture is a no-op, so
// callers never branch on whether telemetry is enabled.
type Capture struct {
	dir     string
	agentID string
}

// New creates a capture writing under dir. Returns nil when enabled is false.
func New(dir, agentID string, enabled bool) *Capture {
	if !enabled {
		return nil
	}
	return &Capture{dir: dir, agentID: agentID}
}

type event struct {
	Timestamp string         `json:"ts"`
	AgentID   string         `json:"agent_id,omitempty"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// Event appends one event to today's file.
func (c *Capture) Event(typ string, data map[string]any) {
	if c == nil {
		return
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		log.Debug().Err(err).Msg("telemetry: create dir")
		return
	}
	now := time.Now().UTC()
	path := filepath.Join(c.dir, "events-"+now.Format("20060102")+".jsonl")
	line, err := json.Marshal(event{
		Timestamp: now.Format(time.RFC3339),
		AgentID:   c.agentID,
		Type:      typ,
		Data:      data,
	})
	if err != nil {
		log.Debug().Err(err).Msg("telemetry: marshal event")
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Debug().Err(err).Msg("telemetry: open file")
		return
	}
	defer func() { _ = f.Close() }()
	if _, err := f.Write(append(line, '\n')); err != nil {
		log.Debug().Err(err).Msg("telemetry: write event")
	}
}

// TaskCreated records a task_created event.
func (c *Capture) TaskCreated(taskID string, hasCriteria, hasDeadline, hasEstimate bool) {
	c.Event("task_created", map[string]any{
		"task_id":      taskID,
		"has_criteria": hasCriteria,
		"has_deadline": hasDeadline,
		"has_estimate": hasEstimate,
	})
}

// TaskCompleted records a task_completed event.
func (c *Capture) TaskCompleted(taskID string, validated bool, unblocked int) {
	c.Event("task_completed", map[string]any{
		"task_id":   taskID,
		"validated": validated,
		"unblocked": unblocked,
	})
}

// MigrationApplied records a migration_applied event.
func (c *Capture) MigrationApplied(versions []int64) {
	c.Event("migration_applied", map[string]any{"versions": versions})
}

// CriteriaValidated records a criteria_validation event.
func (c *Capture) CriteriaValidated(taskID string, met, total int) {
	c.Event("criteria_validation", map[string]any{
		"task_id": taskID,
		"met":     met,
		"total":   total,
	})
}
