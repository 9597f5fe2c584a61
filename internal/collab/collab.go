// Package collab implements the append-only collaboration layer: a shared
// per-task context stream plus private per-agent notes, both living under
// the state directory so multiple agents on one machine can coordinate
// without touching the database.
package collab

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/metalagman/tm/internal/task"
)

// Event is one entry in a task's shared context stream.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Agent     string    `json:"agent"`
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
}

// Event types written to the context stream.
const (
	EventJoined    = "joined"
	EventUpdate    = "update"
	EventDiscovery = "discovery"
	EventSyncPoint = "sync_point"
)

// Space is a collaboration workspace rooted at the state directory,
// acting on behalf of one agent.
type Space struct {
	dir   string
	agent string
}

// NewSpace returns a Space for the given agent.
func NewSpace(stateDir, agent string) *Space {
	return &Space{dir: stateDir, agent: agent}
}

// Join records that the agent started working on the task.
func (s *Space) Join(taskID, role string) error {
	msg := "joined"
	if role != "" {
		msg = "joined as " + role
	}
	return s.append(taskID, EventJoined, msg)
}

// Share broadcasts a progress update to the task's context stream.
func (s *Space) Share(taskID, message string) error {
	return s.append(taskID, EventUpdate, message)
}

// Discover records a finding other agents should see before they start.
func (s *Space) Discover(taskID, message string) error {
	return s.append(taskID, EventDiscovery, message)
}

// SyncPoint marks a coordination checkpoint in the stream.
func (s *Space) SyncPoint(taskID, message string) error {
	return s.append(taskID, EventSyncPoint, message)
}

// Context returns the task's shared stream in append order. A missing
// stream is an empty one, not an error.
func (s *Space) Context(taskID string) ([]Event, error) {
	if err := checkID(taskID); err != nil {
		return nil, err
	}
	f, err := os.Open(s.contextPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open context stream: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			// A torn write from a crashed process must not make the
			// whole stream unreadable.
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read context stream: %w", err)
	}
	return events, nil
}

// Note appends to the agent's private scratchpad for the task. Notes are
// per-agent files and never enter the shared stream.
func (s *Space) Note(taskID, text string) error {
	if err := checkID(taskID); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("note text is empty: %w", task.ErrValidation)
	}
	dir := filepath.Join(s.dir, "notes")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create notes dir: %w", err)
	}
	entry := fmt.Sprintf("## %s\n\n%s\n\n", time.Now().UTC().Format(time.RFC3339), text)
	return appendFile(s.notePath(taskID), []byte(entry))
}

// Notes returns the agent's private notes for the task, empty if none.
func (s *Space) Notes(taskID string) (string, error) {
	if err := checkID(taskID); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.notePath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read notes: %w", err)
	}
	return string(data), nil
}

func (s *Space) append(taskID, eventType, message string) error {
	if err := checkID(taskID); err != nil {
		return err
	}
	dir := filepath.Join(s.dir, "contexts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create contexts dir: %w", err)
	}
	ev := Event{
		Timestamp: time.Now().UTC(),
		Agent:     s.agent,
		Type:      eventType,
		Message:   message,
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode context event: %w", err)
	}
	return appendFile(s.contextPath(taskID), append(line, '\n'))
}

func (s *Space) contextPath(taskID string) string {
	return filepath.Join(s.dir, "contexts", taskID+".jsonl")
}

func (s *Space) notePath(taskID string) string {
	return filepath.Join(s.dir, "notes", taskID+"."+s.agent+".md")
}

func checkID(taskID string) error {
	if strings.TrimSpace(taskID) == "" {
		return fmt.Errorf("task id is empty: %w", task.ErrValidation)
	}
	return nil
}

func appendFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("append %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
