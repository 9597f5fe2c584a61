package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readEvents(t *testing.T, dir string) []event {
	t.Helper()
	path := filepath.Join(dir, "events-"+time.Now().UTC().Format("20060102")+".jsonl")
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var events []event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())
	return events
}

func TestDisabledCaptureIsNil(t *testing.T) {
	c := New(t.TempDir(), "alice", false)
	assert.Nil(t, c)
	// Calls on the nil capture must be safe no-ops.
	c.TaskCreated("abc12345", false, false, false)
	c.Event("custom", nil)
}

func TestEventAppendsDatedJSONL(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, "alice", true)
	require.NotNil(t, c)

	c.TaskCreated("abc12345", true, false, true)
	c.TaskCompleted("abc12345", true, 2)

	events := readEvents(t, dir)
	require.Len(t, events, 2)
	assert.Equal(t, "task_created", events[0].Type)
	assert.Equal(t, "alice", events[0].AgentID)
	assert.Equal(t, "task_completed", events[1].Type)
	assert.EqualValues(t, 2, events[1].Data["unblocked"])
}

func TestEventFailureDoesNotPropagate(t *testing.T) {
	// Pointing at a file path makes the MkdirAll fail; the write is
	// best-effort and must stay silent.
	dir := t.TempDir()
	blocked := filepath.Join(dir, "occupied")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	c := New(blocked, "alice", true)
	c.Event("custom", map[string]any{"k": "v"})
}
