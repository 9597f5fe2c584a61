package collab

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/tm/internal/task"
)

func TestContextStreamAppendOrder(t *testing.T) {
	dir := t.TempDir()
	alice := NewSpace(dir, "alice")
	bob := NewSpace(dir, "bob")

	require.NoError(t, alice.Join("abc123", "backend"))
	require.NoError(t, alice.Discover("abc123", "auth middleware already handles this"))
	require.NoError(t, bob.Share("abc123", "frontend half done"))
	require.NoError(t, bob.SyncPoint("abc123", "api contract frozen"))

	events, err := alice.Context("abc123")
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, EventJoined, events[0].Type)
	assert.Equal(t, "alice", events[0].Agent)
	assert.Equal(t, "joined as backend", events[0].Message)
	assert.Equal(t, EventDiscovery, events[1].Type)
	assert.Equal(t, EventUpdate, events[2].Type)
	assert.Equal(t, "bob", events[2].Agent)
	assert.Equal(t, EventSyncPoint, events[3].Type)
}

func TestContextMissingStreamIsEmpty(t *testing.T) {
	s := NewSpace(t.TempDir(), "alice")
	events, err := s.Context("nothere")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestContextSkipsTornLines(t *testing.T) {
	dir := t.TempDir()
	s := NewSpace(dir, "alice")
	require.NoError(t, s.Share("abc123", "before crash"))

	path := filepath.Join(dir, "contexts", "abc123.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"ts":"2026-01-01T0`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := s.Context("abc123")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "before crash", events[0].Message)
}

func TestNotesArePrivatePerAgent(t *testing.T) {
	dir := t.TempDir()
	alice := NewSpace(dir, "alice")
	bob := NewSpace(dir, "bob")

	require.NoError(t, alice.Note("abc123", "remember to check retries"))
	require.NoError(t, bob.Note("abc123", "bob's own note"))

	text, err := alice.Notes("abc123")
	require.NoError(t, err)
	assert.Contains(t, text, "remember to check retries")
	assert.NotContains(t, text, "bob's own note")

	// Notes never leak into the shared stream.
	events, err := alice.Context("abc123")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEmptyIDRejected(t *testing.T) {
	s := NewSpace(t.TempDir(), "alice")
	err := s.Share("  ", "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, task.ErrValidation))

	err = s.Note("abc123", "   ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, task.ErrValidation))
}
