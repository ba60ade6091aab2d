package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"aiko-go/internal/config"
	"aiko-go/internal/model"
	"aiko-go/internal/repository"
	"aiko-go/pkg/events"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	color.NoColor = true
}

func TestPrintHistory(t *testing.T) {
	snapshot := repository.Snapshot{
		"dm_2": {{Role: model.RoleUser, Content: "second"}},
		"dm_1": {
			{Role: model.RoleUser, Content: "hello"},
			{Role: model.RoleAssistant, Content: "hi there"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, snapshot, ""))
	out := buf.String()
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("dm_1")), bytes.Index(buf.Bytes(), []byte("dm_2")))
	assert.Contains(t, out, "== dm_1 (2) ==")
	assert.Contains(t, out, "assistant hi there")

	buf.Reset()
	require.NoError(t, printHistory(&buf, snapshot, "dm_2"))
	assert.NotContains(t, buf.String(), "dm_1")

	assert.Error(t, printHistory(&buf, snapshot, "missing"))

	buf.Reset()
	require.NoError(t, printHistory(&buf, repository.Snapshot{}, ""))
	assert.Equal(t, "(empty)\n", buf.String())
}

func TestPrintPersonas(t *testing.T) {
	var buf bytes.Buffer
	printPersonas(&buf, map[string]model.Persona{
		"Paimon":    {Name: "Paimon", SystemPromptTemplate: "You are Paimon.\nAlways hungry."},
		"Aiko-chan": {Name: "Aiko-chan", SystemPromptTemplate: "Cheerful."},
	})
	assert.Equal(t, "Aiko-chan  Cheerful.\nPaimon     You are Paimon. ...\n", buf.String())
}

func TestPrintEvent(t *testing.T) {
	var buf bytes.Buffer
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	printEvent(&buf, events.ExchangeEvent{
		ConversationKey: "dm_1",
		Persona:         "Aiko-chan",
		Model:           "deepseek-chat",
		Question:        "q?",
		Answer:          "a!",
		LatencyMillis:   42,
		Timestamp:       model.LocalTime(ts),
	})
	assert.Equal(t, "[2024-05-01 12:00:00] dm_1 persona=Aiko-chan model=deepseek-chat 42ms\n  Q: q?\n  A: a!\n", buf.String())
}

func TestOpenSnapshotStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	store, linker, err := openSnapshotStore(config.Config{Snapshot: config.SnapshotConfig{Backend: "file", Path: path}})
	require.NoError(t, err)
	assert.Nil(t, linker)
	assert.Equal(t, path, store.Location())

	_, _, err = openSnapshotStore(config.Config{Snapshot: config.SnapshotConfig{Backend: "s3"}})
	assert.Error(t, err)
}

func TestOpenAssignmentStore(t *testing.T) {
	mem, err := openAssignmentStore(config.PersonasConfig{})
	require.NoError(t, err)
	require.NoError(t, mem.Close())

	path := filepath.Join(t.TempDir(), "p.bolt")
	bolt, err := openAssignmentStore(config.PersonasConfig{AssignmentsPath: path})
	require.NoError(t, err)
	defer bolt.Close()
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestIsAdmin(t *testing.T) {
	assert.True(t, isAdmin([]string{"1", "2"}, "2"))
	assert.False(t, isAdmin(nil, "2"))
}
