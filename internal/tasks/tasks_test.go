package tasks

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTask(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoaderFindsTaskByID(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTask(t, dir, "task-1.json", `{"task_id": 1, "requires_auth": true}`)
	writeTask(t, dir, "task-2.json", `{"task_id": "2", "jira_project": "PAY", "limits": {"max": 40}}`)
	writeTask(t, dir, "broken.json", `{not json`)
	writeTask(t, dir, "notes.txt", `{"task_id": 3}`)

	loader := NewLoader(dir, "", nil)
	require.NoError(t, loader.Err())
	require.Equal(t, 2, loader.Len())

	task := loader.Load("1")
	require.True(t, task.Bool("requires_auth"))
	require.Equal(t, json.Number("1"), task["task_id"])

	task = loader.Load("2")
	require.Equal(t, "PAY", task.String("jira_project"))
	max, ok := task.Sub("limits").Int("max")
	require.True(t, ok)
	require.Equal(t, 40, max)

	require.Empty(t, loader.Load("3"))
}

func TestLoaderMissingDir(t *testing.T) {
	t.Parallel()

	loader := NewLoader(filepath.Join(t.TempDir(), "nope"), "", nil)
	require.NoError(t, loader.Err())
	require.Empty(t, loader.Load("1"))
}

func TestLoaderCustomGlob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTask(t, dir, "task-1.json", `{"task_id": 1}`)
	writeTask(t, dir, "other-1.json", `{"task_id": 1, "winner": true}`)

	loader := NewLoader(dir, "other-*.json", nil)
	require.True(t, loader.Load("1").Bool("winner"))
}

func TestReadFileRejectsArray(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTask(t, dir, "list.json", `[1, 2]`)
	_, err := ReadFile(filepath.Join(dir, "list.json"))
	require.Error(t, err)
}
