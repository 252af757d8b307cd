package cmd

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	nderr "github.com/notedex/notedex/internal/errors"
)

// newNotesDB creates a populated notes database and returns its path.
func newNotesDB(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "notes.sqlite")
	writer, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	defer writer.Close()

	_, err = writer.Exec(`CREATE TABLE notes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL DEFAULT 0
	)`)
	require.NoError(t, err)

	insert := func(id, title, content string, updatedAt int64) {
		_, err := writer.Exec(
			"INSERT INTO notes (id, title, content, updated_at) VALUES (?, ?, ?, ?)",
			id, title, content, updatedAt)
		require.NoError(t, err)
	}
	insert("n1", "Grocery list", "milk eggs bread butter", 1000)
	insert("n2", "Meeting notes", "quarterly planning and roadmap discussion", 2000)
	insert("n3", "Empty", "", 3000)

	return path
}

// runCLI executes the root command with args, returning stdout and err.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	// Keep ambient config and environment out of the test.
	t.Setenv("NOTEDEX_DATABASE", "")
	t.Setenv("NOTEDEX_INDEX_DIR", "")
	args = append([]string{"--config", filepath.Join(t.TempDir(), "no-config.yaml")}, args...)

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRoot_HasAllSubcommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"init", "watch", "sync", "rebuild", "search", "status"} {
		assert.Contains(t, names, want)
	}
}

func TestInit_WritesTemplateAndRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "init"})
	require.NoError(t, root.Execute())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debounce: 1s")

	root = NewRootCmd()
	root.SetArgs([]string{"--config", path, "init"})
	err = root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestStatus_MissingDatabaseFails(t *testing.T) {
	_, err := runCLI(t, "status", "--database", "")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no notes database configured")
}

func TestStatus_NoIndexYet(t *testing.T) {
	dbPath := newNotesDB(t)

	out, err := runCLI(t, "status",
		"--database", dbPath,
		"--index-dir", t.TempDir())

	require.NoError(t, err)
	assert.Contains(t, out, "no index")
	assert.Contains(t, out, "rebuild")
}

func TestRebuildSearchStatus_Offline(t *testing.T) {
	dbPath := newNotesDB(t)
	indexDir := filepath.Join(t.TempDir(), "index")

	out, err := runCLI(t, "rebuild", "--offline",
		"--database", dbPath,
		"--index-dir", indexDir)
	require.NoError(t, err)
	// n3 has no embeddable text and is skipped.
	assert.Contains(t, out, "Indexed 2 notes (1 skipped)")

	out, err = runCLI(t, "search", "--offline",
		"--database", dbPath,
		"--index-dir", indexDir,
		"grocery", "milk")
	require.NoError(t, err)
	assert.Contains(t, out, "n1")

	out, err = runCLI(t, "status",
		"--database", dbPath,
		"--index-dir", indexDir)
	require.NoError(t, err)
	assert.Contains(t, out, "2 live, 0 tombstones")
	// The skipped empty note does not advance the watermark.
	assert.Contains(t, out, "Watermark: 2000")
}

func TestSync_BringsIndexUpToDate(t *testing.T) {
	dbPath := newNotesDB(t)
	indexDir := filepath.Join(t.TempDir(), "index")

	_, err := runCLI(t, "rebuild", "--offline",
		"--database", dbPath,
		"--index-dir", indexDir)
	require.NoError(t, err)

	writer, err := sql.Open("sqlite", "file:"+dbPath)
	require.NoError(t, err)
	_, err = writer.Exec(
		"INSERT INTO notes (id, title, content, updated_at) VALUES (?, ?, ?, ?)",
		"n4", "New idea", "a fresh note written after the rebuild", int64(4000))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	out, err := runCLI(t, "sync", "--offline",
		"--database", dbPath,
		"--index-dir", indexDir)

	require.NoError(t, err)
	assert.Contains(t, out, "3 notes")
	assert.Contains(t, out, "watermark 4000")
}

func TestSearch_RequiresQuery(t *testing.T) {
	_, err := runCLI(t, "search", "--offline",
		"--database", newNotesDB(t),
		"--index-dir", t.TempDir())

	assert.Error(t, err)
}

func TestSuggestion_FoundThroughWrapChain(t *testing.T) {
	base := nderr.New(nderr.ErrCodeIndexMissing, "no index", nil).
		WithSuggestion("run 'notedex rebuild'")
	wrapped := fmt.Errorf("load index: %w", base)

	assert.Contains(t, suggestion(wrapped), "run 'notedex rebuild'")
	assert.Empty(t, suggestion(errors.New("plain error")))
}

func TestSearch_WithoutIndexSuggestsRebuild(t *testing.T) {
	_, err := runCLI(t, "search", "--offline",
		"--database", newNotesDB(t),
		"--index-dir", t.TempDir(),
		"anything")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "rebuild")
}
