package run

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klytics/sheetsense/internal/action"
	"github.com/klytics/sheetsense/internal/planner"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCommands(t *testing.T) {
	path := writeFile(t, "commands.txt", "# cleanup\nclean up this data\n\n  make the header row bold  \n")
	cmds, err := readCommands(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"clean up this data", "make the header row bold"}, cmds)

	_, err = readCommands(writeFile(t, "empty.txt", "# nothing\n\n"))
	assert.ErrorContains(t, err, "contains no commands")

	_, err = readCommands(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestReadBatchFileUnwrapsPlanEnvelope(t *testing.T) {
	env := `{"ok": true, "command": "plan", "version": "dev",
	  "data": {"procedure": "Create Table", "batch": {"actions": [{"kind": "createTable", "address": "A1:C9"}], "message": "Made a table."}}}`
	data, err := readBatchFile(writeFile(t, "plan.json", env))
	require.NoError(t, err)

	batch, err := planner.ParseReply(string(data))
	require.NoError(t, err)
	require.Len(t, batch.Actions, 1)
	assert.Equal(t, action.KindCreateTable, batch.Actions[0].Kind())
	assert.Equal(t, "Made a table.", batch.Message)
}

func TestReadBatchFileBare(t *testing.T) {
	bare := `{"actions": [{"kind": "trimWhitespace"}, {"kind": "teleport"}]}`
	data, err := readBatchFile(writeFile(t, "batch.json", bare))
	require.NoError(t, err)

	batch, err := planner.ParseReply(string(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"trimWhitespace", "teleport"}, action.KindNames(batch.Actions))
	assert.Equal(t, "Executed 2 action(s).", batch.Message)
	assert.Equal(t, "teleport (unsupported)", describe(batch.Actions[1]))
	assert.Equal(t, "trimWhitespace", describe(batch.Actions[0]))
}

func TestDetachedContext(t *testing.T) {
	_, err := detached{}.ActiveSheet()
	assert.Error(t, err)
	_, err = detached{}.SelectionAddress()
	assert.Error(t, err)
}
