package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// sampleDocument has two entries on T1 and one on T2.
const sampleDocument = `{
  "version": "1",
  "entries": [
    {"id": "E1", "action": "set a", "tree_id": "T1", "undoable": true, "records": [
      {"tree_id": "T1", "action": "set a",
       "patches": [{"op": "add", "path": "/a", "value": 1}],
       "inverse_patches": [{"op": "remove", "path": "/a"}]}]},
    {"id": "E2", "action": "bump a", "tree_id": "T1", "undoable": true, "records": [
      {"tree_id": "T1", "action": "bump a",
       "patches": [{"op": "replace", "path": "/a", "value": 2}],
       "inverse_patches": [{"op": "replace", "path": "/a", "value": 1}]}]},
    {"id": "E3", "action": "set b", "tree_id": "T2", "undoable": false, "records": [
      {"tree_id": "T2", "action": "set b",
       "patches": [{"op": "add", "path": "/b", "value": "x"}],
       "inverse_patches": [{"op": "remove", "path": "/b"}]}]}
  ]
}`

// testResponse mirrors CLIResponse with a raw payload.
type testResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// importSample stores sampleDocument as "board" and returns the database path.
func importSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	docPath := writeFile(t, dir, "board.json", sampleDocument)
	dbPath := filepath.Join(dir, "history.db")

	_, err := execute(t, "import", docPath, "--db", dbPath, "--doc", "board", "--name", "Main board")
	require.NoError(t, err)
	return dbPath
}

func decodeResponse(t *testing.T, out string) testResponse {
	t.Helper()
	var resp testResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp
}
