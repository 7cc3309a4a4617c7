package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tilehist/internal/ir"
)

func sampleDigest(t *testing.T) string {
	t.Helper()
	var snap ir.ChangeDocumentSnapshot
	require.NoError(t, json.Unmarshal([]byte(sampleDocument), &snap))
	digest, err := ir.DocumentDigest(snap)
	require.NoError(t, err)
	return digest
}

func TestImportAndHistory(t *testing.T) {
	dbPath := importSample(t)

	out, err := execute(t, "history", "--db", dbPath, "--doc", "board", "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	var result HistoryResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))

	assert.Equal(t, "board", result.Document)
	assert.Equal(t, sampleDigest(t), result.Digest)
	require.Len(t, result.Entries, 3)
	assert.Equal(t, HistoryRow{Index: 2, ID: "E3", Action: "set b", TreeID: "T2", Undoable: false, Trees: []string{"T2"}, Patches: 1}, result.Entries[2])
}

func TestHistory_Text(t *testing.T) {
	dbPath := importSample(t)

	out, err := execute(t, "history", "--db", dbPath, "--doc", "board")
	require.NoError(t, err)
	assert.Contains(t, out, "Document board: 3 entries")
	assert.Contains(t, out, "bump a")
}

func TestHistory_ListDocuments(t *testing.T) {
	dbPath := importSample(t)

	out, err := execute(t, "history", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "board (Main board): 3 entries\n", out)
}

func TestHistory_Errors(t *testing.T) {
	dbPath := importSample(t)

	out, err := execute(t, "history", "--db", filepath.Join(t.TempDir(), "missing.db"), "--format", "json")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, decodeResponse(t, out).Error.Code)

	out, err = execute(t, "history", "--db", dbPath, "--doc", "nope", "--format", "json")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, decodeResponse(t, out).Error.Code)
}

func TestReplay_Idempotent(t *testing.T) {
	dbPath := importSample(t)

	out, err := execute(t, "replay", "--db", dbPath, "--doc", "board", "--format", "json")
	require.NoError(t, err)

	var result ReplayResult
	require.NoError(t, json.Unmarshal(decodeResponse(t, out).Data, &result))
	assert.True(t, result.Idempotent)
	assert.Equal(t, 3, result.Entries)
	require.Len(t, result.Tiles, 2)
	assert.Equal(t, "T1", result.Tiles[0].ID)
	assert.JSONEq(t, `{"a":2}`, string(result.Tiles[0].State))
	assert.Equal(t, "T2", result.Tiles[1].ID)
	assert.JSONEq(t, `{"b":"x"}`, string(result.Tiles[1].State))
}

func TestReplay_Text(t *testing.T) {
	dbPath := importSample(t)

	out, err := execute(t, "replay", "--db", dbPath, "--doc", "board")
	require.NoError(t, err)
	assert.Contains(t, out, "Replayed board: 3 entries, 2 tiles")
	assert.Contains(t, out, `T1: {"a":2}`)
	assert.Contains(t, out, "✓ Replay verified idempotent")
}

func TestReplay_BrokenHistory(t *testing.T) {
	dir := t.TempDir()
	// replace on a missing key cannot be replayed into an empty tile
	doc := writeFile(t, dir, "broken.json", `{"entries":[{"id":"E1","action":"a","tree_id":"T1","undoable":true,
		"records":[{"tree_id":"T1","action":"a","patches":[{"op":"replace","path":"/missing","value":1}],
		"inverse_patches":[{"op":"replace","path":"/missing","value":0}]}]}]}`)
	dbPath := filepath.Join(dir, "history.db")
	_, err := execute(t, "import", doc, "--db", dbPath, "--doc", "broken")
	require.NoError(t, err)

	out, err := execute(t, "replay", "--db", dbPath, "--doc", "broken", "--format", "json")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeReplayFailed, decodeResponse(t, out).Error.Code)
}

func TestGoto(t *testing.T) {
	dbPath := importSample(t)

	tests := []struct {
		index  string
		t1, t2 string
	}{
		{"0", `{}`, `{}`},
		{"1", `{"a":1}`, `{}`},
		{"2", `{"a":2}`, `{}`},
		{"3", `{"a":2}`, `{"b":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.index, func(t *testing.T) {
			out, err := execute(t, "goto", "--db", dbPath, "--doc", "board", "--index", tt.index, "--format", "json")
			require.NoError(t, err)

			var result GotoResult
			require.NoError(t, json.Unmarshal(decodeResponse(t, out).Data, &result))
			require.Len(t, result.Tiles, 2)
			assert.JSONEq(t, tt.t1, string(result.Tiles[0].State))
			assert.JSONEq(t, tt.t2, string(result.Tiles[1].State))
		})
	}
}

func TestGoto_OutOfRange(t *testing.T) {
	dbPath := importSample(t)

	out, err := execute(t, "goto", "--db", dbPath, "--doc", "board", "--index", "9", "--format", "json")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	resp := decodeResponse(t, out)
	assert.Equal(t, ErrCodeReplayFailed, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "INDEX_OUT_OF_RANGE")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	valid := writeFile(t, dir, "board.json", sampleDocument)
	validYAML := writeFile(t, dir, "empty.yaml", "version: \"1\"\nentries: []\n")

	out, err := execute(t, "validate", valid, validYAML, "--format", "json")
	require.NoError(t, err)

	var result ValidationResult
	require.NoError(t, json.Unmarshal(decodeResponse(t, out).Data, &result))
	assert.True(t, result.Valid)
	require.Len(t, result.Files, 2)
	assert.Equal(t, 3, result.Files[0].Entries)
	assert.Equal(t, sampleDigest(t), result.Files[0].Digest)
}

func TestValidate_Invalid(t *testing.T) {
	dir := t.TempDir()
	valid := writeFile(t, dir, "board.json", sampleDocument)
	invalid := writeFile(t, dir, "bad.json", `{"entries":[{"id":"E1","action":"a","tree_id":"T1","undoable":true,"records":[]}]}`)

	out, err := execute(t, "validate", valid, invalid)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ "+valid)
	assert.Contains(t, out, "✗ "+invalid)
	assert.Contains(t, out, "records")
}

func TestValidate_MissingFile(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join(t.TempDir(), "nope.json"), "--format", "json")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, decodeResponse(t, out).Error.Code)
}

func TestValidate_BadYAML(t *testing.T) {
	bad := writeFile(t, t.TempDir(), "bad.yaml", "entries: [unclosed\n")
	out, err := execute(t, "validate", bad, "--format", "json")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeParseFailed, decodeResponse(t, out).Error.Code)
}

func TestImport_RejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.json", `{"entries":[{"id":"E1"}]}`)
	dbPath := filepath.Join(dir, "history.db")

	out, err := execute(t, "import", bad, "--db", dbPath, "--doc", "board", "--format", "json")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeInvalid, decodeResponse(t, out).Error.Code)
}

func TestImport_ReplacesHistory(t *testing.T) {
	dbPath := importSample(t)
	empty := writeFile(t, t.TempDir(), "empty.json", `{"entries":[]}`)

	_, err := execute(t, "import", empty, "--db", dbPath, "--doc", "board")
	require.NoError(t, err)

	out, err := execute(t, "history", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, "board (Main board): 0 entries\n", out)
}

func TestExport_JSON(t *testing.T) {
	dbPath := importSample(t)

	out, err := execute(t, "export", "--db", dbPath, "--doc", "board")
	require.NoError(t, err)

	want, err := ir.CanonicalizeJSON([]byte(sampleDocument))
	require.NoError(t, err)
	assert.Equal(t, string(want)+"\n", out)
}

func TestExport_YAMLRoundTrip(t *testing.T) {
	dbPath := importSample(t)
	yamlPath := filepath.Join(t.TempDir(), "board.yaml")

	_, err := execute(t, "export", "--db", dbPath, "--doc", "board", "-o", yamlPath)
	require.NoError(t, err)

	data, err := os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tree_id: T1")

	_, err = execute(t, "import", yamlPath, "--db", dbPath, "--doc", "copy")
	require.NoError(t, err)

	out, err := execute(t, "history", "--db", dbPath, "--doc", "copy", "--format", "json")
	require.NoError(t, err)
	var result HistoryResult
	require.NoError(t, json.Unmarshal(decodeResponse(t, out).Data, &result))
	assert.Equal(t, sampleDigest(t), result.Digest)
}

const passingScenario = `
name: passing
description: "an edit and its undo"
tiles:
  - id: T1
steps:
  - do: edit
    tile: T1
    patches:
      - { op: add, path: /a, value: 1 }
  - do: undo
assertions:
  - type: tile_absent
    tile: T1
    path: /a
`

const failingScenario = `
name: failing
description: "asserts the wrong history length"
tiles:
  - id: T1
steps:
  - do: redo
    expect_error: true
assertions:
  - type: history_length
    count: 4
`

func TestRun_Scenarios(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "passing.yaml", passingScenario)

	out, err := execute(t, "run", filepath.Join(dir, "*.yaml"), "--format", "json")
	require.NoError(t, err)

	var result RunResult
	require.NoError(t, json.Unmarshal(decodeResponse(t, out).Data, &result))
	assert.Equal(t, 1, result.Passed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, "passing", result.Scenarios[0].Name)
}

func TestRun_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_passing.yaml", passingScenario)
	writeFile(t, dir, "b_failing.yaml", failingScenario)
	writeFile(t, dir, "c_broken.yaml", "name: broken\n")

	out, err := execute(t, "run", filepath.Join(dir, "*.yaml"))
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ passing")
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "description is required")
	assert.Contains(t, out, "1 passed, 2 failed, 3 total")
}

func TestRun_NoMatches(t *testing.T) {
	out, err := execute(t, "run", filepath.Join(t.TempDir(), "*.yaml"), "--format", "json")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNotFound, decodeResponse(t, out).Error.Code)
}
