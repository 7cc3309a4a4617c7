package harness

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, yaml string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(yaml))
	require.NoError(t, err)
	return s
}

func TestRunWithGolden_UndoCounter(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/undo_counter.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_AllScenarios(t *testing.T) {
	paths, err := ExpandScenarioPaths([]string{"testdata/scenarios/*.yaml"})
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/shared_model.yaml")
	require.NoError(t, err)

	first, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	second, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	a, err := NewSnapshot(scenario.Name, first).MarshalCanonical()
	require.NoError(t, err)
	b, err := NewSnapshot(scenario.Name, second).MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_UnexpectedStepError(t *testing.T) {
	scenario := mustParse(t, `
name: failing_edit
description: "remove of a missing key fails"
tiles:
  - id: T1
steps:
  - do: edit
    tile: T1
    patches:
      - { op: remove, path: /missing }
assertions:
  - type: history_length
    count: 0
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] (edit)")
	assert.NotEmpty(t, result.Steps[0].Error)
}

func TestRun_ExpectErrorThatSucceeds(t *testing.T) {
	scenario := mustParse(t, `
name: undo_twice
description: "nothing to undo is an error"
tiles:
  - id: T1
steps:
  - do: edit
    tile: T1
    patches:
      - { op: add, path: /a, value: 1 }
    expect_error: true
  - do: undo
  - do: undo
    expect_error: true
assertions:
  - type: tile_absent
    tile: T1
    path: /a
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, []string{"steps[0] (edit): expected an error"}, result.Errors)
}

func TestRun_UndoLimit(t *testing.T) {
	scenario := mustParse(t, `
name: undo_limit
description: "only the newest entry can be undone"
undo_limit: 1
tiles:
  - id: T1
steps:
  - do: edit
    tile: T1
    patches:
      - { op: add, path: /a, value: 1 }
  - do: edit
    tile: T1
    patches:
      - { op: add, path: /b, value: 2 }
  - do: undo
  - do: undo
    expect_error: true
assertions:
  - type: tile_value
    tile: T1
    path: /a
    value: 1
  - type: tile_absent
    tile: T1
    path: /b
  - type: undo_levels
    count: 0
  - type: redo_levels
    count: 1
  - type: history_length
    count: 3
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_NotUndoableEdit(t *testing.T) {
	scenario := mustParse(t, `
name: not_undoable
description: "not_undoable entries are recorded but skipped by undo"
tiles:
  - id: T1
steps:
  - do: edit
    tile: T1
    patches:
      - { op: add, path: /a, value: 1 }
  - do: edit
    tile: T1
    not_undoable: true
    patches:
      - { op: add, path: /b, value: 2 }
  - do: undo
assertions:
  - type: tile_absent
    tile: T1
    path: /a
  - type: tile_value
    tile: T1
    path: /b
    value: 2
  - type: history_length
    count: 3
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_AssertionFailures(t *testing.T) {
	scenario := mustParse(t, `
name: wrong_expectations
description: "every assertion here is false"
tiles:
  - id: T1
    state: { a: { b: 1 } }
steps:
  - do: redo
    expect_error: true
assertions:
  - type: tile_value
    tile: T1
    path: /a
    value: { b: 2 }
  - type: tile_value
    tile: T1
    path: /missing
    value: 1
  - type: tile_absent
    tile: T1
    path: /a/b
  - type: history_length
    count: 1
  - type: history_index
    count: 3
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], `T1/a = {"b":2}`)
	assert.Contains(t, result.Errors[1], "no value")
	assert.Contains(t, result.Errors[2], "nothing at T1/a/b")
	assert.Contains(t, result.Errors[3], "1 entries")
	assert.Contains(t, result.Errors[4], "0 history index")
}

func TestTileValue_IgnoresKeyOrder(t *testing.T) {
	scenario := mustParse(t, `
name: key_order
description: "values compare canonically"
tiles:
  - id: T1
steps:
  - do: update
    tile: T1
    state: { obj: { z: 1, a: 2.0 } }
assertions:
  - type: tile_value
    tile: T1
    path: /obj
    value: { a: 2, z: 1 }
`)
	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestParseScenario_Invalid(t *testing.T) {
	base := `
name: s
description: d
tiles:
  - id: T1
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing name", "description: d\ntiles: [{id: T1}]\nsteps: [{do: undo}]\nassertions: [{type: undo_levels}]", "name is required"},
		{"unknown field", base + "steps: [{do: undo}]\nassertions: [{type: undo_levels}]\nasserts: []", "field asserts not found"},
		{"no steps", base + "assertions: [{type: undo_levels}]", "steps list is required"},
		{"no assertions", base + "steps: [{do: undo}]", "assertions list is required"},
		{"unknown step", base + "steps: [{do: jump}]\nassertions: [{type: undo_levels}]", `unknown step type "jump"`},
		{"edit without tile", base + "steps: [{do: edit, patches: [{op: add}]}]\nassertions: [{type: undo_levels}]", "tile is required for edit"},
		{"edit unknown tile", base + "steps: [{do: edit, tile: T9, patches: [{op: add}]}]\nassertions: [{type: undo_levels}]", `unknown tile "T9"`},
		{"edit without patches", base + "steps: [{do: edit, tile: T1}]\nassertions: [{type: undo_levels}]", "patches are required"},
		{"goto without index", base + "steps: [{do: goto}]\nassertions: [{type: undo_levels}]", "index is required"},
		{"share without model", base + "steps: [{do: share, tile: T1}]\nassertions: [{type: undo_levels}]", "model is required"},
		{"unknown assertion", base + "steps: [{do: undo}]\nassertions: [{type: trace_count}]", `unknown assertion type "trace_count"`},
		{"duplicate tile", "name: s\ndescription: d\ntiles: [{id: T1}, {id: T1}]\nsteps: [{do: undo}]\nassertions: [{type: undo_levels}]", "duplicate tile id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestExpandScenarioPaths(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested", "deeper"), 0755))
	for _, name := range []string{"a.yaml", "nested/b.yaml", "nested/deeper/c.yaml", "nested/skip.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("name: x"), 0644))
	}

	paths, err := ExpandScenarioPaths([]string{
		filepath.Join(dir, "**", "*.yaml"),
		filepath.Join(dir, "a.yaml"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.yaml"),
		filepath.Join(dir, "nested", "b.yaml"),
		filepath.Join(dir, "nested", "deeper", "c.yaml"),
	}, paths)

	_, err = ExpandScenarioPaths([]string{filepath.Join(dir, "*.json")})
	var notFound *ScenarioNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, filepath.Join(dir, "*.json"), notFound.Pattern)
}
