package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a history test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tiles are registered with the manager in the order given.
	Tiles []TileSpec `yaml:"tiles"`

	// Steps run in order. A step that fails without expect_error fails the
	// scenario.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`

	// UndoLimit caps the undo store. Zero means unlimited.
	UndoLimit int `yaml:"undo_limit,omitempty"`
}

// TileSpec declares a tile and its initial state.
type TileSpec struct {
	ID string `yaml:"id"`

	// State must be a mapping. Empty means {}.
	State map[string]any `yaml:"state,omitempty"`
}

// Step is one operation in a scenario.
type Step struct {
	// Do is the step type: edit, update, share, undo, redo, goto, replay.
	Do string `yaml:"do"`

	// Tile is the target tile (edit, update, share).
	Tile string `yaml:"tile,omitempty"`

	// Action names the history entry (edit, update, share). Defaults to the
	// step type.
	Action string `yaml:"action,omitempty"`

	// Patches are RFC 6902 operations (edit).
	Patches []map[string]any `yaml:"patches,omitempty"`

	// State is the tile's new state (update).
	State map[string]any `yaml:"state,omitempty"`

	// Model and Data describe the shared model to write (share).
	Model string `yaml:"model,omitempty"`
	Data  any    `yaml:"data,omitempty"`

	// Index is the target history index (goto).
	Index *int `yaml:"index,omitempty"`

	// NotUndoable records the entry without adding it to the undo store.
	NotUndoable bool `yaml:"not_undoable,omitempty"`

	// ExpectError makes the step pass only if it fails.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Tile and Path locate a value (tile_value, tile_absent).
	Tile string `yaml:"tile,omitempty"`
	Path string `yaml:"path,omitempty"`

	// Value is the expected JSON value (tile_value).
	Value any `yaml:"value,omitempty"`

	// Count is the expected number (history_length, undo_levels,
	// redo_levels, history_index).
	Count int `yaml:"count,omitempty"`
}

// Step type constants.
const (
	StepEdit   = "edit"
	StepUpdate = "update"
	StepShare  = "share"
	StepUndo   = "undo"
	StepRedo   = "redo"
	StepGoto   = "goto"
	StepReplay = "replay"
)

// Assertion type constants.
const (
	AssertTileValue     = "tile_value"
	AssertTileAbsent    = "tile_absent"
	AssertHistoryLength = "history_length"
	AssertUndoLevels    = "undo_levels"
	AssertRedoLevels    = "redo_levels"
	AssertHistoryIndex  = "history_index"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Tiles) == 0 {
		return fmt.Errorf("tiles list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	if s.UndoLimit < 0 {
		return fmt.Errorf("undo_limit must be non-negative")
	}

	tiles := make(map[string]bool, len(s.Tiles))
	for i, t := range s.Tiles {
		if t.ID == "" {
			return fmt.Errorf("tiles[%d]: id is required", i)
		}
		if tiles[t.ID] {
			return fmt.Errorf("tiles[%d]: duplicate tile id %q", i, t.ID)
		}
		tiles[t.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step, tiles); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, tiles); err != nil {
			return err
		}
	}
	return nil
}

// validateStep validates a single step based on its type.
func validateStep(index int, st *Step, tiles map[string]bool) error {
	needsTile := func() error {
		if st.Tile == "" {
			return fmt.Errorf("steps[%d]: tile is required for %s", index, st.Do)
		}
		if !tiles[st.Tile] {
			return fmt.Errorf("steps[%d]: unknown tile %q", index, st.Tile)
		}
		return nil
	}

	switch st.Do {
	case "":
		return fmt.Errorf("steps[%d]: do is required", index)
	case StepEdit:
		if err := needsTile(); err != nil {
			return err
		}
		if len(st.Patches) == 0 {
			return fmt.Errorf("steps[%d]: patches are required for edit", index)
		}
	case StepUpdate:
		if err := needsTile(); err != nil {
			return err
		}
		if st.State == nil {
			return fmt.Errorf("steps[%d]: state is required for update", index)
		}
	case StepShare:
		if err := needsTile(); err != nil {
			return err
		}
		if st.Model == "" {
			return fmt.Errorf("steps[%d]: model is required for share", index)
		}
	case StepGoto:
		if st.Index == nil {
			return fmt.Errorf("steps[%d]: index is required for goto", index)
		}
	case StepUndo, StepRedo, StepReplay:
	default:
		return fmt.Errorf("steps[%d]: unknown step type %q", index, st.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, tiles map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTileValue, AssertTileAbsent:
		if !tiles[a.Tile] {
			return fmt.Errorf("assertions[%d]: unknown tile %q", index, a.Tile)
		}
	case AssertHistoryLength, AssertUndoLevels, AssertRedoLevels, AssertHistoryIndex:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
