package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/tilehist/internal/history"
	"github.com/roach88/tilehist/internal/ir"
	"github.com/roach88/tilehist/internal/schema"
	"github.com/roach88/tilehist/internal/store"
	"github.com/roach88/tilehist/internal/testutil"
	"github.com/roach88/tilehist/internal/tile"
)

// Harness holds the live objects of one scenario run.
type Harness struct {
	manager  *history.TreeManager
	tiles    map[string]*tile.Tile
	store    *store.Store
	recorder *store.Recorder
	logger   *slog.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes manager, tile and recorder logs to logger. By default
// logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against fresh tiles, a fresh manager and a fresh
// in-memory database. Execution flow:
//  1. Register tiles and define the history cursor at 0
//  2. Execute steps, checking expect_error
//  3. Check that the recorded document matches the manager's and passes
//     schema validation
//  4. Evaluate assertions
//
// An error is returned only when the run could not be set up; scenario
// failures are reported in the result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		tiles:  make(map[string]*tile.Tile, len(scenario.Tiles)),
		store:  st,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.manager = history.NewTreeManager(
		history.WithLogger(h.logger),
		history.WithEntryIDs(testutil.NewSequenceGenerator("entry")),
		history.WithExchangeIDs(testutil.NewSequenceGenerator("exchange")),
		history.WithUndoLimit(scenario.UndoLimit),
	)
	if err := h.manager.SetCurrentHistoryIndex(0); err != nil {
		return nil, err
	}

	h.recorder, err = store.NewRecorder(ctx, st, scenario.Name, h.manager, h.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start recorder: %w", err)
	}
	defer h.recorder.Close()

	for _, spec := range scenario.Tiles {
		if err := h.addTile(spec); err != nil {
			return nil, err
		}
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		err := h.executeStep(ctx, step)
		sr := StepResult{Index: i, Do: step.Do}
		if err != nil {
			sr.Error = err.Error()
		}
		result.Steps = append(result.Steps, sr)

		switch {
		case err != nil && !step.ExpectError:
			result.AddError(fmt.Sprintf("steps[%d] (%s): %v", i, step.Do, err))
		case err == nil && step.ExpectError:
			result.AddError(fmt.Sprintf("steps[%d] (%s): expected an error", i, step.Do))
		}
	}

	h.collect(result)
	if err := h.checkRecorded(ctx, scenario.Name, result.Document); err != nil {
		result.AddError(err.Error())
	}
	if err := schema.ValidateValue(result.Document); err != nil {
		result.AddError(fmt.Sprintf("change document failed validation: %v", err))
	}

	actx := &AssertionContext{Tiles: h.tiles}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) addTile(spec TileSpec) error {
	state := []byte(`{}`)
	if spec.State != nil {
		data, err := json.Marshal(spec.State)
		if err != nil {
			return fmt.Errorf("tile %s: failed to convert state: %w", spec.ID, err)
		}
		state = data
	}

	t, err := tile.New(spec.ID, h.manager,
		tile.WithInitialState(state),
		tile.WithIDs(testutil.NewSequenceGenerator(spec.ID)),
		tile.WithLogger(h.logger),
	)
	if err != nil {
		return err
	}
	h.manager.PutTree(spec.ID, t)
	h.tiles[spec.ID] = t
	return nil
}

// executeStep runs a single step.
func (h *Harness) executeStep(ctx context.Context, step Step) error {
	action := step.Action
	if action == "" {
		action = step.Do
	}
	undoable := !step.NotUndoable

	switch step.Do {
	case StepEdit:
		patches, err := convertPatches(step.Patches)
		if err != nil {
			return err
		}
		return h.tiles[step.Tile].Apply(ctx, action, patches, undoable)

	case StepUpdate:
		state, err := json.Marshal(step.State)
		if err != nil {
			return fmt.Errorf("failed to convert state: %w", err)
		}
		return h.tiles[step.Tile].Update(ctx, action, state, undoable)

	case StepShare:
		t := h.tiles[step.Tile]
		patches, err := sharePatches(t, step.Model, step.Data)
		if err != nil {
			return err
		}
		return t.Apply(ctx, action, patches, undoable)

	case StepUndo:
		return h.manager.Undo(ctx)

	case StepRedo:
		return h.manager.Redo(ctx)

	case StepGoto:
		return h.manager.GoToHistoryEntry(ctx, *step.Index)

	case StepReplay:
		return h.manager.ReplayHistoryToTrees(ctx)
	}
	return fmt.Errorf("unknown step type %q", step.Do)
}

// collect copies the final manager and tile state into the result.
func (h *Harness) collect(result *Result) {
	result.Document = h.manager.ChangeDocument().Snapshot()
	if idx, ok := h.manager.CurrentHistoryIndex(); ok {
		result.HistoryIndex = idx
	}
	undo := h.manager.UndoStore()
	result.UndoLevels = undo.UndoLevels()
	result.RedoLevels = undo.RedoLevels()
	for id, t := range h.tiles {
		result.Tiles[id] = t.State()
	}
}

// checkRecorded compares what the recorder persisted with the manager's
// document.
func (h *Harness) checkRecorded(ctx context.Context, documentID string, want ir.ChangeDocumentSnapshot) error {
	if err := h.recorder.Err(); err != nil {
		return fmt.Errorf("recording failed: %w", err)
	}
	stored, err := h.store.LoadDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to load recorded document: %w", err)
	}
	wantDigest, err := ir.DocumentDigest(want)
	if err != nil {
		return err
	}
	gotDigest, err := ir.DocumentDigest(stored)
	if err != nil {
		return err
	}
	if wantDigest != gotDigest {
		return fmt.Errorf("recorded document differs from the manager's (%d vs %d entries)",
			len(stored.Entries), len(want.Entries))
	}
	return nil
}

// convertPatches turns YAML patch mappings into patches by way of JSON.
func convertPatches(raw []map[string]any) ([]ir.Patch, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert patches: %w", err)
	}
	var patches []ir.Patch
	if err := json.Unmarshal(data, &patches); err != nil {
		return nil, fmt.Errorf("failed to convert patches: %w", err)
	}
	return patches, nil
}

var tokenEscaper = strings.NewReplacer("~", "~0", "/", "~1")

// sharePatches writes data as the tile's copy of shared model id, creating
// the /shared container if the tile has none yet.
func sharePatches(t *tile.Tile, id string, data any) ([]ir.Patch, error) {
	value, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to convert shared model data: %w", err)
	}
	var patches []ir.Patch
	if _, ok := t.Get("/shared"); !ok {
		patches = append(patches, ir.Patch{Op: ir.OpAdd, Path: "/shared", Value: json.RawMessage(`{}`)})
	}
	patches = append(patches, ir.Patch{
		Op:    ir.OpAdd,
		Path:  "/shared/" + tokenEscaper.Replace(id),
		Value: value,
	})
	return patches, nil
}
