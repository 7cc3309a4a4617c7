package tile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/roach88/tilehist/internal/history"
	"github.com/roach88/tilehist/internal/ir"
)

// Manager is the part of history.TreeManager a tile talks to.
type Manager interface {
	CreateHistoryEntry(historyEntryID, exchangeID, action, treeID string, undoable bool) error
	AddTreePatchRecord(historyEntryID, exchangeID string, record history.PatchRecord) error
	UpdateSharedModel(ctx context.Context, historyEntryID, exchangeID, sourceTreeID string, snapshot ir.SharedModelSnapshot) error
}

// Action names used for records the tile produces on the manager's behalf.
const (
	ActionApplyPatches        = "applyPatchesFromManager"
	ActionApplySharedSnapshot = "applySharedModelSnapshotFromManager"
)

// Tile is a JSON document tree.
//
// Thread-safety: all methods are safe for concurrent use. The tile never
// holds its lock while calling the manager.
type Tile struct {
	id      string
	manager Manager
	logger  *slog.Logger
	ids     history.IDGenerator
	initial []byte

	mu        sync.Mutex
	state     []byte
	suspended bool
	dirty     map[string]bool // shared models edited while suspended
}

// Option configures a Tile.
type Option func(*Tile)

// WithInitialState sets the state the tile starts from and resets to. It
// must be a JSON object. Default: {}.
func WithInitialState(state []byte) Option {
	return func(t *Tile) {
		t.initial = bytes.Clone(state)
	}
}

// WithIDs sets the generator for history entry and exchange ids of local
// edits. Default: history.UUIDv7Generator.
func WithIDs(gen history.IDGenerator) Option {
	return func(t *Tile) {
		t.ids = gen
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tile) {
		t.logger = logger
	}
}

// New creates a tile. Registering it with the manager is the caller's job.
func New(id string, manager Manager, opts ...Option) (*Tile, error) {
	t := &Tile{
		id:      id,
		manager: manager,
		logger:  slog.Default(),
		ids:     history.UUIDv7Generator{},
		initial: []byte(`{}`),
		dirty:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(t)
	}

	var obj map[string]any
	if err := json.Unmarshal(t.initial, &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("tile %s: initial state must be a JSON object", id)
	}
	t.state = bytes.Clone(t.initial)
	return t, nil
}

// ID returns the tile's tree id.
func (t *Tile) ID() string {
	return t.id
}

// State returns a copy of the current JSON document.
func (t *Tile) State() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.state)
}

// Get returns the raw JSON value at pointer.
func (t *Tile) Get(pointer string) (json.RawMessage, bool) {
	t.mu.Lock()
	doc, err := decode(t.state)
	t.mu.Unlock()
	if err != nil {
		return nil, false
	}
	tokens, err := parsePointer(pointer)
	if err != nil {
		return nil, false
	}
	v, ok := lookup(doc, tokens)
	if !ok {
		return nil, false
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// SharedModel returns the tile's mirror of a shared model.
func (t *Tile) SharedModel(id string) (ir.SharedModelSnapshot, bool) {
	data, ok := t.Get(sharedPointer(id))
	if !ok {
		return ir.SharedModelSnapshot{}, false
	}
	return ir.SharedModelSnapshot{ID: id, Data: data}, true
}

// Apply applies patches as a new history entry. Edits under /shared/<id>
// are broadcast to the other trees before the entry's record is reported.
// On a patch failure the state is unchanged and the entry is discarded.
func (t *Tile) Apply(ctx context.Context, action string, patches []ir.Patch, undoable bool) error {
	entryID := t.ids.Generate()
	exchangeID := t.ids.Generate()
	if err := t.manager.CreateHistoryEntry(entryID, exchangeID, action, t.id, undoable); err != nil {
		return fmt.Errorf("tile %s: %w", t.id, err)
	}

	t.mu.Lock()
	applied, inverse, touched, err := t.applyLocked(patches)
	t.mu.Unlock()
	if err != nil {
		closeErr := t.manager.AddTreePatchRecord(entryID, exchangeID, history.PatchRecord{TreeID: t.id, Action: action})
		return errors.Join(fmt.Errorf("tile %s: %s: %w", t.id, action, err), closeErr)
	}

	var errs []error
	for _, id := range touched {
		if err := t.broadcast(ctx, entryID, exchangeID, id); err != nil {
			errs = append(errs, err)
		}
	}
	record := history.NewPatchRecord(t.id, action, applied, inverse)
	if err := t.manager.AddTreePatchRecord(entryID, exchangeID, record); err != nil {
		errs = append(errs, err)
	}

	t.logger.Debug("tile edit", "tile_id", t.id, "history_entry_id", entryID, "action", action, "patches", len(applied))
	return errors.Join(errs...)
}

// Update replaces the tile's state with newState, recording the difference
// as patches. An unchanged state records nothing.
func (t *Tile) Update(ctx context.Context, action string, newState []byte, undoable bool) error {
	patches, err := t.diff(newState)
	if err != nil {
		return fmt.Errorf("tile %s: %w", t.id, err)
	}
	if len(patches) == 0 {
		return nil
	}
	return t.Apply(ctx, action, patches, undoable)
}

// ApplyPatchesFromManager implements history.Tree.
func (t *Tile) ApplyPatchesFromManager(_ context.Context, historyEntryID, exchangeID string, patches []ir.Patch) error {
	t.mu.Lock()
	applied, inverse, touched, err := t.applyLocked(patches)
	if err == nil {
		for _, id := range touched {
			t.dirty[id] = true
		}
	}
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("tile %s: %w", t.id, err)
	}

	if history.IsReplayID(historyEntryID) {
		return nil
	}
	return t.manager.AddTreePatchRecord(historyEntryID, exchangeID,
		history.NewPatchRecord(t.id, ActionApplyPatches, applied, inverse))
}

// ApplySharedModelSnapshotFromManager implements history.Tree. The mirror is
// updated in place and the change is recorded on the given exchange.
func (t *Tile) ApplySharedModelSnapshotFromManager(_ context.Context, historyEntryID, exchangeID string, snapshot ir.SharedModelSnapshot) error {
	t.mu.Lock()
	patches, err := t.sharedPatchesLocked(snapshot)
	var applied, inverse []ir.Patch
	if err == nil {
		applied, inverse, _, err = t.applyLocked(patches)
	}
	t.mu.Unlock()

	if err != nil {
		return fmt.Errorf("tile %s: shared model %s: %w", t.id, snapshot.ID, err)
	}
	if history.IsReplayID(historyEntryID) {
		return nil
	}
	return t.manager.AddTreePatchRecord(historyEntryID, exchangeID,
		history.NewPatchRecord(t.id, ActionApplySharedSnapshot, applied, inverse))
}

// StartApplyingPatchesFromManager implements history.Tree.
func (t *Tile) StartApplyingPatchesFromManager(context.Context, string, string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suspended = true
	return nil
}

// FinishApplyingPatchesFromManager implements history.Tree. Shared models
// edited by the batch are broadcast so other trees can reconcile, except
// during replay where every tree already replays its own mirror.
func (t *Tile) FinishApplyingPatchesFromManager(ctx context.Context, historyEntryID, exchangeID string) error {
	t.mu.Lock()
	t.suspended = false
	dirty := make([]string, 0, len(t.dirty))
	for id := range t.dirty {
		dirty = append(dirty, id)
	}
	clear(t.dirty)
	t.mu.Unlock()

	if history.IsReplayID(historyEntryID) {
		return nil
	}
	slices.Sort(dirty)
	var errs []error
	for _, id := range dirty {
		if err := t.broadcast(ctx, historyEntryID, exchangeID, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ResetFromManager implements history.Resetter.
func (t *Tile) ResetFromManager(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = bytes.Clone(t.initial)
	clear(t.dirty)
	return nil
}

func (t *Tile) broadcast(ctx context.Context, historyEntryID, exchangeID, sharedID string) error {
	snap, ok := t.SharedModel(sharedID)
	if !ok {
		// removed mirror; broadcast null so the others drop their data too
		snap = ir.SharedModelSnapshot{ID: sharedID, Data: json.RawMessage(`null`)}
	}
	if err := t.manager.UpdateSharedModel(ctx, historyEntryID, exchangeID, t.id, snap); err != nil {
		return fmt.Errorf("tile %s: broadcast shared model %s: %w", t.id, sharedID, err)
	}
	return nil
}

// applyLocked applies patches one at a time, computing each inverse against
// the state that patch sees. The state is replaced only if every patch
// applies. Inverses are returned in undo order.
func (t *Tile) applyLocked(patches []ir.Patch) (applied, inverse []ir.Patch, touched []string, err error) {
	doc := t.state
	seen := make(map[string]bool)
	for i, p := range patches {
		cur, err := decode(doc)
		if err != nil {
			return nil, nil, nil, err
		}
		inv, err := invert(cur, p)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("patch %d: %w", i, err)
		}
		doc, err = applyOne(doc, p)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("patch %d: %w", i, err)
		}
		applied = append(applied, p.Clone())
		inverse = append(inverse, inv)
		if id, ok := sharedModelID(p.Path); ok && !seen[id] {
			seen[id] = true
			touched = append(touched, id)
		}
	}
	slices.Reverse(inverse)
	t.state = doc
	return applied, inverse, touched, nil
}

func (t *Tile) sharedPatchesLocked(snapshot ir.SharedModelSnapshot) ([]ir.Patch, error) {
	doc, err := decode(t.state)
	if err != nil {
		return nil, err
	}
	data := snapshot.Data
	if len(data) == 0 {
		data = json.RawMessage(`null`)
	}
	mirror := sharedPointer(snapshot.ID)
	_, exists := lookup(doc, []string{sharedRoot, snapshot.ID})

	// null means the model was removed
	if bytes.Equal(bytes.TrimSpace(data), []byte(`null`)) {
		if !exists {
			return nil, nil
		}
		return []ir.Patch{{Op: ir.OpRemove, Path: mirror}}, nil
	}

	obj := doc.(map[string]any)
	var patches []ir.Patch
	if _, ok := obj[sharedRoot]; !ok {
		patches = append(patches, ir.Patch{Op: ir.OpAdd, Path: "/" + sharedRoot, Value: json.RawMessage(`{}`)})
	} else if cur, ok := lookup(doc, []string{sharedRoot, snapshot.ID}); ok {
		same, err := sameJSON(cur, data)
		if err != nil {
			return nil, err
		}
		if same {
			return nil, nil
		}
	}
	patches = append(patches, ir.Patch{Op: ir.OpAdd, Path: mirror, Value: bytes.Clone(data)})
	return patches, nil
}

func applyOne(doc []byte, p ir.Patch) ([]byte, error) {
	raw, err := json.Marshal([]ir.Patch{p})
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, err
	}
	return patch.Apply(doc)
}

func decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func sameJSON(v any, raw json.RawMessage) (bool, error) {
	a, err := ir.CanonicalizeValue(v)
	if err != nil {
		return false, err
	}
	b, err := ir.CanonicalizeJSON(raw)
	if err != nil {
		return false, err
	}
	return bytes.Equal(a, b), nil
}
