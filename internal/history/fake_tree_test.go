package history

import (
	"context"
	"maps"
	"strings"
	"sync"

	"github.com/roach88/tilehist/internal/ir"
)

// fakeTree is a flat key/value tree: "/x" addresses key "x". It records
// every manager call and reports what it applied back to the manager like a
// real tile would.
type fakeTree struct {
	id string
	m  *TreeManager

	mu       sync.Mutex
	state    map[string]string
	shared   map[string]string
	calls    []treeCall
	applyErr error
	resets   int
}

type treeCall struct {
	Kind       string
	EntryID    string
	ExchangeID string
	Patches    []ir.Patch
}

func newFakeTree(id string, m *TreeManager) *fakeTree {
	t := &fakeTree{
		id:     id,
		m:      m,
		state:  make(map[string]string),
		shared: make(map[string]string),
	}
	m.PutTree(id, t)
	return t
}

func (t *fakeTree) ApplyPatchesFromManager(_ context.Context, entryID, exchangeID string, patches []ir.Patch) error {
	t.mu.Lock()
	t.calls = append(t.calls, treeCall{Kind: "apply", EntryID: entryID, ExchangeID: exchangeID, Patches: ir.ClonePatches(patches)})
	if t.applyErr != nil {
		t.mu.Unlock()
		return t.applyErr
	}
	inverse := t.applyLocked(patches)
	t.mu.Unlock()

	return t.m.AddTreePatchRecord(entryID, exchangeID, NewPatchRecord(t.id, "apply", patches, inverse))
}

func (t *fakeTree) ApplySharedModelSnapshotFromManager(_ context.Context, entryID, exchangeID string, snap ir.SharedModelSnapshot) error {
	t.mu.Lock()
	t.calls = append(t.calls, treeCall{Kind: "shared", EntryID: entryID, ExchangeID: exchangeID})
	if t.applyErr != nil {
		t.mu.Unlock()
		return t.applyErr
	}
	t.shared[snap.ID] = string(snap.Data)
	t.mu.Unlock()

	return t.m.AddTreePatchRecord(entryID, exchangeID, PatchRecord{TreeID: t.id})
}

func (t *fakeTree) StartApplyingPatchesFromManager(_ context.Context, entryID, exchangeID string) error {
	t.record("start", entryID, exchangeID)
	return nil
}

func (t *fakeTree) FinishApplyingPatchesFromManager(_ context.Context, entryID, exchangeID string) error {
	t.record("finish", entryID, exchangeID)
	return nil
}

func (t *fakeTree) ResetFromManager(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = make(map[string]string)
	t.resets++
	return nil
}

func (t *fakeTree) record(kind, entryID, exchangeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, treeCall{Kind: kind, EntryID: entryID, ExchangeID: exchangeID})
}

// applyLocked applies patches and returns their inverse in undo order.
func (t *fakeTree) applyLocked(patches []ir.Patch) []ir.Patch {
	inverse := make([]ir.Patch, 0, len(patches))
	for _, p := range patches {
		key := strings.TrimPrefix(p.Path, "/")
		prev, had := t.state[key]
		switch p.Op {
		case ir.OpAdd, ir.OpReplace:
			t.state[key] = string(p.Value)
		case ir.OpRemove:
			delete(t.state, key)
		}
		var inv ir.Patch
		switch {
		case p.Op == ir.OpRemove:
			inv = addPatch(p.Path, prev)
		case had:
			inv = replacePatch(p.Path, prev)
		default:
			inv = removePatch(p.Path)
		}
		inverse = append([]ir.Patch{inv}, inverse...)
	}
	return inverse
}

// edit applies patches locally as a new undoable entry, the way a tile
// records a user action.
func (t *fakeTree) edit(entryID, exchangeID, action string, patches []ir.Patch) error {
	if err := t.m.CreateHistoryEntry(entryID, exchangeID, action, t.id, true); err != nil {
		return err
	}
	t.mu.Lock()
	inverse := t.applyLocked(patches)
	t.mu.Unlock()
	return t.m.AddTreePatchRecord(entryID, exchangeID, NewPatchRecord(t.id, action, patches, inverse))
}

func (t *fakeTree) snapshot() map[string]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return maps.Clone(t.state)
}

func (t *fakeTree) callsOf(kind string) []treeCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []treeCall
	for _, c := range t.calls {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (t *fakeTree) resetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

func addPatch(path, value string) ir.Patch {
	return ir.Patch{Op: ir.OpAdd, Path: path, Value: []byte(value)}
}

func replacePatch(path, value string) ir.Patch {
	return ir.Patch{Op: ir.OpReplace, Path: path, Value: []byte(value)}
}

func removePatch(path string) ir.Patch {
	return ir.Patch{Op: ir.OpRemove, Path: path}
}
