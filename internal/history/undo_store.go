package history

import (
	"context"
	"slices"
	"sync"
)

// UndoStore tracks which undoable entries can be undone or redone. It holds
// references into the change document plus a position in [0, len]: entries
// before the position are undoable, entries at or after it are redoable.
//
// Lock order: TreeManager.mu, then UndoStore.mu.
type UndoStore struct {
	mu       sync.Mutex
	entries  []*HistoryEntry
	position int
	limit    int // 0 means unlimited

	manager *TreeManager
}

func newUndoStore(m *TreeManager, limit int) *UndoStore {
	return &UndoStore{manager: m, limit: limit}
}

// push drops every redoable entry, appends e, and trims the oldest entries
// beyond the limit.
func (u *UndoStore) push(e *HistoryEntry) Event {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.entries = append(u.entries[:u.position], e)
	if u.limit > 0 && len(u.entries) > u.limit {
		u.entries = slices.Clone(u.entries[len(u.entries)-u.limit:])
	}
	u.position = len(u.entries)
	return u.eventLocked()
}

func (u *UndoStore) eventLocked() Event {
	return Event{
		Type:       EventUndoChanged,
		UndoLevels: u.position,
		RedoLevels: len(u.entries) - u.position,
	}
}

// CanUndo reports whether there is an entry to undo.
func (u *UndoStore) CanUndo() bool {
	return u.UndoLevels() > 0
}

// CanRedo reports whether there is an entry to redo.
func (u *UndoStore) CanRedo() bool {
	return u.RedoLevels() > 0
}

// UndoLevels returns the number of entries that can be undone.
func (u *UndoStore) UndoLevels() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.position
}

// RedoLevels returns the number of entries that can be redone.
func (u *UndoStore) RedoLevels() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.entries) - u.position
}

// Entries returns the ids of every tracked entry, oldest first.
func (u *UndoStore) Entries() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	ids := make([]string, len(u.entries))
	for i, e := range u.entries {
		ids[i] = e.ID
	}
	return ids
}

// Clear forgets every entry.
func (u *UndoStore) Clear() {
	u.mu.Lock()
	u.entries = nil
	u.position = 0
	ev := u.eventLocked()
	u.mu.Unlock()
	u.manager.emit(ev)
}

// Undo applies the inverse patches of the most recent entry not yet undone.
//
// Undo is refused while the history cursor is set and points before the end
// of the document; return there with GoToHistoryEntry first. The position
// moves only after every tree the entry touched is found registered. Once
// trees are called the position stays moved even if a tree fails; the
// returned error reports the failure.
func (u *UndoStore) Undo(ctx context.Context) error {
	entry, err := u.step(backward)
	if err != nil {
		return err
	}
	return u.manager.applyUndoRedo(ctx, entry, backward)
}

// Redo reapplies the forward patches of the oldest undone entry. The same
// preconditions as Undo apply.
func (u *UndoStore) Redo(ctx context.Context) error {
	entry, err := u.step(forward)
	if err != nil {
		return err
	}
	return u.manager.applyUndoRedo(ctx, entry, forward)
}

// step moves the position one entry in dir and returns that entry. The
// manager lock is held across the checks and the move so a tree cannot be
// removed or the cursor moved in between.
func (u *UndoStore) step(dir direction) (*HistoryEntry, error) {
	m := u.manager
	m.mu.Lock()
	u.mu.Lock()

	var entry *HistoryEntry
	switch {
	case dir == backward && u.position == 0:
		u.mu.Unlock()
		m.mu.Unlock()
		return nil, ErrNothingToUndo
	case dir == forward && u.position == len(u.entries):
		u.mu.Unlock()
		m.mu.Unlock()
		return nil, ErrNothingToRedo
	case dir == backward:
		entry = u.entries[u.position-1]
	default:
		entry = u.entries[u.position]
	}

	if err := m.checkUndoRedoLocked(entry, dir); err != nil {
		u.mu.Unlock()
		m.mu.Unlock()
		return nil, err
	}
	if dir == backward {
		u.position--
	} else {
		u.position++
	}
	ev := u.eventLocked()
	u.mu.Unlock()
	m.mu.Unlock()

	m.emit(ev)
	return entry, nil
}
