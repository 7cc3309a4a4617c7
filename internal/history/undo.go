package history

import (
	"context"
	"errors"
	"fmt"
)

// Undo reverts the most recent undoable entry. See UndoStore.Undo.
func (m *TreeManager) Undo(ctx context.Context) error {
	return m.undoStore.Undo(ctx)
}

// Redo reapplies the most recently undone entry. See UndoStore.Redo.
func (m *TreeManager) Redo(ctx context.Context) error {
	return m.undoStore.Redo(ctx)
}

// checkUndoRedoLocked reports why target cannot be undone or redone right
// now: the cursor is behind the end of the document, or a tree the entry
// touched is not registered.
func (m *TreeManager) checkUndoRedoLocked(target *HistoryEntry, dir direction) error {
	if n := m.document.Len(); m.cursorSet && m.cursor < n {
		return fmt.Errorf("%s %s: %w", dir, target.ID, cursorError(m.cursor, n))
	}
	_, referenced := collectBuckets([]*HistoryEntry{target}, dir)
	if _, err := m.treesForLocked(referenced); err != nil {
		return fmt.Errorf("%s %s: %w", dir, target.ID, err)
	}
	return nil
}

// applyUndoRedo applies one entry's inverse or forward patches as a new,
// non-undoable history entry owned by the manager. Each affected tree gets
// its own exchange and records what it applied through AddTreePatchRecord,
// so the undo or redo shows up in the change document.
func (m *TreeManager) applyUndoRedo(ctx context.Context, target *HistoryEntry, dir direction) error {
	action := dir.String()
	buckets, referenced := collectBuckets([]*HistoryEntry{target}, dir)

	m.mu.Lock()
	trees, err := m.treesForLocked(referenced)
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s %s: %w", action, target.ID, err)
	}

	entryID := m.entryIDs.Generate()
	ownExchange := m.exchangeIDs.Generate()
	if err := m.CreateHistoryEntry(entryID, ownExchange, action, ManagerTreeID, false); err != nil {
		return fmt.Errorf("%s %s: %w", action, target.ID, err)
	}

	applyExchanges := make(map[string]string, len(referenced))
	for _, treeID := range referenced {
		exID := m.exchangeIDs.Generate()
		if err := m.StartExchange(entryID, exID, action+".apply"); err != nil {
			for _, opened := range applyExchanges {
				m.abandonExchange(entryID, opened)
			}
			return errors.Join(fmt.Errorf("%s %s: %w", action, target.ID, err), m.EndExchange(entryID, ownExchange))
		}
		applyExchanges[treeID] = exID
	}

	m.logger.Info("applying "+action,
		"history_entry_id", entryID,
		"target_entry_id", target.ID,
		"trees", len(referenced),
	)

	applyErr := m.applyBatch(ctx, trees, batch{
		entryID:        entryID,
		exchangeID:     ownExchange,
		applyExchanges: applyExchanges,
		buckets:        buckets,
	})
	endErr := m.EndExchange(entryID, ownExchange)
	if err := errors.Join(applyErr, endErr); err != nil {
		return fmt.Errorf("%s %s: %w", action, target.ID, err)
	}
	return nil
}
