package history

import (
	"context"
	"fmt"
)

// ReplayHistoryToTrees rebuilds tree state from the change document.
//
// Trees implementing Resetter are reset first. Then every tree is suspended,
// each tree receives all of its forward patches in document order in one
// call, and every tree is resumed. All calls carry the replay sentinel ids so
// nothing is recorded. Every tree referenced by the document must be
// registered; otherwise no tree is touched.
//
// The whole history is gathered before anything is applied, so memory grows
// with document size.
//
// On success the cursor moves to the end of the replayed document.
func (m *TreeManager) ReplayHistoryToTrees(ctx context.Context) error {
	m.mu.Lock()
	entries := m.document.Entries()
	buckets, referenced := collectBuckets(entries, forward)
	trees, err := m.treesForLocked(referenced)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	var resetters []namedTree
	for _, nt := range trees {
		if _, ok := nt.tree.(Resetter); ok {
			resetters = append(resetters, nt)
		}
	}
	err = m.fanOut(ctx, "reset", ReplayHistoryEntryID, resetters, func(ctx context.Context, nt namedTree) error {
		return nt.tree.(Resetter).ResetFromManager(ctx)
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	err = m.applyBatch(ctx, trees, batch{
		entryID:    ReplayHistoryEntryID,
		exchangeID: ReplayExchangeID,
		buckets:    buckets,
	})
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	m.mu.Lock()
	m.cursor = len(entries)
	m.cursorSet = true
	m.mu.Unlock()

	m.logger.Info("history replayed", "entries", len(entries), "trees", len(trees))
	m.emit(Event{Type: EventHistoryIndexChanged, Index: len(entries)})
	return nil
}

// GoToHistoryEntry moves the cursor to newIndex, the number of entries that
// should be applied, patching trees on the way.
//
// Moving forward applies the forward patches of entries [cur, newIndex).
// Moving backward applies the inverse patches of entries [newIndex, cur),
// newest entry and newest record first. Nothing is applied when the cursor
// is undefined or already at newIndex. The cursor changes only when every
// tree call succeeded.
func (m *TreeManager) GoToHistoryEntry(ctx context.Context, newIndex int) error {
	m.mu.Lock()
	if !m.cursorSet {
		m.mu.Unlock()
		return nil
	}
	n := m.document.Len()
	if newIndex < 0 || newIndex > n {
		m.mu.Unlock()
		return indexError(newIndex, n)
	}
	cur := m.cursor
	if newIndex == cur {
		m.mu.Unlock()
		return nil
	}

	dir := forward
	entries := m.document.entries[cur:newIndex]
	if newIndex < cur {
		dir = backward
		entries = m.document.entries[newIndex:cur]
	}
	buckets, referenced := collectBuckets(entries, dir)
	trees, err := m.treesForLocked(referenced)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	err = m.applyBatch(ctx, trees, batch{
		entryID:    ReplayHistoryEntryID,
		exchangeID: ReplayExchangeID,
		buckets:    buckets,
	})
	if err != nil {
		return fmt.Errorf("go to history entry %d: %w", newIndex, err)
	}

	m.mu.Lock()
	m.cursor = newIndex
	m.mu.Unlock()

	m.logger.Info("history index changed", "from", cur, "to", newIndex, "entries", len(entries))
	m.emit(Event{Type: EventHistoryIndexChanged, Index: newIndex})
	return nil
}
