package history

import (
	"context"
	"fmt"

	"github.com/roach88/tilehist/internal/ir"
)

// SharedModelApplyDescription is the description of exchanges opened by
// UpdateSharedModel.
const SharedModelApplyDescription = "updateSharedModel.apply"

// UpdateSharedModel broadcasts a shared model snapshot to every registered
// tree except sourceTreeID.
//
// A fresh exchange is opened on the entry for each target before any tree is
// called, so the entry cannot complete while a target is still working. Each
// target must close its exchange through AddTreePatchRecord. Targets are
// called concurrently; a target that fails is logged and its exchange is
// closed by the manager. The first error is returned after every target has
// returned.
//
// The caller's own exchange (exchangeID) must be open on the entry. It stays
// open and remains the caller's to close.
func (m *TreeManager) UpdateSharedModel(ctx context.Context, historyEntryID, exchangeID, sourceTreeID string, snapshot ir.SharedModelSnapshot) error {
	replay := IsReplayID(historyEntryID)

	m.mu.Lock()
	if !replay {
		entry, err := m.activeEntryLocked(historyEntryID, exchangeID)
		if err != nil {
			m.mu.Unlock()
			return err
		}
		if _, open := entry.exchanges[exchangeID]; !open {
			m.mu.Unlock()
			return newEntryError(ErrCodeExchangeNotOpen, historyEntryID, exchangeID, "exchange not open")
		}
	}
	var targets []namedTree
	for _, id := range m.treeOrder {
		if id != sourceTreeID {
			targets = append(targets, namedTree{id: id, tree: m.trees[id]})
		}
	}
	exchanges := make(map[string]string, len(targets))
	for _, nt := range targets {
		if replay {
			exchanges[nt.id] = ReplayExchangeID
		} else {
			exchanges[nt.id] = m.exchangeIDs.Generate()
		}
	}
	if !replay {
		entry := m.active[historyEntryID]
		var opened []string
		for _, nt := range targets {
			id := exchanges[nt.id]
			if !entry.openExchange(id, SharedModelApplyDescription) {
				for _, prior := range opened {
					delete(entry.exchanges, prior)
				}
				m.mu.Unlock()
				return newEntryError(ErrCodeDuplicateExchange, historyEntryID, id, "generated exchange id already open")
			}
			opened = append(opened, id)
		}
	}
	m.mu.Unlock()

	m.logger.Debug("shared model update",
		"history_entry_id", historyEntryID,
		"exchange_id", exchangeID,
		"source_tree_id", sourceTreeID,
		"shared_model_id", snapshot.ID,
		"targets", len(targets),
	)

	return m.fanOut(ctx, "shared model", historyEntryID, targets, func(ctx context.Context, nt namedTree) error {
		exID := exchanges[nt.id]
		snap := snapshot
		snap.Data = append([]byte(nil), snapshot.Data...)
		if err := nt.tree.ApplySharedModelSnapshotFromManager(ctx, historyEntryID, exID, snap); err != nil {
			if !replay {
				m.abandonExchange(historyEntryID, exID)
			}
			return fmt.Errorf("shared model %s: %w", snapshot.ID, err)
		}
		return nil
	})
}
