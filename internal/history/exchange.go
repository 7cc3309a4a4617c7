package history

import (
	"errors"
)

// CreateHistoryEntry creates an active entry and opens the creator's own
// exchange on it. Entry ids must be unique for the manager's lifetime;
// reusing the id of an active, completed or discarded entry fails.
func (m *TreeManager) CreateHistoryEntry(historyEntryID, exchangeID, action, treeID string, undoable bool) error {
	if historyEntryID == "" || IsReplayID(historyEntryID) {
		return newEntryError(ErrCodeReservedID, historyEntryID, exchangeID, "history entry id is reserved")
	}

	m.mu.Lock()
	if m.usedIDs[historyEntryID] {
		m.mu.Unlock()
		return newEntryError(ErrCodeDuplicateEntry, historyEntryID, exchangeID, "history entry id already used")
	}
	entry := newHistoryEntry(historyEntryID, action, treeID, undoable)
	entry.openExchange(exchangeID, action)
	m.active[historyEntryID] = entry
	m.usedIDs[historyEntryID] = true
	m.mu.Unlock()

	m.logger.Debug("history entry created",
		"history_entry_id", historyEntryID,
		"exchange_id", exchangeID,
		"action", action,
		"tree_id", treeID,
		"undoable", undoable,
	)
	m.emit(Event{Type: EventEntryCreated, HistoryEntryID: historyEntryID})
	return nil
}

// StartExchange opens another exchange on an active entry. The replay
// sentinel is accepted and ignored.
func (m *TreeManager) StartExchange(historyEntryID, exchangeID, description string) error {
	if IsReplayID(historyEntryID) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, err := m.activeEntryLocked(historyEntryID, exchangeID)
	if err != nil {
		return err
	}
	if !entry.openExchange(exchangeID, description) {
		return newEntryError(ErrCodeDuplicateExchange, historyEntryID, exchangeID, "exchange already open")
	}

	m.logger.Debug("exchange started",
		"history_entry_id", historyEntryID,
		"exchange_id", exchangeID,
		"description", description,
	)
	return nil
}

// EndExchange closes an open exchange. Closing the last exchange completes
// the entry. The replay sentinel is accepted and ignored.
func (m *TreeManager) EndExchange(historyEntryID, exchangeID string) error {
	if IsReplayID(historyEntryID) {
		return nil
	}

	m.mu.Lock()
	entry, err := m.activeEntryLocked(historyEntryID, exchangeID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	events, err := m.closeExchangeLocked(entry, exchangeID)
	m.mu.Unlock()

	m.emit(events...)
	return err
}

// AddTreePatchRecord attaches record to the entry and closes exchangeID.
// An empty record closes the exchange without being stored. The replay
// sentinel is accepted and ignored.
func (m *TreeManager) AddTreePatchRecord(historyEntryID, exchangeID string, record PatchRecord) error {
	if IsReplayID(historyEntryID) {
		return nil
	}
	if err := record.Validate(); err != nil {
		var pe *ProtocolError
		if errors.As(err, &pe) {
			pe.HistoryEntryID = historyEntryID
			pe.ExchangeID = exchangeID
		}
		return err
	}

	m.mu.Lock()
	entry, err := m.activeEntryLocked(historyEntryID, exchangeID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, open := entry.exchanges[exchangeID]; !open {
		m.mu.Unlock()
		return newEntryError(ErrCodeExchangeNotOpen, historyEntryID, exchangeID, "exchange not open")
	}
	if !record.Empty() {
		entry.records = append(entry.records, record.Clone())
	}
	events, err := m.closeExchangeLocked(entry, exchangeID)
	m.mu.Unlock()

	m.logger.Debug("patch record added",
		"history_entry_id", historyEntryID,
		"exchange_id", exchangeID,
		"tree_id", record.TreeID,
		"patches", len(record.Patches),
	)
	m.emit(events...)
	return err
}

// activeEntryLocked distinguishes ids that were never created from ids whose
// entry has already completed or been discarded.
func (m *TreeManager) activeEntryLocked(historyEntryID, exchangeID string) (*HistoryEntry, error) {
	if entry, ok := m.active[historyEntryID]; ok {
		return entry, nil
	}
	if m.usedIDs[historyEntryID] {
		return nil, newEntryError(ErrCodeEntryComplete, historyEntryID, exchangeID, "history entry already complete")
	}
	return nil, newEntryError(ErrCodeEntryNotFound, historyEntryID, exchangeID, "history entry not found")
}

func (m *TreeManager) closeExchangeLocked(entry *HistoryEntry, exchangeID string) ([]Event, error) {
	completed, ok := entry.closeExchange(exchangeID)
	if !ok {
		return nil, newEntryError(ErrCodeExchangeNotOpen, entry.ID, exchangeID, "exchange not open")
	}
	if !completed {
		return nil, nil
	}
	return m.completeEntryLocked(entry), nil
}

// completeEntryLocked detaches a just-completed entry from the active set and
// either discards it or appends it to the document.
func (m *TreeManager) completeEntryLocked(entry *HistoryEntry) []Event {
	delete(m.active, entry.ID)

	if len(entry.records) == 0 {
		m.logger.Debug("empty history entry discarded", "history_entry_id", entry.ID, "action", entry.Action)
		return []Event{{Type: EventEntryDiscarded, HistoryEntryID: entry.ID}}
	}

	atEnd := m.cursorSet && m.cursor == m.document.Len()
	index := m.document.append(entry)
	snap := entry.Snapshot()
	events := []Event{{
		Type:           EventEntryCompleted,
		HistoryEntryID: entry.ID,
		Entry:          &snap,
		Index:          index,
	}}

	if entry.Undoable {
		events = append(events, m.undoStore.push(entry))
	}
	if atEnd {
		m.cursor = m.document.Len()
		events = append(events, Event{Type: EventHistoryIndexChanged, Index: m.cursor})
	}

	m.logger.Info("history entry completed",
		"history_entry_id", entry.ID,
		"action", entry.Action,
		"tree_id", entry.TreeID,
		"records", len(entry.records),
		"index", index,
	)
	return events
}
