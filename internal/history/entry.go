package history

import (
	"maps"

	"github.com/roach88/tilehist/internal/ir"
)

// EntryState is the lifecycle state of a history entry.
type EntryState string

const (
	// EntryActive means at least one exchange is still open on the entry.
	EntryActive EntryState = "active"

	// EntryComplete means every exchange has closed. Completion is final.
	EntryComplete EntryState = "complete"
)

// HistoryEntry groups the patch records of one user-visible action, possibly
// spanning several trees and exchanges.
//
// Values handed out by the manager are read-only views: Records and
// OpenExchanges return copies.
type HistoryEntry struct {
	ID       string
	Action   string
	TreeID   string
	Undoable bool

	state     EntryState
	records   []PatchRecord
	exchanges map[string]string // exchangeID -> description
}

func newHistoryEntry(id, action, treeID string, undoable bool) *HistoryEntry {
	return &HistoryEntry{
		ID:        id,
		Action:    action,
		TreeID:    treeID,
		Undoable:  undoable,
		state:     EntryActive,
		exchanges: make(map[string]string),
	}
}

// State returns the entry's lifecycle state.
func (e *HistoryEntry) State() EntryState {
	return e.state
}

// Records returns a copy of the entry's patch records in arrival order.
func (e *HistoryEntry) Records() []PatchRecord {
	out := make([]PatchRecord, len(e.records))
	for i, r := range e.records {
		out[i] = r.Clone()
	}
	return out
}

// OpenExchanges returns a copy of the open exchange map.
func (e *HistoryEntry) OpenExchanges() map[string]string {
	return maps.Clone(e.exchanges)
}

// Snapshot returns the persisted form of the entry.
func (e *HistoryEntry) Snapshot() ir.HistoryEntrySnapshot {
	records := make([]ir.PatchRecordSnapshot, len(e.records))
	for i, r := range e.records {
		records[i] = r.Snapshot()
	}
	return ir.HistoryEntrySnapshot{
		ID:       e.ID,
		Action:   e.Action,
		TreeID:   e.TreeID,
		Undoable: e.Undoable,
		Records:  records,
	}
}

// HistoryEntryFromSnapshot rebuilds a completed entry from its persisted form.
func HistoryEntryFromSnapshot(s ir.HistoryEntrySnapshot) *HistoryEntry {
	e := newHistoryEntry(s.ID, s.Action, s.TreeID, s.Undoable)
	e.state = EntryComplete
	for _, r := range s.Records {
		e.records = append(e.records, PatchRecordFromSnapshot(r))
	}
	return e
}

func (e *HistoryEntry) openExchange(exchangeID, description string) bool {
	if _, ok := e.exchanges[exchangeID]; ok {
		return false
	}
	e.exchanges[exchangeID] = description
	return true
}

// closeExchange removes the exchange and reports whether the entry just
// completed as a result.
func (e *HistoryEntry) closeExchange(exchangeID string) (completed bool, ok bool) {
	if _, open := e.exchanges[exchangeID]; !open {
		return false, false
	}
	delete(e.exchanges, exchangeID)
	if len(e.exchanges) == 0 {
		e.state = EntryComplete
		return true, true
	}
	return false, true
}

// treeIDs returns the distinct tree ids referenced by the entry's records in
// first-seen order.
func (e *HistoryEntry) treeIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range e.records {
		if !seen[r.TreeID] {
			seen[r.TreeID] = true
			ids = append(ids, r.TreeID)
		}
	}
	return ids
}
