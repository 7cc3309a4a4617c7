package history

import (
	"slices"

	"github.com/roach88/tilehist/internal/ir"
)

// ChangeDocument is the append-only log of completed history entries. An
// entry's position in the log is its history index.
//
// ChangeDocument is not safe for concurrent mutation; the TreeManager guards
// its own document and hands out copies.
type ChangeDocument struct {
	entries []*HistoryEntry
}

// NewChangeDocument returns an empty document.
func NewChangeDocument() *ChangeDocument {
	return &ChangeDocument{}
}

// ChangeDocumentFromSnapshot rebuilds a document from its persisted form.
func ChangeDocumentFromSnapshot(s ir.ChangeDocumentSnapshot) *ChangeDocument {
	doc := &ChangeDocument{entries: make([]*HistoryEntry, 0, len(s.Entries))}
	for _, e := range s.Entries {
		doc.entries = append(doc.entries, HistoryEntryFromSnapshot(e))
	}
	return doc
}

// Len returns the number of completed entries.
func (d *ChangeDocument) Len() int {
	return len(d.entries)
}

// Entry returns the entry at index i. Panics if i is out of range.
func (d *ChangeDocument) Entry(i int) *HistoryEntry {
	return d.entries[i]
}

// Entries returns the entries in history order.
func (d *ChangeDocument) Entries() []*HistoryEntry {
	return slices.Clone(d.entries)
}

// Snapshot returns the persisted form of the document.
func (d *ChangeDocument) Snapshot() ir.ChangeDocumentSnapshot {
	entries := make([]ir.HistoryEntrySnapshot, len(d.entries))
	for i, e := range d.entries {
		entries[i] = e.Snapshot()
	}
	return ir.ChangeDocumentSnapshot{
		Version: ir.SnapshotVersion,
		Entries: entries,
	}
}

// clone copies the entry list. Completed entries are immutable so they are
// shared.
func (d *ChangeDocument) clone() *ChangeDocument {
	return &ChangeDocument{entries: slices.Clone(d.entries)}
}

func (d *ChangeDocument) append(e *HistoryEntry) int {
	d.entries = append(d.entries, e)
	return len(d.entries) - 1
}
