package ir

import (
	"encoding/json"
	"slices"
)

// Patch operation names (RFC 6902).
const (
	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
	OpMove    = "move"
	OpCopy    = "copy"
	OpTest    = "test"
)

// ValidOps defines the allowed patch operations.
var ValidOps = map[string]bool{
	OpAdd:     true,
	OpRemove:  true,
	OpReplace: true,
	OpMove:    true,
	OpCopy:    true,
	OpTest:    true,
}

// Patch is a single RFC 6902 JSON Patch operation.
//
// Value holds raw JSON so that a patch read from storage is applied exactly as
// it was recorded. A JSON null value is kept as the literal "null".
type Patch struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	From  string          `json:"from,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Clone returns a deep copy of the patch.
func (p Patch) Clone() Patch {
	if p.Value != nil {
		p.Value = slices.Clone(p.Value)
	}
	return p
}

// ClonePatches deep-copies a patch list. A nil list stays nil.
func ClonePatches(patches []Patch) []Patch {
	if patches == nil {
		return nil
	}
	out := make([]Patch, len(patches))
	for i, p := range patches {
		out[i] = p.Clone()
	}
	return out
}

// PatchRecordSnapshot is the persisted form of one tree's patch record.
type PatchRecordSnapshot struct {
	TreeID         string  `json:"tree_id"`
	Action         string  `json:"action"`
	Patches        []Patch `json:"patches"`
	InversePatches []Patch `json:"inverse_patches"`
}

// HistoryEntrySnapshot is the persisted form of a completed history entry.
type HistoryEntrySnapshot struct {
	ID       string                `json:"id"`
	Action   string                `json:"action"`
	TreeID   string                `json:"tree_id"`
	Undoable bool                  `json:"undoable"`
	Records  []PatchRecordSnapshot `json:"records"`
}

// ChangeDocumentSnapshot is the persisted form of a whole document history.
// Entries are in completion order; an entry's index is its history position.
type ChangeDocumentSnapshot struct {
	Version string                 `json:"version,omitempty"`
	Entries []HistoryEntrySnapshot `json:"entries"`
}

// SharedModelSnapshot is the full state of a shared model broadcast between
// trees. Data is opaque to the history engine.
type SharedModelSnapshot struct {
	ID   string          `json:"id"`
	Type string          `json:"type,omitempty"`
	Data json.RawMessage `json:"data"`
}

// TreeIDs returns the distinct tree ids referenced by records in the
// snapshot, in first-seen order.
func (s ChangeDocumentSnapshot) TreeIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, entry := range s.Entries {
		for _, rec := range entry.Records {
			if !seen[rec.TreeID] {
				seen[rec.TreeID] = true
				ids = append(ids, rec.TreeID)
			}
		}
	}
	return ids
}
