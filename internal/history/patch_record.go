package history

import (
	"fmt"
	"strings"

	"github.com/roach88/tilehist/internal/ir"
)

// PatchRecord is one tree's forward and inverse patches produced during one
// exchange of a history entry.
//
// InversePatches are stored in the order they must be applied to undo the
// record; consumers never reverse them.
type PatchRecord struct {
	TreeID         string
	Action         string
	Patches        []ir.Patch
	InversePatches []ir.Patch
}

// NewPatchRecord builds a record from copies of the given patch lists.
func NewPatchRecord(treeID, action string, patches, inverse []ir.Patch) PatchRecord {
	return PatchRecord{
		TreeID:         treeID,
		Action:         action,
		Patches:        ir.ClonePatches(patches),
		InversePatches: ir.ClonePatches(inverse),
	}
}

// Empty reports whether the record carries no patches at all. An empty
// record is the normal "nothing changed" signal and is never stored.
func (r PatchRecord) Empty() bool {
	return len(r.Patches) == 0 && len(r.InversePatches) == 0
}

// Validate checks that forward and inverse lists are both present with equal
// length and that every operation is a known RFC 6902 op. Empty records are
// valid.
func (r PatchRecord) Validate() error {
	if r.Empty() {
		return nil
	}
	if len(r.Patches) != len(r.InversePatches) {
		return &ProtocolError{
			Code:    ErrCodeInvalidRecord,
			Message: fmt.Sprintf("record has %d patches but %d inverse patches", len(r.Patches), len(r.InversePatches)),
			TreeID:  r.TreeID,
		}
	}
	for _, list := range [][]ir.Patch{r.Patches, r.InversePatches} {
		for i, p := range list {
			if !ir.ValidOps[p.Op] {
				return &ProtocolError{
					Code:    ErrCodeInvalidRecord,
					Message: fmt.Sprintf("patch %d has unknown op %q", i, p.Op),
					TreeID:  r.TreeID,
				}
			}
			if p.Path != "" && !strings.HasPrefix(p.Path, "/") {
				return &ProtocolError{
					Code:    ErrCodeInvalidRecord,
					Message: fmt.Sprintf("patch %d has malformed path %q", i, p.Path),
					TreeID:  r.TreeID,
				}
			}
		}
	}
	return nil
}

// Clone returns a deep copy of the record.
func (r PatchRecord) Clone() PatchRecord {
	return NewPatchRecord(r.TreeID, r.Action, r.Patches, r.InversePatches)
}

// Snapshot returns the persisted form of the record. Patch lists are never
// nil in the snapshot so they always encode as JSON arrays.
func (r PatchRecord) Snapshot() ir.PatchRecordSnapshot {
	return ir.PatchRecordSnapshot{
		TreeID:         r.TreeID,
		Action:         r.Action,
		Patches:        nonNil(ir.ClonePatches(r.Patches)),
		InversePatches: nonNil(ir.ClonePatches(r.InversePatches)),
	}
}

// PatchRecordFromSnapshot rebuilds a record from its persisted form.
func PatchRecordFromSnapshot(s ir.PatchRecordSnapshot) PatchRecord {
	return NewPatchRecord(s.TreeID, s.Action, s.Patches, s.InversePatches)
}

func nonNil(patches []ir.Patch) []ir.Patch {
	if patches == nil {
		return []ir.Patch{}
	}
	return patches
}
