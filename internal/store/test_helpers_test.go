package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/roach88/tilehist/internal/ir"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry creates an entry with one record setting /<key>.
func createTestEntry(id, treeID, key, value string) ir.HistoryEntrySnapshot {
	return ir.HistoryEntrySnapshot{
		ID:       id,
		Action:   "set " + key,
		TreeID:   treeID,
		Undoable: true,
		Records: []ir.PatchRecordSnapshot{{
			TreeID:         treeID,
			Action:         "set " + key,
			Patches:        []ir.Patch{{Op: ir.OpAdd, Path: "/" + key, Value: json.RawMessage(value)}},
			InversePatches: []ir.Patch{{Op: ir.OpRemove, Path: "/" + key}},
		}},
	}
}
