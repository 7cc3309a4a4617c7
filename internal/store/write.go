package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/tilehist/internal/ir"
)

// CreateDocument registers a document. Uses ON CONFLICT(id) DO NOTHING for
// idempotency; an existing document keeps its name.
func (s *Store) CreateDocument(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, name, snapshot_version, engine_version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, name, ir.SnapshotVersion, ir.EngineVersion)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// AppendEntry stores a completed entry at the given history position.
// Returns whether a new row was inserted: writing an entry id the document
// already holds is a no-op, so replayed completion events are harmless.
//
// Note: The document must exist (foreign key constraint). A different entry
// already stored at position is an error.
func (s *Store) AppendEntry(ctx context.Context, documentID string, position int, entry ir.HistoryEntrySnapshot) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("append entry: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT position FROM history_entries WHERE document_id = ? AND id = ?
	`, documentID, entry.ID).Scan(&existing)
	switch {
	case err == nil:
		return false, nil
	case err != sql.ErrNoRows:
		return false, fmt.Errorf("append entry: lookup: %w", err)
	}

	if err := insertEntry(ctx, tx, documentID, position, entry); err != nil {
		return false, fmt.Errorf("append entry %s: %w", entry.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("append entry: commit: %w", err)
	}
	return true, nil
}

// ReplaceDocument atomically replaces every entry of a document with the
// snapshot's entries. The document is created if it does not exist.
func (s *Store) ReplaceDocument(ctx context.Context, documentID string, doc ir.ChangeDocumentSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("replace document: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, name, snapshot_version, engine_version)
		VALUES (?, '', ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, documentID, ir.SnapshotVersion, ir.EngineVersion); err != nil {
		return fmt.Errorf("replace document: %w", err)
	}
	// patch_records rows go with their entries (ON DELETE CASCADE)
	if _, err := tx.ExecContext(ctx, `DELETE FROM history_entries WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("replace document: clear: %w", err)
	}
	for i, entry := range doc.Entries {
		if err := insertEntry(ctx, tx, documentID, i, entry); err != nil {
			return fmt.Errorf("replace document: entry %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("replace document: commit: %w", err)
	}
	return nil
}

// DeleteDocument removes a document and all of its history.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, documentID string, position int, entry ir.HistoryEntrySnapshot) error {
	digest, err := ir.EntryDigest(entry)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO history_entries
		(document_id, position, id, action, tree_id, undoable, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		documentID,
		position,
		entry.ID,
		entry.Action,
		entry.TreeID,
		boolToInt(entry.Undoable),
		digest,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	for seq, rec := range entry.Records {
		patches, err := marshalPatches(rec.Patches)
		if err != nil {
			return err
		}
		inverse, err := marshalPatches(rec.InversePatches)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO patch_records
			(document_id, entry_position, seq, tree_id, action, patches, inverse_patches)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, documentID, position, seq, rec.TreeID, rec.Action, patches, inverse)
		if err != nil {
			return fmt.Errorf("insert record %d: %w", seq, err)
		}
	}
	return nil
}
