package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/tilehist/internal/ir"
)

var (
	// ErrDocumentNotFound is returned when a document id is unknown.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrDigestMismatch is returned when a stored entry no longer matches
	// the digest recorded when it was written.
	ErrDigestMismatch = errors.New("entry digest mismatch")
)

// DocumentInfo summarizes a stored document.
type DocumentInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Entries int    `json:"entries"`
}

// ListDocuments returns every document ordered by id.
func (s *Store) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.name, COUNT(e.id)
		FROM documents d
		LEFT JOIN history_entries e ON e.document_id = d.id
		GROUP BY d.id, d.name
		ORDER BY d.id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	docs := []DocumentInfo{}
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.ID, &d.Name, &d.Entries); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

// LoadDocument reads a document's entries in history order and verifies
// each entry's digest.
func (s *Store) LoadDocument(ctx context.Context, documentID string) (ir.ChangeDocumentSnapshot, error) {
	var version string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot_version FROM documents WHERE id = ?`, documentID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ChangeDocumentSnapshot{}, fmt.Errorf("load %s: %w", documentID, ErrDocumentNotFound)
	}
	if err != nil {
		return ir.ChangeDocumentSnapshot{}, fmt.Errorf("load %s: %w", documentID, err)
	}

	entries, digests, err := s.readEntries(ctx, documentID)
	if err != nil {
		return ir.ChangeDocumentSnapshot{}, err
	}
	if err := s.readRecords(ctx, documentID, entries); err != nil {
		return ir.ChangeDocumentSnapshot{}, err
	}

	for i, entry := range entries {
		got, err := ir.EntryDigest(entry)
		if err != nil {
			return ir.ChangeDocumentSnapshot{}, fmt.Errorf("load %s: entry %d: %w", documentID, i, err)
		}
		if got != digests[i] {
			return ir.ChangeDocumentSnapshot{}, fmt.Errorf("load %s: entry %d (%s): %w", documentID, i, entry.ID, ErrDigestMismatch)
		}
	}

	return ir.ChangeDocumentSnapshot{Version: version, Entries: entries}, nil
}

// TreeIDs returns the distinct tree ids referenced by a document's records,
// sorted.
func (s *Store) TreeIDs(ctx context.Context, documentID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT tree_id FROM patch_records
		WHERE document_id = ?
		ORDER BY tree_id COLLATE BINARY ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query tree ids: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tree id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tree ids: %w", err)
	}
	return ids, nil
}

func (s *Store) readEntries(ctx context.Context, documentID string) ([]ir.HistoryEntrySnapshot, []string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT position, id, action, tree_id, undoable, digest
		FROM history_entries
		WHERE document_id = ?
		ORDER BY position ASC
	`, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []ir.HistoryEntrySnapshot{}
	var digests []string
	for rows.Next() {
		var (
			position int
			undoable int
			digest   string
			e        ir.HistoryEntrySnapshot
		)
		if err := rows.Scan(&position, &e.ID, &e.Action, &e.TreeID, &undoable, &digest); err != nil {
			return nil, nil, fmt.Errorf("scan entry: %w", err)
		}
		if position != len(entries) {
			return nil, nil, fmt.Errorf("entry positions not contiguous: expected %d, got %d", len(entries), position)
		}
		e.Undoable = undoable == 1
		e.Records = []ir.PatchRecordSnapshot{}
		entries = append(entries, e)
		digests = append(digests, digest)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, digests, nil
}

func (s *Store) readRecords(ctx context.Context, documentID string, entries []ir.HistoryEntrySnapshot) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_position, tree_id, action, patches, inverse_patches
		FROM patch_records
		WHERE document_id = ?
		ORDER BY entry_position ASC, seq ASC
	`, documentID)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			position         int
			rec              ir.PatchRecordSnapshot
			patches, inverse string
		)
		if err := rows.Scan(&position, &rec.TreeID, &rec.Action, &patches, &inverse); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		if position < 0 || position >= len(entries) {
			return fmt.Errorf("record references missing entry position %d", position)
		}
		if rec.Patches, err = unmarshalPatches(patches); err != nil {
			return err
		}
		if rec.InversePatches, err = unmarshalPatches(inverse); err != nil {
			return err
		}
		entries[position].Records = append(entries[position].Records, rec)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	return nil
}
