package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tilehist/internal/history"
	"github.com/roach88/tilehist/internal/ir"
	"github.com/roach88/tilehist/internal/testutil"
	"github.com/roach88/tilehist/internal/tile"
)

func TestRecorder_PersistsCompletedEntries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	m := history.NewTreeManager(
		history.WithLogger(logger),
		history.WithEntryIDs(testutil.NewSequenceGenerator("undo")),
		history.WithExchangeIDs(testutil.NewSequenceGenerator("ex")),
	)
	rec, err := NewRecorder(ctx, s, "doc-1", m, logger)
	require.NoError(t, err)
	defer rec.Close()

	tl, err := tile.New("T1", m, tile.WithIDs(testutil.NewSequenceGenerator("T1")), tile.WithLogger(logger))
	require.NoError(t, err)
	m.PutTree("T1", tl)

	require.NoError(t, tl.Apply(ctx, "add", []ir.Patch{{Op: ir.OpAdd, Path: "/x", Value: []byte(`1`)}}, true))
	require.NoError(t, tl.Apply(ctx, "noop", nil, true))
	require.NoError(t, m.Undo(ctx))
	require.NoError(t, rec.Err())

	doc, err := s.LoadDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, m.ChangeDocument().Snapshot().Entries, doc.Entries)
	require.Len(t, doc.Entries, 2)
	assert.Equal(t, "undo", doc.Entries[1].Action)
}

func TestRecorder_ReplaceRewritesDocument(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	m := history.NewTreeManager(history.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	rec, err := NewRecorder(ctx, s, "doc-1", m, nil)
	require.NoError(t, err)

	loaded := ir.ChangeDocumentSnapshot{Entries: []ir.HistoryEntrySnapshot{
		createTestEntry("L1", "T1", "a", `1`),
	}}
	m.ReplaceChangeDocument(history.ChangeDocumentFromSnapshot(loaded))
	require.NoError(t, rec.Err())

	doc, err := s.LoadDocument(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, doc.Entries, 1)
	assert.Equal(t, "L1", doc.Entries[0].ID)

	// nothing is written after Close
	rec.Close()
	require.NoError(t, m.CreateHistoryEntry("E9", "X", "a", "T1", false))
	require.NoError(t, m.AddTreePatchRecord("E9", "X", history.PatchRecord{
		TreeID: "T1", Action: "a",
		Patches:        []ir.Patch{{Op: ir.OpAdd, Path: "/z", Value: []byte(`1`)}},
		InversePatches: []ir.Patch{{Op: ir.OpRemove, Path: "/z"}},
	}))
	doc, err = s.LoadDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, doc.Entries, 1)
}
