package tile

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tilehist/internal/history"
	"github.com/roach88/tilehist/internal/ir"
	"github.com/roach88/tilehist/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newManager() *history.TreeManager {
	return history.NewTreeManager(
		history.WithLogger(quietLogger()),
		history.WithEntryIDs(testutil.NewSequenceGenerator("mgr-entry")),
		history.WithExchangeIDs(testutil.NewSequenceGenerator("mgr-ex")),
	)
}

func newTile(t *testing.T, m *history.TreeManager, id, initial string) *Tile {
	t.Helper()
	tl, err := New(id, m,
		WithInitialState([]byte(initial)),
		WithIDs(testutil.NewSequenceGenerator(id)),
		WithLogger(quietLogger()),
	)
	require.NoError(t, err)
	m.PutTree(id, tl)
	return tl
}

func op(o, path, value string) ir.Patch {
	p := ir.Patch{Op: o, Path: path}
	if value != "" {
		p.Value = json.RawMessage(value)
	}
	return p
}

func TestNew_RequiresObject(t *testing.T) {
	_, err := New("T1", newManager(), WithInitialState([]byte(`[1,2]`)))
	require.Error(t, err)

	_, err = New("T1", newManager(), WithInitialState([]byte(`not json`)))
	require.Error(t, err)
}

func TestApply_RecordsForwardAndInverse(t *testing.T) {
	m := newManager()
	tl := newTile(t, m, "T1", `{"a":1,"list":[1,2]}`)
	ctx := context.Background()

	require.NoError(t, tl.Apply(ctx, "edit", []ir.Patch{
		op(ir.OpReplace, "/a", "2"),
		op(ir.OpAdd, "/list/-", "3"),
		op(ir.OpAdd, "/b", `{"c":true}`),
	}, true))

	assert.JSONEq(t, `{"a":2,"list":[1,2,3],"b":{"c":true}}`, string(tl.State()))

	doc := m.ChangeDocument()
	require.Equal(t, 1, doc.Len())
	entry := doc.Entry(0)
	assert.Equal(t, "T1-1", entry.ID)
	assert.Equal(t, "T1", entry.TreeID)
	recs := entry.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, []ir.Patch{
		op(ir.OpRemove, "/b", ""),
		op(ir.OpRemove, "/list/2", ""),
		op(ir.OpReplace, "/a", "1"),
	}, recs[0].InversePatches)
}

func TestApply_UndoRedoRoundTrip(t *testing.T) {
	m := newManager()
	tl := newTile(t, m, "T1", `{"a":1}`)
	ctx := context.Background()
	before := tl.State()

	require.NoError(t, tl.Apply(ctx, "edit", []ir.Patch{
		op(ir.OpRemove, "/a", ""),
		op(ir.OpAdd, "/a", `"x"`),
		op(ir.OpAdd, "/n", `null`),
	}, true))
	after := tl.State()

	require.NoError(t, m.Undo(ctx))
	assert.JSONEq(t, string(before), string(tl.State()))

	require.NoError(t, m.Redo(ctx))
	assert.JSONEq(t, string(after), string(tl.State()))
	assert.Empty(t, m.ActiveEntryIDs())
}

func TestApply_FailureLeavesStateAndDiscardsEntry(t *testing.T) {
	m := newManager()
	tl := newTile(t, m, "T1", `{"a":1}`)

	err := tl.Apply(context.Background(), "bad", []ir.Patch{
		op(ir.OpReplace, "/a", "2"),
		op(ir.OpRemove, "/missing", ""),
	}, true)
	require.Error(t, err)

	assert.JSONEq(t, `{"a":1}`, string(tl.State()))
	assert.Equal(t, 0, m.ChangeDocument().Len())
	assert.Empty(t, m.ActiveEntryIDs())
}

func TestApply_RejectsMove(t *testing.T) {
	m := newManager()
	tl := newTile(t, m, "T1", `{"a":1}`)

	err := tl.Apply(context.Background(), "mv", []ir.Patch{{Op: ir.OpMove, From: "/a", Path: "/b"}}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be inverted")
}

func TestUpdate_DiffsState(t *testing.T) {
	m := newManager()
	tl := newTile(t, m, "T1", `{"title":"a","cells":{"A1":1,"A2":2},"tags":["x"]}`)
	ctx := context.Background()
	before := tl.State()

	next := `{"title":"b","cells":{"A1":1,"B1":3},"tags":["x","y"]}`
	require.NoError(t, tl.Update(ctx, "retitle", []byte(next), true))
	assert.JSONEq(t, next, string(tl.State()))
	require.Equal(t, 1, m.ChangeDocument().Len())

	require.NoError(t, m.Undo(ctx))
	assert.JSONEq(t, string(before), string(tl.State()))
}

func TestUpdate_UnchangedRecordsNothing(t *testing.T) {
	m := newManager()
	tl := newTile(t, m, "T1", `{"a":1}`)

	require.NoError(t, tl.Update(context.Background(), "same", []byte(`{ "a" : 1 }`), true))
	assert.Equal(t, 0, m.ChangeDocument().Len())
}

func TestSharedModel_PropagatesAndUndoes(t *testing.T) {
	m := newManager()
	t1 := newTile(t, m, "T1", `{}`)
	t2 := newTile(t, m, "T2", `{"own":true}`)
	ctx := context.Background()

	require.NoError(t, t1.Apply(ctx, "share", []ir.Patch{
		op(ir.OpAdd, "/shared", `{}`),
		op(ir.OpAdd, "/shared/S1", `{"rows":[1]}`),
	}, true))

	snap, ok := t2.SharedModel("S1")
	require.True(t, ok)
	assert.JSONEq(t, `{"rows":[1]}`, string(snap.Data))

	// one entry with a record from each tile
	doc := m.ChangeDocument()
	require.Equal(t, 1, doc.Len())
	assert.Len(t, doc.Entry(0).Records(), 2)
	assert.Empty(t, m.ActiveEntryIDs())

	require.NoError(t, m.Undo(ctx))
	_, ok = t1.SharedModel("S1")
	assert.False(t, ok)
	_, ok = t2.SharedModel("S1")
	assert.False(t, ok)
	assert.JSONEq(t, `{"own":true}`, string(t2.State()))

	require.NoError(t, m.Redo(ctx))
	snap, ok = t2.SharedModel("S1")
	require.True(t, ok)
	assert.JSONEq(t, `{"rows":[1]}`, string(snap.Data))
	assert.Empty(t, m.ActiveEntryIDs())
}

func TestSharedModel_EditOfMirrorBroadcasts(t *testing.T) {
	m := newManager()
	t1 := newTile(t, m, "T1", `{"shared":{"S1":{"n":1}}}`)
	t2 := newTile(t, m, "T2", `{"shared":{"S1":{"n":1}}}`)

	require.NoError(t, t2.Apply(context.Background(), "bump", []ir.Patch{
		op(ir.OpReplace, "/shared/S1/n", "2"),
	}, true))

	v, ok := t1.Get("/shared/S1/n")
	require.True(t, ok)
	assert.Equal(t, "2", string(v))
}

func TestReplayAndNavigation(t *testing.T) {
	m := newManager()
	t1 := newTile(t, m, "T1", `{}`)
	t2 := newTile(t, m, "T2", `{}`)
	ctx := context.Background()

	require.NoError(t, t1.Apply(ctx, "a", []ir.Patch{op(ir.OpAdd, "/a", "1")}, true))
	require.NoError(t, t2.Apply(ctx, "b", []ir.Patch{op(ir.OpAdd, "/b", "1")}, true))
	require.NoError(t, t1.Apply(ctx, "a2", []ir.Patch{op(ir.OpReplace, "/a", "2")}, true))
	want1, want2 := t1.State(), t2.State()

	require.NoError(t, m.ReplayHistoryToTrees(ctx))
	assert.JSONEq(t, string(want1), string(t1.State()))
	require.NoError(t, m.ReplayHistoryToTrees(ctx))
	assert.JSONEq(t, string(want1), string(t1.State()))
	assert.JSONEq(t, string(want2), string(t2.State()))

	require.NoError(t, m.GoToHistoryEntry(ctx, 1))
	assert.JSONEq(t, `{"a":1}`, string(t1.State()))
	assert.JSONEq(t, `{}`, string(t2.State()))

	require.NoError(t, m.GoToHistoryEntry(ctx, 0))
	assert.JSONEq(t, `{}`, string(t1.State()))

	require.NoError(t, m.GoToHistoryEntry(ctx, 3))
	assert.JSONEq(t, string(want1), string(t1.State()))
	assert.JSONEq(t, string(want2), string(t2.State()))
	assert.Equal(t, 3, m.ChangeDocument().Len())
}

func TestPointerTokens(t *testing.T) {
	tokens, err := parsePointer("/a~1b/c~0d/0")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/b", "c~d", "0"}, tokens)
	assert.Equal(t, "/a~1b/c~0d/0", joinPointer(tokens))

	_, err = parsePointer("a")
	require.Error(t, err)

	id, ok := sharedModelID("/shared/S~11/x")
	require.True(t, ok)
	assert.Equal(t, "S/1", id)
	_, ok = sharedModelID("/shared")
	assert.False(t, ok)
}

func TestArrayIndex(t *testing.T) {
	i, ok := arrayIndex("-", 3)
	assert.True(t, ok)
	assert.Equal(t, 3, i)

	_, ok = arrayIndex("01", 3)
	assert.False(t, ok)
	_, ok = arrayIndex("x", 3)
	assert.False(t, ok)
}
