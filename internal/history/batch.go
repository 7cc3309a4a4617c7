package history

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/tilehist/internal/ir"
)

type direction int

const (
	forward  direction = 1
	backward direction = -1
)

func (d direction) String() string {
	if d == backward {
		return "undo"
	}
	return "redo"
}

type namedTree struct {
	id   string
	tree Tree
}

// batch is one suspend / apply / resume pass over the registered trees.
type batch struct {
	entryID    string
	exchangeID string // used for start and finish, and for apply unless overridden

	// applyExchanges overrides the apply exchange per tree. The manager
	// closes an overridden exchange itself when that tree's apply fails.
	applyExchanges map[string]string

	buckets map[string][]ir.Patch
}

// collectBuckets gathers patches per tree. Forward walks entries and records
// in order and takes forward patches; backward walks both in reverse and
// takes inverse patches as stored.
func collectBuckets(entries []*HistoryEntry, dir direction) (map[string][]ir.Patch, []string) {
	buckets := make(map[string][]ir.Patch)
	var order []string
	add := func(r PatchRecord) {
		patches := r.Patches
		if dir == backward {
			patches = r.InversePatches
		}
		if len(patches) == 0 {
			return
		}
		if _, ok := buckets[r.TreeID]; !ok {
			order = append(order, r.TreeID)
		}
		buckets[r.TreeID] = append(buckets[r.TreeID], ir.ClonePatches(patches)...)
	}

	if dir == forward {
		for _, e := range entries {
			for _, r := range e.records {
				add(r)
			}
		}
	} else {
		for i := len(entries) - 1; i >= 0; i-- {
			recs := entries[i].records
			for j := len(recs) - 1; j >= 0; j-- {
				add(recs[j])
			}
		}
	}
	return buckets, order
}

// treesForLocked returns every registered tree in registration order and
// fails if any id in referenced is not registered.
func (m *TreeManager) treesForLocked(referenced []string) ([]namedTree, error) {
	for _, id := range referenced {
		if _, ok := m.trees[id]; !ok {
			return nil, newUnknownTreeError(id)
		}
	}
	out := make([]namedTree, 0, len(m.treeOrder))
	for _, id := range m.treeOrder {
		out = append(out, namedTree{id: id, tree: m.trees[id]})
	}
	return out, nil
}

// fanOut calls fn for every tree concurrently and waits for all of them.
// Failures are logged per tree; the first error is returned.
func (m *TreeManager) fanOut(ctx context.Context, phase, entryID string, trees []namedTree, fn func(context.Context, namedTree) error) error {
	var g errgroup.Group
	for _, nt := range trees {
		nt := nt
		g.Go(func() error {
			if err := fn(ctx, nt); err != nil {
				m.logger.Error("tree call failed",
					"phase", phase,
					"history_entry_id", entryID,
					"tree_id", nt.id,
					"error", err,
				)
				return fmt.Errorf("%s tree %s: %w", phase, nt.id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// applyBatch suspends every tree, applies each non-empty bucket, and resumes
// every tree. Resume is sent even when an earlier phase failed. Trees that
// applied successfully are not rolled back.
func (m *TreeManager) applyBatch(ctx context.Context, trees []namedTree, b batch) error {
	startErr := m.fanOut(ctx, "start", b.entryID, trees, func(ctx context.Context, nt namedTree) error {
		return nt.tree.StartApplyingPatchesFromManager(ctx, b.entryID, b.exchangeID)
	})

	var targets []namedTree
	for _, nt := range trees {
		if len(b.buckets[nt.id]) > 0 {
			targets = append(targets, nt)
		}
	}
	applyErr := m.fanOut(ctx, "apply", b.entryID, targets, func(ctx context.Context, nt namedTree) error {
		exchangeID := b.exchangeID
		if id, ok := b.applyExchanges[nt.id]; ok {
			exchangeID = id
		}
		err := nt.tree.ApplyPatchesFromManager(ctx, b.entryID, exchangeID, b.buckets[nt.id])
		if err != nil && exchangeID != b.exchangeID {
			m.abandonExchange(b.entryID, exchangeID)
		}
		return err
	})

	finishErr := m.fanOut(ctx, "finish", b.entryID, trees, func(ctx context.Context, nt namedTree) error {
		return nt.tree.FinishApplyingPatchesFromManager(ctx, b.entryID, b.exchangeID)
	})

	for _, err := range []error{startErr, applyErr, finishErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

// abandonExchange closes an exchange on behalf of a tree that failed before
// closing it, so the entry can still complete. An exchange the tree already
// closed is fine.
func (m *TreeManager) abandonExchange(entryID, exchangeID string) {
	err := m.EndExchange(entryID, exchangeID)
	if err != nil && !IsProtocolError(err, ErrCodeExchangeNotOpen) {
		m.logger.Error("closing abandoned exchange failed",
			"history_entry_id", entryID,
			"exchange_id", exchangeID,
			"error", err,
		)
	}
}
