package history

import (
	"context"

	"github.com/roach88/tilehist/internal/ir"
)

// Reserved identifiers.
const (
	// ReplayHistoryEntryID marks tree calls made during replay, navigation
	// and undo application. Exchange calls carrying it are accepted and
	// ignored so replayed patches are never recorded again.
	ReplayHistoryEntryID = "__replay__"

	// ReplayExchangeID is the exchange id paired with ReplayHistoryEntryID.
	ReplayExchangeID = "__replay__"

	// ManagerTreeID is the tree id the manager uses for entries it creates
	// itself (undo and redo).
	ManagerTreeID = "__manager__"
)

// Tree is an owner of patchable state coordinated by the manager.
//
// Every method may block. Implementations may call back into the manager
// from inside any method.
type Tree interface {
	// ApplyPatchesFromManager applies the patches in order. Unless
	// historyEntryID is the replay sentinel, the tree must close exchangeID
	// through AddTreePatchRecord with the patches it actually applied.
	ApplyPatchesFromManager(ctx context.Context, historyEntryID, exchangeID string, patches []ir.Patch) error

	// ApplySharedModelSnapshotFromManager replaces the tree's view of a
	// shared model. The tree must close exchangeID through
	// AddTreePatchRecord once it is done, recording whatever it changed.
	ApplySharedModelSnapshotFromManager(ctx context.Context, historyEntryID, exchangeID string, snapshot ir.SharedModelSnapshot) error

	// StartApplyingPatchesFromManager suspends shared-model synchronization
	// ahead of a batch of patches.
	StartApplyingPatchesFromManager(ctx context.Context, historyEntryID, exchangeID string) error

	// FinishApplyingPatchesFromManager resumes synchronization and
	// reconciles the tree with the shared models it depends on.
	FinishApplyingPatchesFromManager(ctx context.Context, historyEntryID, exchangeID string) error
}

// Resetter is implemented by trees that can return to their initial state.
// Replay resets such trees first so that replaying twice is idempotent.
type Resetter interface {
	ResetFromManager(ctx context.Context) error
}

// IsReplayID reports whether id is the replay sentinel.
func IsReplayID(id string) bool {
	return id == ReplayHistoryEntryID
}
