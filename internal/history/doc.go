// Package history implements the patch-based document history engine.
//
// A TreeManager coordinates any number of trees (tiles) that own patchable
// JSON state. Every change a tree makes is reported as a PatchRecord inside
// an exchange; records are grouped into HistoryEntry values, and an entry is
// finalized only when every exchange opened on it has closed. Completed
// entries are appended to the ChangeDocument and, when undoable, pushed onto
// the UndoStore.
//
// The manager never holds its lock while calling into a tree, so trees are
// free to call back into the manager (open exchanges, add records, broadcast
// shared models) from inside any Tree method.
//
// Failure policy for fan-out to trees is best-effort: every tree is called,
// failures are logged per tree, the first error is returned, and trees that
// applied successfully are not rolled back.
package history
