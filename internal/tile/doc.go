// Package tile provides a JSON document tree that records its edits with a
// history.TreeManager.
//
// A Tile's state is a JSON object. Local edits are applied as RFC 6902
// patches and reported to the manager together with inverse patches computed
// against the state each patch was applied to. Shared models are mirrored
// under /shared/<id>; editing a mirror broadcasts the new snapshot to every
// other tree through the manager.
package tile
