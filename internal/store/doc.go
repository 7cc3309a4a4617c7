// Package store provides SQLite-backed durable storage for change documents.
//
// Each document is stored as:
//   - documents: one row per document
//   - history_entries: completed entries keyed by (document_id, position)
//   - patch_records: each entry's records keyed by (document_id, entry_position, seq)
//
// Ordering always comes from position and seq, never from timestamps, so a
// loaded document replays identically on every machine.
//
// Patch lists are stored as RFC 8785 canonical JSON. Every entry row carries
// ir.EntryDigest of its snapshot; LoadDocument recomputes and checks it.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
