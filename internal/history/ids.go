package history

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator produces unique opaque identifiers for history entries and
// exchanges. Implementations must be safe for concurrent use.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ULIDGenerator generates lexicographically sortable ULIDs. The manager uses
// it for the exchanges it opens on behalf of trees.
//
// Thread-safety: ulid.Make uses a process-wide monotonic entropy source
// guarded by a mutex.
type ULIDGenerator struct{}

// Generate returns a new 26-character ULID.
func (ULIDGenerator) Generate() string {
	return ulid.Make().String()
}
