package ir

// Version constants for the snapshot schema and the history engine.
const (
	// SnapshotVersion is the change document snapshot schema version.
	SnapshotVersion = "1"

	// EngineVersion is the history engine version.
	EngineVersion = "0.1.0"
)
