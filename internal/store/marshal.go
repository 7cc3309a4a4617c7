package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tilehist/internal/ir"
)

// marshalPatches converts a patch list to canonical JSON TEXT for storage.
// A nil list is stored as [].
func marshalPatches(patches []ir.Patch) (string, error) {
	if patches == nil {
		patches = []ir.Patch{}
	}
	data, err := json.Marshal(patches)
	if err != nil {
		return "", fmt.Errorf("marshal patches: %w", err)
	}
	canonical, err := ir.CanonicalizeJSON(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize patches: %w", err)
	}
	return string(canonical), nil
}

// unmarshalPatches parses stored patch TEXT. Always returns a non-nil slice.
func unmarshalPatches(data string) ([]ir.Patch, error) {
	patches := []ir.Patch{}
	if data == "" {
		return patches, nil
	}
	if err := json.Unmarshal([]byte(data), &patches); err != nil {
		return nil, fmt.Errorf("unmarshal patches: %w", err)
	}
	return patches, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
